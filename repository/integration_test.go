package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run against a scratch database:
//
//	INTEGRATION_TESTS=1 DB_DRIVER=mysql DB_HOST=... DB_NAME=... go test ./repository/...
func integrationDeps(t *testing.T) services.Deps {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("INTEGRATION_TESTS not set")
	}
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	require.NoError(t, models.MigrateTable(db))
	return NewDeps(db, nil, nil, 5*time.Second, config.GetLogger())
}

func tenantContext(role models.UserRole) context.Context {
	return utils.WithActor(context.Background(), "it-"+uuid.NewString()[:8], uuid.NewString(), "integration", string(role))
}

func TestIntegration_TripNumbersAndTenantIsolation(t *testing.T) {
	deps := integrationDeps(t)
	trips := services.NewTripService(deps)

	ctxA := tenantContext(models.UserRoleStaff)
	ctxB := tenantContext(models.UserRoleStaff)

	a1, err := trips.Create(ctxA, models.NewTrip{Route: "YGN-MDY"})
	require.NoError(t, err)
	a2, err := trips.Create(ctxA, models.NewTrip{Route: "YGN-MDY"})
	require.NoError(t, err)
	b1, err := trips.Create(ctxB, models.NewTrip{Route: "YGN-NPT"})
	require.NoError(t, err)

	assert.Equal(t, "S1", a1.TripNumber)
	assert.Equal(t, "S2", a2.TripNumber)
	assert.Equal(t, "S1", b1.TripNumber)

	_, err = trips.Get(ctxB, a1.ID)
	assert.True(t, utils.IsKind(err, utils.ErrorKindNotFound), "got %v", err)
}

func TestIntegration_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	deps := integrationDeps(t)
	ctx := tenantContext(models.UserRoleAdmin)
	directory := services.NewDirectoryService(deps, "MM")
	ledger := services.NewLedgerService(deps)

	client, err := directory.CreateClient(ctx, models.NewClient{Name: "Golden Lotus"})
	require.NoError(t, err)
	inv, err := ledger.CreateInvoice(ctx, models.NewInvoice{
		ClientId: client.ID,
		Status:   models.InvoiceStatusSent,
		LineItems: []models.NewInvoiceLineItem{
			{Description: "freight", Quantity: decimal.NewFromInt(10), Rate: decimal.NewFromInt(100)},
		},
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RecordPayment(ctx, inv.ID, models.NewPayment{Amount: decimal.NewFromInt(100), Method: models.PaymentMethodCash})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	view, err := ledger.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, view.Status)
	assert.True(t, view.Outstanding.IsZero())
}
