package services_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/testutil"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const tenant = "tenant-1"

type fixture struct {
	*testutil.Env
	staff     context.Context
	admin     context.Context
	client    *models.Client
	warehouse *models.Warehouse
}

func newFixture(t *testing.T, opts ...testutil.EnvOption) *fixture {
	t.Helper()
	f := &fixture{
		Env:   testutil.NewEnv(opts...),
		staff: testutil.ActorContext(tenant, models.UserRoleStaff),
		admin: testutil.ActorContext(tenant, models.UserRoleAdmin),
	}
	var err error
	f.client, err = f.Directory.CreateClient(f.staff, models.NewClient{
		Name:        "Golden Lotus Trading",
		DefaultRate: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	f.warehouse, err = f.Directory.CreateWarehouse(f.staff, models.NewWarehouse{Name: "Yangon Main"})
	require.NoError(t, err)
	return f
}

func (f *fixture) trip(t *testing.T, dest *string) *models.Trip {
	t.Helper()
	trip, err := f.Trips.Create(f.staff, models.NewTrip{Route: "YGN-MDY", DestinationWarehouseId: dest})
	require.NoError(t, err)
	return trip
}

func (f *fixture) parcel(t *testing.T, tripId *string, quantity int) *models.Parcel {
	t.Helper()
	p, err := f.Parcels.Create(f.staff, models.NewParcel{
		ClientId:    f.client.ID,
		TripId:      tripId,
		WarehouseId: &f.warehouse.ID,
		Description: "Rice bags",
		Weight:      decimal.NewFromInt(12),
		Quantity:    quantity,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) get(t *testing.T, id string) *models.Parcel {
	t.Helper()
	p, err := f.Parcels.Get(f.staff, id)
	require.NoError(t, err)
	return p
}

// arrived walks a fresh parcel through a departed trip until it is arrived.
func (f *fixture) arrived(t *testing.T) *models.Parcel {
	t.Helper()
	trip := f.trip(t, &f.warehouse.ID)
	p := f.parcel(t, &trip.ID, 1)
	_, err := f.Parcels.BulkUpdateStatus(f.staff, []string{p.ID}, models.ParcelStatusLoaded)
	require.NoError(t, err)
	_, err = f.Trips.Transition(f.staff, trip.ID, models.TripStatusInTransit)
	require.NoError(t, err)
	res, err := f.Parcels.BulkUpdateStatus(f.staff, []string{p.ID}, models.ParcelStatusArrived)
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)
	return f.get(t, p.ID)
}

func (f *fixture) invoice(t *testing.T, status models.InvoiceStatus, items ...models.NewInvoiceLineItem) *models.Invoice {
	t.Helper()
	view, err := f.Ledger.CreateInvoice(f.staff, models.NewInvoice{
		ClientId:  f.client.ID,
		Status:    status,
		LineItems: items,
	})
	require.NoError(t, err)
	return view.Invoice
}

func line(qty, rate int64) models.NewInvoiceLineItem {
	return models.NewInvoiceLineItem{Description: "Freight", Quantity: decimal.NewFromInt(qty), Rate: decimal.NewFromInt(rate)}
}

func requireKind(t *testing.T, err error, kind utils.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, utils.KindOf(err), "unexpected error: %v", err)
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func fromTrip(clientId, tripId string) services.InvoiceFromTrip {
	return services.InvoiceFromTrip{ClientId: clientId, TripId: tripId}
}
