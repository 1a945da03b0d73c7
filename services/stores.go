package services

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("logistics_backend/services")

type ParcelStore interface {
	GetParcel(ctx context.Context, id string) (*models.Parcel, error)
	ListParcels(ctx context.Context, ids []string) ([]*models.Parcel, error)
	ListParcelsByTrip(ctx context.Context, tripId string) ([]*models.Parcel, error)
	ListParcelsByInvoice(ctx context.Context, invoiceId string) ([]*models.Parcel, error)
	MaxTripPosition(ctx context.Context, tripId string, excludeParcelId string) (int, error)
	FindParcelByBarcode(ctx context.Context, barcode string) (*models.Parcel, error)
	FindParcelsByIdPrefix(ctx context.Context, prefix string, limit int) ([]*models.Parcel, error)
	CreateParcel(ctx context.Context, p *models.Parcel) error
	// UpdateParcel saves the parcel columns and the barcodes of its pieces.
	UpdateParcel(ctx context.Context, p *models.Parcel) error
	DeleteParcel(ctx context.Context, id string) error
}

type TripStore interface {
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	CreateTrip(ctx context.Context, t *models.Trip) error
	UpdateTrip(ctx context.Context, t *models.Trip) error
	DeleteTrip(ctx context.Context, id string) error
	MaxTripSequence(ctx context.Context) (int64, error)
	GetExpense(ctx context.Context, id string) (*models.TripExpense, error)
	ListExpenses(ctx context.Context, tripId string) ([]*models.TripExpense, error)
	CreateExpense(ctx context.Context, e *models.TripExpense) error
	DeleteExpense(ctx context.Context, id string) error
	DeleteExpensesByTrip(ctx context.Context, tripId string) error
}

type InvoiceStore interface {
	// GetInvoice loads the invoice with its line items and adjustments.
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	// UpdateInvoice saves header columns when the stored version still equals inv.Version,
	// then bumps inv.Version. A stale version is a Conflict.
	UpdateInvoice(ctx context.Context, inv *models.Invoice) error
	ReplaceInvoiceLines(ctx context.Context, inv *models.Invoice) error
	DeleteInvoice(ctx context.Context, id string) error
	DetachShipment(ctx context.Context, parcelId string) error
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Invoice, error)
	MaxInvoiceSequence(ctx context.Context, year int) (int64, error)
}

type PaymentStore interface {
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	DeletePayment(ctx context.Context, id string) error
	SumPayments(ctx context.Context, invoiceId string) (decimal.Decimal, error)
	DetachPayments(ctx context.Context, invoiceId string) error
}

type ClientStore interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
	CreateClient(ctx context.Context, c *models.Client) error
	UpdateClient(ctx context.Context, c *models.Client) error
}

type WarehouseStore interface {
	GetWarehouse(ctx context.Context, id string) (*models.Warehouse, error)
	CreateWarehouse(ctx context.Context, w *models.Warehouse) error
}

// Stores bundles the stores bound to one connection or transaction.
type Stores struct {
	Parcels    ParcelStore
	Trips      TripStore
	Invoices   InvoiceStore
	Payments   PaymentStore
	Clients    ClientStore
	Warehouses WarehouseStore
}

// UnitOfWork hands out stores, either directly or inside one transaction.
// If fn returns an error every write made through tx is rolled back.
type UnitOfWork interface {
	Stores() Stores
	WithinTx(ctx context.Context, fn func(tx Stores) error) error
}

// Sequencer allocates per-tenant numbers. Values are unique but may have gaps.
type Sequencer interface {
	NextTripSequence(ctx context.Context) (int64, error)
	NextInvoiceSequence(ctx context.Context, year int) (int64, error)
}

// Locker serializes work on one key across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// EventPublisher accepts domain events after the originating transaction committed.
type EventPublisher interface {
	Publish(ctx context.Context, events ...models.DomainEvent) error
}

type Deps struct {
	UoW       UnitOfWork
	Sequencer Sequencer
	Locker    Locker
	Events    EventPublisher
	Logger    *logrus.Logger
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) logger() *logrus.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return config.GetLogger()
}

// emit hands events to the publisher. Failures are logged and reported to the caller
// but never undo the committed change.
func (d Deps) emit(ctx context.Context, events ...models.DomainEvent) error {
	if len(events) == 0 || d.Events == nil {
		return nil
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		for i := range events {
			events[i].CorrelationId = cid
		}
	}
	err := d.Events.Publish(ctx, events...)
	if err != nil {
		config.LogError(d.logger(), "services", "emit", "publishing domain events", map[string]any{
			"count": len(events),
			"type":  events[0].Type,
		}, err)
	}
	return err
}

// ActorFromContext reads the acting user set by the auth middleware.
func ActorFromContext(ctx context.Context) (models.Actor, error) {
	tenantId, _ := utils.GetTenantIdFromContext(ctx)
	if tenantId == "" {
		return models.Actor{}, utils.Forbidden("tenant not resolved for request")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)
	role, _ := utils.GetRoleFromContext(ctx)
	return models.Actor{
		TenantId: tenantId,
		UserId:   userId,
		UserName: userName,
		Role:     models.ParseUserRole(role),
	}, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// guardTripLock rejects changes to a closed trip unless the actor is elevated.
func guardTripLock(trip *models.Trip, actor models.Actor) error {
	if trip != nil && trip.IsLocked() && !actor.IsElevated() {
		return utils.Forbidden("trip %s is locked", trip.TripNumber)
	}
	return nil
}

func requireIds(ids []string, what string) ([]string, error) {
	var out []string
	for _, id := range utils.UniqueSlice(ids) {
		if id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, utils.InvalidRequest("at least one %s id is required", what)
	}
	return out, nil
}
