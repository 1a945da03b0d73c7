// Package testutil provides in-memory implementations of the service ports for unit tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/shopspring/decimal"
)

type tables struct {
	parcels    map[string]models.Parcel
	trips      map[string]models.Trip
	expenses   map[string]models.TripExpense
	invoices   map[string]models.Invoice
	payments   map[string]models.Payment
	clients    map[string]models.Client
	warehouses map[string]models.Warehouse
}

func newTables() *tables {
	return &tables{
		parcels:    map[string]models.Parcel{},
		trips:      map[string]models.Trip{},
		expenses:   map[string]models.TripExpense{},
		invoices:   map[string]models.Invoice{},
		payments:   map[string]models.Payment{},
		clients:    map[string]models.Client{},
		warehouses: map[string]models.Warehouse{},
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.parcels {
		c.parcels[k] = copyParcel(v)
	}
	for k, v := range t.trips {
		c.trips[k] = v
	}
	for k, v := range t.expenses {
		c.expenses[k] = v
	}
	for k, v := range t.invoices {
		c.invoices[k] = copyInvoice(v)
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.clients {
		c.clients[k] = v
	}
	for k, v := range t.warehouses {
		c.warehouses[k] = v
	}
	return c
}

func copyParcel(p models.Parcel) models.Parcel {
	p.Pieces = append([]models.Piece(nil), p.Pieces...)
	return p
}

func copyInvoice(inv models.Invoice) models.Invoice {
	inv.LineItems = append([]models.InvoiceLineItem(nil), inv.LineItems...)
	inv.Adjustments = append([]models.InvoiceAdjustment(nil), inv.Adjustments...)
	return inv
}

// MemStore is a services.UnitOfWork backed by maps. Rows are copied on the way in and out
// so callers never share memory with the store. Transactions are serialized and roll back
// to a snapshot when fn fails.
type MemStore struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	data  *tables
	clock time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{data: newTables(), clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *MemStore) Stores() services.Stores {
	s := &memStores{m: m}
	return services.Stores{Parcels: s, Trips: s, Invoices: s, Payments: s, Clients: s, Warehouses: s}
}

func (m *MemStore) WithinTx(ctx context.Context, fn func(tx services.Stores) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.data.clone()
	m.mu.Unlock()

	if err := fn(m.Stores()); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// tick hands out strictly increasing creation times so listings keep insertion order.
func (m *MemStore) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

type memStores struct {
	m *MemStore
}

func visible(ctx context.Context, tenantId string) bool {
	if skip, _ := utils.GetSkipTenantScopeFromContext(ctx); skip {
		return true
	}
	current, _ := utils.GetTenantIdFromContext(ctx)
	return current == tenantId
}

func (s *memStores) lock() func() {
	s.m.mu.Lock()
	return s.m.mu.Unlock
}

// parcels

func (s *memStores) GetParcel(ctx context.Context, id string) (*models.Parcel, error) {
	defer s.lock()()
	p, ok := s.m.data.parcels[id]
	if !ok || !visible(ctx, p.TenantId) {
		return nil, utils.NotFound("parcel %s not found", id)
	}
	c := copyParcel(p)
	return &c, nil
}

func (s *memStores) sortedParcels(ctx context.Context, keep func(models.Parcel) bool) []*models.Parcel {
	var out []*models.Parcel
	for _, p := range s.m.data.parcels {
		if visible(ctx, p.TenantId) && keep(p) {
			c := copyParcel(p)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *memStores) ListParcels(ctx context.Context, ids []string) ([]*models.Parcel, error) {
	defer s.lock()()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return s.sortedParcels(ctx, func(p models.Parcel) bool { return want[p.ID] }), nil
}

func (s *memStores) ListParcelsByTrip(ctx context.Context, tripId string) ([]*models.Parcel, error) {
	defer s.lock()()
	return s.sortedParcels(ctx, func(p models.Parcel) bool { return p.TripId != nil && *p.TripId == tripId }), nil
}

func (s *memStores) ListParcelsByInvoice(ctx context.Context, invoiceId string) ([]*models.Parcel, error) {
	defer s.lock()()
	return s.sortedParcels(ctx, func(p models.Parcel) bool { return p.InvoiceId != nil && *p.InvoiceId == invoiceId }), nil
}

func (s *memStores) MaxTripPosition(ctx context.Context, tripId string, excludeParcelId string) (int, error) {
	defer s.lock()()
	last := 0
	for _, p := range s.m.data.parcels {
		if !visible(ctx, p.TenantId) || p.TripId == nil || *p.TripId != tripId || p.ID == excludeParcelId {
			continue
		}
		if p.TripPosition > last {
			last = p.TripPosition
		}
	}
	return last, nil
}

func (s *memStores) FindParcelByBarcode(ctx context.Context, barcode string) (*models.Parcel, error) {
	defer s.lock()()
	matches := s.sortedParcels(ctx, func(p models.Parcel) bool {
		for _, piece := range p.Pieces {
			if piece.Barcode == barcode {
				return true
			}
		}
		return false
	})
	if len(matches) == 0 {
		return nil, utils.NotFound("no parcel with barcode %s", barcode)
	}
	return matches[0], nil
}

func (s *memStores) FindParcelsByIdPrefix(ctx context.Context, prefix string, limit int) ([]*models.Parcel, error) {
	defer s.lock()()
	prefix = strings.ToLower(prefix)
	matches := s.sortedParcels(ctx, func(p models.Parcel) bool { return strings.HasPrefix(strings.ToLower(p.ID), prefix) })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *memStores) CreateParcel(ctx context.Context, p *models.Parcel) error {
	defer s.lock()()
	if _, ok := s.m.data.parcels[p.ID]; ok {
		return utils.Conflict("parcel %s already exists", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.m.tick()
	}
	s.m.data.parcels[p.ID] = copyParcel(*p)
	return nil
}

func (s *memStores) UpdateParcel(ctx context.Context, p *models.Parcel) error {
	defer s.lock()()
	stored, ok := s.m.data.parcels[p.ID]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("parcel %s not found", p.ID)
	}
	p.CreatedAt = stored.CreatedAt
	s.m.data.parcels[p.ID] = copyParcel(*p)
	return nil
}

func (s *memStores) DeleteParcel(ctx context.Context, id string) error {
	defer s.lock()()
	stored, ok := s.m.data.parcels[id]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("parcel %s not found", id)
	}
	delete(s.m.data.parcels, id)
	return nil
}

// trips

func (s *memStores) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	defer s.lock()()
	t, ok := s.m.data.trips[id]
	if !ok || !visible(ctx, t.TenantId) {
		return nil, utils.NotFound("trip %s not found", id)
	}
	return &t, nil
}

func (s *memStores) CreateTrip(ctx context.Context, t *models.Trip) error {
	defer s.lock()()
	for _, other := range s.m.data.trips {
		if other.TenantId == t.TenantId && other.TripNumber == t.TripNumber {
			return utils.Conflict("trip number %s already exists", t.TripNumber)
		}
	}
	s.m.data.trips[t.ID] = *t
	return nil
}

func (s *memStores) UpdateTrip(ctx context.Context, t *models.Trip) error {
	defer s.lock()()
	stored, ok := s.m.data.trips[t.ID]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("trip %s not found", t.ID)
	}
	s.m.data.trips[t.ID] = *t
	return nil
}

func (s *memStores) DeleteTrip(ctx context.Context, id string) error {
	defer s.lock()()
	stored, ok := s.m.data.trips[id]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("trip %s not found", id)
	}
	delete(s.m.data.trips, id)
	return nil
}

func (s *memStores) MaxTripSequence(ctx context.Context) (int64, error) {
	defer s.lock()()
	var max int64
	for _, t := range s.m.data.trips {
		if visible(ctx, t.TenantId) && t.SequenceNo > max {
			max = t.SequenceNo
		}
	}
	return max, nil
}

func (s *memStores) GetExpense(ctx context.Context, id string) (*models.TripExpense, error) {
	defer s.lock()()
	e, ok := s.m.data.expenses[id]
	if !ok || !visible(ctx, e.TenantId) {
		return nil, utils.NotFound("expense %s not found", id)
	}
	return &e, nil
}

func (s *memStores) ListExpenses(ctx context.Context, tripId string) ([]*models.TripExpense, error) {
	defer s.lock()()
	var out []*models.TripExpense
	for _, e := range s.m.data.expenses {
		if e.TripId == tripId && visible(ctx, e.TenantId) {
			c := e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpenseDate.Before(out[j].ExpenseDate) })
	return out, nil
}

func (s *memStores) CreateExpense(ctx context.Context, e *models.TripExpense) error {
	defer s.lock()()
	s.m.data.expenses[e.ID] = *e
	return nil
}

func (s *memStores) DeleteExpense(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.m.data.expenses[id]; !ok {
		return utils.NotFound("expense %s not found", id)
	}
	delete(s.m.data.expenses, id)
	return nil
}

func (s *memStores) DeleteExpensesByTrip(ctx context.Context, tripId string) error {
	defer s.lock()()
	for id, e := range s.m.data.expenses {
		if e.TripId == tripId && visible(ctx, e.TenantId) {
			delete(s.m.data.expenses, id)
		}
	}
	return nil
}

// invoices

func (s *memStores) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	defer s.lock()()
	inv, ok := s.m.data.invoices[id]
	if !ok || !visible(ctx, inv.TenantId) {
		return nil, utils.NotFound("invoice %s not found", id)
	}
	c := copyInvoice(inv)
	return &c, nil
}

func (s *memStores) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	defer s.lock()()
	for _, other := range s.m.data.invoices {
		if other.TenantId == inv.TenantId && other.InvoiceNumber == inv.InvoiceNumber {
			return utils.Conflict("invoice number %s already exists", inv.InvoiceNumber)
		}
	}
	if inv.Version == 0 {
		inv.Version = 1
	}
	s.m.data.invoices[inv.ID] = copyInvoice(*inv)
	return nil
}

func (s *memStores) UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	defer s.lock()()
	stored, ok := s.m.data.invoices[inv.ID]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("invoice %s not found", inv.ID)
	}
	if stored.Version != inv.Version {
		return utils.Conflict("invoice %s was modified concurrently", inv.InvoiceNumber)
	}
	inv.Version++
	updated := copyInvoice(*inv)
	updated.LineItems = stored.LineItems
	updated.Adjustments = stored.Adjustments
	s.m.data.invoices[inv.ID] = updated
	return nil
}

func (s *memStores) ReplaceInvoiceLines(ctx context.Context, inv *models.Invoice) error {
	defer s.lock()()
	stored, ok := s.m.data.invoices[inv.ID]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("invoice %s not found", inv.ID)
	}
	c := copyInvoice(*inv)
	stored.LineItems = c.LineItems
	stored.Adjustments = c.Adjustments
	s.m.data.invoices[inv.ID] = stored
	return nil
}

func (s *memStores) DeleteInvoice(ctx context.Context, id string) error {
	defer s.lock()()
	stored, ok := s.m.data.invoices[id]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("invoice %s not found", id)
	}
	delete(s.m.data.invoices, id)
	return nil
}

func (s *memStores) DetachShipment(ctx context.Context, parcelId string) error {
	defer s.lock()()
	for id, inv := range s.m.data.invoices {
		if !visible(ctx, inv.TenantId) {
			continue
		}
		c := copyInvoice(inv)
		for i := range c.LineItems {
			if c.LineItems[i].ShipmentId != nil && *c.LineItems[i].ShipmentId == parcelId {
				c.LineItems[i].ShipmentId = nil
			}
		}
		s.m.data.invoices[id] = c
	}
	return nil
}

func (s *memStores) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Invoice, error) {
	defer s.lock()()
	today := utils.DateOnly(now)
	var out []*models.Invoice
	for _, inv := range s.m.data.invoices {
		if !visible(ctx, inv.TenantId) || inv.DueDate == nil {
			continue
		}
		if inv.Status == models.InvoiceStatusPaid || inv.Status == models.InvoiceStatusOverdue {
			continue
		}
		if utils.DateOnly(*inv.DueDate).Before(today) {
			c := copyInvoice(inv)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStores) MaxInvoiceSequence(ctx context.Context, year int) (int64, error) {
	defer s.lock()()
	var max int64
	for _, inv := range s.m.data.invoices {
		if visible(ctx, inv.TenantId) && inv.InvoiceYear == year && inv.SequenceNo > max {
			max = inv.SequenceNo
		}
	}
	return max, nil
}

// payments

func (s *memStores) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	defer s.lock()()
	p, ok := s.m.data.payments[id]
	if !ok || !visible(ctx, p.TenantId) {
		return nil, utils.NotFound("payment %s not found", id)
	}
	return &p, nil
}

func (s *memStores) CreatePayment(ctx context.Context, p *models.Payment) error {
	defer s.lock()()
	s.m.data.payments[p.ID] = *p
	return nil
}

func (s *memStores) DeletePayment(ctx context.Context, id string) error {
	defer s.lock()()
	stored, ok := s.m.data.payments[id]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("payment %s not found", id)
	}
	delete(s.m.data.payments, id)
	return nil
}

func (s *memStores) SumPayments(ctx context.Context, invoiceId string) (decimal.Decimal, error) {
	defer s.lock()()
	total := decimal.Zero
	for _, p := range s.m.data.payments {
		if p.InvoiceId != nil && *p.InvoiceId == invoiceId && visible(ctx, p.TenantId) {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (s *memStores) DetachPayments(ctx context.Context, invoiceId string) error {
	defer s.lock()()
	for id, p := range s.m.data.payments {
		if p.InvoiceId != nil && *p.InvoiceId == invoiceId && visible(ctx, p.TenantId) {
			p.InvoiceId = nil
			s.m.data.payments[id] = p
		}
	}
	return nil
}

// clients and warehouses

func (s *memStores) GetClient(ctx context.Context, id string) (*models.Client, error) {
	defer s.lock()()
	c, ok := s.m.data.clients[id]
	if !ok || !visible(ctx, c.TenantId) {
		return nil, utils.NotFound("client %s not found", id)
	}
	return &c, nil
}

func (s *memStores) CreateClient(ctx context.Context, c *models.Client) error {
	defer s.lock()()
	s.m.data.clients[c.ID] = *c
	return nil
}

func (s *memStores) UpdateClient(ctx context.Context, c *models.Client) error {
	defer s.lock()()
	stored, ok := s.m.data.clients[c.ID]
	if !ok || !visible(ctx, stored.TenantId) {
		return utils.NotFound("client %s not found", c.ID)
	}
	s.m.data.clients[c.ID] = *c
	return nil
}

func (s *memStores) GetWarehouse(ctx context.Context, id string) (*models.Warehouse, error) {
	defer s.lock()()
	w, ok := s.m.data.warehouses[id]
	if !ok || !visible(ctx, w.TenantId) {
		return nil, utils.NotFound("warehouse %s not found", id)
	}
	return &w, nil
}

func (s *memStores) CreateWarehouse(ctx context.Context, w *models.Warehouse) error {
	defer s.lock()()
	s.m.data.warehouses[w.ID] = *w
	return nil
}
