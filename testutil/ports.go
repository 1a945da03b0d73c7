package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
)

// MemSequencer counts per tenant, like the Redis sequencer without the seeding.
type MemSequencer struct {
	mu       sync.Mutex
	trips    map[string]int64
	invoices map[string]int64
}

func NewMemSequencer() *MemSequencer {
	return &MemSequencer{trips: map[string]int64{}, invoices: map[string]int64{}}
}

func (s *MemSequencer) NextTripSequence(ctx context.Context) (int64, error) {
	tenantId, _ := utils.GetTenantIdFromContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[tenantId]++
	return s.trips[tenantId], nil
}

func (s *MemSequencer) NextInvoiceSequence(ctx context.Context, year int) (int64, error) {
	tenantId, _ := utils.GetTenantIdFromContext(ctx)
	key := fmt.Sprintf("%s:%d", tenantId, year)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[key]++
	return s.invoices[key], nil
}

// SetTripSequence makes the next trip number last+1.
func (s *MemSequencer) SetTripSequence(tenantId string, last int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[tenantId] = last
}

func (s *MemSequencer) SetInvoiceSequence(tenantId string, year int, last int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[fmt.Sprintf("%s:%d", tenantId, year)] = last
}

// MemLocker is a process-local Locker with one mutex per key.
type MemLocker struct {
	mu       sync.Mutex
	keys     map[string]*sync.Mutex
	acquired map[string]int
}

func NewMemLocker() *MemLocker {
	return &MemLocker{keys: map[string]*sync.Mutex{}, acquired: map[string]int{}}
}

func (l *MemLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.keys[key]
	if !ok {
		m = &sync.Mutex{}
		l.keys[key] = m
	}
	l.acquired[key]++
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

func (l *MemLocker) Acquired(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired[key]
}

// EventRecorder keeps every published event. Set Err to make Publish fail.
type EventRecorder struct {
	mu     sync.Mutex
	events []models.DomainEvent
	Err    error
}

func (r *EventRecorder) Publish(ctx context.Context, events ...models.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, events...)
	return nil
}

func (r *EventRecorder) Events() []models.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.DomainEvent(nil), r.events...)
}

func (r *EventRecorder) OfType(typ models.EventType) []models.DomainEvent {
	var out []models.DomainEvent
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Env wires every service to the in-memory ports.
type Env struct {
	Store     *MemStore
	Sequencer *MemSequencer
	Locker    *MemLocker
	Events    *EventRecorder
	Now       time.Time

	Parcels    *services.ParcelService
	Trips      *services.TripService
	Ledger     *services.LedgerService
	Collection *services.CollectionGate
	Directory  *services.DirectoryService
}

type EnvOption func(*envConfig)

type envConfig struct {
	deletePolicy string
	scanPolicy   string
}

func WithDeletePolicy(policy string) EnvOption {
	return func(c *envConfig) { c.deletePolicy = policy }
}

func WithScanPolicy(policy string) EnvOption {
	return func(c *envConfig) { c.scanPolicy = policy }
}

func NewEnv(opts ...EnvOption) *Env {
	cfg := &envConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	env := &Env{
		Store:     NewMemStore(),
		Sequencer: NewMemSequencer(),
		Locker:    NewMemLocker(),
		Events:    &EventRecorder{},
		Now:       time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	deps := services.Deps{
		UoW:       env.Store,
		Sequencer: env.Sequencer,
		Locker:    env.Locker,
		Events:    env.Events,
		Now:       func() time.Time { return env.Now },
	}
	env.Parcels = services.NewParcelService(deps, cfg.deletePolicy)
	env.Trips = services.NewTripService(deps)
	env.Ledger = services.NewLedgerService(deps)
	env.Collection = services.NewCollectionGate(deps, cfg.scanPolicy)
	env.Directory = services.NewDirectoryService(deps, "MM")
	return env
}

// ActorContext builds a request context for a user of the tenant.
func ActorContext(tenantId string, role models.UserRole) context.Context {
	return utils.WithActor(context.Background(), tenantId, "user-"+string(role), string(role)+" user", string(role))
}
