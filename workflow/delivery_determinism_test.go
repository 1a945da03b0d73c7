package workflow

import (
	"sync"
	"testing"
)

// DB-free model of the dispatcher guarantees: at-least-once delivery is safe because
// every handler run is keyed by (tenant, handler, event).

type fakeProcessor struct {
	muByTenant map[string]*sync.Mutex
	mu         sync.Mutex
	seen       map[string]bool
	calls      int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		muByTenant: map[string]*sync.Mutex{},
		seen:       map[string]bool{},
	}
}

func (p *fakeProcessor) process(tenantID, handlerName, eventID string, fn func()) {
	p.mu.Lock()
	tm := p.muByTenant[tenantID]
	if tm == nil {
		tm = &sync.Mutex{}
		p.muByTenant[tenantID] = tm
	}
	p.mu.Unlock()

	tm.Lock()
	defer tm.Unlock()

	key := tenantID + "|" + handlerName + "|" + eventID
	p.mu.Lock()
	if p.seen[key] {
		p.mu.Unlock()
		return
	}
	p.seen[key] = true
	p.mu.Unlock()

	fn()

	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
}

func TestDelivery_DuplicateEventIsHandledOnce(t *testing.T) {
	p := newFakeProcessor()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.process("tenant-1", "audit", "ev-1", func() {})
		}()
	}
	wg.Wait()

	if p.calls != 1 {
		t.Fatalf("expected exactly 1 handler call, got %d", p.calls)
	}
}

func TestDelivery_HandlersAreKeyedIndependently(t *testing.T) {
	for run := 0; run < 50; run++ {
		p := newFakeProcessor()
		var wg sync.WaitGroup
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.process("tenant-1", "audit", "ev-1", func() {})
				p.process("tenant-1", "notify_unsettled_collection", "ev-1", func() {})
				p.process("tenant-2", "audit", "ev-1", func() {})
				p.process("tenant-1", "audit", "ev-1", func() {})
			}()
		}
		wg.Wait()

		if p.calls != 3 {
			t.Fatalf("run=%d expected 3 unique calls, got %d", run, p.calls)
		}
	}
}
