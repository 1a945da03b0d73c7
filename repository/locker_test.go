package repository

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocker_LocalFallbackSerialisesPerKey(t *testing.T) {
	l := NewLocker(nil, time.Second)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "invoice_payment:inv-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxSeen)
	}
}

func TestLocker_LocalFallbackKeysAreIndependent(t *testing.T) {
	l := NewLocker(nil, time.Second)
	ctx := context.Background()

	releaseA, err := l.Lock(ctx, "invoice_payment:a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := l.Lock(ctx, "invoice_payment:b")
		if err == nil {
			releaseB()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}
