package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateBoundsConcurrency(t *testing.T) {
	const permits = 3
	const workers = 20

	gate := NewGate(permits)
	var inFlight, peak int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gate.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer gate.Release()
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()

	if p := atomic.LoadInt32(&peak); p > permits {
		t.Errorf("peak concurrency %d exceeded %d permits", p, permits)
	}
	if gate.InUse() != 0 {
		t.Errorf("expected all permits returned, %d still held", gate.InUse())
	}
}

func TestGateAcquireCancelled(t *testing.T) {
	gate := NewGate(1)
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := gate.Acquire(ctx); err == nil {
		t.Fatal("expected acquire to fail once context is done")
	}

	gate.Release()
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestGateClampsToOne(t *testing.T) {
	gate := NewGate(0)
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	gate.Release()
}
