package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_AcquireUntilFullThenTimeout(t *testing.T) {
	p := NewChanPool(2)

	r1, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire ok")
	}
	r2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected second acquire ok")
	}
	if inUse, _ := p.Occupancy(); inUse != 2 {
		t.Fatalf("expected 2 in use, got %d", inUse)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected acquire to fail when pool is full")
	}

	r1()
	r1() // idempotente
	if inUse, _ := p.Occupancy(); inUse != 1 {
		t.Fatalf("expected 1 in use after release, got %d", inUse)
	}
	r2()
}

func TestChanPool_FreeSlotWinsOverCancelledContext(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release, ok := p.Acquire(ctx)
	if !ok {
		t.Fatalf("expected free slot to be acquired even with cancelled ctx")
	}
	release()
	if _, capacity := p.Occupancy(); capacity != 1 {
		t.Fatalf("unexpected capacity %d", capacity)
	}
}
