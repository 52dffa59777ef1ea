package pool

import (
	"context"
	"testing"
	"time"
)

func TestAcquireReusesIdleEntry(t *testing.T) {
	p := New(Config{BasePoolSize: 2, MaxPoolSize: 2, MemoryLimitMB: 16})
	defer p.Shutdown(time.Second)

	before := p.Stats()
	if before.Idle != 2 || before.InUse != 0 {
		t.Fatalf("expected warm pool of 2 idle, got %+v", before)
	}

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mid := p.Stats()
	if mid.InUse != 1 || mid.Idle != 1 {
		t.Fatalf("expected 1 in-use/1 idle after acquire, got %+v", mid)
	}

	p.Release(lease, true)
	after := p.Stats()
	if after.Idle != 2 || after.InUse != 0 {
		t.Fatalf("expected entry returned to idle, got %+v", after)
	}
}

func TestAcquireGrowsUpToMax(t *testing.T) {
	p := New(Config{BasePoolSize: 0, MaxPoolSize: 2, MemoryLimitMB: 16})
	defer p.Shutdown(time.Second)

	l1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	l2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}

	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatal("expected PoolExhausted on third acquire at MaxPoolSize=2")
	}

	if s := p.Stats(); s.Total > s.MaxSize {
		t.Fatalf("pool shape invariant violated: total %d > max %d", s.Total, s.MaxSize)
	}

	p.Release(l1, true)
	p.Release(l2, true)
}

func TestReleaseUnhealthyCorruptsAndReplaces(t *testing.T) {
	p := New(Config{BasePoolSize: 1, MaxPoolSize: 1, MemoryLimitMB: 16})
	defer p.Shutdown(time.Second)

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(lease, false)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().Idle >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s := p.Stats(); s.Idle < 1 {
		t.Fatalf("expected async replacement to restore base pool size, got %+v", s)
	}
}

func TestShutdownRejectsNewAcquires(t *testing.T) {
	p := New(Config{BasePoolSize: 1, MaxPoolSize: 1, MemoryLimitMB: 16})
	p.Shutdown(100 * time.Millisecond)

	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatal("expected acquire to fail once pool is shutting down")
	}
}
