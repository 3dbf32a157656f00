package memory

import (
	"context"
	"testing"
	"time"
)

func TestKeyedLockerExcludesSameKey(t *testing.T) {
	locker := NewKeyedLocker()
	unlock, err := locker.Lock(context.Background(), "progress:u1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		unlock2, err := locker.Lock(context.Background(), "progress:u1")
		if err != nil {
			t.Errorf("second lock: %v", err)
			return
		}
		close(acquired)
		unlock2()
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired the lock while it was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second holder never acquired the lock")
	}
}

func TestKeyedLockerIndependentKeys(t *testing.T) {
	locker := NewKeyedLocker()
	unlock1, err := locker.Lock(context.Background(), "progress:u1")
	if err != nil {
		t.Fatalf("lock u1: %v", err)
	}
	defer unlock1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock2, err := locker.Lock(ctx, "progress:u2")
	if err != nil {
		t.Fatalf("lock u2: %v", err)
	}
	unlock2()
}

func TestKeyedLockerHonoursContext(t *testing.T) {
	locker := NewKeyedLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); err == nil {
		t.Fatalf("expected context error while key is held")
	}

	unlock()
	unlock() // second call is a no-op
	if n := locker.Len(); n != 0 {
		t.Fatalf("expected no tracked keys, got %d", n)
	}
}
