package pending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingStore struct {
	*MemoryStore
	mu     sync.Mutex
	sweeps int
}

func (c *countingStore) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	c.mu.Lock()
	c.sweeps++
	c.mu.Unlock()
	return c.MemoryStore.SweepExpired(ctx, now, limit)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweeps
}

func TestSweeperRunOnceDrainsBacklog(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &countingStore{MemoryStore: NewMemoryStore()}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_ = store.Put(ctx, stagedPayment(id, now.Add(-time.Hour)))
	}

	var events []string
	sweeper := NewSweeper(store, SweeperOptions{
		BatchSize: 2,
		Clock:     func() time.Time { return now },
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	removed, err := sweeper.RunOnce(ctx)
	if err != nil || removed != 5 {
		t.Fatalf("expected 5 removed, got %d err %v", removed, err)
	}
	if store.count() != 3 {
		t.Fatalf("expected three batches, got %d", store.count())
	}
	if len(events) != 1 || events[0] != "pending.sweep.completed" {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestSweeperStopsOnCancel(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	sweeper := NewSweeper(store, SweeperOptions{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)
	sweeper.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for store.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.count() == 0 {
		t.Fatalf("expected the sweeper to tick")
	}

	cancel()
	sweeper.Stop()
	after := store.count()
	time.Sleep(30 * time.Millisecond)
	if store.count() != after {
		t.Fatalf("sweeper kept running after stop")
	}
}

type scriptedStore struct {
	*MemoryStore
	results []int
	errs    []error
	calls   int
}

func (s *scriptedStore) SweepExpired(context.Context, time.Time, int) (int, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i], s.errs[i]
}

func TestSweeperRunOnceStopsOnStoreFailure(t *testing.T) {
	failure := errors.New("permission denied")
	store := &scriptedStore{
		MemoryStore: NewMemoryStore(),
		results:     []int{2, 0},
		errs:        []error{nil, failure},
	}
	var events []string
	sweeper := NewSweeper(store, SweeperOptions{
		BatchSize: 2,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})

	removed, err := sweeper.RunOnce(context.Background())
	if !errors.Is(err, failure) {
		t.Fatalf("expected store failure, got %v", err)
	}
	if removed != 2 || store.calls != 2 {
		t.Fatalf("expected 2 removed over 2 batches, got %d over %d", removed, store.calls)
	}
	if len(events) != 1 || events[0] != "pending.sweep.failed" {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestSweeperRunOnceCapsBatches(t *testing.T) {
	store := &scriptedStore{
		MemoryStore: NewMemoryStore(),
		results:     []int{2},
		errs:        []error{nil},
	}
	sweeper := NewSweeper(store, SweeperOptions{BatchSize: 2, MaxBatches: 4})

	removed, err := sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if store.calls != 4 || removed != 8 {
		t.Fatalf("expected 4 capped batches removing 8, got %d batches removing %d", store.calls, removed)
	}
}
