//go:build integration

package firestore

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/easy-khana/api/internal/platform/firestore/firestoretest"
)

func TestCounterRepositoryIntegration(t *testing.T) {
	provider := firestoretest.Provider(t)

	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 16
	results := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = repo.Next(ctx, "orders:20261015")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, value := range results {
		if value != int64(i+1) {
			t.Fatalf("expected contiguous values, got %v", results)
		}
	}

	other, err := repo.Next(ctx, "orders:20261016")
	if err != nil {
		t.Fatalf("next other scope: %v", err)
	}
	if other != 1 {
		t.Fatalf("expected a new scope to start at 1, got %d", other)
	}

	if _, err := repo.Next(ctx, "bad/id"); err == nil {
		t.Fatalf("expected invalid id error")
	}
}
