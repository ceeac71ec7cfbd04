//go:build integration

package pending_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/easy-khana/api/internal/domain"
	"github.com/easy-khana/api/internal/platform/firestore/firestoretest"
	"github.com/easy-khana/api/internal/platform/pending"
)

func TestFirestoreStoreIntegration(t *testing.T) {
	provider := firestoretest.Provider(t)
	store, err := pending.NewFirestoreStore(provider)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now().UTC().Truncate(time.Millisecond)

	entry := domain.PendingPayment{
		TransactionID:   "pidx-live",
		UserID:          "user-1",
		Amount:          120000,
		ReturnURL:       "https://easykhana.test/payment/verify",
		WebsiteURL:      "https://easykhana.test",
		PurchaseOrderID: "po_1",
		ShippingDetails: domain.ShippingDetails{Name: "Hari", Address: "Baneshwor", PhoneNumber: "9811111111"},
		CreatedAt:       now,
		ExpiresAt:       now.Add(pending.DefaultTTL),
	}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := store.Take(ctx, "pidx-live", "user-2", now); !errors.Is(err, pending.ErrNotOwner) {
		t.Fatalf("expected other user to be refused, got %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.Take(ctx, "pidx-live", "user-1", now)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				if got.UserID != "user-1" || got.ShippingDetails.Address != "Baneshwor" {
					t.Errorf("unexpected entry %+v", got)
				}
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}

	stale := entry
	stale.TransactionID = "pidx-stale"
	stale.CreatedAt = now.Add(-time.Hour)
	stale.ExpiresAt = now.Add(-30 * time.Minute)
	if err := store.Put(ctx, stale); err != nil {
		t.Fatalf("put stale: %v", err)
	}
	if _, err := store.Take(ctx, "pidx-stale", "user-1", now); !errors.Is(err, pending.ErrNotFound) {
		t.Fatalf("expected expired take to miss, got %v", err)
	}

	for _, id := range []string{"sweep-1", "sweep-2"} {
		stale.TransactionID = id
		_ = store.Put(ctx, stale)
	}
	removed, err := store.SweepExpired(ctx, now, 10)
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 swept, got %d err %v", removed, err)
	}
}
