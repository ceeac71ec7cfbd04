//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/easy-khana/api/internal/platform/firestore"
	"github.com/easy-khana/api/internal/platform/firestore/firestoretest"
)

type mealKitDoc struct {
	Title string `firestore:"title"`
	Price int64  `firestore:"price"`
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	provider := firestoretest.Provider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	repo := pfirestore.NewBaseRepository[mealKitDoc](provider, "meal_kits")
	if err := repo.Create(ctx, "dal-bhat", mealKitDoc{Title: "Dal Bhat Kit", Price: 450}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, "dal-bhat", mealKitDoc{Title: "duplicate"})
	var cls interface{ IsConflict() bool }
	if !errors.As(err, &cls) || !cls.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}
	if err := repo.Set(ctx, "momo", mealKitDoc{Title: "Momo Kit", Price: 600}); err != nil {
		t.Fatalf("set: %v", err)
	}

	doc, err := repo.Get(ctx, "dal-bhat")
	if err != nil || doc.Data.Price != 450 || doc.UpdateTime.IsZero() {
		t.Fatalf("unexpected get result %+v err %v", doc, err)
	}

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("price", ">", 500)
	})
	if err != nil || len(docs) != 1 || docs[0].ID != "momo" {
		t.Fatalf("unexpected query result %+v err %v", docs, err)
	}
	total, err := repo.Count(ctx, nil)
	if err != nil || total != 2 {
		t.Fatalf("expected count 2, got %d err %v", total, err)
	}

	_, err = repo.Get(ctx, "missing")
	var nf interface{ IsNotFound() bool }
	if !errors.As(err, &nf) || !nf.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.DocumentRef(ctx, "dal-bhat")
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := repo.Decode(snap)
		if err != nil {
			return err
		}
		current.Data.Price += 50
		return tx.Set(ref, current.Data)
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if doc, _ := repo.Get(ctx, "dal-bhat"); doc.Data.Price != 500 {
		t.Fatalf("expected price 500 after transaction, got %d", doc.Data.Price)
	}

	sentinel := errors.New("abort")
	if err := provider.RunTransaction(ctx, func(context.Context, *firestore.Transaction) error {
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error passed through, got %v", err)
	}

	if err := repo.Delete(ctx, "momo"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
