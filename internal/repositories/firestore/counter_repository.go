package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/easy-khana/api/internal/platform/firestore"
	"github.com/easy-khana/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	now      func() time.Time
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
		now:      time.Now,
	}, nil
}

// Next atomically increments the counter identified by counterID, creating it at 1.
func (r *CounterRepository) Next(ctx context.Context, counterID string) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" || strings.Contains(id, "/") {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required and must not contain '/'", nil)
	}
	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return 0, err
	}

	var nextValue int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.now().UTC()
		snapshot, err := tx.Get(ref)
		if err != nil {
			if !pfirestore.IsNotFoundCode(err) {
				return err
			}
			nextValue = 1
			return tx.Create(ref, counterDocument{CurrentValue: nextValue, UpdatedAt: now})
		}

		doc, err := r.counters.Decode(snapshot)
		if err != nil {
			return err
		}
		nextValue = doc.Data.CurrentValue + 1
		return tx.Set(ref, counterDocument{CurrentValue: nextValue, UpdatedAt: now})
	})
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return nextValue, nil
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)
