package pending

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/easy-khana/api/internal/domain"
	pfirestore "github.com/easy-khana/api/internal/platform/firestore"
)

const (
	defaultCollection = "pending_payments"
	defaultSweepLimit = 200
)

// FirestoreStore keeps staged checkouts in Firestore so any instance can verify them.
type FirestoreStore struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[pendingDocument]
}

// NewFirestoreStore binds the store to the pending_payments collection.
func NewFirestoreStore(provider *pfirestore.Provider) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("pending: firestore provider is required")
	}
	return &FirestoreStore{
		provider: provider,
		base:     pfirestore.NewBaseRepository[pendingDocument](provider, defaultCollection),
	}, nil
}

// Put implements Store.
func (s *FirestoreStore) Put(ctx context.Context, entry domain.PendingPayment) error {
	key, err := normaliseKey(entry.TransactionID)
	if err != nil {
		return err
	}
	entry.TransactionID = key
	return s.base.Set(ctx, key, encodePending(entry))
}

// Take implements Store. The read and delete share one transaction, so a second caller either
// retries and observes the deletion or fails the commit.
func (s *FirestoreStore) Take(ctx context.Context, transactionID, owner string, now time.Time) (domain.PendingPayment, error) {
	key, err := normaliseKey(transactionID)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	ref, err := s.base.DocumentRef(ctx, key)
	if err != nil {
		return domain.PendingPayment{}, err
	}

	var taken domain.PendingPayment
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFoundCode(err) {
				return ErrNotFound
			}
			return err
		}
		doc, err := s.base.Decode(snap)
		if err != nil {
			return err
		}
		entry := doc.Data.toDomain(doc.ID)
		if !ownedBy(entry, owner) {
			return ErrNotOwner
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		taken = entry
		return nil
	})
	if err != nil {
		return domain.PendingPayment{}, err
	}
	if expired(taken, now) {
		return domain.PendingPayment{}, ErrNotFound
	}
	return taken, nil
}

// SweepExpired implements Store.
func (s *FirestoreStore) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	coll, err := s.base.Collection(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := coll.Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("pending_payments.sweep", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		job, err := writer.Delete(doc.Ref)
		if err != nil {
			writer.End()
			return 0, pfirestore.WrapError("pending_payments.sweep", err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	removed := 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if firstErr == nil {
				firstErr = pfirestore.WrapError("pending_payments.sweep", err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

type pendingDocument struct {
	UserID          string           `firestore:"userId"`
	Amount          int64            `firestore:"amount"`
	ReturnURL       string           `firestore:"returnUrl"`
	WebsiteURL      string           `firestore:"websiteUrl"`
	PurchaseOrderID string           `firestore:"purchaseOrderId"`
	Shipping        shippingDocument `firestore:"shippingDetails"`
	Items           []itemDocument   `firestore:"items"`
	CreatedAt       time.Time        `firestore:"createdAt"`
	ExpiresAt       time.Time        `firestore:"expiresAt"`
}

type itemDocument struct {
	MealKitID string `firestore:"mealKitId"`
	Quantity  int    `firestore:"quantity"`
}

type shippingDocument struct {
	Name                 string `firestore:"name"`
	Address              string `firestore:"address"`
	PhoneNumber          string `firestore:"phoneNumber"`
	DeliveryInstructions string `firestore:"deliveryInstructions,omitempty"`
}

func encodePending(entry domain.PendingPayment) pendingDocument {
	items := make([]itemDocument, 0, len(entry.Items))
	for _, item := range entry.Items {
		items = append(items, itemDocument(item))
	}
	return pendingDocument{
		UserID:          entry.UserID,
		Amount:          entry.Amount,
		ReturnURL:       entry.ReturnURL,
		WebsiteURL:      entry.WebsiteURL,
		PurchaseOrderID: entry.PurchaseOrderID,
		Shipping: shippingDocument{
			Name:                 entry.ShippingDetails.Name,
			Address:              entry.ShippingDetails.Address,
			PhoneNumber:          entry.ShippingDetails.PhoneNumber,
			DeliveryInstructions: entry.ShippingDetails.DeliveryInstructions,
		},
		Items:     items,
		CreatedAt: entry.CreatedAt.UTC(),
		ExpiresAt: entry.ExpiresAt.UTC(),
	}
}

func (d pendingDocument) toDomain(id string) domain.PendingPayment {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem(item))
	}
	return domain.PendingPayment{
		TransactionID:   id,
		UserID:          d.UserID,
		Amount:          d.Amount,
		ReturnURL:       d.ReturnURL,
		WebsiteURL:      d.WebsiteURL,
		PurchaseOrderID: d.PurchaseOrderID,
		ShippingDetails: domain.ShippingDetails{
			Name:                 d.Shipping.Name,
			Address:              d.Shipping.Address,
			PhoneNumber:          d.Shipping.PhoneNumber,
			DeliveryInstructions: d.Shipping.DeliveryInstructions,
		},
		Items:     items,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}
