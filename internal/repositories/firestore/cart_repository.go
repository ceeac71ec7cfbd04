package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/easy-khana/api/internal/domain"
	pfirestore "github.com/easy-khana/api/internal/platform/firestore"
	"github.com/easy-khana/api/internal/repositories"
)

const cartCollection = "carts"

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	MealKitID string `firestore:"mealKitId"`
	Quantity  int    `firestore:"quantity"`
}

// CartRepository reads carts stored at carts/{userId}. The storefront owns cart writes; checkout
// only reads the items and clears them afterwards.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
	now  func() time.Time
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
		now:  time.Now,
	}, nil
}

// Items returns the cart lines. A missing cart reads as empty.
func (r *CartRepository) Items(ctx context.Context, userID string) ([]domain.CartItem, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	items := make([]domain.CartItem, 0, len(doc.Data.Items))
	for _, item := range doc.Data.Items {
		items = append(items, domain.CartItem(item))
	}
	return items, nil
}

// Clear empties the cart, creating the document when absent.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("cart repository: user id is required")
	}
	ref, err := r.base.DocumentRef(ctx, userID)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, map[string]any{
		"items":     []cartItemDocument{},
		"updatedAt": r.now().UTC(),
	}, firestore.MergeAll)
	return pfirestore.WrapError("carts.clear", err)
}

var _ repositories.CartRepository = (*CartRepository)(nil)
