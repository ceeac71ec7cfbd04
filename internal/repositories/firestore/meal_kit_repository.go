package firestore

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/easy-khana/api/internal/domain"
	pfirestore "github.com/easy-khana/api/internal/platform/firestore"
	"github.com/easy-khana/api/internal/repositories"
)

const mealKitsCollection = "meal_kits"

type mealKitDocument struct {
	Title    string   `firestore:"title"`
	Price    float64  `firestore:"price"`
	Images   []string `firestore:"images"`
	IsActive *bool    `firestore:"isActive,omitempty"`
}

// MealKitRepository reads catalog prices from the meal_kits collection.
type MealKitRepository struct {
	base *pfirestore.BaseRepository[mealKitDocument]
}

// NewMealKitRepository constructs a Firestore-backed catalog reader.
func NewMealKitRepository(provider *pfirestore.Provider) (*MealKitRepository, error) {
	if provider == nil {
		return nil, errors.New("meal kit repository requires firestore provider")
	}
	return &MealKitRepository{base: pfirestore.NewBaseRepository[mealKitDocument](provider, mealKitsCollection)}, nil
}

// CurrentPrice returns the trusted price snapshot. Deactivated kits read as not found.
func (r *MealKitRepository) CurrentPrice(ctx context.Context, mealKitID string) (domain.MealKitPrice, error) {
	id := strings.TrimSpace(mealKitID)
	if id == "" {
		return domain.MealKitPrice{}, pfirestore.NotFound("meal_kits.get", "meal kit id is empty")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.MealKitPrice{}, err
	}
	if doc.Data.IsActive != nil && !*doc.Data.IsActive {
		return domain.MealKitPrice{}, pfirestore.NotFound("meal_kits.get", "meal kit %s is inactive", id)
	}
	price := domain.MealKitPrice{MealKitID: doc.ID, Title: doc.Data.Title, Price: wholeRupees(doc.Data.Price)}
	if len(doc.Data.Images) > 0 {
		price.Image = doc.Data.Images[0]
	}
	return price, nil
}

// wholeRupees rounds a stored catalog price half away from zero. Non-finite values
// read as -1 so checkout treats the kit as unpriced.
func wholeRupees(price float64) int64 {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return -1
	}
	return int64(math.Round(price))
}

var _ repositories.MealKitRepository = (*MealKitRepository)(nil)
