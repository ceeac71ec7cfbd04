package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/easy-khana/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err is a repository not-found failure.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a repository conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// OrderMutation receives the stored order and returns the version to persist.
type OrderMutation func(order domain.Order) (domain.Order, error)

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// Mutate applies fn to the current order inside a transaction. An error from fn aborts
	// the write and is returned unchanged.
	Mutate(ctx context.Context, orderID string, fn OrderMutation) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.PageResult[domain.Order], error)
}

// OrderSort enumerates supported list orderings.
type OrderSort string

const (
	OrderSortLatest  OrderSort = "latest"
	OrderSortOldest  OrderSort = "oldest"
	OrderSortHighest OrderSort = "highest"
	OrderSortLowest  OrderSort = "lowest"
)

// Valid reports whether s is a supported ordering.
func (s OrderSort) Valid() bool {
	switch s {
	case OrderSortLatest, OrderSortOldest, OrderSortHighest, OrderSortLowest:
		return true
	}
	return false
}

// ParseOrderSort maps a sort key, including the payment_* and amount_* aliases,
// onto an ordering. Unknown or empty keys fall back to latest.
func ParseOrderSort(raw string) OrderSort {
	switch key := strings.ToLower(strings.TrimSpace(raw)); key {
	case "payment_latest":
		return OrderSortLatest
	case "payment_oldest":
		return OrderSortOldest
	case "amount_high":
		return OrderSortHighest
	case "amount_low":
		return OrderSortLowest
	default:
		if sort := OrderSort(key); sort.Valid() {
			return sort
		}
		return OrderSortLatest
	}
}

// OrderListFilter narrows list queries. Empty fields do not filter.
type OrderListFilter struct {
	UserID        string
	Statuses      []domain.OrderStatus
	PaymentMethod domain.PaymentMethod
	Sort          OrderSort
	Pagination    domain.Pagination
}

// CounterRepository provides monotonic sequences.
type CounterRepository interface {
	// Next atomically increments counterID by one and returns the new value.
	Next(ctx context.Context, counterID string) (int64, error)
}

// CartRepository reads and clears the customer's cart.
type CartRepository interface {
	Items(ctx context.Context, userID string) ([]domain.CartItem, error)
	Clear(ctx context.Context, userID string) error
}

// MealKitRepository exposes catalog prices.
type MealKitRepository interface {
	CurrentPrice(ctx context.Context, mealKitID string) (domain.MealKitPrice, error)
}

// UserRepository resolves notification contacts.
type UserRepository interface {
	Contact(ctx context.Context, userID string) (domain.UserContact, error)
}

// HealthRepository gathers dependency health for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
