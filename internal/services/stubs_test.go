package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/easy-khana/api/internal/domain"
	"github.com/easy-khana/api/internal/payments"
	"github.com/easy-khana/api/internal/repositories"
)

type testRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *testRepoError) Error() string       { return e.msg }
func (e *testRepoError) IsNotFound() bool    { return e.notFound }
func (e *testRepoError) IsConflict() bool    { return e.conflict }
func (e *testRepoError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = (*testRepoError)(nil)

func errNotFound(what string) error {
	return &testRepoError{msg: what + " not found", notFound: true}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) Log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *recordingLogger) Has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.events, event)
}

type memoryCartRepository struct {
	mu      sync.Mutex
	items   map[string][]domain.CartItem
	cleared []string
}

func newMemoryCartRepository() *memoryCartRepository {
	return &memoryCartRepository{items: make(map[string][]domain.CartItem)}
}

func (r *memoryCartRepository) Items(_ context.Context, userID string) ([]domain.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items[userID]), nil
}

func (r *memoryCartRepository) Clear(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, userID)
	r.cleared = append(r.cleared, userID)
	return nil
}

func (r *memoryCartRepository) set(userID string, items ...domain.CartItem) {
	r.mu.Lock()
	r.items[userID] = items
	r.mu.Unlock()
}

type staticCatalog map[string]domain.MealKitPrice

func (c staticCatalog) CurrentPrice(_ context.Context, mealKitID string) (domain.MealKitPrice, error) {
	price, ok := c[mealKitID]
	if !ok {
		return domain.MealKitPrice{}, errNotFound("meal kit " + mealKitID)
	}
	return price, nil
}

type memoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemoryOrderRepository(orders ...domain.Order) *memoryOrderRepository {
	repo := &memoryOrderRepository{orders: make(map[string]domain.Order)}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memoryOrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return &testRepoError{msg: "order exists", conflict: true}
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *memoryOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, errNotFound("order " + orderID)
	}
	return cloneOrder(order), nil
}

func (r *memoryOrderRepository) Mutate(_ context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, errNotFound("order " + orderID)
	}
	next, err := fn(cloneOrder(order))
	if err != nil {
		return domain.Order{}, err
	}
	r.orders[orderID] = cloneOrder(next)
	return next, nil
}

func (r *memoryOrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.PageResult[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
			continue
		}
		if filter.PaymentMethod != "" && order.PaymentMethod != filter.PaymentMethod {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	sort.Slice(matched, func(i, j int) bool {
		switch filter.Sort {
		case repositories.OrderSortOldest:
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		case repositories.OrderSortHighest:
			return matched[i].TotalAmount > matched[j].TotalAmount
		case repositories.OrderSortLowest:
			return matched[i].TotalAmount < matched[j].TotalAmount
		default:
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
	})
	page, limit := filter.Pagination.Page, filter.Pagination.Limit
	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))
	return domain.PageResult[domain.Order]{Items: matched[start:end], Total: len(matched), Page: page, Limit: limit}, nil
}

func (r *memoryOrderRepository) all() []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, order)
	}
	return out
}

type staticUsers map[string]domain.UserContact

func (u staticUsers) Contact(_ context.Context, userID string) (domain.UserContact, error) {
	contact, ok := u[userID]
	if !ok {
		return domain.UserContact{}, errNotFound("user " + userID)
	}
	return contact, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

type fakeGateway struct {
	mu          sync.Mutex
	initiateFn  func(payments.InitiateRequest) (payments.InitiateResult, error)
	lookupFn    func(string) (payments.LookupResult, error)
	initiated   []payments.InitiateRequest
	lookupCalls int
}

func (g *fakeGateway) Initiate(_ context.Context, req payments.InitiateRequest) (payments.InitiateResult, error) {
	g.mu.Lock()
	g.initiated = append(g.initiated, req)
	pidx := fmt.Sprintf("pidx-%d", len(g.initiated))
	g.mu.Unlock()
	if g.initiateFn != nil {
		return g.initiateFn(req)
	}
	return payments.InitiateResult{TransactionID: pidx, PaymentURL: "https://pay.khalti.test/?pidx=" + pidx}, nil
}

func (g *fakeGateway) Lookup(_ context.Context, transactionID string) (payments.LookupResult, error) {
	g.mu.Lock()
	g.lookupCalls++
	g.mu.Unlock()
	if g.lookupFn != nil {
		return g.lookupFn(transactionID)
	}
	return payments.LookupResult{}, errors.New("lookup not configured")
}

type recordingArchive struct {
	mu       sync.Mutex
	receipts []GatewayReceipt
}

func (a *recordingArchive) ArchiveReceipt(_ context.Context, receipt GatewayReceipt) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.receipts = append(a.receipts, receipt)
	return "gs://receipts/" + receipt.TransactionID + ".json", nil
}
