package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/easy-khana/api/internal/domain"
	"github.com/easy-khana/api/internal/platform/pagination"
	"github.com/easy-khana/api/internal/repositories"
)

const (
	orderEventCancelled            = "order.cancelled"
	orderEventStatusChanged        = "order.status.changed"
	orderEventPaymentStatusChanged = "order.payment.changed"
	orderEventWebhookApplied       = "order.payment.webhook"

	defaultCancelNote = "User cancelled"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderConflict indicates a concurrent modification or a contradicting payment reference.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store is currently unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

var (
	ongoingStatuses  = []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusPreparing, domain.OrderStatusOutForDelivery}
	previousStatuses = []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusCancelled}
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, viewer Viewer) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !viewer.IsAdmin && order.UserID != strings.TrimSpace(viewer.UserID) {
		return domain.Order{}, ErrOrderForbidden
	}
	return order, nil
}

// ListUserOrders returns the caller's orders newest first. Scope is ongoing, previous, a single
// status, or empty for everything.
func (s *orderService) ListUserOrders(ctx context.Context, filter UserOrderFilter) (domain.PageResult[domain.Order], error) {
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.PageResult[domain.Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	statuses, err := scopeStatuses(filter.Scope)
	if err != nil {
		return domain.PageResult[domain.Order]{}, err
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Statuses:   statuses,
		Sort:       repositories.OrderSortLatest,
		Pagination: normalisePagination(filter.Pagination),
	})
	if err != nil {
		return domain.PageResult[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListAllOrders(ctx context.Context, filter AdminOrderFilter) (domain.PageResult[domain.Order], error) {
	statuses, err := scopeStatuses(filter.Status)
	if err != nil {
		return domain.PageResult[domain.Order]{}, err
	}
	listFilter := repositories.OrderListFilter{
		Statuses:   statuses,
		Sort:       repositories.ParseOrderSort(filter.Sort),
		Pagination: normalisePagination(filter.Pagination),
	}
	if raw := strings.ToLower(strings.TrimSpace(filter.PaymentMethod)); raw != "" && raw != "all" {
		method := domain.PaymentMethod(raw)
		if !method.Valid() {
			return domain.PageResult[domain.Order]{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, filter.PaymentMethod)
		}
		listFilter.PaymentMethod = method
	}

	page, err := s.orders.List(ctx, listFilter)
	if err != nil {
		return domain.PageResult[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// CancelOrder cancels the caller's own order. A completed payment is moved to refunded.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" || userID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}
	note := sanitizeText(cmd.Reason)
	if note == "" {
		note = defaultCancelNote
	}

	var previous domain.Order
	updated, err := s.orders.Mutate(ctx, orderID, func(order domain.Order) (domain.Order, error) {
		if order.UserID != userID {
			return order, ErrOrderForbidden
		}
		previous = order
		now := s.clock()
		next, err := TransitionStatus(order, domain.OrderStatusCancelled, note, ActorCustomer, now)
		if err != nil {
			return order, err
		}
		if next.PaymentStatus == domain.PaymentStatusCompleted {
			return TransitionPayment(next, domain.PaymentStatusRefunded, "", now)
		}
		return next, nil
	})
	if err != nil {
		return domain.Order{}, s.mapMutationError(err)
	}

	s.logger(ctx, orderEventCancelled, map[string]any{
		"orderID":        updated.ID,
		"userID":         userID,
		"previousStatus": string(previous.Status),
		"paymentStatus":  string(updated.PaymentStatus),
	})
	return updated, nil
}

// UpdateStatus applies a staff status change. Delivering a cash-on-delivery order settles its payment.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	note := sanitizeText(cmd.Note)
	if note == "" {
		note = "Status updated to " + string(target)
	}

	var previous domain.OrderStatus
	updated, err := s.orders.Mutate(ctx, orderID, func(order domain.Order) (domain.Order, error) {
		previous = order.Status
		now := s.clock()
		next, err := TransitionStatus(order, target, note, ActorStaff, now)
		if err != nil {
			return order, err
		}
		if target == domain.OrderStatusDelivered && next.PaymentMethod == domain.PaymentMethodCOD && next.PaymentStatus == domain.PaymentStatusPending {
			next, err = TransitionPayment(next, domain.PaymentStatusCompleted, "", now)
			if err != nil {
				return order, err
			}
			next.PaymentDetails = &domain.PaymentDetails{PaidAmount: next.TotalAmount, PaidAt: now}
		}
		return next, nil
	})
	if err != nil {
		return domain.Order{}, s.mapMutationError(err)
	}

	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderID":        updated.ID,
		"actorID":        strings.TrimSpace(cmd.ActorID),
		"previousStatus": string(previous),
		"currentStatus":  string(updated.Status),
	})
	return updated, nil
}

// UpdatePaymentStatus applies a staff payment override. A note is recorded in the history
// under the order's current status.
func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	target := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(string(cmd.PaymentStatus))))
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.PaymentStatus)
	}
	note := sanitizeText(cmd.Note)
	if note != "" {
		note = fmt.Sprintf("Payment status updated to %s: %s", target, note)
	}

	var previous domain.PaymentStatus
	updated, err := s.orders.Mutate(ctx, orderID, func(order domain.Order) (domain.Order, error) {
		previous = order.PaymentStatus
		now := s.clock()
		next, err := TransitionPayment(order, target, note, now)
		if err != nil {
			return order, err
		}
		if target == domain.PaymentStatusCompleted && next.PaymentDetails == nil {
			next.PaymentDetails = &domain.PaymentDetails{PaidAmount: next.TotalAmount, PaidAt: now}
		}
		return next, nil
	})
	if err != nil {
		return domain.Order{}, s.mapMutationError(err)
	}

	s.logger(ctx, orderEventPaymentStatusChanged, map[string]any{
		"orderID":         updated.ID,
		"actorID":         strings.TrimSpace(cmd.ActorID),
		"previousPayment": string(previous),
		"currentPayment":  string(updated.PaymentStatus),
	})
	return updated, nil
}

// ApplyPaymentWebhook records a provider callback. Repeating the order's current payment status
// changes nothing.
func (s *orderService) ApplyPaymentWebhook(ctx context.Context, cmd PaymentWebhookCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	transactionID := strings.TrimSpace(cmd.TransactionID)
	target := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: orderId is required", ErrOrderInvalidInput)
	}
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Status)
	}

	applied := false
	updated, err := s.orders.Mutate(ctx, orderID, func(order domain.Order) (domain.Order, error) {
		if order.PaymentDetails != nil && transactionID != "" && order.PaymentDetails.TransactionID != "" &&
			order.PaymentDetails.TransactionID != transactionID {
			return order, fmt.Errorf("%w: transaction id does not match order", ErrOrderConflict)
		}
		if order.PaymentStatus == target {
			return order, nil
		}
		now := s.clock()
		next, err := TransitionPayment(order, target, "", now)
		if err != nil {
			return order, err
		}
		if target == domain.PaymentStatusCompleted {
			details := domain.PaymentDetails{TransactionID: transactionID, PaidAmount: next.TotalAmount, PaidAt: now}
			if next.PaymentDetails != nil {
				details.RawProviderResponse = next.PaymentDetails.RawProviderResponse
			}
			next.PaymentDetails = &details
		}
		applied = true
		return next, nil
	})
	if err != nil {
		return domain.Order{}, s.mapMutationError(err)
	}

	s.logger(ctx, orderEventWebhookApplied, map[string]any{
		"orderID":       updated.ID,
		"transactionID": transactionID,
		"paymentStatus": string(updated.PaymentStatus),
		"applied":       applied,
	})
	return updated, nil
}

func (s *orderService) mapMutationError(err error) error {
	switch {
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrOrderForbidden), errors.Is(err, ErrOrderConflict):
		return err
	default:
		return s.mapRepositoryError(err)
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func scopeStatuses(scope string) ([]domain.OrderStatus, error) {
	switch value := strings.ToLower(strings.TrimSpace(scope)); value {
	case string(UserOrderScopeAll), "all":
		return nil, nil
	case string(UserOrderScopeOngoing):
		return ongoingStatuses, nil
	case string(UserOrderScopePrevious):
		return previousStatuses, nil
	default:
		status := domain.OrderStatus(value)
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, scope)
		}
		return []domain.OrderStatus{status}, nil
	}
}

func normalisePagination(p domain.Pagination) domain.Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = pagination.DefaultLimit
	}
	if p.Limit > pagination.DefaultMaxLimit {
		p.Limit = pagination.DefaultMaxLimit
	}
	return p
}
