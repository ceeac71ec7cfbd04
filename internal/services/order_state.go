package services

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/easy-khana/api/internal/domain"
)

// ErrIllegalTransition reports a status or payment change the rules do not allow.
var ErrIllegalTransition = errors.New("order: illegal transition")

// Actor identifies who requests a status change.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorStaff    Actor = "staff"
)

// fulfilmentRank orders the forward path; cancelled is off the path.
var fulfilmentRank = map[domain.OrderStatus]int{
	domain.OrderStatusPending:        0,
	domain.OrderStatusConfirmed:      1,
	domain.OrderStatusPreparing:      2,
	domain.OrderStatusOutForDelivery: 3,
	domain.OrderStatusDelivered:      4,
}

var (
	staffCancellable    = []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusPreparing}
	customerCancellable = []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed}
)

var paymentTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending:   {domain.PaymentStatusCompleted, domain.PaymentStatusFailed},
	domain.PaymentStatusCompleted: {domain.PaymentStatusRefunded},
}

// CanTransitionStatus reports whether actor may move an order from current to target.
func CanTransitionStatus(current, target domain.OrderStatus, actor Actor) bool {
	if !current.Valid() || !target.Valid() || current.Terminal() {
		return false
	}
	switch actor {
	case ActorCustomer:
		return target == domain.OrderStatusCancelled && slices.Contains(customerCancellable, current)
	case ActorStaff:
		if target == domain.OrderStatusCancelled {
			return slices.Contains(staffCancellable, current)
		}
		return fulfilmentRank[target] > fulfilmentRank[current]
	default:
		return false
	}
}

// TransitionStatus returns a copy of order moved to target with one history entry appended.
// deliveredAt is stamped on the delivered transition. On failure the input is returned as is.
func TransitionStatus(order domain.Order, target domain.OrderStatus, note string, actor Actor, now time.Time) (domain.Order, error) {
	if !CanTransitionStatus(order.Status, target, actor) {
		return order, illegalStatusError(order.Status, target, actor)
	}

	next := cloneOrder(order)
	next.Status = target
	next.StatusHistory = append(next.StatusHistory, domain.StatusHistoryEntry{
		Status:    target,
		Note:      strings.TrimSpace(note),
		Timestamp: now,
	})
	if target == domain.OrderStatusDelivered {
		delivered := now
		next.DeliveredAt = &delivered
	}
	next.UpdatedAt = now
	return next, nil
}

// TransitionPayment returns a copy of order with the new payment status. Completing the payment
// of a pending order confirms it and records the note (or "Payment completed") once; otherwise
// a history entry under the current status is added only when note is set.
func TransitionPayment(order domain.Order, target domain.PaymentStatus, note string, now time.Time) (domain.Order, error) {
	if !slices.Contains(paymentTransitions[order.PaymentStatus], target) {
		return order, fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, order.PaymentStatus, target)
	}

	next := cloneOrder(order)
	next.PaymentStatus = target
	next.UpdatedAt = now
	note = strings.TrimSpace(note)

	if target == domain.PaymentStatusCompleted && next.Status == domain.OrderStatusPending {
		if note == "" {
			note = "Payment completed"
		}
		next.Status = domain.OrderStatusConfirmed
		next.StatusHistory = append(next.StatusHistory, domain.StatusHistoryEntry{Status: next.Status, Note: note, Timestamp: now})
		return next, nil
	}
	if note != "" {
		next.StatusHistory = append(next.StatusHistory, domain.StatusHistoryEntry{Status: next.Status, Note: note, Timestamp: now})
	}
	return next, nil
}

func illegalStatusError(current, target domain.OrderStatus, actor Actor) error {
	switch {
	case actor == ActorCustomer && target == domain.OrderStatusCancelled && current == domain.OrderStatusOutForDelivery:
		return fmt.Errorf("%w: cannot cancel order in delivery", ErrIllegalTransition)
	case current.Terminal():
		return fmt.Errorf("%w: order already %s", ErrIllegalTransition, current)
	case actor == ActorCustomer && target != domain.OrderStatusCancelled:
		return fmt.Errorf("%w: customers may only cancel", ErrIllegalTransition)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, target)
	}
}

func cloneOrder(order domain.Order) domain.Order {
	next := order
	next.Items = slices.Clone(order.Items)
	next.StatusHistory = slices.Clone(order.StatusHistory)
	if order.PaymentDetails != nil {
		details := *order.PaymentDetails
		next.PaymentDetails = &details
	}
	if order.DeliveredAt != nil {
		at := *order.DeliveredAt
		next.DeliveredAt = &at
	}
	return next
}
