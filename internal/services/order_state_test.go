package services

import (
	"errors"
	"testing"
	"time"

	"github.com/easy-khana/api/internal/domain"
)

func TestCanTransitionStatus(t *testing.T) {
	cases := []struct {
		current domain.OrderStatus
		target  domain.OrderStatus
		actor   Actor
		want    bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, ActorStaff, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusOutForDelivery, ActorStaff, true},
		{domain.OrderStatusPending, domain.OrderStatusDelivered, ActorStaff, true},
		{domain.OrderStatusPreparing, domain.OrderStatusConfirmed, ActorStaff, false},
		{domain.OrderStatusPreparing, domain.OrderStatusPreparing, ActorStaff, false},
		{domain.OrderStatusPreparing, domain.OrderStatusCancelled, ActorStaff, true},
		{domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled, ActorStaff, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, ActorStaff, false},
		{domain.OrderStatusCancelled, domain.OrderStatusConfirmed, ActorStaff, false},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, ActorCustomer, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled, ActorCustomer, true},
		{domain.OrderStatusPreparing, domain.OrderStatusCancelled, ActorCustomer, false},
		{domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled, ActorCustomer, false},
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, ActorCustomer, false},
		{domain.OrderStatusPending, domain.OrderStatus("shipped"), ActorStaff, false},
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, Actor("robot"), false},
	}
	for _, tc := range cases {
		if got := CanTransitionStatus(tc.current, tc.target, tc.actor); got != tc.want {
			t.Errorf("%s %s -> %s: got %v want %v", tc.actor, tc.current, tc.target, got, tc.want)
		}
	}
}

func TestTransitionStatusAppendsOneEntry(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	order := domain.Order{
		Status:        domain.OrderStatusConfirmed,
		StatusHistory: []domain.StatusHistoryEntry{{Status: domain.OrderStatusConfirmed, Note: "Order created"}},
	}

	next, err := TransitionStatus(order, domain.OrderStatusDelivered, " left at gate ", ActorStaff, now)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if len(next.StatusHistory) != 2 || next.StatusHistory[1].Note != "left at gate" || !next.StatusHistory[1].Timestamp.Equal(now) {
		t.Fatalf("unexpected history %#v", next.StatusHistory)
	}
	if next.DeliveredAt == nil || !next.DeliveredAt.Equal(now) {
		t.Fatalf("expected deliveredAt")
	}
	if len(order.StatusHistory) != 1 || order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("input order must not be modified")
	}
}

func TestTransitionStatusRejectionMessages(t *testing.T) {
	now := time.Now()
	cases := []struct {
		order   domain.Order
		target  domain.OrderStatus
		actor   Actor
		message string
	}{
		{domain.Order{Status: domain.OrderStatusOutForDelivery}, domain.OrderStatusCancelled, ActorCustomer, "order: illegal transition: cannot cancel order in delivery"},
		{domain.Order{Status: domain.OrderStatusDelivered}, domain.OrderStatusCancelled, ActorCustomer, "order: illegal transition: order already delivered"},
		{domain.Order{Status: domain.OrderStatusPending}, domain.OrderStatusConfirmed, ActorCustomer, "order: illegal transition: customers may only cancel"},
	}
	for _, tc := range cases {
		got, err := TransitionStatus(tc.order, tc.target, "", tc.actor, now)
		if !errors.Is(err, ErrIllegalTransition) || err.Error() != tc.message {
			t.Errorf("unexpected error %v", err)
		}
		if got.Status != tc.order.Status || len(got.StatusHistory) != 0 {
			t.Errorf("rejected transition changed the order: %#v", got)
		}
	}
}

func TestTransitionPayment(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	pending := domain.Order{Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending}

	confirmed, err := TransitionPayment(pending, domain.PaymentStatusCompleted, "", now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed || len(confirmed.StatusHistory) != 1 || confirmed.StatusHistory[0].Note != "Payment completed" {
		t.Fatalf("expected single cascade entry, got %#v", confirmed)
	}

	refunded, err := TransitionPayment(confirmed, domain.PaymentStatusRefunded, "", now)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(refunded.StatusHistory) != 1 {
		t.Fatalf("payment-only change without note must not add history")
	}

	for _, illegal := range []struct {
		from, to domain.PaymentStatus
	}{
		{domain.PaymentStatusFailed, domain.PaymentStatusCompleted},
		{domain.PaymentStatusRefunded, domain.PaymentStatusCompleted},
		{domain.PaymentStatusPending, domain.PaymentStatusRefunded},
		{domain.PaymentStatusCompleted, domain.PaymentStatusFailed},
	} {
		order := domain.Order{Status: domain.OrderStatusConfirmed, PaymentStatus: illegal.from}
		if _, err := TransitionPayment(order, illegal.to, "", now); !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: expected illegal transition, got %v", illegal.from, illegal.to, err)
		}
	}
}
