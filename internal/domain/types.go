package domain

import (
	"time"
)

// Pagination defines page-number based paging inputs for list operations.
type Pagination struct {
	Page  int
	Limit int
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// OrderStatus enumerates fulfillment states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits confirmation (usually payment).
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the kitchen accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the meal kits are being packed.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusOutForDelivery indicates a rider has the order.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists all statuses in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether the status is a known value.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Ongoing reports whether the order is still moving through fulfillment.
func (s OrderStatus) Ongoing() bool {
	return s.Valid() && !s.Terminal()
}

// PaymentStatus enumerates the payment axis of an order.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Valid reports whether the payment status is a known value.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentMethod identifies how the customer pays.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodKhalti routes payment through the Khalti gateway.
	PaymentMethodKhalti PaymentMethod = "khalti"
)

// Valid reports whether the payment method is supported.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodKhalti
}

// Order is the durable record of a completed checkout.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	TotalAmount     int64
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	PaymentDetails  *PaymentDetails
	ShippingDetails ShippingDetails
	StatusHistory   []StatusHistoryEntry
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem snapshots a meal kit line at checkout time.
type OrderItem struct {
	MealKitID string
	Quantity  int
	UnitPrice int64
	Title     string
	Image     string
}

// LineTotal returns unit price multiplied by quantity.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// PaymentDetails records what the payment provider confirmed.
type PaymentDetails struct {
	TransactionID       string
	PaidAmount          int64
	PaidAt              time.Time
	RawProviderResponse map[string]any
}

// ShippingDetails holds the delivery contact for an order.
type ShippingDetails struct {
	Name                 string
	Address              string
	PhoneNumber          string
	DeliveryInstructions string
}

// StatusHistoryEntry is one append-only audit record.
type StatusHistoryEntry struct {
	Status    OrderStatus
	Note      string
	Timestamp time.Time
}

// OrderTotal sums unit price times quantity over the items.
func OrderTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}

// CartItem is a line in the customer's cart as read from the cart collaborator.
type CartItem struct {
	MealKitID string
	Quantity  int
}

// MealKitPrice is the trusted catalog view of a meal kit at call time.
type MealKitPrice struct {
	MealKitID string
	Title     string
	Image     string
	Price     int64
}

// UserContact is the notification address of a customer.
type UserContact struct {
	UserID string
	Name   string
	Email  string
}

// PendingPayment stages a gateway checkout that has not produced an order yet. Items is the
// cart captured at initiation; prices are resolved again on verification.
type PendingPayment struct {
	TransactionID   string
	UserID          string
	Amount          int64
	ReturnURL       string
	WebsiteURL      string
	PurchaseOrderID string
	ShippingDetails ShippingDetails
	Items           []CartItem
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// PageResult packages list results with page-number metadata.
type PageResult[T any] struct {
	Items []T
	Total int
	Page  int
	Limit int
}

// Pages returns the number of pages for the total at the current limit.
func (p PageResult[T]) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}
