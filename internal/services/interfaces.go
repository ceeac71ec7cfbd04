package services

import (
	"context"
	"time"

	"github.com/easy-khana/api/internal/domain"
)

// CheckoutService turns carts into orders, directly or through the payment gateway.
type CheckoutService interface {
	CreateDirectOrder(ctx context.Context, cmd DirectOrderCommand) (OrderSummary, error)
	InitiateGatewayPayment(ctx context.Context, cmd GatewayInitiateCommand) (GatewayInitiation, error)
	VerifyGatewayPayment(ctx context.Context, cmd GatewayVerifyCommand) (OrderSummary, error)
}

// OrderService exposes order queries and lifecycle changes after checkout.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string, viewer Viewer) (domain.Order, error)
	ListUserOrders(ctx context.Context, filter UserOrderFilter) (domain.PageResult[domain.Order], error)
	ListAllOrders(ctx context.Context, filter AdminOrderFilter) (domain.PageResult[domain.Order], error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Order, error)
	ApplyPaymentWebhook(ctx context.Context, cmd PaymentWebhookCommand) (domain.Order, error)
}

// CounterService allocates human readable sequence numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context, day time.Time) (string, error)
}

// SystemService reports dependency health for readiness and runs maintenance tasks.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
	SweepPendingPayments(ctx context.Context) (int, error)
}

// Notifier delivers a notification. Implementations may block on the transport.
type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// ReceiptArchiver keeps raw gateway payloads for reconciliation.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, receipt GatewayReceipt) (string, error)
}

// NotificationKind classifies outbound customer messages.
type NotificationKind string

const (
	NotificationOrderConfirmed   NotificationKind = "order_confirmed"
	NotificationPaymentInitiated NotificationKind = "payment_initiated"
	NotificationPaymentCompleted NotificationKind = "payment_completed"
	NotificationPaymentFailed    NotificationKind = "payment_failed"
)

// Notification is a plain-text email addressed to a customer.
type Notification struct {
	To      string
	Subject string
	Body    string
	Kind    NotificationKind
	OrderID string
}

// GatewayReceipt is the archived form of a verified gateway lookup.
type GatewayReceipt struct {
	Provider      string
	TransactionID string
	OrderID       string
	OrderNumber   string
	ReceivedAt    time.Time
	Payload       map[string]any
}

// Viewer is the caller reading or changing an order.
type Viewer struct {
	UserID  string
	IsAdmin bool
}

// DirectOrderCommand places a cash-on-delivery order from the caller's cart.
type DirectOrderCommand struct {
	UserID        string
	PaymentMethod domain.PaymentMethod
	Shipping      domain.ShippingDetails
}

// GatewayInitiateCommand starts a hosted gateway payment. Amount is in paisa.
type GatewayInitiateCommand struct {
	UserID     string
	Amount     int64
	ReturnURL  string
	WebsiteURL string
	Shipping   domain.ShippingDetails
}

// GatewayInitiation tells the client where to complete payment.
type GatewayInitiation struct {
	PaymentURL    string
	TransactionID string
}

// GatewayVerifyCommand carries the gateway callback parameters. Only the user who staged the
// payment may verify it.
type GatewayVerifyCommand struct {
	UserID        string
	Pidx          string
	TransactionID string
}

// OrderSummary is the checkout response.
type OrderSummary struct {
	ID            string
	OrderNumber   string
	TotalAmount   int64
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
}

// UserOrderScope groups statuses for the customer order history.
type UserOrderScope string

const (
	UserOrderScopeAll      UserOrderScope = ""
	UserOrderScopeOngoing  UserOrderScope = "ongoing"
	UserOrderScopePrevious UserOrderScope = "previous"
)

// UserOrderFilter lists a customer's own orders. Scope may also be a single status value.
type UserOrderFilter struct {
	UserID     string
	Scope      string
	Pagination domain.Pagination
}

// AdminOrderFilter lists all orders for staff. Status accepts the same scope words as
// UserOrderFilter. Sort also takes the payment_* and amount_* aliases.
type AdminOrderFilter struct {
	Status        string
	PaymentMethod string
	Sort          string
	Pagination    domain.Pagination
}

// CancelOrderCommand is a customer cancellation.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// UpdateStatusCommand is a staff status change.
type UpdateStatusCommand struct {
	OrderID string
	ActorID string
	Status  domain.OrderStatus
	Note    string
}

// UpdatePaymentStatusCommand is a staff payment status override.
type UpdatePaymentStatusCommand struct {
	OrderID       string
	ActorID       string
	PaymentStatus domain.PaymentStatus
	Note          string
}

// PaymentWebhookCommand is a provider callback reporting a payment outcome.
type PaymentWebhookCommand struct {
	OrderID       string
	TransactionID string
	Status        domain.PaymentStatus
}

