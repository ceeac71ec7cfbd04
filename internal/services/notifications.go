package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/easy-khana/api/internal/domain"
	"github.com/easy-khana/api/internal/repositories"
)

const defaultNotificationTimeout = 10 * time.Second

// NotificationDispatcherDeps wires the notification dispatcher.
type NotificationDispatcherDeps struct {
	Notifier Notifier
	Users    repositories.UserRepository
	Timeout  time.Duration
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// NotificationDispatcher sends customer notifications in the background. Failures are logged
// and never reach the caller.
type NotificationDispatcher struct {
	notifier Notifier
	users    repositories.UserRepository
	timeout  time.Duration
	logger   func(context.Context, string, map[string]any)
	wg       sync.WaitGroup
}

// NewNotificationDispatcher builds a dispatcher. A nil Notifier or Users disables sending.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) *NotificationDispatcher {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NotificationDispatcher{
		notifier: deps.Notifier,
		users:    deps.Users,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch resolves userID's contact and sends the notification built from it.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, userID string, build func(contact domain.UserContact) Notification) {
	if d == nil || d.notifier == nil || d.users == nil || build == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		contact, err := d.users.Contact(ctx, userID)
		if err != nil {
			d.logger(ctx, "notification.contact_failed", map[string]any{"userID": userID, "error": err.Error()})
			return
		}
		if strings.TrimSpace(contact.Email) == "" {
			d.logger(ctx, "notification.skipped", map[string]any{"userID": userID, "reason": "no email"})
			return
		}
		notification := build(contact)
		notification.To = contact.Email
		if err := d.notifier.Send(ctx, notification); err != nil {
			d.logger(ctx, "notification.send_failed", map[string]any{
				"userID": userID,
				"kind":   string(notification.Kind),
				"error":  err.Error(),
			})
			return
		}
		d.logger(ctx, "notification.sent", map[string]any{"userID": userID, "kind": string(notification.Kind), "orderID": notification.OrderID})
	}()
}

// Wait blocks until in-flight notifications finish.
func (d *NotificationDispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

var amountPrinter = message.NewPrinter(language.English)

// formatRupees renders whole rupees as "Rs. 1,000".
func formatRupees(amount int64) string {
	return amountPrinter.Sprintf("Rs. %d", amount)
}

// formatPaisa renders a minor-unit amount in rupees, keeping paisa only when present.
func formatPaisa(amount int64) string {
	if amount%100 == 0 {
		return formatRupees(amount / 100)
	}
	return amountPrinter.Sprintf("Rs. %.2f", float64(amount)/100)
}

func greeting(contact domain.UserContact) string {
	if name := strings.TrimSpace(contact.Name); name != "" {
		return "Hi " + name + ","
	}
	return "Hello,"
}

func writeItems(b *strings.Builder, items []domain.OrderItem) {
	b.WriteString("Items:\n")
	for _, item := range items {
		fmt.Fprintf(b, "- %s x %d - %s\n", item.Title, item.Quantity, formatRupees(item.LineTotal()))
	}
}

func orderConfirmedNotification(contact domain.UserContact, order domain.Order) Notification {
	var b strings.Builder
	b.WriteString(greeting(contact) + "\n\n")
	fmt.Fprintf(&b, "Thank you for your order. Order #%s has been confirmed.\n\n", order.OrderNumber)
	writeItems(&b, order.Items)
	fmt.Fprintf(&b, "\nTotal: %s\n", formatRupees(order.TotalAmount))
	b.WriteString("Payment method: Cash on delivery\n")
	fmt.Fprintf(&b, "Delivery to: %s, %s\n\n", order.ShippingDetails.Name, order.ShippingDetails.Address)
	b.WriteString("We will let you know when your meal kits are on their way.\nEasy-Khana")
	return Notification{
		Subject: "Easy-Khana Order Confirmation #" + order.OrderNumber,
		Body:    b.String(),
		Kind:    NotificationOrderConfirmed,
		OrderID: order.ID,
	}
}

func paymentInitiatedNotification(contact domain.UserContact, entry domain.PendingPayment) Notification {
	var b strings.Builder
	b.WriteString(greeting(contact) + "\n\n")
	fmt.Fprintf(&b, "We have started a Khalti payment of %s for your order.\n", formatPaisa(entry.Amount))
	b.WriteString("Your order will be confirmed as soon as the payment completes.\n\nEasy-Khana")
	return Notification{
		Subject: "Easy-Khana Payment Initiated #" + entry.PurchaseOrderID,
		Body:    b.String(),
		Kind:    NotificationPaymentInitiated,
	}
}

func paymentCompletedNotification(contact domain.UserContact, order domain.Order) Notification {
	var b strings.Builder
	b.WriteString(greeting(contact) + "\n\n")
	fmt.Fprintf(&b, "Your payment was received and order #%s is confirmed.\n\n", order.OrderNumber)
	writeItems(&b, order.Items)
	fmt.Fprintf(&b, "\nTotal: %s\n", formatRupees(order.TotalAmount))
	if order.PaymentDetails != nil {
		fmt.Fprintf(&b, "Paid via Khalti: %s (transaction %s)\n", formatRupees(order.PaymentDetails.PaidAmount), order.PaymentDetails.TransactionID)
	}
	fmt.Fprintf(&b, "Delivery to: %s, %s\n\nEasy-Khana", order.ShippingDetails.Name, order.ShippingDetails.Address)
	return Notification{
		Subject: "Easy-Khana Order Confirmation #" + order.OrderNumber,
		Body:    b.String(),
		Kind:    NotificationPaymentCompleted,
		OrderID: order.ID,
	}
}

func paymentFailedNotification(contact domain.UserContact, entry domain.PendingPayment, reason string) Notification {
	var b strings.Builder
	b.WriteString(greeting(contact) + "\n\n")
	fmt.Fprintf(&b, "Your Khalti payment of %s could not be completed", formatPaisa(entry.Amount))
	if reason != "" {
		fmt.Fprintf(&b, " (%s)", reason)
	}
	b.WriteString(".\nNo order was placed. Your cart is unchanged, so you can try again.\n\nEasy-Khana")
	return Notification{
		Subject: "Easy-Khana Payment Failed",
		Body:    b.String(),
		Kind:    NotificationPaymentFailed,
	}
}

var textPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup from customer supplied text and trims it.
func sanitizeText(value string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(value)))
}

func sanitizeShipping(details domain.ShippingDetails) domain.ShippingDetails {
	return domain.ShippingDetails{
		Name:                 sanitizeText(details.Name),
		Address:              sanitizeText(details.Address),
		PhoneNumber:          sanitizeText(details.PhoneNumber),
		DeliveryInstructions: sanitizeText(details.DeliveryInstructions),
	}
}
