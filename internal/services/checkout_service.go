package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/easy-khana/api/internal/domain"
	"github.com/easy-khana/api/internal/payments"
	"github.com/easy-khana/api/internal/platform/pending"
	"github.com/easy-khana/api/internal/repositories"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	orderIDPrefix         = "ord_"
	gatewayProvider       = "khalti"
	purchaseOrderName     = "Easy-Khana Order"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates the customer's cart has no items.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutCatalogItemMissing indicates a cart line references a meal kit that is not for sale.
	ErrCheckoutCatalogItemMissing = errors.New("checkout: meal kit not found")
	// ErrCheckoutGateway indicates the payment gateway failed or returned garbage.
	ErrCheckoutGateway = errors.New("checkout: payment gateway error")
	// ErrCheckoutNoPendingOrder indicates there is no staged checkout for the transaction.
	ErrCheckoutNoPendingOrder = errors.New("checkout: no pending order")
	// ErrCheckoutPaymentNotCompleted indicates the gateway did not report a settled payment.
	ErrCheckoutPaymentNotCompleted = errors.New("checkout: payment not completed")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts          repositories.CartRepository
	Catalog        repositories.MealKitRepository
	Orders         repositories.OrderRepository
	Counters       CounterService
	Pending        pending.Store
	Gateway        payments.Gateway
	Notifications  *NotificationDispatcher
	Receipts       ReceiptArchiver
	PendingTTL     time.Duration
	GatewayTimeout time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts          repositories.CartRepository
	catalog        repositories.MealKitRepository
	orders         repositories.OrderRepository
	counters       CounterService
	pending        pending.Store
	gateway        payments.Gateway
	notifications  *NotificationDispatcher
	receipts       ReceiptArchiver
	pendingTTL     time.Duration
	gatewayTimeout time.Duration
	now            func() time.Time
	newID          func() string
	logger         func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("checkout service: meal kit repository is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order repository is required")
	case deps.Counters == nil:
		return nil, errors.New("checkout service: counter service is required")
	case deps.Pending == nil:
		return nil, errors.New("checkout service: pending store is required")
	case deps.Gateway == nil:
		return nil, errors.New("checkout service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	ttl := deps.PendingTTL
	if ttl <= 0 {
		ttl = pending.DefaultTTL
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	return &checkoutService{
		carts:         deps.Carts,
		catalog:       deps.Catalog,
		orders:        deps.Orders,
		counters:      deps.Counters,
		pending:       deps.Pending,
		gateway:       deps.Gateway,
		notifications: deps.Notifications,
		receipts:      deps.Receipts,
		pendingTTL:    ttl,
		now: func() time.Time {
			return clock().UTC()
		},
		gatewayTimeout: timeout,
		newID:          idGen,
		logger:         logger,
	}, nil
}

// CreateDirectOrder places a cash-on-delivery order priced from the catalog, clears the cart
// and queues the confirmation email.
func (s *checkoutService) CreateDirectOrder(ctx context.Context, cmd DirectOrderCommand) (OrderSummary, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return OrderSummary{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(cmd.PaymentMethod))))
	if method == "" {
		method = domain.PaymentMethodCOD
	}
	if method != domain.PaymentMethodCOD {
		return OrderSummary{}, fmt.Errorf("%w: payment method %q must use the gateway checkout", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}
	shipping, err := validateShipping(cmd.Shipping)
	if err != nil {
		return OrderSummary{}, err
	}

	cartItems, err := s.carts.Items(ctx, userID)
	if err != nil {
		return OrderSummary{}, s.unavailable(ctx, "checkout.cart_failed", err)
	}
	items, total, err := s.priceItems(ctx, cartItems)
	if err != nil {
		return OrderSummary{}, err
	}

	now := s.now()
	order := domain.Order{
		UserID:          userID,
		Items:           items,
		TotalAmount:     total,
		Status:          domain.OrderStatusConfirmed,
		PaymentMethod:   domain.PaymentMethodCOD,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingDetails: shipping,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusConfirmed, Note: "Order created", Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order, err = s.persistOrder(ctx, order)
	if err != nil {
		return OrderSummary{}, err
	}
	s.clearCart(ctx, userID, order.ID)

	s.logger(ctx, "checkout.order_created", map[string]any{
		"orderID":     order.ID,
		"orderNumber": order.OrderNumber,
		"userID":      userID,
		"total":       total,
		"method":      string(order.PaymentMethod),
	})
	s.notifications.Dispatch(ctx, userID, func(contact domain.UserContact) Notification {
		return orderConfirmedNotification(contact, order)
	})
	return summarise(order), nil
}

// InitiateGatewayPayment starts a hosted payment for the caller's cart and stages the checkout
// until the gateway redirects back. Nothing is staged when the gateway call fails.
func (s *checkoutService) InitiateGatewayPayment(ctx context.Context, cmd GatewayInitiateCommand) (GatewayInitiation, error) {
	userID := strings.TrimSpace(cmd.UserID)
	returnURL := strings.TrimSpace(cmd.ReturnURL)
	websiteURL := strings.TrimSpace(cmd.WebsiteURL)
	switch {
	case userID == "":
		return GatewayInitiation{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	case cmd.Amount <= 0:
		return GatewayInitiation{}, fmt.Errorf("%w: amount must be positive", ErrCheckoutInvalidInput)
	case returnURL == "" || websiteURL == "":
		return GatewayInitiation{}, fmt.Errorf("%w: return_url and website_url are required", ErrCheckoutInvalidInput)
	}
	shipping, err := validateShipping(cmd.Shipping)
	if err != nil {
		return GatewayInitiation{}, err
	}

	cartItems, err := s.carts.Items(ctx, userID)
	if err != nil {
		return GatewayInitiation{}, s.unavailable(ctx, "checkout.cart_failed", err)
	}
	_, total, err := s.priceItems(ctx, cartItems)
	if err != nil {
		return GatewayInitiation{}, err
	}
	amount := total * 100
	if cmd.Amount > 0 && cmd.Amount != amount {
		s.logger(ctx, "checkout.initiate.amount_mismatch", map[string]any{
			"userID":    userID,
			"requested": cmd.Amount,
			"computed":  amount,
		})
	}

	now := s.now()
	purchaseOrderID := fmt.Sprintf("TEMP-%d", now.UnixMilli())
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	result, err := s.gateway.Initiate(gctx, payments.InitiateRequest{
		AmountMinor:       amount,
		ReturnURL:         returnURL,
		WebsiteURL:        websiteURL,
		PurchaseOrderID:   purchaseOrderID,
		PurchaseOrderName: purchaseOrderName,
		Customer:          payments.Customer{Name: shipping.Name, Phone: shipping.PhoneNumber},
	})
	cancel()
	if err != nil {
		s.logger(ctx, "checkout.initiate.failed", map[string]any{"userID": userID, "error": err.Error()})
		return GatewayInitiation{}, fmt.Errorf("%w: initiate payment", ErrCheckoutGateway)
	}

	entry := domain.PendingPayment{
		TransactionID:   result.TransactionID,
		UserID:          userID,
		Amount:          amount,
		ReturnURL:       returnURL,
		WebsiteURL:      websiteURL,
		PurchaseOrderID: purchaseOrderID,
		ShippingDetails: shipping,
		Items:           cartItems,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.pendingTTL),
	}
	if err := s.pending.Put(ctx, entry); err != nil {
		return GatewayInitiation{}, s.unavailable(ctx, "checkout.initiate.stage_failed", err)
	}

	s.logger(ctx, "checkout.initiate", map[string]any{
		"userID":        userID,
		"transactionID": result.TransactionID,
		"amount":        amount,
		"expiresAt":     entry.ExpiresAt,
	})
	s.notifications.Dispatch(ctx, userID, func(contact domain.UserContact) Notification {
		return paymentInitiatedNotification(contact, entry)
	})
	return GatewayInitiation{PaymentURL: result.PaymentURL, TransactionID: result.TransactionID}, nil
}

// VerifyGatewayPayment consumes the staged checkout, confirms settlement with the gateway and
// persists the paid order. A staged checkout is consumed at most once, including when the
// gateway cannot be reached.
func (s *checkoutService) VerifyGatewayPayment(ctx context.Context, cmd GatewayVerifyCommand) (OrderSummary, error) {
	userID := strings.TrimSpace(cmd.UserID)
	pidx := strings.TrimSpace(cmd.Pidx)
	key := strings.TrimSpace(cmd.TransactionID)
	switch {
	case userID == "":
		return OrderSummary{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	case pidx != "" && key != "" && pidx != key:
		return OrderSummary{}, fmt.Errorf("%w: pidx and transactionId do not match", ErrCheckoutInvalidInput)
	case key == "":
		key = pidx
	}
	if key == "" {
		return OrderSummary{}, fmt.Errorf("%w: pidx is required", ErrCheckoutInvalidInput)
	}

	entry, err := s.pending.Take(ctx, key, userID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, pending.ErrNotFound):
			return OrderSummary{}, ErrCheckoutNoPendingOrder
		case errors.Is(err, pending.ErrNotOwner):
			s.logger(ctx, "checkout.verify.not_owner", map[string]any{"transactionID": key, "userID": userID})
			return OrderSummary{}, ErrCheckoutNoPendingOrder
		}
		return OrderSummary{}, s.unavailable(ctx, "checkout.verify.take_failed", err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	lookup, err := s.gateway.Lookup(gctx, entry.TransactionID)
	cancel()
	if err != nil {
		s.logger(ctx, "checkout.verify.lookup_failed", map[string]any{"transactionID": entry.TransactionID, "error": err.Error()})
		s.notifyPaymentFailed(ctx, entry, "payment could not be verified")
		return OrderSummary{}, fmt.Errorf("%w: lookup payment", ErrCheckoutGateway)
	}
	if !lookup.Completed() {
		s.logger(ctx, "checkout.verify.not_completed", map[string]any{"transactionID": entry.TransactionID, "status": string(lookup.Status)})
		s.notifyPaymentFailed(ctx, entry, "status "+string(lookup.Status))
		return OrderSummary{}, fmt.Errorf("%w: status %s", ErrCheckoutPaymentNotCompleted, lookup.Status)
	}
	if lookup.TotalAmountMinor <= 0 {
		s.logger(ctx, "checkout.verify.missing_amount", map[string]any{"transactionID": entry.TransactionID})
		s.notifyPaymentFailed(ctx, entry, "no amount was paid")
		return OrderSummary{}, fmt.Errorf("%w: missing paid amount", ErrCheckoutPaymentNotCompleted)
	}

	cartItems := entry.Items
	if len(cartItems) == 0 {
		cartItems, err = s.carts.Items(ctx, entry.UserID)
		if err != nil {
			return OrderSummary{}, s.verifyFailed(ctx, entry, s.unavailable(ctx, "checkout.cart_failed", err))
		}
	}
	items, total, err := s.priceItems(ctx, cartItems)
	if err != nil {
		return OrderSummary{}, s.verifyFailed(ctx, entry, err)
	}
	if total*100 != lookup.TotalAmountMinor {
		s.logger(ctx, "checkout.verify.amount_mismatch", map[string]any{
			"transactionID": entry.TransactionID,
			"paid":          lookup.TotalAmountMinor,
			"computed":      total * 100,
		})
	}

	now := s.now()
	order := domain.Order{
		UserID:        entry.UserID,
		Items:         items,
		TotalAmount:   total,
		Status:        domain.OrderStatusConfirmed,
		PaymentMethod: domain.PaymentMethodKhalti,
		PaymentStatus: domain.PaymentStatusCompleted,
		PaymentDetails: &domain.PaymentDetails{
			TransactionID:       entry.TransactionID,
			PaidAmount:          paisaToRupees(lookup.TotalAmountMinor),
			PaidAt:              now,
			RawProviderResponse: lookup.Raw,
		},
		ShippingDetails: entry.ShippingDetails,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusConfirmed, Note: "Payment completed via Khalti", Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order, err = s.persistOrder(ctx, order)
	if err != nil {
		return OrderSummary{}, s.verifyFailed(ctx, entry, err)
	}
	s.clearCart(ctx, entry.UserID, order.ID)
	s.archiveReceipt(ctx, order, lookup)

	s.logger(ctx, "checkout.verify.completed", map[string]any{
		"orderID":       order.ID,
		"orderNumber":   order.OrderNumber,
		"userID":        order.UserID,
		"transactionID": entry.TransactionID,
		"total":         total,
	})
	s.notifications.Dispatch(ctx, order.UserID, func(contact domain.UserContact) Notification {
		return paymentCompletedNotification(contact, order)
	})
	return summarise(order), nil
}

// priceItems resolves every cart line against the catalog and returns the snapshot and total.
func (s *checkoutService) priceItems(ctx context.Context, cartItems []domain.CartItem) ([]domain.OrderItem, int64, error) {
	if len(cartItems) == 0 {
		return nil, 0, ErrCheckoutEmptyCart
	}
	items := make([]domain.OrderItem, 0, len(cartItems))
	for _, line := range cartItems {
		mealKitID := strings.TrimSpace(line.MealKitID)
		if mealKitID == "" || line.Quantity < 1 {
			return nil, 0, fmt.Errorf("%w: invalid cart line %q", ErrCheckoutInvalidInput, line.MealKitID)
		}
		price, err := s.catalog.CurrentPrice(ctx, mealKitID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil, 0, fmt.Errorf("%w: %s", ErrCheckoutCatalogItemMissing, mealKitID)
			}
			return nil, 0, s.unavailable(ctx, "checkout.catalog_failed", err)
		}
		if price.Price < 0 {
			return nil, 0, fmt.Errorf("%w: %s has no valid price", ErrCheckoutCatalogItemMissing, mealKitID)
		}
		items = append(items, domain.OrderItem{
			MealKitID: mealKitID,
			Quantity:  line.Quantity,
			UnitPrice: price.Price,
			Title:     price.Title,
			Image:     price.Image,
		})
	}
	return items, domain.OrderTotal(items), nil
}

func (s *checkoutService) persistOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	number, err := s.counters.NextOrderNumber(ctx, order.CreatedAt)
	if err != nil {
		return domain.Order{}, s.unavailable(ctx, "checkout.order_number_failed", err)
	}
	order.ID = orderIDPrefix + s.newID()
	order.OrderNumber = number
	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, s.unavailable(ctx, "checkout.order_insert_failed", err)
	}
	return order, nil
}

func (s *checkoutService) clearCart(ctx context.Context, userID, orderID string) {
	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{"userID": userID, "orderID": orderID, "error": err.Error()})
	}
}

func (s *checkoutService) archiveReceipt(ctx context.Context, order domain.Order, lookup payments.LookupResult) {
	if s.receipts == nil {
		return
	}
	uri, err := s.receipts.ArchiveReceipt(ctx, GatewayReceipt{
		Provider:      gatewayProvider,
		TransactionID: order.PaymentDetails.TransactionID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		ReceivedAt:    order.CreatedAt,
		Payload:       lookup.Raw,
	})
	if err != nil {
		s.logger(ctx, "checkout.receipt_archive_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
		return
	}
	s.logger(ctx, "checkout.receipt_archived", map[string]any{"orderID": order.ID, "uri": uri})
}

// verifyFailed records a paid checkout that could not become an order.
func (s *checkoutService) verifyFailed(ctx context.Context, entry domain.PendingPayment, err error) error {
	s.logger(ctx, "checkout.verify.order_failed", map[string]any{
		"transactionID": entry.TransactionID,
		"userID":        entry.UserID,
		"error":         err.Error(),
	})
	return err
}

func (s *checkoutService) notifyPaymentFailed(ctx context.Context, entry domain.PendingPayment, reason string) {
	s.notifications.Dispatch(ctx, entry.UserID, func(contact domain.UserContact) Notification {
		return paymentFailedNotification(contact, entry, reason)
	})
}

func (s *checkoutService) unavailable(ctx context.Context, event string, err error) error {
	s.logger(ctx, event, map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

func validateShipping(details domain.ShippingDetails) (domain.ShippingDetails, error) {
	shipping := sanitizeShipping(details)
	var missing []string
	if shipping.Name == "" {
		missing = append(missing, "name")
	}
	if shipping.Address == "" {
		missing = append(missing, "address")
	}
	if shipping.PhoneNumber == "" {
		missing = append(missing, "phoneNumber")
	}
	if len(missing) > 0 {
		return domain.ShippingDetails{}, fmt.Errorf("%w: shipping %s required", ErrCheckoutInvalidInput, strings.Join(missing, ", "))
	}
	return shipping, nil
}

// paisaToRupees converts a gateway amount to whole rupees, rounding half up.
func paisaToRupees(amount int64) int64 {
	return (amount + 50) / 100
}

func summarise(order domain.Order) OrderSummary {
	return OrderSummary{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		TotalAmount:   order.TotalAmount,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
	}
}
