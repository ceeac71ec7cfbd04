package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/easy-khana/api/internal/domain"
	"github.com/easy-khana/api/internal/platform/auth"
	"github.com/easy-khana/api/internal/platform/httpx"
	"github.com/easy-khana/api/internal/services"
)

// CheckoutHandlers exposes order placement endpoints for authenticated customers.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the order router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/", h.createOrder)
	group.Post("/khalti/create", h.initiateKhalti)
	group.Post("/khalti/verify", h.verifyKhalti)
}

type shippingPayload struct {
	Name                 string `json:"name"`
	Address              string `json:"address"`
	PhoneNumber          string `json:"phoneNumber"`
	DeliveryInstructions string `json:"deliveryInstructions,omitempty"`
}

func (p shippingPayload) toDomain() domain.ShippingDetails {
	return domain.ShippingDetails(p)
}

type createOrderRequest struct {
	PaymentMethod   string          `json:"paymentMethod"`
	ShippingDetails shippingPayload `json:"shippingDetails"`
}

type khaltiCreateRequest struct {
	Amount          int64           `json:"amount"`
	ReturnURL       string          `json:"return_url"`
	WebsiteURL      string          `json:"website_url"`
	ShippingDetails shippingPayload `json:"shippingDetails"`
}

type khaltiCreateResponse struct {
	PaymentURL    string `json:"paymentUrl"`
	TransactionID string `json:"transactionId"`
}

type khaltiVerifyRequest struct {
	Pidx          string `json:"pidx"`
	TransactionID string `json:"transactionId"`
}

type orderSummaryResponse struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	TotalAmount   int64  `json:"totalAmount"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	summary, err := h.checkout.CreateDirectOrder(ctx, services.DirectOrderCommand{
		UserID:        identity.UID,
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		Shipping:      req.ShippingDetails.toDomain(),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newOrderSummaryResponse(summary))
}

func (h *CheckoutHandlers) initiateKhalti(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req khaltiCreateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	initiation, err := h.checkout.InitiateGatewayPayment(ctx, services.GatewayInitiateCommand{
		UserID:     identity.UID,
		Amount:     req.Amount,
		ReturnURL:  req.ReturnURL,
		WebsiteURL: req.WebsiteURL,
		Shipping:   req.ShippingDetails.toDomain(),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, khaltiCreateResponse{
		PaymentURL:    initiation.PaymentURL,
		TransactionID: initiation.TransactionID,
	})
}

func (h *CheckoutHandlers) verifyKhalti(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req khaltiVerifyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Pidx) == "" && strings.TrimSpace(req.TransactionID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pidx is required", http.StatusBadRequest))
		return
	}

	summary, err := h.checkout.VerifyGatewayPayment(ctx, services.GatewayVerifyCommand{
		UserID:        identity.UID,
		Pidx:          req.Pidx,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderSummaryResponse(summary))
}

func newOrderSummaryResponse(summary services.OrderSummary) orderSummaryResponse {
	return orderSummaryResponse{
		ID:            summary.ID,
		OrderNumber:   summary.OrderNumber,
		TotalAmount:   summary.TotalAmount,
		Status:        string(summary.Status),
		PaymentStatus: string(summary.PaymentStatus),
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCatalogItemMissing):
		httpx.WriteError(ctx, w, httpx.NewError("meal_kit_unavailable", "a meal kit in the cart is no longer available", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutNoPendingOrder):
		httpx.WriteError(ctx, w, httpx.NewError("no_pending_order", "no pending order found for this payment", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPaymentNotCompleted):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_completed", "payment was not completed", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutGateway):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_error", "payment gateway error, please try again", http.StatusInternalServerError))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
