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
	"github.com/easy-khana/api/internal/platform/pagination"
	"github.com/easy-khana/api/internal/services"
)

// OrderHandlers exposes order history, cancellation, staff lifecycle and payment webhook endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers customer and staff order endpoints. Staff routes require the staff or admin role.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	customer := r
	admin := r
	if h.authn != nil {
		customer = r.With(h.authn.RequireFirebaseAuth())
		admin = r.With(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	} else {
		admin = r.With(requireStaff)
	}

	customer.Get("/my-orders", h.listMyOrders)
	customer.Get("/{orderId}", h.getOrder)
	customer.Post("/{orderId}/cancel", h.cancelOrder)

	admin.Get("/admin/all", h.listAllOrders)
	admin.Put("/admin/{orderId}/status", h.updateStatus)
	admin.Put("/admin/{orderId}/payment-status", h.updatePaymentStatus)
}

// WebhookRoutes registers the payment provider callback. Signature checks are applied by the router.
func (h *OrderHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payment-webhook", h.paymentWebhook)
}

type orderItemPayload struct {
	MealKitID string `json:"mealKitId"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Title     string `json:"title"`
	Image     string `json:"image,omitempty"`
}

type paymentDetailsPayload struct {
	TransactionID string `json:"transactionId,omitempty"`
	PaidAmount    int64  `json:"paidAmount"`
	PaidAt        string `json:"paidAt,omitempty"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	Timestamp string `json:"timestamp"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	UserID          string                 `json:"userId"`
	Items           []orderItemPayload     `json:"items"`
	TotalAmount     int64                  `json:"totalAmount"`
	Status          string                 `json:"status"`
	PaymentMethod   string                 `json:"paymentMethod"`
	PaymentStatus   string                 `json:"paymentStatus"`
	PaymentDetails  *paymentDetailsPayload `json:"paymentDetails,omitempty"`
	ShippingDetails shippingPayload        `json:"shippingDetails"`
	StatusHistory   []statusHistoryPayload `json:"statusHistory"`
	DeliveredAt     string                 `json:"deliveredAt,omitempty"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt"`
}

type paginationPayload struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type orderListResponse struct {
	Orders     []orderPayload    `json:"orders"`
	Pagination paginationPayload `json:"pagination"`
}

type orderStatusResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus"`
	Note          string `json:"note"`
}

type paymentWebhookRequest struct {
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	page, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.ListUserOrders(ctx, services.UserOrderFilter{
		UserID:     identity.UID,
		Scope:      r.URL.Query().Get("status"),
		Pagination: page,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderListResponse(result))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"), services.Viewer{
		UserID:  identity.UID,
		IsAdmin: identity.IsStaff(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 && !decodeJSONBody(w, r, &req) {
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderId"),
		UserID:  identity.UID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderStatusResponse(order))
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	page, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()

	result, err := h.orders.ListAllOrders(ctx, services.AdminOrderFilter{
		Status:        query.Get("status"),
		PaymentMethod: query.Get("paymentMethod"),
		Sort:          query.Get("sort"),
		Pagination:    page,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderListResponse(result))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID: chi.URLParam(r, "orderId"),
		ActorID: identity.UID,
		Status:  domain.OrderStatus(req.Status),
		Note:    req.Note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderStatusResponse(order))
}

func (h *OrderHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updatePaymentStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PaymentStatus) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentStatus is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID:       chi.URLParam(r, "orderId"),
		ActorID:       identity.UID,
		PaymentStatus: domain.PaymentStatus(req.PaymentStatus),
		Note:          req.Note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderStatusResponse(order))
}

func (h *OrderHandlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req paymentWebhookRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	order, err := h.orders.ApplyPaymentWebhook(ctx, services.PaymentWebhookCommand{
		OrderID:       req.OrderID,
		TransactionID: req.TransactionID,
		Status:        domain.PaymentStatus(req.Status),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderStatusResponse(order))
}

func (h *OrderHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

// requireStaff guards staff routes when no authenticator is configured and identity comes from upstream.
func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok || identity == nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
			return
		}
		if !identity.IsStaff() {
			httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "insufficient role", http.StatusForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", transitionMessage(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order was changed concurrently or does not match", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

// transitionMessage drops the sentinel prefix so clients see "cannot cancel order in delivery".
func transitionMessage(err error) string {
	msg := err.Error()
	prefix := services.ErrIllegalTransition.Error() + ": "
	if idx := strings.Index(msg, prefix); idx >= 0 {
		return msg[idx+len(prefix):]
	}
	return msg
}

func newOrderStatusResponse(order domain.Order) orderStatusResponse {
	return orderStatusResponse{
		ID:            order.ID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
	}
}

func newOrderListResponse(result domain.PageResult[domain.Order]) orderListResponse {
	orders := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		orders = append(orders, newOrderPayload(order))
	}
	return orderListResponse{
		Orders: orders,
		Pagination: paginationPayload{
			Total: result.Total,
			Page:  result.Page,
			Limit: result.Limit,
			Pages: result.Pages(),
		},
	}
}

func newOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload(item))
	}
	history := make([]statusHistoryPayload, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		history = append(history, statusHistoryPayload{
			Status:    string(entry.Status),
			Note:      entry.Note,
			Timestamp: formatTime(entry.Timestamp),
		})
	}
	payload := orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Items:           items,
		TotalAmount:     order.TotalAmount,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentStatus:   string(order.PaymentStatus),
		ShippingDetails: shippingPayload(order.ShippingDetails),
		StatusHistory:   history,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
	if order.PaymentDetails != nil {
		payload.PaymentDetails = &paymentDetailsPayload{
			TransactionID: order.PaymentDetails.TransactionID,
			PaidAmount:    order.PaymentDetails.PaidAmount,
			PaidAt:        formatTime(order.PaymentDetails.PaidAt),
		}
	}
	if order.DeliveredAt != nil {
		payload.DeliveredAt = formatTime(*order.DeliveredAt)
	}
	return payload
}
