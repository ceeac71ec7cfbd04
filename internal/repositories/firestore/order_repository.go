package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/status"

	"github.com/easy-khana/api/internal/domain"
	pfirestore "github.com/easy-khana/api/internal/platform/firestore"
	"github.com/easy-khana/api/internal/platform/pagination"
	"github.com/easy-khana/api/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	TotalAmount     int64               `firestore:"totalAmount"`
	Status          string              `firestore:"status"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	PaymentStatus   string              `firestore:"paymentStatus"`
	PaymentDetails  *paymentDetailsDoc  `firestore:"paymentDetails,omitempty"`
	ShippingDetails shippingDetailsDoc  `firestore:"shippingDetails"`
	StatusHistory   []statusHistoryDoc  `firestore:"statusHistory"`
	DeliveredAt     *time.Time          `firestore:"deliveredAt,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	MealKitID string `firestore:"mealKitId"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Title     string `firestore:"title"`
	Image     string `firestore:"image,omitempty"`
}

type paymentDetailsDoc struct {
	TransactionID       string         `firestore:"transactionId"`
	PaidAmount          int64          `firestore:"paidAmount"`
	PaidAt              time.Time      `firestore:"paidAt"`
	RawProviderResponse map[string]any `firestore:"rawProviderResponse,omitempty"`
}

type shippingDetailsDoc struct {
	Name                 string `firestore:"name"`
	Address              string `firestore:"address"`
	PhoneNumber          string `firestore:"phoneNumber"`
	DeliveryInstructions string `firestore:"deliveryInstructions,omitempty"`
}

type statusHistoryDoc struct {
	Status    string    `firestore:"status"`
	Note      string    `firestore:"note"`
	Timestamp time.Time `firestore:"timestamp"`
}

// OrderRepository persists orders in Firestore keyed by order id.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document; an existing id is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, id, encodeOrder(order))
}

// FindByID loads an order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// Mutate reads, transforms and writes the order in one transaction.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutation is required")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}

	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFoundCode(err) {
				return pfirestore.NotFound("orders.mutate", "order %s not found", ref.ID)
			}
			return err
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}
		next, err := fn(decodeOrder(doc.ID, doc.Data))
		if err != nil {
			return err
		}
		next.ID = doc.ID
		if err := tx.Set(ref, encodeOrder(next)); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			return domain.Order{}, err
		}
		if _, ok := status.FromError(err); ok {
			return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
		}
		return domain.Order{}, err
	}
	return saved, nil
}

// List returns one page of orders matching filter together with the total match count.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.PageResult[domain.Order], error) {
	page := filter.Pagination
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.Limit <= 0 {
		page.Limit = pagination.DefaultLimit
	}

	where := func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		switch len(filter.Statuses) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Statuses[0]))
		default:
			statuses := make([]string, 0, len(filter.Statuses))
			for _, st := range filter.Statuses {
				statuses = append(statuses, string(st))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.PaymentMethod != "" {
			q = q.Where("paymentMethod", "==", string(filter.PaymentMethod))
		}
		return q
	}

	total, err := r.base.Count(ctx, where)
	if err != nil {
		return domain.PageResult[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = where(q)
		switch filter.Sort {
		case repositories.OrderSortOldest:
			q = q.OrderBy("createdAt", firestore.Asc)
		case repositories.OrderSortHighest:
			q = q.OrderBy("totalAmount", firestore.Desc).OrderBy("createdAt", firestore.Desc)
		case repositories.OrderSortLowest:
			q = q.OrderBy("totalAmount", firestore.Asc).OrderBy("createdAt", firestore.Desc)
		default:
			q = q.OrderBy("createdAt", firestore.Desc)
		}
		return q.Offset(pagination.Offset(page)).Limit(page.Limit)
	})
	if err != nil {
		return domain.PageResult[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return domain.PageResult[domain.Order]{Items: orders, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Items:           make([]orderItemDocument, 0, len(order.Items)),
		TotalAmount:     order.TotalAmount,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentStatus:   string(order.PaymentStatus),
		ShippingDetails: shippingDetailsDoc(order.ShippingDetails),
		StatusHistory:   make([]statusHistoryDoc, 0, len(order.StatusHistory)),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusHistoryDoc{Status: string(entry.Status), Note: entry.Note, Timestamp: entry.Timestamp.UTC()})
	}
	if order.PaymentDetails != nil {
		doc.PaymentDetails = &paymentDetailsDoc{
			TransactionID:       order.PaymentDetails.TransactionID,
			PaidAmount:          order.PaymentDetails.PaidAmount,
			PaidAt:              order.PaymentDetails.PaidAt.UTC(),
			RawProviderResponse: order.PaymentDetails.RawProviderResponse,
		}
	}
	if order.DeliveredAt != nil {
		at := order.DeliveredAt.UTC()
		doc.DeliveredAt = &at
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:              id,
		OrderNumber:     doc.OrderNumber,
		UserID:          doc.UserID,
		Items:           make([]domain.OrderItem, 0, len(doc.Items)),
		TotalAmount:     doc.TotalAmount,
		Status:          domain.OrderStatus(doc.Status),
		PaymentMethod:   domain.PaymentMethod(doc.PaymentMethod),
		PaymentStatus:   domain.PaymentStatus(doc.PaymentStatus),
		ShippingDetails: domain.ShippingDetails(doc.ShippingDetails),
		StatusHistory:   make([]domain.StatusHistoryEntry, 0, len(doc.StatusHistory)),
		DeliveredAt:     doc.DeliveredAt,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem(item))
	}
	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{Status: domain.OrderStatus(entry.Status), Note: entry.Note, Timestamp: entry.Timestamp})
	}
	if doc.PaymentDetails != nil {
		order.PaymentDetails = &domain.PaymentDetails{
			TransactionID:       doc.PaymentDetails.TransactionID,
			PaidAmount:          doc.PaymentDetails.PaidAmount,
			PaidAt:              doc.PaymentDetails.PaidAt,
			RawProviderResponse: doc.PaymentDetails.RawProviderResponse,
		}
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
