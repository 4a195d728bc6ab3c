package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/electrocart/api/internal/domain"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/platform/pagination"
	"github.com/electrocart/api/internal/repositories"
)

const ordersCollection = "orders"

type orderLineItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Price     int64  `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
	ImageURL  string `firestore:"imageUrl"`
}

type orderDocument struct {
	UserID        string                  `firestore:"userId"`
	CustomerName  string                  `firestore:"customerName"`
	CustomerEmail string                  `firestore:"customerEmail"`
	CustomerPhone string                  `firestore:"customerPhone"`
	Address       string                  `firestore:"address"`
	Items         []orderLineItemDocument `firestore:"items"`
	Subtotal      int64                   `firestore:"subtotal"`
	ShippingFee   int64                   `firestore:"shippingFee"`
	Total         int64                   `firestore:"total"`
	Status        string                  `firestore:"status"`
	StockUpdated  bool                    `firestore:"stockUpdated"`
	CreatedAt     time.Time               `firestore:"createdAt"`
	UpdatedAt     time.Time               `firestore:"updatedAt"`
}

// OrderRepository persists orders in the orders collection. Stock-moving
// transitions go through InventoryRepository instead.
type OrderRepository struct {
	base *platformfs.BaseRepository[domain.Order]
}

// NewOrderRepository constructs the Firestore-backed order repository.
func NewOrderRepository(provider *platformfs.Provider) *OrderRepository {
	return &OrderRepository{
		base: platformfs.NewBaseRepository[domain.Order](
			provider,
			ordersCollection,
			encodeOrder,
			decodeOrder,
		),
	}
}

func encodeOrder(_ context.Context, order domain.Order) (any, error) {
	items := make([]orderLineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderLineItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return orderDocument{
		UserID:        order.UserID,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		Address:       order.Address,
		Items:         items,
		Subtotal:      order.Subtotal,
		ShippingFee:   order.ShippingFee,
		Total:         order.Total,
		Status:        string(order.Status),
		StockUpdated:  order.StockUpdated,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}, nil
}

func decodeOrder(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, err
	}
	items := make([]domain.OrderLineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderLineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	status, ok := domain.ParseOrderStatus(doc.Status)
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s carries unknown status %q", snap.Ref.ID, doc.Status)
	}
	return domain.Order{
		ID:            snap.Ref.ID,
		UserID:        doc.UserID,
		CustomerName:  doc.CustomerName,
		CustomerEmail: doc.CustomerEmail,
		CustomerPhone: doc.CustomerPhone,
		Address:       doc.Address,
		Items:         items,
		Subtotal:      doc.Subtotal,
		ShippingFee:   doc.ShippingFee,
		Total:         doc.Total,
		Status:        status,
		StockUpdated:  doc.StockUpdated,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

// Create stores a new order under its pre-assigned ID. The ID doubles as the
// customer's payment reference, so callers mint it before persisting.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil || strings.TrimSpace(order.ID) == "" {
		return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "order id is required", nil)
	}
	if _, err := r.base.Create(ctx, order.ID, *order); err != nil {
		return nil, wrapOrderError("orders.create", err)
	}
	return order, nil
}

// Get fetches an order by document ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		if platformfs.IsNotFound(err) {
			return nil, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", id), err)
		}
		return nil, wrapOrderError("orders.get", err)
	}
	order := doc.Data
	order.ID = doc.ID
	return &order, nil
}

// ListByUser returns the given user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
	if strings.TrimSpace(userID) == "" {
		return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "user id is required", nil)
	}
	return r.list(ctx, filter, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	})
}

// ListAll returns all orders, newest first.
func (r *OrderRepository) ListAll(ctx context.Context, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
	return r.list(ctx, filter, nil)
}

func (r *OrderRepository) list(ctx context.Context, filter repositories.OrderListFilter, narrow platformfs.QueryBuilder) (*domain.CursorPage[domain.Order], error) {
	pageSize := pagination.ClampPageSize(filter.PageSize)

	startAfter, err := decodeOrderCursor(filter.PageToken)
	if err != nil {
		return nil, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if narrow != nil {
			q = narrow(q)
		}
		q = applyOrderFilter(q, filter)
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return nil, wrapOrderError("orders.list", err)
	}

	page := &domain.CursorPage[domain.Order]{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data)
	}
	page.HasMore = hasMore
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt.Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return nil, wrapOrderError("orders.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// decodeOrderCursor restores the createdAt timestamp from its token form.
// Tokens round-trip through JSON, which flattens time values to strings.
func decodeOrderCursor(token string) ([]any, error) {
	if token == "" {
		return nil, nil
	}
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	return []any{createdAt, cursor.StartAfter[1]}, nil
}

// UpdateStatus writes the status field only, for transitions that do not move
// stock.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	if !status.IsValid() {
		return repositories.NewOrderError(repositories.OrderErrorUnknown, fmt.Sprintf("invalid order status %q", status), nil)
	}
	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if platformfs.IsNotFound(err) {
			return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", id), err)
		}
		return wrapOrderError("orders.update_status", err)
	}
	return nil
}

// Watch streams the filtered order book until the subscription is stopped.
func (r *OrderRepository) Watch(ctx context.Context, filter repositories.OrderListFilter) (*platformfs.Subscription[domain.Order], error) {
	sub, err := r.base.Watch(ctx, func(q firestore.Query) firestore.Query {
		q = applyOrderFilter(q, filter)
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, wrapOrderError("orders.watch", err)
	}
	return sub, nil
}

func applyOrderFilter(q firestore.Query, filter repositories.OrderListFilter) firestore.Query {
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	return q
}

func wrapOrderError(op string, err error) error {
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		return err
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return err
	}
	code := repositories.OrderErrorUnknown
	if platformfs.IsConflict(err) {
		code = repositories.OrderErrorConflict
	}
	wrapped := repositories.NewOrderError(code, err.Error(), err)
	wrapped.Op = op
	return wrapped
}
