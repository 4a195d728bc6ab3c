package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/platform/auth"
	"github.com/electrocart/api/internal/platform/httpx"
	"github.com/electrocart/api/internal/repositories"
	"github.com/electrocart/api/internal/services"
)

// OrderHandlers exposes the customer's own orders.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs the customer order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listMyOrders)
	r.Get("/{orderID}", h.getMyOrder)
}

type orderLinePayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"imageUrl,omitempty"`
	LineTotal int64  `json:"lineTotal"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	PaymentReference string             `json:"paymentReference"`
	UserID           string             `json:"userId"`
	CustomerName     string             `json:"customerName"`
	CustomerEmail    string             `json:"customerEmail,omitempty"`
	CustomerPhone    string             `json:"customerPhone"`
	Address          string             `json:"address"`
	Items            []orderLinePayload `json:"items"`
	Subtotal         int64              `json:"subtotal"`
	ShippingFee      int64              `json:"shippingFee"`
	Total            int64              `json:"total"`
	Status           string             `json:"status"`
	StockUpdated     bool               `json:"stockUpdated"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

type orderListPayload struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
	HasMore       bool           `json:"hasMore"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderLinePayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderLinePayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
			LineTotal: item.UnitPrice * int64(item.Quantity),
		})
	}
	return orderPayload{
		ID:               order.ID,
		PaymentReference: order.ID,
		UserID:           order.UserID,
		CustomerName:     order.CustomerName,
		CustomerEmail:    order.CustomerEmail,
		CustomerPhone:    order.CustomerPhone,
		Address:          order.Address,
		Items:            items,
		Subtotal:         order.Subtotal,
		ShippingFee:      order.ShippingFee,
		Total:            order.Total,
		Status:           string(order.Status),
		StockUpdated:     order.StockUpdated,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}

func buildOrderListPayload(page *domain.CursorPage[domain.Order]) orderListPayload {
	payload := orderListPayload{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
		HasMore:       page.HasMore,
	}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	return payload
}

func orderFilterFromQuery(r *http.Request) (repositories.OrderListFilter, error) {
	filter := repositories.OrderListFilter{
		PageSize:  pageSizeParam(r),
		PageToken: strings.TrimSpace(r.URL.Query().Get("pageToken")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return filter, errors.New("unknown status filter")
		}
		filter.Status = status
	}
	return filter, nil
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	filter, err := orderFilterFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListForUser(ctx, identity.UID, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderListPayload(page))
}

func (h *OrderHandlers) getMyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	// Customers only see their own orders; admins use the back-office routes.
	if order.UserID != identity.UID && !identity.IsAdmin() {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(*order))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var stockErr *services.StockError
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput), isInvalidPageToken(err):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("stock_conflict", stockErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{"item": stockErr.ItemName}))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "order request failed", http.StatusInternalServerError))
	}
}
