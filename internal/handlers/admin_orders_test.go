package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/platform/auth"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/repositories"
	"github.com/electrocart/api/internal/services"
)

type stubOrderService struct {
	applyFn func(ctx context.Context, input services.StatusChangeInput) (*domain.Order, error)
	getFn   func(ctx context.Context, orderID string) (*domain.Order, error)
	listFn  func(ctx context.Context, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error)
}

func (s *stubOrderService) ApplyStatusChange(ctx context.Context, input services.StatusChangeInput) (*domain.Order, error) {
	return s.applyFn(ctx, input)
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if s.getFn == nil {
		return nil, services.ErrOrderNotFound
	}
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) ListForUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
	return &domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) ListAll(ctx context.Context, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return &domain.CursorPage[domain.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) Watch(ctx context.Context, filter repositories.OrderListFilter) (*platformfs.Subscription[domain.Order], error) {
	return nil, services.ErrOrderInvalidInput
}

func adminRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	identity := &auth.Identity{UID: "admin_1", Roles: []string{auth.RoleAdmin}}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func newAdminOrderRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewAdminOrderHandlers(svc).Routes(r)
	return r
}

func TestChangeStatusAppliesTransition(t *testing.T) {
	svc := &stubOrderService{
		applyFn: func(_ context.Context, input services.StatusChangeInput) (*domain.Order, error) {
			if input.OrderID != "ord_1" || input.NewStatus != domain.OrderStatusProcessing || input.ActorUID != "admin_1" {
				t.Fatalf("unexpected input: %+v", input)
			}
			return &domain.Order{ID: "ord_1", Status: domain.OrderStatusProcessing, StockUpdated: true}, nil
		},
	}
	router := newAdminOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(t, http.MethodPut, "/orders/ord_1/status", `{"status":"Processing"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.Status != "Processing" || !body.StockUpdated {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestChangeStatusRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrderService{
		applyFn: func(context.Context, services.StatusChangeInput) (*domain.Order, error) {
			t.Fatalf("service must not be called for invalid status")
			return nil, nil
		},
	}
	router := newAdminOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(t, http.MethodPut, "/orders/ord_1/status", `{"status":"Refunded"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestChangeStatusMapsInsufficientStockToConflict(t *testing.T) {
	svc := &stubOrderService{
		applyFn: func(context.Context, services.StatusChangeInput) (*domain.Order, error) {
			return nil, &services.StockError{Sentinel: services.ErrOrderInsufficientStock, ItemName: "Keyboard"}
		},
	}
	router := newAdminOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(t, http.MethodPut, "/orders/ord_1/status", `{"status":"Processing"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Code string `json:"error"`
		Item string `json:"item"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.Code != "stock_conflict" || body.Item != "Keyboard" {
		t.Fatalf("unexpected error body: %s", rr.Body.String())
	}
}

func TestChangeStatusUnknownOrder(t *testing.T) {
	svc := &stubOrderService{
		applyFn: func(context.Context, services.StatusChangeInput) (*domain.Order, error) {
			return nil, services.ErrOrderNotFound
		},
	}
	router := newAdminOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(t, http.MethodPut, "/orders/ord_missing/status", `{"status":"Processing"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestListOrdersFiltersByStatus(t *testing.T) {
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
			if filter.Status != domain.OrderStatusPending {
				t.Fatalf("expected pending filter, got %q", filter.Status)
			}
			return &domain.CursorPage[domain.Order]{Items: []domain.Order{
				{ID: "ord_1", Status: domain.OrderStatusPending},
			}}, nil
		},
	}
	router := newAdminOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(t, http.MethodGet, "/orders?status=pending", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body orderListPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(body.Orders) != 1 || body.Orders[0].ID != "ord_1" {
		t.Fatalf("unexpected payload: %+v", body)
	}
}
