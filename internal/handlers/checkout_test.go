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
	"github.com/electrocart/api/internal/services"
)

type stubCheckoutService struct {
	placeFn func(ctx context.Context, input services.CheckoutInput) (*domain.Order, error)
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, input services.CheckoutInput) (*domain.Order, error) {
	return s.placeFn(ctx, input)
}

func customerRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	identity := &auth.Identity{UID: "u_1", Email: "dewi@example.com", Roles: []string{auth.RoleCustomer}}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func newCheckoutRouter(svc services.CheckoutService) chi.Router {
	r := chi.NewRouter()
	NewCheckoutHandlers(nil, svc).Routes(r)
	return r
}

func TestPlaceOrderEndpoint(t *testing.T) {
	svc := &stubCheckoutService{
		placeFn: func(_ context.Context, input services.CheckoutInput) (*domain.Order, error) {
			if input.UserID != "u_1" {
				t.Fatalf("unexpected user: %q", input.UserID)
			}
			// Email falls back to the token email when the body omits it.
			if input.CustomerEmail != "dewi@example.com" {
				t.Fatalf("unexpected email: %q", input.CustomerEmail)
			}
			return &domain.Order{
				ID:           "ORD123",
				UserID:       input.UserID,
				CustomerName: input.CustomerName,
				Subtotal:     2000,
				ShippingFee:  500,
				Total:        2500,
				Status:       domain.OrderStatusPending,
			}, nil
		},
	}
	router := newCheckoutRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, customerRequest(http.MethodPost, "/",
		`{"customerName":"Dewi","customerPhone":"0812","address":"Jl. Merdeka 1"}`))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var body orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.PaymentReference != "ORD123" || body.Total != 2500 || body.Status != "Pending" {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestPlaceOrderEmptyCartEndpoint(t *testing.T) {
	svc := &stubCheckoutService{
		placeFn: func(context.Context, services.CheckoutInput) (*domain.Order, error) {
			return nil, services.ErrCheckoutEmptyCart
		},
	}
	router := newCheckoutRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, customerRequest(http.MethodPost, "/",
		`{"customerName":"Dewi","customerPhone":"0812","address":"Jl. Merdeka 1"}`))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestPlaceOrderRequiresBody(t *testing.T) {
	svc := &stubCheckoutService{
		placeFn: func(context.Context, services.CheckoutInput) (*domain.Order, error) {
			t.Fatalf("service must not be called without a body")
			return nil, nil
		},
	}
	router := newCheckoutRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, customerRequest(http.MethodPost, "/", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPlaceOrderUnauthenticated(t *testing.T) {
	svc := &stubCheckoutService{
		placeFn: func(context.Context, services.CheckoutInput) (*domain.Order, error) {
			t.Fatalf("service must not be called without identity")
			return nil, nil
		},
	}
	router := newCheckoutRouter(svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"customerName":"Dewi"}`))
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
