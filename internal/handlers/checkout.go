package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/electrocart/api/internal/platform/auth"
	"github.com/electrocart/api/internal/platform/httpx"
	"github.com/electrocart/api/internal/services"
)

const maxCheckoutBodySize = 32 * 1024

// CheckoutHandlers turns the authenticated user's cart into an order.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	retryMW  func(http.Handler) http.Handler
}

// CheckoutOption customises the checkout handlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutRetryGuard inserts a middleware between authentication and the
// place-order handler, typically the idempotency guard so retried submits do
// not place duplicate orders.
func WithCheckoutRetryGuard(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.retryMW = mw
	}
}

// NewCheckoutHandlers constructs the checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{authn: authn, checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoint onto the provided router. The retry
// guard runs after authentication so stored responses are scoped per user.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.retryMW != nil {
		r.Use(h.retryMW)
	}
	r.Post("/", h.placeOrder)
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req struct {
		CustomerName  string `json:"customerName"`
		CustomerEmail string `json:"customerEmail"`
		CustomerPhone string `json:"customerPhone"`
		Address       string `json:"address"`
	}
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	email := req.CustomerEmail
	if email == "" {
		email = identity.Email
	}

	order, err := h.checkout.PlaceOrder(ctx, services.CheckoutInput{
		UserID:        identity.UID,
		CustomerName:  req.CustomerName,
		CustomerEmail: email,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(*order))
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var stockErr *services.StockError
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "name, phone and address are required", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusUnprocessableEntity))
	case errors.As(err, &stockErr) && errors.Is(err, services.ErrCheckoutProductGone):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", stockErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{"item": stockErr.ItemName}))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "checkout failed", http.StatusInternalServerError))
	}
}
