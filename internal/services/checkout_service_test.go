package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/events"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/repositories"
)

type stubCartRepo struct {
	carts   map[string]*domain.Cart
	deleted []string
	saveErr error
}

func (s *stubCartRepo) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	if cart, ok := s.carts[userID]; ok {
		return cart, nil
	}
	return &domain.Cart{UserID: userID}, nil
}

func (s *stubCartRepo) Save(ctx context.Context, cart *domain.Cart) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.carts == nil {
		s.carts = map[string]*domain.Cart{}
	}
	s.carts[cart.UserID] = cart
	return nil
}

func (s *stubCartRepo) Delete(ctx context.Context, userID string) error {
	s.deleted = append(s.deleted, userID)
	delete(s.carts, userID)
	return nil
}

type stubProductRepo struct {
	products  map[string]*domain.Product
	maxSuffix int
	scanErr   error
}

func (s *stubProductRepo) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if s.products == nil {
		s.products = map[string]*domain.Product{}
	}
	s.products[product.ID] = product
	return product, nil
}

func (s *stubProductRepo) Get(ctx context.Context, id string) (*domain.Product, error) {
	if product, ok := s.products[id]; ok {
		return product, nil
	}
	return nil, repositories.NewCatalogError(repositories.CatalogErrorProductNotFound, "product not found", nil)
}

func (s *stubProductRepo) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	s.products[product.ID] = product
	return product, nil
}

func (s *stubProductRepo) Delete(ctx context.Context, id string) error {
	delete(s.products, id)
	return nil
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) (*domain.CursorPage[domain.Product], error) {
	page := &domain.CursorPage[domain.Product]{}
	for _, product := range s.products {
		page.Items = append(page.Items, *product)
	}
	return page, nil
}

func (s *stubProductRepo) MaxSKUSuffix(ctx context.Context, prefix string) (int, error) {
	if s.scanErr != nil {
		return -1, s.scanErr
	}
	return s.maxSuffix, nil
}

func (s *stubProductRepo) Watch(ctx context.Context, filter repositories.ProductListFilter) (*platformfs.Subscription[domain.Product], error) {
	return nil, errors.New("not implemented")
}

func newCheckoutFixture(t *testing.T) (*stubCartRepo, *stubOrderRepo, *stubProductRepo, *capturingPublisher, CheckoutService) {
	t.Helper()

	products := &stubProductRepo{products: map[string]*domain.Product{
		"p_1": {ID: "p_1", Name: "Keyboard", Price: 1000, StockQuantity: 5, ImageURLs: []string{"https://img/p1.jpg"}},
		"p_2": {ID: "p_2", Name: "Mouse", Price: 250, StockQuantity: 9},
	}}
	carts := &stubCartRepo{carts: map[string]*domain.Cart{
		"u_1": {UserID: "u_1", Items: []domain.CartItem{
			{ProductID: "p_1", Name: "Keyboard", UnitPrice: 900, Quantity: 2},
			{ProductID: "p_2", Name: "Mouse", UnitPrice: 250, Quantity: 1},
		}},
	}}
	var captured *domain.Order
	orders := &stubOrderRepo{}
	orders.getFn = func(_ context.Context, id string) (*domain.Order, error) {
		if captured != nil && captured.ID == id {
			return captured, nil
		}
		return nil, repositories.NewOrderError(repositories.OrderErrorNotFound, "order not found", nil)
	}
	publisher := &capturingPublisher{}

	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:       carts,
		Orders:      orders,
		Products:    products,
		Publisher:   publisher,
		ShippingFee: 500,
		Clock:       fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		IDGenerator: func() string { return "ORD123" },
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return carts, orders, products, publisher, svc
}

func TestPlaceOrderSnapshotsCartIntoPendingOrder(t *testing.T) {
	carts, _, _, publisher, svc := newCheckoutFixture(t)

	order, err := svc.PlaceOrder(context.Background(), CheckoutInput{
		UserID:        "u_1",
		CustomerName:  "Dewi",
		CustomerEmail: "dewi@example.com",
		CustomerPhone: "0812",
		Address:       "Jl. Merdeka 1",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	if order.ID != "ORD123" {
		t.Fatalf("expected generated id, got %q", order.ID)
	}
	if order.Status != domain.OrderStatusPending || order.StockUpdated {
		t.Fatalf("new order must be pending without reservation: %+v", order)
	}
	// Line price comes from the live product, not the stale cart price.
	if order.Subtotal != 2*1000+250 {
		t.Fatalf("unexpected subtotal %d", order.Subtotal)
	}
	if order.ShippingFee != 500 || order.Total != order.Subtotal+500 {
		t.Fatalf("unexpected totals: %+v", order)
	}
	if len(order.Items) != 2 || order.Items[0].ImageURL != "https://img/p1.jpg" {
		t.Fatalf("unexpected line items: %+v", order.Items)
	}
	if len(carts.deleted) != 1 || carts.deleted[0] != "u_1" {
		t.Fatalf("cart not cleared: %+v", carts.deleted)
	}
	if len(publisher.published) != 1 || publisher.published[0].Type != events.TypeOrderPlaced {
		t.Fatalf("expected order.placed event, got %+v", publisher.published)
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	_, _, _, _, svc := newCheckoutFixture(t)

	_, err := svc.PlaceOrder(context.Background(), CheckoutInput{
		UserID:        "u_nocart",
		CustomerName:  "Dewi",
		CustomerPhone: "0812",
		Address:       "Jl. Merdeka 1",
	})
	if !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}
}

func TestPlaceOrderMissingProduct(t *testing.T) {
	carts, _, products, _, svc := newCheckoutFixture(t)
	delete(products.products, "p_2")

	_, err := svc.PlaceOrder(context.Background(), CheckoutInput{
		UserID:        "u_1",
		CustomerName:  "Dewi",
		CustomerPhone: "0812",
		Address:       "Jl. Merdeka 1",
	})
	if !errors.Is(err, ErrCheckoutProductGone) {
		t.Fatalf("expected product gone error, got %v", err)
	}
	var stockErr *StockError
	if !errors.As(err, &stockErr) || stockErr.ItemName != "Mouse" {
		t.Fatalf("expected offending item, got %v", err)
	}
	if len(carts.deleted) != 0 {
		t.Fatalf("cart cleared on failed checkout")
	}
}

func TestPlaceOrderValidatesCustomerDetails(t *testing.T) {
	_, _, _, _, svc := newCheckoutFixture(t)

	for _, input := range []CheckoutInput{
		{UserID: "", CustomerName: "Dewi", CustomerPhone: "0812", Address: "Jl. Merdeka 1"},
		{UserID: "u_1", CustomerName: "", CustomerPhone: "0812", Address: "Jl. Merdeka 1"},
		{UserID: "u_1", CustomerName: "Dewi", CustomerPhone: "", Address: "Jl. Merdeka 1"},
		{UserID: "u_1", CustomerName: "Dewi", CustomerPhone: "0812", Address: "   "},
	} {
		if _, err := svc.PlaceOrder(context.Background(), input); !errors.Is(err, ErrCheckoutInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", input, err)
		}
	}
}
