package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/events"
	"github.com/electrocart/api/internal/platform/observability"
	"github.com/electrocart/api/internal/repositories"
)

var (
	errCheckoutCartsRequired    = errors.New("checkout service: cart repository is required")
	errCheckoutOrdersRequired   = errors.New("checkout service: order repository is required")
	errCheckoutProductsRequired = errors.New("checkout service: product repository is required")
)

// ErrCheckoutInvalidInput indicates missing or malformed customer details.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutEmptyCart indicates the user tried to place an order with no items.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// ErrCheckoutProductGone indicates a cart line references a product that was
// removed from the catalogue before checkout.
var ErrCheckoutProductGone = errors.New("checkout service: product no longer available")

// CheckoutServiceDeps wires the repositories and side channels for checkout.
type CheckoutServiceDeps struct {
	Carts     repositories.CartRepository
	Orders    repositories.OrderRepository
	Products  repositories.ProductRepository
	Publisher events.OrderEventPublisher
	Metrics   *observability.Metrics
	// ShippingFee is the flat fee added to every order, in the smallest
	// currency unit.
	ShippingFee int64
	Clock       func() time.Time
	IDGenerator func() string
	Logger      *zap.Logger
}

type checkoutService struct {
	carts       repositories.CartRepository
	orders      repositories.OrderRepository
	products    repositories.ProductRepository
	publisher   events.OrderEventPublisher
	metrics     *observability.Metrics
	shippingFee int64
	now         func() time.Time
	newID       func() string
	logger      *zap.Logger
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Products == nil {
		return nil, errCheckoutProductsRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &checkoutService{
		carts:       deps.Carts,
		orders:      deps.Orders,
		products:    deps.Products,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		shippingFee: deps.ShippingFee,
		now:         func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}, nil
}

// PlaceOrder snapshots the user's cart into a Pending order. Stock is not
// touched here; the reservation happens when staff move the order into a
// stock-holding status. The order ID doubles as the bank transfer reference
// shown to the customer.
func (s *checkoutService) PlaceOrder(ctx context.Context, input CheckoutInput) (*domain.Order, error) {
	userID := strings.TrimSpace(input.UserID)
	name := strings.TrimSpace(input.CustomerName)
	email := strings.TrimSpace(input.CustomerEmail)
	phone := strings.TrimSpace(input.CustomerPhone)
	address := strings.TrimSpace(input.Address)
	if userID == "" || name == "" || phone == "" || address == "" {
		return nil, ErrCheckoutInvalidInput
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrCheckoutEmptyCart
	}

	now := s.now()
	items := make([]domain.OrderLineItem, 0, len(cart.Items))
	var subtotal int64
	for _, line := range cart.Items {
		if line.Quantity <= 0 {
			continue
		}
		// Re-read the product so the snapshot carries the current price and
		// image rather than whatever the cart remembered.
		product, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			var catErr *repositories.CatalogError
			if errors.As(err, &catErr) && catErr.Code == repositories.CatalogErrorProductNotFound {
				return nil, &StockError{Sentinel: ErrCheckoutProductGone, ItemName: line.Name}
			}
			return nil, err
		}
		image := ""
		if len(product.ImageURLs) > 0 {
			image = product.ImageURLs[0]
		}
		items = append(items, domain.OrderLineItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
			ImageURL:  image,
		})
		subtotal += product.Price * int64(line.Quantity)
	}
	if len(items) == 0 {
		return nil, ErrCheckoutEmptyCart
	}

	order := &domain.Order{
		ID:            s.newID(),
		UserID:        userID,
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: phone,
		Address:       address,
		Items:         items,
		Subtotal:      subtotal,
		ShippingFee:   s.shippingFee,
		Total:         subtotal + s.shippingFee,
		Status:        domain.OrderStatusPending,
		StockUpdated:  false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.carts.Delete(ctx, userID); err != nil {
		s.logger.Warn("cart not cleared after checkout",
			zap.String("user_id", userID),
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	s.metrics.OrderPlaced(ctx)
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int64("total", order.Total),
		zap.Int("items", len(order.Items)))

	if s.publisher != nil {
		if _, err := s.publisher.PublishOrderEvent(ctx, events.OrderPlaced(*order, now)); err != nil {
			s.logger.Warn("order event publish failed",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}

	return order, nil
}
