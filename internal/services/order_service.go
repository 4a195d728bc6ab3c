package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/events"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/platform/observability"
	"github.com/electrocart/api/internal/repositories"
)

var (
	errOrderRepositoryRequired     = errors.New("order service: order repository is required")
	errInventoryRepositoryRequired = errors.New("order service: inventory repository is required")
)

// ErrOrderInvalidInput indicates the caller supplied an unusable order ID or status.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the order does not exist.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderInsufficientStock indicates a reservation was rejected because a
// line item exceeds the available stock.
var ErrOrderInsufficientStock = errors.New("order service: insufficient stock")

// ErrOrderProductGone indicates a reservation was rejected because a line
// item references a deleted product.
var ErrOrderProductGone = errors.New("order service: product no longer available")

// StockError decorates a lifecycle failure with the offending line item.
type StockError struct {
	// Sentinel is ErrOrderInsufficientStock or ErrOrderProductGone.
	Sentinel error
	ItemName string
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e.ItemName == "" {
		return e.Sentinel.Error()
	}
	return e.Sentinel.Error() + ": " + e.ItemName
}

// Unwrap exposes the sentinel for errors.Is.
func (e *StockError) Unwrap() error { return e.Sentinel }

// OrderServiceDeps wires the repositories and side channels for order operations.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Inventory repositories.InventoryRepository
	Publisher events.OrderEventPublisher
	Metrics   *observability.Metrics
	Clock     func() time.Time
	Logger    *zap.Logger
}

type orderService struct {
	orders    repositories.OrderRepository
	inventory repositories.InventoryRepository
	publisher events.OrderEventPublisher
	metrics   *observability.Metrics
	now       func() time.Time
	logger    *zap.Logger
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Inventory == nil {
		return nil, errInventoryRepositoryRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &orderService{
		orders:    deps.Orders,
		inventory: deps.Inventory,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// ApplyStatusChange classifies the requested transition against the order's
// current reservation state and routes it to exactly one of three writes:
// reserve stock, release stock, or a plain status update. Stock is subtracted
// at most once per order and returned at most once, regardless of how the
// status moves through the lifecycle.
func (s *orderService) ApplyStatusChange(ctx context.Context, input StatusChangeInput) (*domain.Order, error) {
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, ErrOrderInvalidInput
	}
	newStatus := input.NewStatus
	if !newStatus.IsValid() {
		return nil, ErrOrderInvalidInput
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, translateOrderError(err)
	}

	if order.Status == newStatus {
		return order, nil
	}
	prev := order.Status

	var (
		updated    *domain.Order
		movedStock bool
	)
	switch {
	case newStatus.RequiresStock() && !order.StockUpdated:
		updated, err = s.inventory.Reserve(ctx, orderID, newStatus)
		movedStock = err == nil
	case newStatus == domain.OrderStatusCancelled && order.StockUpdated:
		updated, err = s.inventory.Release(ctx, orderID, newStatus)
		movedStock = err == nil
	default:
		if err = s.orders.UpdateStatus(ctx, orderID, newStatus); err == nil {
			updated = order
			updated.Status = newStatus
			updated.UpdatedAt = s.now()
		}
	}
	if err != nil {
		s.recordFailure(ctx, err)
		return nil, translateOrderError(err)
	}

	s.metrics.TransitionApplied(ctx, string(newStatus), movedStock)
	s.logger.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(prev)),
		zap.String("to", string(newStatus)),
		zap.Bool("moved_stock", movedStock),
		zap.String("actor_uid", input.ActorUID))

	s.publish(ctx, events.OrderStatusChanged(*updated, prev, movedStock, s.now()))
	return updated, nil
}

// Get fetches an order by ID.
func (s *orderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrOrderInvalidInput
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, translateOrderError(err)
	}
	return order, nil
}

// ListForUser returns the given user's orders, newest first.
func (s *orderService) ListForUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrOrderInvalidInput
	}
	page, err := s.orders.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, translateOrderError(err)
	}
	return page, nil
}

// ListAll returns all orders, newest first.
func (s *orderService) ListAll(ctx context.Context, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
	page, err := s.orders.ListAll(ctx, filter)
	if err != nil {
		return nil, translateOrderError(err)
	}
	return page, nil
}

// Watch streams the filtered order book for live back-office views.
func (s *orderService) Watch(ctx context.Context, filter repositories.OrderListFilter) (*platformfs.Subscription[domain.Order], error) {
	return s.orders.Watch(ctx, filter)
}

func (s *orderService) recordFailure(ctx context.Context, err error) {
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) {
		return
	}
	switch invErr.Code {
	case repositories.InventoryErrorInsufficientStock:
		s.metrics.ReservationFailed(ctx, "insufficient_stock")
	case repositories.InventoryErrorProductNotFound:
		s.metrics.ReservationFailed(ctx, "product_not_found")
	}
}

func (s *orderService) publish(ctx context.Context, event events.OrderEvent) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Warn("order event publish failed",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}
}

func translateOrderError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &StockError{Sentinel: ErrOrderInsufficientStock, ItemName: invErr.ItemName}
		case repositories.InventoryErrorProductNotFound:
			return &StockError{Sentinel: ErrOrderProductGone, ItemName: invErr.ItemName}
		case repositories.InventoryErrorOrderNotFound:
			return ErrOrderNotFound
		case repositories.InventoryErrorInvalidState:
			return ErrOrderInvalidInput
		}
		return err
	}
	var ordErr *repositories.OrderError
	if errors.As(err, &ordErr) && ordErr.Code == repositories.OrderErrorNotFound {
		return ErrOrderNotFound
	}
	return err
}
