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

type stubOrderRepo struct {
	getFn          func(ctx context.Context, id string) (*domain.Order, error)
	updateStatusFn func(ctx context.Context, id string, status domain.OrderStatus) error

	updateStatusCalls int
}

func (s *stubOrderRepo) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	return order, nil
}

func (s *stubOrderRepo) Get(ctx context.Context, id string) (*domain.Order, error) {
	if s.getFn == nil {
		return nil, repositories.NewOrderError(repositories.OrderErrorNotFound, "order not found", nil)
	}
	return s.getFn(ctx, id)
}

func (s *stubOrderRepo) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
	return &domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListAll(ctx context.Context, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error) {
	return &domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	s.updateStatusCalls++
	if s.updateStatusFn == nil {
		return nil
	}
	return s.updateStatusFn(ctx, id, status)
}

func (s *stubOrderRepo) Watch(ctx context.Context, filter repositories.OrderListFilter) (*platformfs.Subscription[domain.Order], error) {
	return nil, errors.New("not implemented")
}

type stubInventoryRepo struct {
	reserveFn func(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error)
	releaseFn func(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error)

	reserveCalls int
	releaseCalls int
}

func (s *stubInventoryRepo) Reserve(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	s.reserveCalls++
	if s.reserveFn == nil {
		return nil, errors.New("unexpected reserve")
	}
	return s.reserveFn(ctx, orderID, status)
}

func (s *stubInventoryRepo) Release(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	s.releaseCalls++
	if s.releaseFn == nil {
		return nil, errors.New("unexpected release")
	}
	return s.releaseFn(ctx, orderID, status)
}

type capturingPublisher struct {
	published []events.OrderEvent
	err       error
}

func (p *capturingPublisher) PublishOrderEvent(ctx context.Context, event events.OrderEvent) (string, error) {
	p.published = append(p.published, event)
	return "msg-1", p.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testOrder(status domain.OrderStatus, stockUpdated bool) *domain.Order {
	return &domain.Order{
		ID:     "ord_1",
		UserID: "u_1",
		Items: []domain.OrderLineItem{
			{ProductID: "p_1", Name: "Keyboard", UnitPrice: 1000, Quantity: 2},
		},
		Subtotal:     2000,
		ShippingFee:  500,
		Total:        2500,
		Status:       status,
		StockUpdated: stockUpdated,
	}
}

func newTestOrderService(t *testing.T, orders *stubOrderRepo, inventory *stubInventoryRepo, publisher events.OrderEventPublisher) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Inventory: inventory,
		Publisher: publisher,
		Clock:     fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestApplyStatusChangeReservesOnFirstStockHoldingStatus(t *testing.T) {
	order := testOrder(domain.OrderStatusPending, false)
	orders := &stubOrderRepo{
		getFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	inventory := &stubInventoryRepo{
		reserveFn: func(_ context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
			updated := *order
			updated.Status = status
			updated.StockUpdated = true
			return &updated, nil
		},
	}
	publisher := &capturingPublisher{}
	svc := newTestOrderService(t, orders, inventory, publisher)

	updated, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "ord_1",
		NewStatus: domain.OrderStatusProcessing,
		ActorUID:  "admin_1",
	})
	if err != nil {
		t.Fatalf("apply status change: %v", err)
	}
	if inventory.reserveCalls != 1 {
		t.Fatalf("expected 1 reserve call, got %d", inventory.reserveCalls)
	}
	if orders.updateStatusCalls != 0 {
		t.Fatalf("expected no plain status update, got %d", orders.updateStatusCalls)
	}
	if !updated.StockUpdated || updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected order: %+v", updated)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.published))
	}
	event := publisher.published[0]
	if event.Type != events.TypeOrderStatusChanged || event.PrevStatus != "Pending" || !event.MovedStock {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestApplyStatusChangeDoesNotReserveTwice(t *testing.T) {
	order := testOrder(domain.OrderStatusProcessing, true)
	orders := &stubOrderRepo{
		getFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	inventory := &stubInventoryRepo{}
	svc := newTestOrderService(t, orders, inventory, nil)

	updated, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "ord_1",
		NewStatus: domain.OrderStatusShipped,
	})
	if err != nil {
		t.Fatalf("apply status change: %v", err)
	}
	if inventory.reserveCalls != 0 || inventory.releaseCalls != 0 {
		t.Fatalf("stock moved on an already reserved order")
	}
	if orders.updateStatusCalls != 1 {
		t.Fatalf("expected plain status update, got %d calls", orders.updateStatusCalls)
	}
	if updated.Status != domain.OrderStatusShipped {
		t.Fatalf("unexpected status: %s", updated.Status)
	}
}

func TestApplyStatusChangeReleasesOnCancel(t *testing.T) {
	order := testOrder(domain.OrderStatusShipped, true)
	orders := &stubOrderRepo{
		getFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	inventory := &stubInventoryRepo{
		releaseFn: func(_ context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
			updated := *order
			updated.Status = status
			updated.StockUpdated = false
			return &updated, nil
		},
	}
	svc := newTestOrderService(t, orders, inventory, nil)

	updated, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "ord_1",
		NewStatus: domain.OrderStatusCancelled,
	})
	if err != nil {
		t.Fatalf("apply status change: %v", err)
	}
	if inventory.releaseCalls != 1 {
		t.Fatalf("expected 1 release call, got %d", inventory.releaseCalls)
	}
	if updated.StockUpdated || updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected order: %+v", updated)
	}
}

func TestApplyStatusChangeCancelWithoutReservationIsPlainUpdate(t *testing.T) {
	order := testOrder(domain.OrderStatusPending, false)
	orders := &stubOrderRepo{
		getFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	inventory := &stubInventoryRepo{}
	svc := newTestOrderService(t, orders, inventory, nil)

	if _, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "ord_1",
		NewStatus: domain.OrderStatusCancelled,
	}); err != nil {
		t.Fatalf("apply status change: %v", err)
	}
	if inventory.releaseCalls != 0 {
		t.Fatalf("released stock that was never reserved")
	}
	if orders.updateStatusCalls != 1 {
		t.Fatalf("expected plain status update, got %d calls", orders.updateStatusCalls)
	}
}

func TestApplyStatusChangeSameStatusIsNoOp(t *testing.T) {
	order := testOrder(domain.OrderStatusProcessing, true)
	orders := &stubOrderRepo{
		getFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	inventory := &stubInventoryRepo{}
	publisher := &capturingPublisher{}
	svc := newTestOrderService(t, orders, inventory, publisher)

	updated, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "ord_1",
		NewStatus: domain.OrderStatusProcessing,
	})
	if err != nil {
		t.Fatalf("apply status change: %v", err)
	}
	if orders.updateStatusCalls != 0 || inventory.reserveCalls != 0 || inventory.releaseCalls != 0 {
		t.Fatalf("no-op transition touched the store")
	}
	if len(publisher.published) != 0 {
		t.Fatalf("no-op transition published an event")
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected status: %s", updated.Status)
	}
}

func TestApplyStatusChangeInsufficientStock(t *testing.T) {
	order := testOrder(domain.OrderStatusPending, false)
	orders := &stubOrderRepo{
		getFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	inventory := &stubInventoryRepo{
		reserveFn: func(context.Context, string, domain.OrderStatus) (*domain.Order, error) {
			return nil, repositories.NewInventoryError(
				repositories.InventoryErrorInsufficientStock, "insufficient stock", nil).WithItem("Keyboard")
		},
	}
	publisher := &capturingPublisher{}
	svc := newTestOrderService(t, orders, inventory, publisher)

	_, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "ord_1",
		NewStatus: domain.OrderStatusProcessing,
	})
	if !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var stockErr *StockError
	if !errors.As(err, &stockErr) || stockErr.ItemName != "Keyboard" {
		t.Fatalf("expected offending item name, got %v", err)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("failed transition published an event")
	}
}

func TestApplyStatusChangeValidation(t *testing.T) {
	orders := &stubOrderRepo{}
	inventory := &stubInventoryRepo{}
	svc := newTestOrderService(t, orders, inventory, nil)

	if _, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "",
		NewStatus: domain.OrderStatusProcessing,
	}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
	if _, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "ord_1",
		NewStatus: domain.OrderStatus("Refunded"),
	}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	if _, err := svc.ApplyStatusChange(context.Background(), StatusChangeInput{
		OrderID:   "ord_missing",
		NewStatus: domain.OrderStatusProcessing,
	}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
