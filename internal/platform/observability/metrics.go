package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/electrocart/api"

// Metrics bundles the counters recorded by the order and checkout flows.
type Metrics struct {
	ordersPlaced        metric.Int64Counter
	transitionsApplied  metric.Int64Counter
	reservationFailures metric.Int64Counter
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	ordersPlaced, err := meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders placed through checkout"))
	if err != nil {
		return nil, err
	}
	transitionsApplied, err := meter.Int64Counter("order_transitions_total",
		metric.WithDescription("Order status transitions applied"))
	if err != nil {
		return nil, err
	}
	reservationFailures, err := meter.Int64Counter("stock_reservation_failures_total",
		metric.WithDescription("Stock reservations rejected during status transitions"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ordersPlaced:        ordersPlaced,
		transitionsApplied:  transitionsApplied,
		reservationFailures: reservationFailures,
	}, nil
}

// OrderPlaced records a successful checkout.
func (m *Metrics) OrderPlaced(ctx context.Context) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1)
}

// TransitionApplied records a committed status transition.
func (m *Metrics) TransitionApplied(ctx context.Context, status string, movedStock bool) {
	if m == nil || m.transitionsApplied == nil {
		return
	}
	m.transitionsApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.Bool("moved_stock", movedStock),
	))
}

// ReservationFailed records a rejected reservation with the failure reason.
func (m *Metrics) ReservationFailed(ctx context.Context, reason string) {
	if m == nil || m.reservationFailures == nil {
		return
	}
	m.reservationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
