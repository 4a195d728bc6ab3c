package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed but not yet accepted by staff.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessing indicates staff accepted the order and stock is committed.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusShipped indicates the order has been handed to the courier.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusCompleted indicates the order reached the customer.
	OrderStatusCompleted OrderStatus = "Completed"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// ParseOrderStatus validates and canonicalises a raw status string.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, status := range orderStatuses {
		if strings.EqualFold(string(status), trimmed) {
			return status, true
		}
	}
	return "", false
}

// IsValid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) IsValid() bool {
	_, ok := ParseOrderStatus(string(s))
	return ok
}

// RequiresStock reports whether an order in this status must hold reserved
// stock. Pending and Cancelled orders hold none.
func (s OrderStatus) RequiresStock() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted:
		return true
	default:
		return false
	}
}

// Product is a catalogue entry carrying the mutable stock counter.
type Product struct {
	ID            string
	Name          string
	Category      string
	SKU           string
	Price         int64
	StockQuantity int
	Description   string
	Specs         string
	Tags          []string
	ImageURLs     []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.StockQuantity > 0
}

// Category groups products and supplies the SKU prefix for new entries.
type Category struct {
	ID        string
	Name      string
	SKUPrefix string
	Icon      string
	CreatedAt time.Time
}

// OrderLineItem is an immutable snapshot of a product at purchase time.
// It is never reconciled against the live product.
type OrderLineItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	ImageURL  string
}

// Order captures a placed order. The document ID doubles as the
// customer-facing bank-transfer payment reference.
type Order struct {
	ID            string
	UserID        string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Address       string
	Items         []OrderLineItem
	Subtotal      int64
	ShippingFee   int64
	Total         int64
	Status        OrderStatus
	// StockUpdated records whether this order's quantities have been
	// subtracted from product stock. The lifecycle engine is the only writer
	// and keeps it in lockstep with the actual product counters.
	StockUpdated bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Cart holds a user's session-scoped cart. Persisted on every mutation.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem snapshots the product the moment it was added to the cart.
type CartItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	ImageURL  string
}

// Subtotal sums the line totals of all cart items.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// User mirrors the back-office view of an authenticated customer.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
	CreatedAt   time.Time
}

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
	HasMore       bool
}
