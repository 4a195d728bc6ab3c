// Package repositories defines the persistence contracts the service layer
// depends on, along with the typed errors implementations raise.
package repositories

import (
	"context"

	"github.com/electrocart/api/internal/domain"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
)

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	// Category filters by exact category name when non-empty.
	Category string
	// NamePrefix filters by a case-sensitive name prefix when non-empty.
	NamePrefix string
	// InStockOnly drops products whose stock quantity is zero.
	InStockOnly bool
	// PageSize caps the page length. Zero means the default.
	PageSize int
	// PageToken resumes a previous listing when non-empty.
	PageToken string
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	// Status keeps only orders in the given status when non-empty.
	Status domain.OrderStatus
	// PageSize caps the page length. Zero means the default.
	PageSize int
	// PageToken resumes a previous listing when non-empty.
	PageToken string
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) (*domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Update(ctx context.Context, product *domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ProductListFilter) (*domain.CursorPage[domain.Product], error)
	// MaxSKUSuffix returns the highest numeric suffix among SKUs starting
	// with the given prefix, or -1 when no such SKU exists.
	MaxSKUSuffix(ctx context.Context, prefix string) (int, error)
	// Watch streams catalog snapshots until the subscription is stopped.
	Watch(ctx context.Context, filter ProductListFilter) (*platformfs.Subscription[domain.Product], error)
}

// CategoryRepository persists catalog categories.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) (*domain.Category, error)
	Get(ctx context.Context, id string) (*domain.Category, error)
	Update(ctx context.Context, category *domain.Category) (*domain.Category, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Category, error)
}

// OrderRepository persists orders outside of stock-moving transitions.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (*domain.CursorPage[domain.Order], error)
	ListAll(ctx context.Context, filter OrderListFilter) (*domain.CursorPage[domain.Order], error)
	// UpdateStatus writes the status field only. It must not be used for
	// transitions that move stock; those go through InventoryRepository.
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
	// Watch streams order snapshots until the subscription is stopped.
	Watch(ctx context.Context, filter OrderListFilter) (*platformfs.Subscription[domain.Order], error)
}

// InventoryRepository applies stock-moving order transitions atomically.
// Both operations commit the product stock adjustments and the order's
// status and stockUpdated flag in a single transaction.
type InventoryRepository interface {
	// Reserve decrements stock for every line item and marks the order as
	// holding a reservation. It fails the whole transaction when a product
	// is missing or stock would go negative, and leaves the order untouched
	// when it already holds a reservation.
	Reserve(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error)
	// Release returns stock for every line item and clears the reservation
	// flag. Missing products are skipped so cancellation always succeeds.
	Release(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error)
}

// CartRepository persists per-user shopping carts.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

// UserRepository persists user profile documents.
type UserRepository interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	Upsert(ctx context.Context, user *domain.User) (*domain.User, error)
	List(ctx context.Context, pageSize int, pageToken string) (*domain.CursorPage[domain.User], error)
	// UpdateRole writes the role field only.
	UpdateRole(ctx context.Context, id, role string) error
}
