// Package services contains the application logic between the HTTP handlers
// and the repositories.
package services

import (
	"context"

	"github.com/electrocart/api/internal/domain"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/repositories"
)

// CheckoutInput carries everything needed to place an order for the
// authenticated user. Line items come from the user's persisted cart.
type CheckoutInput struct {
	UserID        string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Address       string
}

// CheckoutService turns a cart into a pending order.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, input CheckoutInput) (*domain.Order, error)
}

// StatusChangeInput identifies a lifecycle transition requested by staff.
type StatusChangeInput struct {
	OrderID   string
	NewStatus domain.OrderStatus
	// ActorUID is the staff member applying the change, for the audit log line.
	ActorUID string
}

// OrderService owns the order lifecycle and order reads.
type OrderService interface {
	// ApplyStatusChange runs the lifecycle decision and moves stock when the
	// transition requires it. Applying the current status is a no-op.
	ApplyStatusChange(ctx context.Context, input StatusChangeInput) (*domain.Order, error)
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	ListForUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error)
	ListAll(ctx context.Context, filter repositories.OrderListFilter) (*domain.CursorPage[domain.Order], error)
	Watch(ctx context.Context, filter repositories.OrderListFilter) (*platformfs.Subscription[domain.Order], error)
}

// ProductInput carries the editable fields of a product. SKU is assigned by
// the service on create and immutable afterwards.
type ProductInput struct {
	Name        string
	CategoryID  string
	Price       int64
	Stock       int
	Description string
	Specs       string
	Tags        []string
	ImageURLs   []string
}

// CategoryInput carries the editable fields of a category.
type CategoryInput struct {
	Name      string
	SKUPrefix string
	Icon      string
}

// CatalogService owns products and categories.
type CatalogService interface {
	CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, input ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter repositories.ProductListFilter) (*domain.CursorPage[domain.Product], error)
	WatchProducts(ctx context.Context, filter repositories.ProductListFilter) (*platformfs.Subscription[domain.Product], error)

	CreateCategory(ctx context.Context, input CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, input CategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// CartService owns the authenticated user's cart.
type CartService interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// ProfileInput carries the identity fields stamped on first sign-in.
type ProfileInput struct {
	UID         string
	Email       string
	DisplayName string
}

// UserService owns user profiles and role management.
type UserService interface {
	// EnsureProfile upserts the profile document on sign-in.
	EnsureProfile(ctx context.Context, input ProfileInput) (*domain.User, error)
	Get(ctx context.Context, uid string) (*domain.User, error)
	List(ctx context.Context, pageSize int, pageToken string) (*domain.CursorPage[domain.User], error)
	// ChangeRole updates both the profile document and the identity
	// provider's custom claim so the new role takes effect on token refresh.
	ChangeRole(ctx context.Context, uid, role string) (*domain.User, error)
}
