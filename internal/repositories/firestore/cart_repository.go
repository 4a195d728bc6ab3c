package firestore

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/electrocart/api/internal/domain"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/repositories"
)

const cartsCollection = "carts"

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Price     int64  `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
	ImageURL  string `firestore:"imageUrl"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository persists carts keyed by user ID, one document per user.
type CartRepository struct {
	base *platformfs.BaseRepository[domain.Cart]
}

// NewCartRepository constructs the Firestore-backed cart repository.
func NewCartRepository(provider *platformfs.Provider) *CartRepository {
	return &CartRepository{
		base: platformfs.NewBaseRepository[domain.Cart](
			provider,
			cartsCollection,
			encodeCart,
			decodeCart,
		),
	}
}

func encodeCart(_ context.Context, cart domain.Cart) (any, error) {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return cartDocument{Items: items, UpdatedAt: cart.UpdatedAt}, nil
}

func decodeCart(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Cart, error) {
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, err
	}
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return domain.Cart{
		UserID:    snap.Ref.ID,
		Items:     items,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// Get fetches a user's cart. A user without a cart document gets an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		if platformfs.IsNotFound(err) {
			return &domain.Cart{UserID: userID}, nil
		}
		return nil, wrapCatalogError("carts.get", err)
	}
	cart := doc.Data
	cart.UserID = doc.ID
	return &cart, nil
}

// Save upserts the user's cart document.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	if cart == nil || strings.TrimSpace(cart.UserID) == "" {
		return repositories.NewCatalogError(repositories.CatalogErrorUnknown, "cart user id is required", nil)
	}
	if _, err := r.base.Set(ctx, cart.UserID, *cart); err != nil {
		return wrapCatalogError("carts.save", err)
	}
	return nil
}

// Delete removes the user's cart document.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if err := r.base.Delete(ctx, userID); err != nil {
		return wrapCatalogError("carts.delete", err)
	}
	return nil
}
