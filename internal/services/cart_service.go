package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
)

// ErrCartInvalidInput indicates a missing user, product or quantity.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartProductNotFound indicates the product being added does not exist.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// CartServiceDeps wires the repositories for cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// Get loads the user's cart, which may be empty.
func (s *cartService) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrCartInvalidInput
	}
	return s.carts.Get(ctx, uid)
}

// AddItem snapshots the product into the cart, incrementing the quantity when
// the product already has a line.
func (s *cartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" || quantity <= 0 {
		return nil, ErrCartInvalidInput
	}

	product, err := s.products.Get(ctx, pid)
	if err != nil {
		var catErr *repositories.CatalogError
		if errors.As(err, &catErr) && catErr.Code == repositories.CatalogErrorProductNotFound {
			return nil, ErrCartProductNotFound
		}
		return nil, err
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == pid {
			cart.Items[i].Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		image := ""
		if len(product.ImageURLs) > 0 {
			image = product.ImageURLs[0]
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  quantity,
			ImageURL:  image,
		})
	}

	return s.save(ctx, cart)
}

// UpdateQuantity sets a line's quantity. Zero or negative removes the line.
func (s *cartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return nil, ErrCartInvalidInput
	}
	if quantity <= 0 {
		return s.RemoveItem(ctx, uid, pid)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == pid {
			cart.Items[i].Quantity = quantity
			return s.save(ctx, cart)
		}
	}
	return nil, ErrCartProductNotFound
}

// RemoveItem drops the product's line from the cart. Removing an absent line
// is not an error.
func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	pid := strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return nil, ErrCartInvalidInput
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	items := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != pid {
			items = append(items, item)
		}
	}
	cart.Items = items
	return s.save(ctx, cart)
}

// Clear deletes the cart document.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	return s.carts.Delete(ctx, uid)
}

func (s *cartService) save(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	cart.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}
