package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/electrocart/api/internal/domain"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/platform/textutil"
	"github.com/electrocart/api/internal/repositories"
)

var (
	errCatalogProductsRequired   = errors.New("catalog service: product repository is required")
	errCatalogCategoriesRequired = errors.New("catalog service: category repository is required")
)

// ErrCatalogInvalidInput indicates missing or malformed catalogue fields.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the product or category does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// skuPrefixPattern constrains category prefixes to 3 or 4 uppercase letters.
var skuPrefixPattern = regexp.MustCompile(`^[A-Z]{3,4}$`)

// CatalogServiceDeps wires the repositories for catalogue operations.
type CatalogServiceDeps struct {
	Products   repositories.ProductRepository
	Categories repositories.CategoryRepository
	Clock      func() time.Time
	Logger     *zap.Logger
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	sanitizer  *bluemonday.Policy
	now        func() time.Time
	logger     *zap.Logger
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errCatalogProductsRequired
	}
	if deps.Categories == nil {
		return nil, errCatalogCategoriesRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		sanitizer:  bluemonday.UGCPolicy(),
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// CreateProduct validates the input, allocates the next SKU under the
// category's prefix and persists the product.
func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error) {
	category, err := s.resolveCategory(ctx, input.CategoryID)
	if err != nil {
		return nil, err
	}
	product, err := s.buildProduct(input, category)
	if err != nil {
		return nil, err
	}

	sku, err := s.nextSKU(ctx, category.SKUPrefix)
	if err != nil {
		return nil, err
	}
	product.SKU = sku

	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	created, err := s.products.Create(ctx, product)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("sku", created.SKU),
		zap.String("category", created.Category))
	return created, nil
}

// UpdateProduct overwrites the editable fields. The SKU assigned at creation
// never changes, even when the product moves to another category.
func (s *catalogService) UpdateProduct(ctx context.Context, id string, input ProductInput) (*domain.Product, error) {
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	category, err := s.resolveCategory(ctx, input.CategoryID)
	if err != nil {
		return nil, err
	}
	product, err := s.buildProduct(input, category)
	if err != nil {
		return nil, err
	}
	product.ID = existing.ID
	product.SKU = existing.SKU
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()

	updated, err := s.products.Update(ctx, product)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return updated, nil
}

// DeleteProduct removes the product. Orders keep their line-item snapshots.
func (s *catalogService) DeleteProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return translateCatalogError(err)
	}
	return nil
}

// GetProduct fetches a product by ID.
func (s *catalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrCatalogInvalidInput
	}
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return product, nil
}

// ListProducts returns a filtered catalogue page.
func (s *catalogService) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (*domain.CursorPage[domain.Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return page, nil
}

// WatchProducts streams the filtered catalogue for live storefront views.
func (s *catalogService) WatchProducts(ctx context.Context, filter repositories.ProductListFilter) (*platformfs.Subscription[domain.Product], error) {
	return s.products.Watch(ctx, filter)
}

// CreateCategory validates and persists a category.
func (s *catalogService) CreateCategory(ctx context.Context, input CategoryInput) (*domain.Category, error) {
	category, err := s.buildCategory(input)
	if err != nil {
		return nil, err
	}
	category.CreatedAt = s.now()
	created, err := s.categories.Create(ctx, category)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return created, nil
}

// UpdateCategory overwrites the category. Existing products keep the SKUs
// minted under the old prefix.
func (s *catalogService) UpdateCategory(ctx context.Context, id string, input CategoryInput) (*domain.Category, error) {
	existing, err := s.categories.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, translateCatalogError(err)
	}
	category, err := s.buildCategory(input)
	if err != nil {
		return nil, err
	}
	category.ID = existing.ID
	category.CreatedAt = existing.CreatedAt
	updated, err := s.categories.Update(ctx, category)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return updated, nil
}

// DeleteCategory removes the category. Products keep their category name and
// simply stop matching any category filter.
func (s *catalogService) DeleteCategory(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return translateCatalogError(err)
	}
	return nil
}

// ListCategories returns every category.
func (s *catalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return categories, nil
}

func (s *catalogService) resolveCategory(ctx context.Context, categoryID string) (*domain.Category, error) {
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return nil, ErrCatalogInvalidInput
	}
	category, err := s.categories.Get(ctx, id)
	if err != nil {
		return nil, translateCatalogError(err)
	}
	return category, nil
}

func (s *catalogService) buildProduct(input ProductInput, category *domain.Category) (*domain.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || input.Price < 0 || input.Stock < 0 {
		return nil, ErrCatalogInvalidInput
	}

	return &domain.Product{
		Name:          name,
		Category:      category.Name,
		Price:         input.Price,
		StockQuantity: input.Stock,
		Description:   s.sanitizer.Sanitize(input.Description),
		Specs:         s.sanitizer.Sanitize(input.Specs),
		Tags:          textutil.NormalizeList(input.Tags),
		ImageURLs:     textutil.NormalizeList(input.ImageURLs),
	}, nil
}

func (s *catalogService) buildCategory(input CategoryInput) (*domain.Category, error) {
	name := strings.TrimSpace(input.Name)
	prefix := strings.ToUpper(strings.TrimSpace(input.SKUPrefix))
	if name == "" || !skuPrefixPattern.MatchString(prefix) {
		return nil, ErrCatalogInvalidInput
	}
	return &domain.Category{
		Name:      name,
		SKUPrefix: prefix,
		Icon:      strings.TrimSpace(input.Icon),
	}, nil
}

// nextSKU scans the existing SKUs under the prefix and mints prefix plus the
// next zero-padded suffix. When the scan fails, a time-derived suffix keeps
// product creation available at the cost of a gap in the sequence.
func (s *catalogService) nextSKU(ctx context.Context, prefix string) (string, error) {
	max, err := s.products.MaxSKUSuffix(ctx, prefix)
	if err != nil {
		s.logger.Warn("sku scan failed, falling back to time-derived suffix",
			zap.String("prefix", prefix),
			zap.Error(err))
		return fmt.Sprintf("%s%04d", prefix, s.now().UnixMilli()%10000), nil
	}
	next := max + 1
	if next < 1 {
		next = 1
	}
	return fmt.Sprintf("%s%04d", prefix, next), nil
}

func translateCatalogError(err error) error {
	var catErr *repositories.CatalogError
	if errors.As(err, &catErr) {
		switch catErr.Code {
		case repositories.CatalogErrorProductNotFound, repositories.CatalogErrorCategoryNotFound:
			return ErrCatalogNotFound
		}
	}
	return err
}
