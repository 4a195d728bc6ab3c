// Package firestore contains the Firestore-backed implementations of the
// repository contracts.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/electrocart/api/internal/domain"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/platform/pagination"
	"github.com/electrocart/api/internal/repositories"
)

const productsCollection = "products"

// skuRangeEnd closes a prefix range scan over the sku field. It is the highest
// code point Firestore orders after any prefix continuation.
const skuRangeEnd = ""

type productDocument struct {
	Name          string    `firestore:"name"`
	Category      string    `firestore:"category"`
	SKU           string    `firestore:"sku"`
	Price         int64     `firestore:"price"`
	StockQuantity int       `firestore:"stockQuantity"`
	Description   string    `firestore:"description"`
	Specs         string    `firestore:"specs"`
	Tags          []string  `firestore:"tags"`
	ImageURLs     []string  `firestore:"imageUrls"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// ProductRepository persists products in the products collection.
type ProductRepository struct {
	base *platformfs.BaseRepository[domain.Product]
}

// NewProductRepository constructs the Firestore-backed product repository.
func NewProductRepository(provider *platformfs.Provider) *ProductRepository {
	return &ProductRepository{
		base: platformfs.NewBaseRepository[domain.Product](
			provider,
			productsCollection,
			encodeProduct,
			decodeProduct,
		),
	}
}

func encodeProduct(_ context.Context, product domain.Product) (any, error) {
	return productDocument{
		Name:          product.Name,
		Category:      product.Category,
		SKU:           product.SKU,
		Price:         product.Price,
		StockQuantity: product.StockQuantity,
		Description:   product.Description,
		Specs:         product.Specs,
		Tags:          product.Tags,
		ImageURLs:     product.ImageURLs,
		CreatedAt:     product.CreatedAt,
		UpdatedAt:     product.UpdatedAt,
	}, nil
}

// decodeProduct performs schema-on-read normalisation: catalogue documents
// written by earlier revisions carry a single imageUrl string instead of the
// imageUrls array.
func decodeProduct(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Product, error) {
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, err
	}

	images := doc.ImageURLs
	if len(images) == 0 {
		if legacy, ok := snap.Data()["imageUrl"].(string); ok && strings.TrimSpace(legacy) != "" {
			images = []string{legacy}
		}
	}

	return domain.Product{
		ID:            snap.Ref.ID,
		Name:          doc.Name,
		Category:      doc.Category,
		SKU:           doc.SKU,
		Price:         doc.Price,
		StockQuantity: doc.StockQuantity,
		Description:   doc.Description,
		Specs:         doc.Specs,
		Tags:          doc.Tags,
		ImageURLs:     images,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

// Create stores a new product under its pre-assigned ID.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if product == nil {
		return nil, repositories.NewCatalogError(repositories.CatalogErrorUnknown, "product is required", nil)
	}
	if strings.TrimSpace(product.ID) == "" {
		ref, err := r.base.NewDocumentRef(ctx)
		if err != nil {
			return nil, wrapCatalogError("products.create", err)
		}
		product.ID = ref.ID
	}
	if _, err := r.base.Create(ctx, product.ID, *product); err != nil {
		return nil, wrapCatalogError("products.create", err)
	}
	return product, nil
}

// Get fetches a product by document ID.
func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		if platformfs.IsNotFound(err) {
			return nil, repositories.NewCatalogError(repositories.CatalogErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
		}
		return nil, wrapCatalogError("products.get", err)
	}
	product := doc.Data
	product.ID = doc.ID
	return &product, nil
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if product == nil || strings.TrimSpace(product.ID) == "" {
		return nil, repositories.NewCatalogError(repositories.CatalogErrorUnknown, "product id is required", nil)
	}
	if _, err := r.base.Set(ctx, product.ID, *product); err != nil {
		return nil, wrapCatalogError("products.update", err)
	}
	return product, nil
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if err := r.base.Delete(ctx, id); err != nil {
		return wrapCatalogError("products.delete", err)
	}
	return nil
}

// List returns a page of products ordered by name.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (*domain.CursorPage[domain.Product], error) {
	pageSize := pagination.ClampPageSize(filter.PageSize)

	var startAfter []any
	if filter.PageToken != "" {
		cursor, err := pagination.DecodeToken(filter.PageToken)
		if err != nil {
			return nil, err
		}
		startAfter = cursor.StartAfter
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = applyProductFilter(q, filter)
		q = q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return nil, wrapCatalogError("products.list", err)
	}

	page := &domain.CursorPage[domain.Product]{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data)
	}
	page.HasMore = hasMore
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{last.Data.Name, last.ID}})
		if err != nil {
			return nil, wrapCatalogError("products.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// MaxSKUSuffix scans every SKU in the prefix range and returns the highest
// numeric suffix, or -1 when no SKU under the prefix carries one.
func (r *ProductRepository) MaxSKUSuffix(ctx context.Context, prefix string) (int, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return -1, repositories.NewCatalogError(repositories.CatalogErrorUnknown, "sku prefix is required", nil)
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("sku", ">=", prefix).
			Where("sku", "<=", prefix+skuRangeEnd)
	})
	if err != nil {
		return -1, wrapCatalogError("products.max_sku_suffix", err)
	}

	max := -1
	for _, doc := range docs {
		suffix := strings.TrimPrefix(doc.Data.SKU, prefix)
		if suffix == doc.Data.SKU {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

// Watch streams the filtered catalogue until the subscription is stopped.
func (r *ProductRepository) Watch(ctx context.Context, filter repositories.ProductListFilter) (*platformfs.Subscription[domain.Product], error) {
	sub, err := r.base.Watch(ctx, func(q firestore.Query) firestore.Query {
		q = applyProductFilter(q, filter)
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, wrapCatalogError("products.watch", err)
	}
	return sub, nil
}

func applyProductFilter(q firestore.Query, filter repositories.ProductListFilter) firestore.Query {
	if filter.Category != "" {
		q = q.Where("category", "==", filter.Category)
	}
	if filter.NamePrefix != "" {
		q = q.
			Where("name", ">=", filter.NamePrefix).
			Where("name", "<=", filter.NamePrefix+skuRangeEnd)
	}
	if filter.InStockOnly {
		q = q.Where("stockQuantity", ">", 0)
	}
	return q
}

func wrapCatalogError(op string, err error) error {
	var catalogErr *repositories.CatalogError
	if errors.As(err, &catalogErr) {
		return err
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return err
	}
	code := repositories.CatalogErrorUnknown
	if platformfs.IsConflict(err) {
		code = repositories.CatalogErrorConflict
	}
	wrapped := repositories.NewCatalogError(code, err.Error(), err)
	wrapped.Op = op
	return wrapped
}
