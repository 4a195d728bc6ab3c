package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/electrocart/api/internal/domain"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/repositories"
)

const categoriesCollection = "categories"

type categoryDocument struct {
	Name      string    `firestore:"name"`
	SKUPrefix string    `firestore:"skuPrefix"`
	Icon      string    `firestore:"icon"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// CategoryRepository persists categories in the categories collection.
type CategoryRepository struct {
	base *platformfs.BaseRepository[domain.Category]
}

// NewCategoryRepository constructs the Firestore-backed category repository.
func NewCategoryRepository(provider *platformfs.Provider) *CategoryRepository {
	return &CategoryRepository{
		base: platformfs.NewBaseRepository[domain.Category](
			provider,
			categoriesCollection,
			encodeCategory,
			decodeCategory,
		),
	}
}

func encodeCategory(_ context.Context, category domain.Category) (any, error) {
	return categoryDocument{
		Name:      category.Name,
		SKUPrefix: category.SKUPrefix,
		Icon:      category.Icon,
		CreatedAt: category.CreatedAt,
	}, nil
}

func decodeCategory(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Category, error) {
	var doc categoryDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Category{}, err
	}
	return domain.Category{
		ID:        snap.Ref.ID,
		Name:      doc.Name,
		SKUPrefix: doc.SKUPrefix,
		Icon:      doc.Icon,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// Create stores a new category.
func (r *CategoryRepository) Create(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	if category == nil {
		return nil, repositories.NewCatalogError(repositories.CatalogErrorUnknown, "category is required", nil)
	}
	if strings.TrimSpace(category.ID) == "" {
		ref, err := r.base.NewDocumentRef(ctx)
		if err != nil {
			return nil, wrapCatalogError("categories.create", err)
		}
		category.ID = ref.ID
	}
	if _, err := r.base.Create(ctx, category.ID, *category); err != nil {
		return nil, wrapCatalogError("categories.create", err)
	}
	return category, nil
}

// Get fetches a category by document ID.
func (r *CategoryRepository) Get(ctx context.Context, id string) (*domain.Category, error) {
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		if platformfs.IsNotFound(err) {
			return nil, repositories.NewCatalogError(repositories.CatalogErrorCategoryNotFound, fmt.Sprintf("category %s not found", id), err)
		}
		return nil, wrapCatalogError("categories.get", err)
	}
	category := doc.Data
	category.ID = doc.ID
	return &category, nil
}

// Update overwrites the category document.
func (r *CategoryRepository) Update(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	if category == nil || strings.TrimSpace(category.ID) == "" {
		return nil, repositories.NewCatalogError(repositories.CatalogErrorUnknown, "category id is required", nil)
	}
	if _, err := r.base.Set(ctx, category.ID, *category); err != nil {
		return nil, wrapCatalogError("categories.update", err)
	}
	return category, nil
}

// Delete removes the category document. Products keep their category name.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	if err := r.base.Delete(ctx, id); err != nil {
		return wrapCatalogError("categories.delete", err)
	}
	return nil
}

// List returns every category ordered by name. The collection is small enough
// that pagination would only complicate callers.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, wrapCatalogError("categories.list", err)
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, doc.Data)
	}
	return categories, nil
}
