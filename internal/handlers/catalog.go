package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/platform/httpx"
	"github.com/electrocart/api/internal/repositories"
	"github.com/electrocart/api/internal/services"
)

// CatalogHandlers exposes the public storefront catalogue.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the public catalogue handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/stream", h.streamProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
}

type productPayload struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	SKU           string   `json:"sku"`
	Price         int64    `json:"price"`
	StockQuantity int      `json:"stockQuantity"`
	InStock       bool     `json:"inStock"`
	Description   string   `json:"description,omitempty"`
	Specs         string   `json:"specs,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ImageURLs     []string `json:"imageUrls,omitempty"`
}

type productListPayload struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
	HasMore       bool             `json:"hasMore"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:            product.ID,
		Name:          product.Name,
		Category:      product.Category,
		SKU:           product.SKU,
		Price:         product.Price,
		StockQuantity: product.StockQuantity,
		InStock:       product.InStock(),
		Description:   product.Description,
		Specs:         product.Specs,
		Tags:          product.Tags,
		ImageURLs:     product.ImageURLs,
	}
}

type categoryPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SKUPrefix string `json:"skuPrefix"`
	Icon      string `json:"icon,omitempty"`
}

func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:        category.ID,
		Name:      category.Name,
		SKUPrefix: category.SKUPrefix,
		Icon:      category.Icon,
	}
}

func productFilterFromQuery(r *http.Request) repositories.ProductListFilter {
	query := r.URL.Query()
	return repositories.ProductListFilter{
		Category:    strings.TrimSpace(query.Get("category")),
		NamePrefix:  strings.TrimSpace(query.Get("q")),
		InStockOnly: query.Get("inStock") == "true",
		PageSize:    pageSizeParam(r),
		PageToken:   strings.TrimSpace(query.Get("pageToken")),
	}
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := h.catalog.ListProducts(ctx, productFilterFromQuery(r))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := productListPayload{
		Products:      make([]productPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
		HasMore:       page.HasMore,
	}
	for _, product := range page.Items {
		payload.Products = append(payload.Products, buildProductPayload(product))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildProductPayload(*product))
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := struct {
		Categories []categoryPayload `json:"categories"`
	}{Categories: make([]categoryPayload, 0, len(categories))}
	for _, category := range categories {
		payload.Categories = append(payload.Categories, buildCategoryPayload(category))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

// streamProducts pushes the filtered catalogue over server-sent events,
// emitting the full result set each time the underlying collection changes.
func (h *CatalogHandlers) streamProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "response writer does not support streaming", http.StatusInternalServerError))
		return
	}

	sub, err := h.catalog.WatchProducts(ctx, productFilterFromQuery(r))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	defer sub.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case docs, open := <-sub.Updates():
			if !open {
				return
			}
			products := make([]productPayload, 0, len(docs))
			for _, doc := range docs {
				products = append(products, buildProductPayload(doc.Data))
			}
			writeSSEEvent(w, "products", productListPayload{Products: products})
			flusher.Flush()
		}
	}
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "product or category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInvalidInput), isInvalidPageToken(err):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "catalogue request failed", http.StatusInternalServerError))
	}
}
