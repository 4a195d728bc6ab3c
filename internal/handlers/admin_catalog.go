package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/electrocart/api/internal/platform/httpx"
	"github.com/electrocart/api/internal/platform/storage"
	"github.com/electrocart/api/internal/services"
)

const maxCatalogBodySize = 64 * 1024

// ImageUploadSigner mints signed upload URLs for product images.
type ImageUploadSigner interface {
	UploadURL(ctx context.Context, productID, fileName, contentType string) (storage.UploadTarget, error)
}

// AdminCatalogHandlers exposes product and category management.
type AdminCatalogHandlers struct {
	catalog services.CatalogService
	images  ImageUploadSigner
}

// AdminCatalogOption customises the admin catalogue handlers.
type AdminCatalogOption func(*AdminCatalogHandlers)

// WithProductImageSigner enables the image upload URL endpoint.
func WithProductImageSigner(signer ImageUploadSigner) AdminCatalogOption {
	return func(h *AdminCatalogHandlers) {
		h.images = signer
	}
}

// NewAdminCatalogHandlers constructs the admin catalogue handlers.
func NewAdminCatalogHandlers(catalog services.CatalogService, opts ...AdminCatalogOption) *AdminCatalogHandlers {
	h := &AdminCatalogHandlers{catalog: catalog}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the admin catalogue endpoints onto the provided router.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Post("/products/{productID}/images", h.createImageUploadURL)

	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)
}

type productRequest struct {
	Name        string   `json:"name"`
	CategoryID  string   `json:"categoryId"`
	Price       int64    `json:"price"`
	Stock       int      `json:"stock"`
	Description string   `json:"description"`
	Specs       string   `json:"specs"`
	Tags        []string `json:"tags"`
	ImageURLs   []string `json:"imageUrls"`
}

func (req productRequest) toInput() services.ProductInput {
	return services.ProductInput{
		Name:        req.Name,
		CategoryID:  req.CategoryID,
		Price:       req.Price,
		Stock:       req.Stock,
		Description: req.Description,
		Specs:       req.Specs,
		Tags:        req.Tags,
		ImageURLs:   req.ImageURLs,
	}
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req productRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.CreateProduct(ctx, req.toInput())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildProductPayload(*product))
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req productRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, chi.URLParam(r, "productID"), req.toInput())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildProductPayload(*product))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) createImageUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.images == nil {
		httpx.WriteError(ctx, w, httpx.NewError("image_uploads_disabled", "image uploads are not configured", http.StatusNotImplemented))
		return
	}

	var req struct {
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
	}
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	productID := chi.URLParam(r, "productID")
	if _, err := h.catalog.GetProduct(ctx, productID); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	target, err := h.images.UploadURL(ctx, productID, req.FileName, req.ContentType)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"uploadUrl": target.UploadURL,
		"publicUrl": target.PublicURL,
		"method":    target.Method,
		"headers":   target.Headers,
		"expiresAt": target.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type categoryRequest struct {
	Name      string `json:"name"`
	SKUPrefix string `json:"skuPrefix"`
	Icon      string `json:"icon"`
}

func (req categoryRequest) toInput() services.CategoryInput {
	return services.CategoryInput{
		Name:      req.Name,
		SKUPrefix: req.SKUPrefix,
		Icon:      req.Icon,
	}
}

func (h *AdminCatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req categoryRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	category, err := h.catalog.CreateCategory(ctx, req.toInput())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildCategoryPayload(*category))
}

func (h *AdminCatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req categoryRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	category, err := h.catalog.UpdateCategory(ctx, chi.URLParam(r, "categoryID"), req.toInput())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCategoryPayload(*category))
}

func (h *AdminCatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryID")); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "product or category not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "catalogue request failed", http.StatusInternalServerError))
	}
}
