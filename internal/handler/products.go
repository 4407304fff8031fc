package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/spicekart/coupon-service/internal/domain/product"
)

type productResponse struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Price    float64              `json:"price"`
	Category string               `json:"category"`
	Image    productImageResponse `json:"image"`
}

type productImageResponse struct {
	Thumbnail string `json:"thumbnail"`
	Mobile    string `json:"mobile"`
	Tablet    string `json:"tablet"`
	Desktop   string `json:"desktop"`
}

// toProductResponse converts a domain product into its response shape.
// Image paths are prefixed with the configured imageBaseURL.
func (h *Handler) toProductResponse(p product.Product) productResponse {
	base := h.imageBaseURL
	return productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price.InexactFloat64(),
		Category: p.Category,
		Image: productImageResponse{
			Thumbnail: base + p.Image.Thumbnail,
			Mobile:    base + p.Image.Mobile,
			Tablet:    base + p.Image.Tablet,
			Desktop:   base + p.Image.Desktop,
		},
	}
}

// listProducts returns every product in the catalog.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = h.toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// getProduct returns a single product by ID.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(*p))
}
