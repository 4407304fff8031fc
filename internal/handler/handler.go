// Package handler exposes the HTTP surface: checkout preview, order
// placement, catalog browsing, and the admin coupon back-office.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/spicekart/coupon-service/internal/domain/auth"
	"github.com/spicekart/coupon-service/internal/domain/coupon"
	"github.com/spicekart/coupon-service/internal/domain/order"
	"github.com/spicekart/coupon-service/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler routes HTTP requests to the checkout service and repositories.
type Handler struct {
	products     product.Repository
	checkout     *order.Service
	admin        coupon.AdminStore
	imageBaseURL string
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, products product.Repository, checkout *order.Service, admin coupon.AdminStore) *Handler {
	return &Handler{
		products:     products,
		checkout:     checkout,
		admin:        admin,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes builds the API router. Catalog endpoints are public; checkout and
// admin groups are gated by API key scopes.
func (h *Handler) Routes(sec *Security) chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(sec.RequireScope(auth.ScopePlaceOrders))
		r.Post("/checkout/preview", h.previewCheckout)
		r.Post("/orders", h.placeOrder)
	})

	r.Route("/admin/coupons", func(r chi.Router) {
		r.Use(sec.RequireScope(auth.ScopeManageCoupons))
		r.Get("/", h.listCoupons)
		r.Post("/", h.createCoupon)
		r.Get("/{couponID}", h.getCoupon)
		r.Put("/{couponID}", h.updateCoupon)
		r.Delete("/{couponID}", h.deleteCoupon)
	})

	return r
}

// errorResponse is the JSON body for all non-2xx responses.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// writeInternalError logs the fault and responds with a generic message so
// store failures are never conflated with validation rejections.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error, try again")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
