package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/spicekart/coupon-service/internal/domain/coupon"
)

// couponRequest is the admin write shape for coupon definitions. Monetary
// fields accept JSON numbers or strings; omitted optional constraints keep
// their zero "not set" meaning.
type couponRequest struct {
	Code                 string          `json:"code"`
	DiscountType         string          `json:"discountType"`
	DiscountValue        decimal.Decimal `json:"discountValue"`
	MinimumOrder         decimal.Decimal `json:"minimumOrder"`
	MaxDiscount          decimal.Decimal `json:"maxDiscount"`
	UsageLimit           int             `json:"usageLimit"`
	UserUsageLimit       int             `json:"userUsageLimit"`
	ApplicableCategories []string        `json:"applicableCategories"`
	ApplicableProducts   []string        `json:"applicableProducts"`
	ValidFrom            *time.Time      `json:"validFrom"`
	ValidUntil           *time.Time      `json:"validUntil"`
	Active               *bool           `json:"active"`
}

func (req *couponRequest) toDomain() *coupon.Coupon {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &coupon.Coupon{
		Code:           coupon.CanonicalCode(req.Code),
		DiscountType:   coupon.DiscountType(req.DiscountType),
		DiscountValue:  req.DiscountValue,
		MinimumOrder:   req.MinimumOrder,
		MaxDiscount:    req.MaxDiscount,
		UsageLimit:     req.UsageLimit,
		UserUsageLimit: req.UserUsageLimit,
		Categories:     req.ApplicableCategories,
		Products:       req.ApplicableProducts,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		Active:         active,
	}
}

type couponResponse struct {
	ID                   string     `json:"id"`
	Code                 string     `json:"code"`
	DiscountType         string     `json:"discountType"`
	DiscountValue        float64    `json:"discountValue"`
	MinimumOrder         float64    `json:"minimumOrder"`
	MaxDiscount          float64    `json:"maxDiscount"`
	UsageLimit           int        `json:"usageLimit"`
	UsageCount           int        `json:"usageCount"`
	UserUsageLimit       int        `json:"userUsageLimit"`
	ApplicableCategories []string   `json:"applicableCategories,omitempty"`
	ApplicableProducts   []string   `json:"applicableProducts,omitempty"`
	ValidFrom            *time.Time `json:"validFrom,omitempty"`
	ValidUntil           *time.Time `json:"validUntil,omitempty"`
	Active               bool       `json:"active"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// couponStatsResponse extends couponResponse with aggregate redemption data
// for the list view.
type couponStatsResponse struct {
	couponResponse
	Redemptions     int     `json:"redemptions"`
	TotalDiscounted float64 `json:"totalDiscounted"`
}

func toCouponResponse(c *coupon.Coupon) couponResponse {
	return couponResponse{
		ID:                   c.ID,
		Code:                 c.Code,
		DiscountType:         string(c.DiscountType),
		DiscountValue:        c.DiscountValue.InexactFloat64(),
		MinimumOrder:         c.MinimumOrder.InexactFloat64(),
		MaxDiscount:          c.MaxDiscount.InexactFloat64(),
		UsageLimit:           c.UsageLimit,
		UsageCount:           c.UsageCount,
		UserUsageLimit:       c.UserUsageLimit,
		ApplicableCategories: c.Categories,
		ApplicableProducts:   c.Products,
		ValidFrom:            c.ValidFrom,
		ValidUntil:           c.ValidUntil,
		Active:               c.Active,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

// listCoupons returns all non-deleted coupons with redemption stats.
func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	out := make([]couponStatsResponse, len(stats))
	for i, st := range stats {
		out[i] = couponStatsResponse{
			couponResponse:  toCouponResponse(&st.Coupon),
			Redemptions:     st.Redemptions,
			TotalDiscounted: st.TotalDiscounted.InexactFloat64(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// createCoupon creates a coupon definition after invariant checks.
func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c := req.toDomain()
	if err := c.CheckDefinition(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.admin.Create(r.Context(), c); err != nil {
		if errors.Is(err, coupon.ErrCouponExists) {
			writeError(w, http.StatusConflict, "coupon code already exists")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(c))
}

// getCoupon returns a single coupon definition by ID.
func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.admin.GetByID(r.Context(), chi.URLParam(r, "couponID"))
	if err != nil {
		h.writeCouponLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

// updateCoupon replaces a coupon definition. The stored usage counter is
// untouched; only the definition fields change.
func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c := req.toDomain()
	c.ID = chi.URLParam(r, "couponID")
	if err := c.CheckDefinition(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.admin.Update(r.Context(), c); err != nil {
		h.writeCouponLookupError(w, r, err)
		return
	}

	updated, err := h.admin.GetByID(r.Context(), c.ID)
	if err != nil {
		h.writeCouponLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(updated))
}

// deleteCoupon soft-deletes a coupon. Historical redemption receipts keep
// referencing the row.
func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Delete(r.Context(), chi.URLParam(r, "couponID")); err != nil {
		h.writeCouponLookupError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCouponLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, coupon.ErrNotFound) {
		writeError(w, http.StatusNotFound, "coupon not found")
		return
	}
	writeInternalError(w, r, err)
}
