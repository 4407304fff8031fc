package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/spicekart/coupon-service/internal/domain/coupon"
	"github.com/spicekart/coupon-service/internal/domain/order"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	// UserID is empty for guest checkouts.
	UserID     string            `json:"userId"`
	CouponCode string            `json:"couponCode"`
	Items      []cartItemRequest `json:"items"`
}

func (req *checkoutRequest) toDomain() order.CheckoutRequest {
	items := make([]order.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.Item{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return order.CheckoutRequest{
		UserID:     req.UserID,
		Items:      items,
		CouponCode: req.CouponCode,
	}
}

type discountResponse struct {
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Amount float64 `json:"amount"`
}

func toDiscountResponse(d *coupon.Discount) *discountResponse {
	if d == nil {
		return nil
	}
	return &discountResponse{
		Type:   string(d.Type),
		Value:  d.Value.InexactFloat64(),
		Amount: d.Amount.InexactFloat64(),
	}
}

type previewResponse struct {
	IsValid  bool              `json:"isValid"`
	Reason   string            `json:"reason,omitempty"`
	Subtotal float64           `json:"subtotal"`
	Discount *discountResponse `json:"discount,omitempty"`
	Total    float64           `json:"total"`
}

// previewCheckout runs coupon validation against the cart with no side
// effects. A rejected coupon is a 200 with isValid=false and a reason tag,
// never an opaque failure.
func (h *Handler) previewCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.checkout.PreviewCheckout(r.Context(), req.toDomain())
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		IsValid:  p.Valid(),
		Reason:   string(p.Reason),
		Subtotal: p.Subtotal.InexactFloat64(),
		Discount: toDiscountResponse(p.Discount),
		Total:    p.Total.InexactFloat64(),
	})
}

type orderResponse struct {
	ID         string            `json:"id"`
	Items      []cartItemRequest `json:"items"`
	Products   []productResponse `json:"products"`
	Subtotal   float64           `json:"subtotal"`
	Discount   float64           `json:"discount"`
	Total      float64           `json:"total"`
	CouponCode string            `json:"couponCode,omitempty"`
}

// placeOrder persists an order, applying the coupon when one is provided.
// A coupon rejection aborts order creation with a 422 carrying the reason.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.checkout.PlaceOrder(r.Context(), req.toDomain())
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	o := result.Order
	resp := orderResponse{
		ID:         o.ID,
		Items:      req.Items,
		Products:   make([]productResponse, len(result.Products)),
		Subtotal:   o.Subtotal.InexactFloat64(),
		Discount:   o.Discount.InexactFloat64(),
		Total:      o.Total.InexactFloat64(),
		CouponCode: o.CouponCode,
	}
	for i, p := range result.Products {
		resp.Products[i] = h.toProductResponse(p)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// checkoutErrorResponse extends the error body with the rejection reason tag
// so the storefront UI can render a specific message.
type checkoutErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// writeCheckoutError maps checkout domain errors onto HTTP responses.
// Coupon rejections and cart problems are client errors; anything else is a
// system fault surfaced as a generic retryable error.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, order.ErrEmptyItems) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var iqErr *order.InvalidQuantityError
	if errors.As(err, &iqErr) {
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
		return
	}
	var pnfErr *order.ProductNotFoundError
	if errors.As(err, &pnfErr) {
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
		return
	}

	if rej, ok := coupon.AsRejection(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, checkoutErrorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: rejectionMessage(rej.Reason),
			Reason:  string(rej.Reason),
		})
		return
	}

	writeInternalError(w, r, err)
}

// rejectionMessage renders the shopper-facing message for a rejection tag.
func rejectionMessage(reason coupon.Reason) string {
	switch reason {
	case coupon.ReasonNotFound:
		return "coupon code is not valid"
	case coupon.ReasonExpired:
		return "coupon is expired or not yet active"
	case coupon.ReasonUsageLimit:
		return "coupon has reached its redemption limit"
	case coupon.ReasonUserLimit:
		return "you have already used this coupon"
	case coupon.ReasonBelowMinimum:
		return "order does not meet the coupon minimum"
	case coupon.ReasonNotApplicable:
		return "coupon does not apply to any item in the cart"
	default:
		return "coupon cannot be applied"
	}
}
