// Package coupon implements the storefront coupon engine: applicability
// resolution, discount calculation, validation sequencing, and usage
// recording. The engine is stateless; durable state lives behind Store.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the
	// applicable subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the
	// applicable subtotal.
	DiscountFixed DiscountType = "fixed_amount"
	// DiscountFreeShipping waives the shipping fee. The fee amount comes
	// from the caller's shipping policy, never from the coupon record.
	DiscountFreeShipping DiscountType = "free_shipping"
)

// Reason tags a validation rejection so callers can render a specific,
// actionable message. Rejections are expected shopper outcomes, not faults.
type Reason string

const (
	ReasonNotFound      Reason = "NOT_FOUND"
	ReasonExpired       Reason = "EXPIRED_OR_NOT_STARTED"
	ReasonUsageLimit    Reason = "USAGE_LIMIT_EXCEEDED"
	ReasonUserLimit     Reason = "USER_LIMIT_EXCEEDED"
	ReasonBelowMinimum  Reason = "BELOW_MINIMUM"
	ReasonNotApplicable Reason = "NOT_APPLICABLE"
)

// RejectionError is a validation rejection carrying its Reason tag.
// Any other error returned by the engine is a system fault and must not be
// surfaced to shoppers as a coupon problem.
type RejectionError struct {
	Reason Reason
}

func (e *RejectionError) Error() string {
	return "coupon rejected: " + string(e.Reason)
}

// Sentinel rejections, one per reason. Compare with errors.Is.
var (
	ErrNotFound      = &RejectionError{Reason: ReasonNotFound}
	ErrExpired       = &RejectionError{Reason: ReasonExpired}
	ErrUsageLimit    = &RejectionError{Reason: ReasonUsageLimit}
	ErrUserLimit     = &RejectionError{Reason: ReasonUserLimit}
	ErrBelowMinimum  = &RejectionError{Reason: ReasonBelowMinimum}
	ErrNotApplicable = &RejectionError{Reason: ReasonNotApplicable}
)

// AsRejection unwraps err into a RejectionError if it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Coupon is a shopper-facing discount definition. Zero values of the
// optional numeric constraints mean "not set": no minimum, no cap, no limit.
type Coupon struct {
	ID             string
	Code           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	MinimumOrder   decimal.Decimal
	MaxDiscount    decimal.Decimal
	UsageLimit     int
	UsageCount     int
	UserUsageLimit int
	// Categories and Products are allow-lists. When both are empty the
	// coupon applies to the entire cart.
	Categories []string
	Products   []string
	// ScopeCorrupt marks a coupon whose stored allow-lists could not be
	// decoded. The engine fails closed: such a coupon applies to no lines,
	// rather than aborting checkout.
	ScopeCorrupt bool
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanonicalCode normalizes a shopper-entered code for lookup and storage.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckDefinition validates a coupon definition before it is persisted.
// It enforces the admin-side invariants; runtime checks live in Validator.
func (c *Coupon) CheckDefinition() error {
	if CanonicalCode(c.Code) == "" {
		return errors.New("code is required")
	}
	switch c.DiscountType {
	case DiscountPercentage:
		if c.DiscountValue.LessThanOrEqual(decimal.Zero) || c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("percentage value must be in (0, 100]")
		}
	case DiscountFixed:
		if c.DiscountValue.LessThanOrEqual(decimal.Zero) {
			return errors.New("fixed amount must be positive")
		}
	case DiscountFreeShipping:
		// Value is ignored for free shipping.
	default:
		return errors.Errorf("unknown discount type %q", c.DiscountType)
	}
	if c.MinimumOrder.IsNegative() || c.MaxDiscount.IsNegative() {
		return errors.New("monetary constraints must not be negative")
	}
	if c.UsageLimit < 0 || c.UserUsageLimit < 0 {
		return errors.New("usage limits must not be negative")
	}
	if c.ValidFrom != nil && c.ValidUntil != nil && c.ValidFrom.After(*c.ValidUntil) {
		return errors.New("valid_from must not be after valid_until")
	}
	return nil
}

// Usage is an immutable redemption receipt. Exactly one is written per
// successful order that redeemed a coupon.
type Usage struct {
	ID       string
	CouponID string
	// UserID is empty for guest checkouts.
	UserID  string
	OrderID string
	Amount  decimal.Decimal
	UsedAt  time.Time
}

// Line is a cart line snapshot at validation time. Category is denormalized
// from the catalog so applicability never needs a product lookup.
type Line struct {
	ProductID string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Discount is the outcome of a successful validation.
type Discount struct {
	Type   DiscountType
	Value  decimal.Decimal
	Amount decimal.Decimal
}

// Store is the engine-facing record store.
type Store interface {
	// FindByCode returns the coupon for a canonicalized code. Absent,
	// inactive, and soft-deleted coupons all yield ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CountUserUsages returns how many receipts the given user holds for
	// the coupon.
	CountUserUsages(ctx context.Context, couponID, userID string) (int, error)
	// ApplyUsage records a redemption as one transactional unit: if a
	// receipt for u.OrderID already exists it returns (false, nil); the
	// usage counter increment is conditional on the usage limit and a
	// failed guard returns ErrUsageLimit. This is the only sanctioned
	// mutation path for usage counters.
	ApplyUsage(ctx context.Context, u *Usage) (applied bool, err error)
}

// AdminStore provides back-office CRUD over coupon definitions. It is not
// part of the validation engine proper.
type AdminStore interface {
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	// Delete soft-deletes: historical receipts keep referencing the row.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context) ([]Stats, error)
}

// Stats is a coupon joined with its aggregate redemption data for admin
// display.
type Stats struct {
	Coupon
	Redemptions     int
	TotalDiscounted decimal.Decimal
}

// ErrCouponExists is returned by AdminStore.Create when the canonical code
// is already taken.
var ErrCouponExists = errors.New("coupon code already exists")
