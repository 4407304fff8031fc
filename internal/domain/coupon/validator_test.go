package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	coupon        *Coupon
	findErr       error
	lookedUpCode  string
	userUsages    int
	userUsagesErr error
	applyCalls    int
	applyErr      error
	appliedUsage  *Usage
}

func (m *mockStore) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.lookedUpCode = code
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.coupon, nil
}

func (m *mockStore) CountUserUsages(_ context.Context, _, _ string) (int, error) {
	return m.userUsages, m.userUsagesErr
}

func (m *mockStore) ApplyUsage(_ context.Context, u *Usage) (bool, error) {
	m.applyCalls++
	m.appliedUsage = u
	if m.applyErr != nil {
		return false, m.applyErr
	}
	return true, nil
}

func TestValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	windowStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	beforeWindow := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	cart := []Line{
		line("paprika", "Spices", "60", 1),
		line("harissa", "Sauces", "40", 1),
	}

	tests := []struct {
		name       string
		store      *mockStore
		code       string
		userID     string
		lines      []Line
		wantAmount string
		wantErr    error
	}{
		{
			name: "valid percentage coupon",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "SAVE20",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(20),
			}},
			code:       "SAVE20",
			lines:      cart,
			wantAmount: "20",
		},
		{
			name:    "unknown code",
			store:   &mockStore{findErr: ErrNotFound},
			code:    "BOGUS",
			lines:   cart,
			wantErr: ErrNotFound,
		},
		{
			name: "expired coupon",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "OLD",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				ValidUntil: &beforeWindow,
			}},
			code:    "OLD",
			lines:   cart,
			wantErr: ErrExpired,
		},
		{
			name: "not yet started coupon",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "SOON",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				ValidFrom: &windowEnd,
			}},
			code:    "SOON",
			lines:   cart,
			wantErr: ErrExpired,
		},
		{
			name: "within validity window",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "JAN",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				ValidFrom: &windowStart, ValidUntil: &windowEnd,
			}},
			code:       "JAN",
			lines:      cart,
			wantAmount: "10",
		},
		{
			name: "global usage cap reached",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "CAPPED",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				UsageLimit: 100, UsageCount: 100,
			}},
			code:    "CAPPED",
			lines:   cart,
			wantErr: ErrUsageLimit,
		},
		{
			name: "zero usage limit means unlimited",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "FOREVER",
				DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(5),
				UsageLimit: 0, UsageCount: 9999,
			}},
			code:       "FOREVER",
			lines:      cart,
			wantAmount: "5",
		},
		{
			name: "per-user cap reached",
			store: &mockStore{
				coupon: &Coupon{
					ID: "c1", Code: "ONCE",
					DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(5),
					UserUsageLimit: 1,
				},
				userUsages: 1,
			},
			code:    "ONCE",
			userID:  "u1",
			lines:   cart,
			wantErr: ErrUserLimit,
		},
		{
			name: "guest checkout skips per-user cap",
			store: &mockStore{
				coupon: &Coupon{
					ID: "c1", Code: "ONCE",
					DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(5),
					UserUsageLimit: 1,
				},
				userUsages: 99,
			},
			code:       "ONCE",
			userID:     "",
			lines:      cart,
			wantAmount: "5",
		},
		{
			name: "below minimum order",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "BIGCART",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				MinimumOrder: decimal.NewFromInt(200),
			}},
			code:    "BIGCART",
			lines:   cart,
			wantErr: ErrBelowMinimum,
		},
		{
			name: "minimum judged against full cart, discount over applicable subset",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "SPICES10",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				MinimumOrder: decimal.NewFromInt(80),
				Categories:   []string{"Spices"},
			}},
			code:       "SPICES10",
			lines:      cart,
			wantAmount: "6",
		},
		{
			name: "no applicable lines",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "TEATIME",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				Categories:   []string{"Teas"},
			}},
			code:    "TEATIME",
			lines:   cart,
			wantErr: ErrNotApplicable,
		},
		{
			name: "corrupt allow-list fails closed as not applicable",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "BROKEN",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
				ScopeCorrupt: true,
			}},
			code:    "BROKEN",
			lines:   cart,
			wantErr: ErrNotApplicable,
		},
		{
			name: "max discount caps the amount",
			store: &mockStore{coupon: &Coupon{
				ID: "c1", Code: "SAVE20",
				DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(20),
				MaxDiscount:  decimal.NewFromInt(15),
			}},
			code:       "SAVE20",
			lines:      cart,
			wantAmount: "15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.store, decimal.RequireFromString("4.99"))
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code, tt.userID, tt.lines)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				want := decimal.RequireFromString(tt.wantAmount)
				assert.True(t, want.Equal(got.Amount),
					"expected amount %s, got %s", want, got.Amount)
			}

			// Validation must never touch the usage counter.
			assert.Zero(t, tt.store.applyCalls)
		})
	}
}

func TestValidator_CanonicalizesCode(t *testing.T) {
	store := &mockStore{coupon: &Coupon{
		ID: "c1", Code: "SAVE10",
		DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
	}}
	v := NewValidator(store, decimal.Zero)

	_, err := v.Validate(context.Background(), "  save10 ", "", []Line{
		line("paprika", "Spices", "100", 1),
	})

	require.NoError(t, err)
	assert.Equal(t, "SAVE10", store.lookedUpCode)
}

func TestValidator_Idempotent(t *testing.T) {
	store := &mockStore{coupon: &Coupon{
		ID: "c1", Code: "SAVE10",
		DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
	}}
	v := NewValidator(store, decimal.Zero)
	cart := []Line{line("paprika", "Spices", "100", 1)}

	first, err := v.Validate(context.Background(), "SAVE10", "u1", cart)
	require.NoError(t, err)
	second, err := v.Validate(context.Background(), "SAVE10", "u1", cart)
	require.NoError(t, err)

	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Zero(t, store.applyCalls)
}

func TestValidator_StoreFaultIsNotRejection(t *testing.T) {
	store := &mockStore{findErr: errors.New("connection refused")}
	v := NewValidator(store, decimal.Zero)

	_, err := v.Validate(context.Background(), "SAVE10", "", []Line{
		line("paprika", "Spices", "100", 1),
	})

	require.Error(t, err)
	_, isRejection := AsRejection(err)
	assert.False(t, isRejection)
}
