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

func TestRecorder_Apply(t *testing.T) {
	fixedNow := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := &mockStore{coupon: &Coupon{ID: "c1", Code: "SAVE10"}}

	r := NewRecorder(store)
	r.now = func() time.Time { return fixedNow }

	err := r.Apply(context.Background(), "save10", "u1", "order-1", decimal.NewFromInt(10))

	require.NoError(t, err)
	require.NotNil(t, store.appliedUsage)
	assert.Equal(t, "c1", store.appliedUsage.CouponID)
	assert.Equal(t, "u1", store.appliedUsage.UserID)
	assert.Equal(t, "order-1", store.appliedUsage.OrderID)
	assert.True(t, decimal.NewFromInt(10).Equal(store.appliedUsage.Amount))
	assert.Equal(t, fixedNow, store.appliedUsage.UsedAt)
	assert.NotEmpty(t, store.appliedUsage.ID)
	assert.Equal(t, "SAVE10", store.lookedUpCode)
}

func TestRecorder_Apply_RequiresOrderID(t *testing.T) {
	store := &mockStore{coupon: &Coupon{ID: "c1", Code: "SAVE10"}}
	r := NewRecorder(store)

	err := r.Apply(context.Background(), "SAVE10", "u1", "", decimal.NewFromInt(10))

	require.Error(t, err)
	assert.Zero(t, store.applyCalls)
}

func TestRecorder_Apply_RaceLossSurfacesUsageLimit(t *testing.T) {
	store := &mockStore{
		coupon:   &Coupon{ID: "c1", Code: "SAVE10"},
		applyErr: ErrUsageLimit,
	}
	r := NewRecorder(store)

	err := r.Apply(context.Background(), "SAVE10", "u1", "order-1", decimal.NewFromInt(10))

	require.ErrorIs(t, err, ErrUsageLimit)
}

func TestRecorder_Apply_CouponGone(t *testing.T) {
	store := &mockStore{findErr: ErrNotFound}
	r := NewRecorder(store)

	err := r.Apply(context.Background(), "SAVE10", "u1", "order-1", decimal.NewFromInt(10))

	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.applyCalls)
}

func TestRecorder_Apply_StoreFaultWrapped(t *testing.T) {
	store := &mockStore{
		coupon:   &Coupon{ID: "c1", Code: "SAVE10"},
		applyErr: errors.New("connection refused"),
	}
	r := NewRecorder(store)

	err := r.Apply(context.Background(), "SAVE10", "u1", "order-1", decimal.NewFromInt(10))

	require.Error(t, err)
	_, isRejection := AsRejection(err)
	assert.False(t, isRejection)
	assert.Contains(t, err.Error(), "apply usage")
}
