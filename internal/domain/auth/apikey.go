// Package auth holds API key identity for the HTTP surface.
package auth

import "context"

// Scopes granted to API keys.
const (
	// ScopePlaceOrders allows checkout preview and order placement.
	ScopePlaceOrders = "place_orders"
	// ScopeManageCoupons allows the admin coupon CRUD surface.
	ScopeManageCoupons = "manage_coupons"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of active API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
