package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/spicekart/coupon-service/internal/domain/auth"
)

// apiKeyHeader carries the caller's API key, matching the storefront's
// existing client convention.
const apiKeyHeader = "api_key"

// Security authenticates requests via HMAC-SHA256 hashed API keys and
// enforces per-route scopes.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security gate with the given API key repository and
// HMAC pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

type apiKeyCtx struct{}

// KeyFromContext returns the authenticated API key info, if any.
func KeyFromContext(ctx context.Context) *auth.APIKeyInfo {
	info, _ := ctx.Value(apiKeyCtx{}).(*auth.APIKeyInfo)
	return info
}

// RequireScope returns a middleware that authenticates the request's API key
// and verifies it grants the given scope.
func (s *Security) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			info, ok := s.authenticate(r.Context(), key)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "missing scope "+scope)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyCtx{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate hashes the presented key with the server pepper, looks it up,
// and compares in constant time to guard against timing side-channels.
func (s *Security) authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, bool) {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := s.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return nil, false
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, false
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, false
	}
	return info, true
}
