package security

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a short stable digest of a raw token. Audit logs and
// cache keys carry fingerprints only; raw tokens never leave the store.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// AccessTokenClaims is the subset of the provider's JWT the bridge inspects
// locally. The provider verifies signatures server-side on every call; the
// client only reads subject and expiry for scheduling decisions.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
}

var ErrMalformedToken = errors.New("malformed access token")

// InspectAccessToken decodes a provider access token without signature
// verification. Never use the result for authorization decisions.
func InspectAccessToken(raw string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// ExpiresWithin reports whether the token expires before now+window.
// Tokens without an exp claim are treated as already expiring.
func (c *AccessTokenClaims) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return c.ExpiresAt.Time.Before(now.Add(window))
}
