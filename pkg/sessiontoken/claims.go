// Package sessiontoken verifies the signed tokens Harbor Commerce issues
// to embedded apps. Tokens are short-lived HS256 JWTs keyed by the app's
// API secret; the interesting claims are dest (the shop the request came
// from) and sub (the staff member using the admin).
package sessiontoken

import (
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway absorbs clock skew between the platform and app servers
// when validating exp/nbf.
const DefaultLeeway = 10 * time.Second

// Claims are the session token claims. iss is the shop admin URL
// (https://{shop}/admin) and dest the shop origin (https://{shop}); both
// must agree on the shop or the token is rejected.
type Claims struct {
	jwt.RegisteredClaims

	// Dest is the shop origin the token was issued for.
	Dest string `json:"dest,omitempty"`

	// SID identifies the admin browser session that produced the token.
	SID string `json:"sid,omitempty"`
}

// Shop returns the shop domain the token was issued for, derived from the
// dest claim. Empty when dest is missing or malformed.
func (c *Claims) Shop() string {
	return hostOf(c.Dest)
}

// UserID returns the sub claim: the ID of the staff member driving the
// admin session.
func (c *Claims) UserID() string {
	return c.Subject
}

// NewClaims builds minimally-correct claims for a shop and user. Used by
// tests and dev tooling that mint their own tokens.
func NewClaims(shop, userID, apiKey string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + shop + "/admin",
			Subject:   userID,
			Audience:  jwt.ClaimStrings{apiKey},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Dest: "https://" + shop,
	}
}

// hostOf extracts the lowercase host from an origin-style URL. Accepts a
// bare host too, the platform has emitted both forms.
func hostOf(raw string) string {
	if raw == "" {
		return ""
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Hostname())
}
