package sessiontoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("sessiontoken: malformed token")
	ErrInvalidSig  = errors.New("sessiontoken: invalid signature")
	ErrExpired     = errors.New("sessiontoken: token expired")
	ErrNotYetValid = errors.New("sessiontoken: token not yet valid")
	ErrAudience    = errors.New("sessiontoken: audience mismatch")
	ErrIssuer      = errors.New("sessiontoken: issuer and destination disagree")
	ErrDest        = errors.New("sessiontoken: invalid destination")
)

// Verifier validates session tokens for a single app.
type Verifier struct {
	// APIKey is the app's client ID; tokens must carry it in aud.
	APIKey string

	// APISecret is the HS256 signing key.
	APISecret string

	// Leeway for exp/nbf validation. Zero means DefaultLeeway.
	Leeway time.Duration

	// ValidShop, when set, is consulted with the dest host. Tokens for
	// hosts it rejects fail with ErrDest.
	ValidShop func(host string) bool
}

// Verify parses and validates a session token, returning its claims.
// ErrExpired is returned for otherwise-valid but stale tokens so callers
// can distinguish "re-authenticate" from "reject".
func (v *Verifier) Verify(token string) (Claims, error) {
	leeway := v.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			return []byte(v.APISecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
	)
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if err := v.validateClaims(&claims); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

func (v *Verifier) validateClaims(c *Claims) error {
	// aud must name this app.
	found := false
	for _, aud := range c.Audience {
		if aud == v.APIKey {
			found = true
			break
		}
	}
	if !found {
		return ErrAudience
	}

	shop := c.Shop()
	if shop == "" {
		return ErrDest
	}
	if v.ValidShop != nil && !v.ValidShop(shop) {
		return ErrDest
	}

	// iss is https://{shop}/admin; its host must match dest's.
	if hostOf(c.Issuer) != shop {
		return ErrIssuer
	}

	return nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	default:
		return ErrMalformed
	}
}

// DecodeUnverified extracts claims without checking the signature or
// validity window. Never trust the result for authentication; it exists
// so an expired token can still tell us which shop to redirect back into
// the authorization flow.
func DecodeUnverified(token string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, ErrMalformed
	}
	return claims, nil
}

// Sign mints a session token from claims. The platform does this in
// production; the SDK signs only for tests and local tooling.
func Sign(claims Claims, apiSecret string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(apiSecret))
}
