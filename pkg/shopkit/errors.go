package shopkit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidShop reports a shop parameter that is not a shop domain
	// under the configured suffix.
	ErrInvalidShop = errors.New("shopkit: invalid shop domain")

	// ErrInvalidHMAC reports an OAuth callback whose query digest does
	// not match the API secret.
	ErrInvalidHMAC = errors.New("shopkit: callback hmac mismatch")

	// ErrStateMismatch reports a callback whose state does not match
	// the value minted at the start of the flow.
	ErrStateMismatch = errors.New("shopkit: oauth state mismatch")

	// ErrNoSessionCookie reports a non-embedded request without a valid
	// signed session cookie.
	ErrNoSessionCookie = errors.New("shopkit: session cookie missing or invalid")

	// ErrNoSessionToken reports an embedded request that carried no
	// session token in the Authorization header or id_token parameter.
	ErrNoSessionToken = errors.New("shopkit: session token missing")

	// ErrSessionInvalid reports a stored session that exists but cannot
	// authenticate the request (expired token or scope drift).
	ErrSessionInvalid = errors.New("shopkit: stored session is not usable")
)

// OAuthError is the platform's error body from the access token endpoint,
// shaped after RFC 6749.
type OAuthError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("shopkit: oauth error %q (http %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("shopkit: oauth error %q: %s", e.Code, e.Description)
}
