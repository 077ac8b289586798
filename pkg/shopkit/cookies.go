package shopkit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Cookie names the SDK owns.
const (
	stateCookieName   = "harbor_oauth_state"
	sessionCookieName = "harbor_app_session"
)

// cookieKey derives a dedicated cookie-signing key from the API secret so
// cookie signatures can never be replayed against other HMAC surfaces
// (callback digests, webhooks) that share the secret.
func cookieKey(apiSecret string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(apiSecret), nil, []byte("harbor-cookie-signing"))

	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("shopkit: derive cookie key: %w", err)
	}
	return key, nil
}

func signCookieValue(key []byte, value string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	return value + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func verifyCookieValue(key []byte, signed string) (string, bool) {
	idx := strings.LastIndexByte(signed, '.')
	if idx <= 0 {
		return "", false
	}
	value, sigPart := signed[:idx], signed[idx+1:]

	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return "", false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return "", false
	}
	return value, true
}

// setSignedCookie writes a signed, HttpOnly cookie scoped to the app.
func (a *App) setSignedCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    signCookieValue(a.cookieSigningKey, value),
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   strings.HasPrefix(a.cfg.AppURL, "https://"),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// readSignedCookie returns the verified value of a signed cookie, or
// false when the cookie is absent or its signature does not check out.
func (a *App) readSignedCookie(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	return verifyCookieValue(a.cookieSigningKey, c.Value)
}

// clearCookie expires a cookie immediately.
func (a *App) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
