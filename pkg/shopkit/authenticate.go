package shopkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/harborlane/shopkit/pkg/httpx"
	"github.com/harborlane/shopkit/pkg/session"
	"github.com/harborlane/shopkit/pkg/sessiontoken"
	"github.com/harborlane/shopkit/pkg/slogx"
)

// ReauthorizeHeader tells an embedded app's frontend where to restart
// authorization when a fetch request comes back 401.
const ReauthorizeHeader = "X-Harbor-Reauthorize-Url"

type sessionCtxKey struct{}

// SessionFromContext returns the session RequireSession attached.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(*session.Session)
	return s, ok
}

// AuthenticateRequest resolves the session for an incoming admin request.
// Embedded apps present a session token (Authorization header or id_token
// query parameter); non-embedded apps present the signed session cookie.
// The error reports why authentication failed so callers can pick the
// right re-auth response; RequireSession does this automatically.
func (a *App) AuthenticateRequest(r *http.Request) (*session.Session, error) {
	if a.cfg.Embedded {
		return a.authenticateEmbedded(r)
	}
	return a.authenticateCookie(r)
}

func (a *App) authenticateEmbedded(r *http.Request) (*session.Session, error) {
	raw := sessionTokenFrom(r)
	if raw == "" {
		return nil, ErrNoSessionToken
	}

	claims, err := a.verifier.Verify(raw)
	if err != nil {
		return nil, fmt.Errorf("shopkit: session token rejected: %w", err)
	}

	shop := claims.Shop()

	var userID int64
	if a.cfg.UseOnlineTokens {
		userID, err = strconv.ParseInt(claims.UserID(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token sub %q is not a user id", ErrSessionInvalid, claims.UserID())
		}
	}

	sess, err := a.cfg.Storage.Load(r.Context(), a.cfg.sessionIDFor(shop, userID))
	switch {
	case errors.Is(err, session.ErrNotFound):
		return a.refreshViaExchange(r.Context(), raw, shop)
	case err != nil:
		return nil, fmt.Errorf("shopkit: load session: %w", err)
	}

	if !sess.Active(a.cfg.Scopes) {
		// Stored token is stale or the app's scopes grew since install.
		return a.refreshViaExchange(r.Context(), raw, shop)
	}

	return sess, nil
}

// refreshViaExchange tries the token-exchange fast path before giving up
// and forcing a redirect flow.
func (a *App) refreshViaExchange(ctx context.Context, sessionToken, shop string) (*session.Session, error) {
	if !a.cfg.UseTokenExchange {
		return nil, fmt.Errorf("%w: no usable session for %s", ErrSessionInvalid, shop)
	}

	sess, err := a.ExchangeSessionToken(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("shopkit: token exchange: %w", err)
	}
	return sess, nil
}

func (a *App) authenticateCookie(r *http.Request) (*session.Session, error) {
	id, ok := a.readSignedCookie(r, sessionCookieName)
	if !ok || id == "" {
		return nil, ErrNoSessionCookie
	}

	sess, err := a.cfg.Storage.Load(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNoSessionCookie
	}
	if err != nil {
		return nil, fmt.Errorf("shopkit: load session: %w", err)
	}

	if !sess.Active(a.cfg.Scopes) {
		return nil, fmt.Errorf("%w: session %s", ErrSessionInvalid, sess.ID)
	}

	return sess, nil
}

// RequireSession wraps next so it only runs with a valid session in the
// request context. Failed authentication triggers the re-auth response:
// a 302 to the auth path for document requests, a 401 with the
// ReauthorizeHeader for XHR/fetch requests.
func (a *App) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := slogx.FromContext(r.Context())

		sess, err := a.AuthenticateRequest(r)
		if err != nil {
			log.Info("request not authenticated", "err", err)
			a.redirectToAuth(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// redirectToAuth sends the client back into the authorization flow.
func (a *App) redirectToAuth(w http.ResponseWriter, r *http.Request) {
	shop := a.shopFromRequest(r)

	authURL := a.cfg.AppURL + a.cfg.AuthPath
	if shop != "" {
		authURL += "?shop=" + url.QueryEscape(shop)
	}

	if httpx.IsDataRequest(r) {
		// The iframe cannot follow a top-level redirect from a fetch;
		// hand the URL to the frontend instead.
		w.Header().Set(ReauthorizeHeader, authURL)
		w.Header().Set("Access-Control-Expose-Headers", ReauthorizeHeader)
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "re-authorization required",
		})
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// shopFromRequest recovers the shop domain from whatever the request
// carries: an (even expired) session token, or a shop query parameter.
func (a *App) shopFromRequest(r *http.Request) string {
	if raw := sessionTokenFrom(r); raw != "" {
		// Unverified decode on purpose: an expired token still names
		// the shop that needs to re-authorize.
		if claims, err := sessiontoken.DecodeUnverified(raw); err == nil {
			if shop := claims.Shop(); a.ValidShopHost(shop) {
				return shop
			}
		}
	}

	if shop, err := a.SanitizeShop(r.URL.Query().Get("shop")); err == nil {
		return shop
	}
	return ""
}

// sessionTokenFrom extracts the raw session token from the Authorization
// header or the id_token query parameter.
func sessionTokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("id_token")
}
