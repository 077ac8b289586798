package shopkit

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harborlane/shopkit/pkg/httpx"
	"github.com/harborlane/shopkit/pkg/session"
	"github.com/harborlane/shopkit/pkg/slogx"
)

// stateTTL bounds how long an authorization-code flow may stay in flight.
const stateTTL = 5 * time.Minute

// AuthBegin returns the handler that starts the authorization-code flow.
// Mount it at Config.AuthPath. It expects a ?shop= parameter, mints a
// state nonce into a signed cookie, and redirects to the shop's authorize
// endpoint.
func (a *App) AuthBegin() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := slogx.FromContext(r.Context())

		shop, err := a.SanitizeShop(r.URL.Query().Get("shop"))
		if err != nil {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid shop parameter",
			})
			return
		}

		state := uuid.NewString()
		a.setSignedCookie(w, stateCookieName, state, stateTTL)

		authorize := url.URL{
			Scheme: "https",
			Host:   shop,
			Path:   "/admin/oauth/authorize",
		}
		q := url.Values{
			"client_id":    {a.cfg.APIKey},
			"scope":        {strings.Join(session.SplitScopes(a.cfg.Scopes), ",")},
			"redirect_uri": {a.cfg.AppURL + a.cfg.CallbackPath},
			"state":        {state},
		}
		if a.cfg.UseOnlineTokens {
			q.Add("grant_options[]", "per-user")
		}
		authorize.RawQuery = q.Encode()

		log.Info("oauth begin", "shop", shop, "online", a.cfg.UseOnlineTokens)
		http.Redirect(w, r, authorize.String(), http.StatusFound)
	})
}

// AuthCallback returns the handler for the OAuth redirect back from the
// platform. Mount it at Config.CallbackPath. On success the session is
// persisted and onComplete is invoked; a nil onComplete redirects into
// the app (the embedded admin URL for embedded apps, AppURL otherwise).
func (a *App) AuthCallback(onComplete func(http.ResponseWriter, *http.Request, *session.Session)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := slogx.FromContext(r.Context())
		query := r.URL.Query()

		shop, err := a.SanitizeShop(query.Get("shop"))
		if err != nil {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid shop parameter",
			})
			return
		}

		if !verifyCallbackHMAC(query, a.cfg.APISecret) {
			log.Warn("oauth callback rejected", "shop", shop, "err", ErrInvalidHMAC)
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "hmac validation failed",
			})
			return
		}

		state, ok := a.readSignedCookie(r, stateCookieName)
		if !ok || state == "" || state != query.Get("state") {
			log.Warn("oauth callback rejected", "shop", shop, "err", ErrStateMismatch)
			httpx.WriteJSON(w, http.StatusForbidden, map[string]string{
				"error": "state validation failed",
			})
			return
		}
		a.clearCookie(w, stateCookieName)

		code := query.Get("code")
		if code == "" {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": "missing code parameter",
			})
			return
		}

		tok, err := a.exchangeCode(r.Context(), shop, code)
		if err != nil {
			log.Error("oauth code exchange failed", "shop", shop, "err", err)
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "code exchange failed",
			})
			return
		}

		sess := buildSession(shop, tok)
		if err := a.cfg.Storage.Store(r.Context(), sess); err != nil {
			log.Error("session store failed", "shop", shop, "err", err)
			httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to persist session",
			})
			return
		}

		// Non-embedded apps authenticate follow-up requests by cookie.
		if !a.cfg.Embedded {
			a.setSignedCookie(w, sessionCookieName, sess.ID, sessionCookieTTL(sess))
		}

		log.Info("oauth complete", "shop", shop, "session_id", sess.ID, "online", sess.IsOnline)

		if onComplete != nil {
			onComplete(w, r, sess)
			return
		}
		http.Redirect(w, r, a.postAuthURL(shop), http.StatusFound)
	})
}

// postAuthURL is where a freshly authorized merchant lands.
func (a *App) postAuthURL(shop string) string {
	if a.cfg.Embedded {
		return "https://" + shop + "/admin/apps/" + a.cfg.APIKey
	}
	return a.cfg.AppURL + "/?shop=" + url.QueryEscape(shop)
}

// sessionCookieTTL matches the cookie lifetime to the token's. Offline
// sessions get a long-lived cookie.
func sessionCookieTTL(sess *session.Session) time.Duration {
	if sess.Expires == nil {
		return 30 * 24 * time.Hour
	}
	return time.Until(*sess.Expires)
}
