package shopkit

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harborlane/shopkit/pkg/session"
)

// stateCookie mints the signed state cookie AuthBegin would have set.
func stateCookie(t *testing.T, a *App, state string) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	a.setSignedCookie(rec, stateCookieName, state, time.Minute)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestAuthBegin(t *testing.T) {
	a := newTestApp(t, nil)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth?shop=demo", nil)
	a.AuthBegin().ServeHTTP(rec, r)

	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "https", loc.Scheme)
	require.Equal(t, testShop, loc.Host)
	require.Equal(t, "/admin/oauth/authorize", loc.Path)

	q := loc.Query()
	require.Equal(t, testAPIKey, q.Get("client_id"))
	require.Equal(t, "read_products,write_orders", q.Get("scope"))
	require.Equal(t, "https://app.example.com/auth/callback", q.Get("redirect_uri"))
	require.Empty(t, q.Get("grant_options[]"))

	// The state in the URL must match the one in the signed cookie.
	state := q.Get("state")
	require.NotEmpty(t, state)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	cookieState, ok := a.readSignedCookie(req, stateCookieName)
	require.True(t, ok)
	require.Equal(t, state, cookieState)
}

func TestAuthBeginOnlineTokens(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.UseOnlineTokens = true })

	rec := httptest.NewRecorder()
	a.AuthBegin().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth?shop=demo", nil))

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "per-user", loc.Query().Get("grant_options[]"))
}

func TestAuthBeginRejectsBadShop(t *testing.T) {
	a := newTestApp(t, nil)

	for _, target := range []string{"/auth", "/auth?shop=evil.com"} {
		rec := httptest.NewRecorder()
		a.AuthBegin().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

// callbackRequest builds a correctly signed OAuth callback carrying the
// signed state cookie.
func callbackRequest(t *testing.T, a *App, state string) *http.Request {
	t.Helper()

	q := url.Values{
		"shop":      {testShop},
		"code":      {"authcode123"},
		"state":     {state},
		"timestamp": {"1756100000"},
	}
	q = signedCallbackQuery(q, testAPISecret)

	r := httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil)
	r.AddCookie(stateCookie(t, a, state))
	return r
}

func TestAuthCallbackOffline(t *testing.T) {
	a := newTestApp(t, nil)

	fakePlatform(t, a, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/admin/oauth/access_token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, testAPIKey, r.PostForm.Get("client_id"))
		require.Equal(t, testAPISecret, r.PostForm.Get("client_secret"))
		require.Equal(t, "authcode123", r.PostForm.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"shpat_offline","scope":"read_products,write_orders"}`))
	})

	rec := httptest.NewRecorder()
	a.AuthCallback(nil).ServeHTTP(rec, callbackRequest(t, a, "nonce-1"))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://"+testShop+"/admin/apps/"+testAPIKey, rec.Header().Get("Location"))

	sess, err := a.Sessions().Load(t.Context(), session.OfflineID(testShop))
	require.NoError(t, err)
	require.Equal(t, "shpat_offline", sess.AccessToken)
	require.False(t, sess.IsOnline)
	require.Nil(t, sess.Expires)
}

func TestAuthCallbackOnline(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.UseOnlineTokens = true })

	fakePlatform(t, a, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "shpat_online",
			"scope": "read_products,write_orders",
			"expires_in": 86399,
			"associated_user_scope": "read_products",
			"associated_user": {
				"id": 4321,
				"first_name": "Ada",
				"last_name": "Nguyen",
				"email": "ada@example.com",
				"email_verified": true,
				"account_owner": true,
				"locale": "en-AU"
			}
		}`))
	})

	rec := httptest.NewRecorder()
	a.AuthCallback(nil).ServeHTTP(rec, callbackRequest(t, a, "nonce-2"))
	require.Equal(t, http.StatusFound, rec.Code)

	sess, err := a.Sessions().Load(t.Context(), session.OnlineID(testShop, 4321))
	require.NoError(t, err)
	require.True(t, sess.IsOnline)
	require.NotNil(t, sess.Expires)
	require.NotNil(t, sess.User)
	require.Equal(t, int64(4321), sess.User.ID)
	require.Equal(t, "read_products", sess.User.Scope)
}

func TestAuthCallbackOnComplete(t *testing.T) {
	a := newTestApp(t, nil)
	fakePlatform(t, a, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"shpat_x","scope":"read_products"}`))
	})

	var completed *session.Session
	handler := a.AuthCallback(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		completed = s
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, callbackRequest(t, a, "nonce-3"))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, completed)
	require.Equal(t, testShop, completed.Shop)
}

func TestAuthCallbackRejections(t *testing.T) {
	t.Run("bad hmac", func(t *testing.T) {
		a := newTestApp(t, nil)

		q := url.Values{"shop": {testShop}, "code": {"x"}, "state": {"n"}, "hmac": {"deadbeef"}}
		r := httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil)
		r.AddCookie(stateCookie(t, a, "n"))

		rec := httptest.NewRecorder()
		a.AuthCallback(nil).ServeHTTP(rec, r)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("state mismatch", func(t *testing.T) {
		a := newTestApp(t, nil)

		q := signedCallbackQuery(url.Values{
			"shop": {testShop}, "code": {"x"}, "state": {"from-query"},
		}, testAPISecret)
		r := httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil)
		r.AddCookie(stateCookie(t, a, "from-cookie"))

		rec := httptest.NewRecorder()
		a.AuthCallback(nil).ServeHTTP(rec, r)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing state cookie", func(t *testing.T) {
		a := newTestApp(t, nil)

		q := signedCallbackQuery(url.Values{
			"shop": {testShop}, "code": {"x"}, "state": {"n"},
		}, testAPISecret)
		rec := httptest.NewRecorder()
		a.AuthCallback(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		a := newTestApp(t, nil)

		q := signedCallbackQuery(url.Values{
			"shop": {testShop}, "state": {"n"},
		}, testAPISecret)
		r := httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil)
		r.AddCookie(stateCookie(t, a, "n"))

		rec := httptest.NewRecorder()
		a.AuthCallback(nil).ServeHTTP(rec, r)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("platform rejects code", func(t *testing.T) {
		a := newTestApp(t, nil)
		fakePlatform(t, a, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
		})

		rec := httptest.NewRecorder()
		a.AuthCallback(nil).ServeHTTP(rec, callbackRequest(t, a, "nonce-4"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthCallbackNonEmbeddedSetsSessionCookie(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.Embedded = false })
	fakePlatform(t, a, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"shpat_x","scope":"read_products"}`))
	})

	rec := httptest.NewRecorder()
	a.AuthCallback(nil).ServeHTTP(rec, callbackRequest(t, a, "nonce-5"))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://app.example.com/?shop="+url.QueryEscape(testShop), rec.Header().Get("Location"))

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			found = true
		}
	}
	require.True(t, found, "session cookie not set")
}
