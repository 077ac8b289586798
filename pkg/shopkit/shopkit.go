// Package shopkit is the core of the Harbor Commerce app SDK: it decides
// how an incoming request authenticates (session token or cookie, online
// or offline token), runs the OAuth flows against the platform, and keeps
// the resulting sessions in the app-supplied storage.
package shopkit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/harborlane/shopkit/pkg/admin"
	"github.com/harborlane/shopkit/pkg/session"
	"github.com/harborlane/shopkit/pkg/sessiontoken"
)

// App is one configured Harbor app. Construct it once at startup and
// mount its handlers; all methods are safe for concurrent use.
type App struct {
	cfg Config
	log *slog.Logger

	httpClient       *http.Client
	verifier         *sessiontoken.Verifier
	cookieSigningKey []byte
}

// New validates cfg and builds an App.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	key, err := cookieKey(cfg.APISecret)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cookieSigningKey: key,
	}
	a.verifier = &sessiontoken.Verifier{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		ValidShop: a.ValidShopHost,
	}

	return a, nil
}

// Config returns a copy of the app configuration.
func (a *App) Config() Config { return a.cfg }

// Sessions exposes the configured session storage.
func (a *App) Sessions() session.Storage { return a.cfg.Storage }

// VerifySessionToken validates an embedded-app session token.
func (a *App) VerifySessionToken(token string) (sessiontoken.Claims, error) {
	return a.verifier.Verify(token)
}

// Admin returns an Admin API client bound to the session's shop and
// access token.
func (a *App) Admin(sess *session.Session) *admin.Client {
	return admin.NewClient(sess.Shop, sess.AccessToken, admin.Options{
		Version:    a.cfg.APIVersion,
		HTTPClient: a.httpClient,
		Logger:     a.log,
	})
}
