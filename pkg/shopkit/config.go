package shopkit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v10"

	"github.com/harborlane/shopkit/pkg/session"
)

// Config describes one Harbor Commerce app. The env tags let apps load
// everything from the environment; Storage and Logger are wired in code.
type Config struct {
	// APIKey is the app's client ID from the partner dashboard.
	APIKey string `env:"HARBOR_API_KEY"`

	// APISecret signs session tokens, OAuth callbacks, webhooks and the
	// SDK's own cookies. Never expose it to the browser.
	APISecret string `env:"HARBOR_API_SECRET"`

	// Scopes is the comma-delimited access scopes the app requires,
	// e.g. "read_orders,write_products".
	Scopes string `env:"HARBOR_SCOPES"`

	// AppURL is the app's public origin, e.g. "https://app.example.com".
	AppURL string `env:"HARBOR_APP_URL"`

	// APIVersion selects the Admin API version for clients.
	APIVersion string `env:"HARBOR_API_VERSION" envDefault:"2025-07"`

	// Embedded marks apps that render inside the admin iframe and
	// authenticate with session tokens.
	Embedded bool `env:"HARBOR_EMBEDDED" envDefault:"true"`

	// UseOnlineTokens requests per-user tokens instead of shop-wide
	// offline tokens.
	UseOnlineTokens bool `env:"HARBOR_ONLINE_TOKENS"`

	// UseTokenExchange lets embedded apps trade a session token for an
	// access token directly, skipping the redirect dance.
	UseTokenExchange bool `env:"HARBOR_TOKEN_EXCHANGE" envDefault:"true"`

	// ShopSuffix is the domain suffix shops live under.
	ShopSuffix string `env:"HARBOR_SHOP_SUFFIX" envDefault:"harborshop.com"`

	// AuthPath and CallbackPath are where the app mounts the OAuth
	// handlers, relative to AppURL.
	AuthPath     string `env:"HARBOR_AUTH_PATH" envDefault:"/auth"`
	CallbackPath string `env:"HARBOR_AUTH_CALLBACK_PATH" envDefault:"/auth/callback"`

	// Storage persists sessions. Required.
	Storage session.Storage `env:"-"`

	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger `env:"-"`
}

// ConfigFromEnv loads a Config from environment variables. Storage and
// Logger still have to be set by the caller before New.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("shopkit: parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields New depends on.
func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("shopkit: config missing APIKey")
	case c.APISecret == "":
		return fmt.Errorf("shopkit: config missing APISecret")
	case c.AppURL == "":
		return fmt.Errorf("shopkit: config missing AppURL")
	case !strings.HasPrefix(c.AppURL, "https://") && !strings.HasPrefix(c.AppURL, "http://"):
		return fmt.Errorf("shopkit: AppURL must be an origin, got %q", c.AppURL)
	case c.Storage == nil:
		return fmt.Errorf("shopkit: config missing Storage")
	}
	return nil
}

// sessionIDFor picks the deterministic session ID the current token mode
// implies for a shop/user pair.
func (c *Config) sessionIDFor(shop string, userID int64) string {
	if c.UseOnlineTokens {
		return session.OnlineID(shop, userID)
	}
	return session.OfflineID(shop)
}
