// Package admin provides typed clients for the Harbor Commerce Admin
// API: a REST client for resource endpoints and a GraphQL client for the
// query API. Both respect the platform's per-shop leaky-bucket rate
// limit client-side and retry throttled requests.
package admin

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// AccessTokenHeader carries the session's access token on every call.
const AccessTokenHeader = "X-Harbor-Access-Token"

// The platform refills each shop's REST bucket at 2 requests/second with
// a burst capacity of 40. Mirroring it client-side turns most 429s into
// short local waits.
const (
	bucketRefillPerSecond = 2
	bucketCapacity        = 40
)

// DefaultMaxTries bounds retries for throttled or failing requests.
const DefaultMaxTries = 3

// Options tune a Client. The zero value is usable.
type Options struct {
	// Version is the Admin API version, e.g. "2025-07".
	Version string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// MaxTries defaults to DefaultMaxTries. One means no retries.
	MaxTries int

	// Limiter overrides the built-in per-client leaky bucket. Share one
	// limiter across clients hitting the same shop.
	Limiter *rate.Limiter
}

// Client calls the Admin API of one shop with one access token.
type Client struct {
	shop    string
	token   string
	version string

	http     *http.Client
	log      *slog.Logger
	maxTries int
	limiter  *rate.Limiter
}

// NewClient builds a client for a shop's Admin API.
func NewClient(shop, accessToken string, opts Options) *Client {
	c := &Client{
		shop:     shop,
		token:    accessToken,
		version:  opts.Version,
		http:     opts.HTTPClient,
		log:      opts.Logger,
		maxTries: opts.MaxTries,
		limiter:  opts.Limiter,
	}

	if c.version == "" {
		c.version = "2025-07"
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.maxTries <= 0 {
		c.maxTries = DefaultMaxTries
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(bucketRefillPerSecond), bucketCapacity)
	}

	return c
}

// Shop returns the shop domain this client is bound to.
func (c *Client) Shop() string { return c.shop }

func (c *Client) baseURL() string {
	return "https://" + c.shop + "/admin/api/" + c.version
}
