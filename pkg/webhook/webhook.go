// Package webhook receives and verifies Harbor Commerce webhook
// deliveries. The platform signs each delivery body with the app's API
// secret; unsigned or mis-signed deliveries must be rejected before any
// payload parsing.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Delivery headers set by the platform.
const (
	HeaderHMAC      = "X-Harbor-Hmac-SHA256"
	HeaderTopic     = "X-Harbor-Topic"
	HeaderShop      = "X-Harbor-Shop-Domain"
	HeaderWebhookID = "X-Harbor-Webhook-Id"
	HeaderAPIVer    = "X-Harbor-API-Version"
	HeaderTriggered = "X-Harbor-Triggered-At"
)

var (
	ErrInvalidDigest = errors.New("webhook: digest validation failed")
	ErrUnknownTopic  = errors.New("webhook: no handler for topic")
)

// maxBodyBytes caps delivery payloads. The platform's own limit is well
// below this.
const maxBodyBytes = 1 << 20

// Delivery is one verified webhook delivery.
type Delivery struct {
	// Topic, e.g. "orders/create" or "app/uninstalled".
	Topic string

	// Shop is the originating shop domain.
	Shop string

	// ID is the platform's delivery ID, stable across redelivery
	// attempts of the same event.
	ID string

	// APIVersion the payload was serialized with.
	APIVersion string

	// TriggeredAt is when the event fired, zero when the header is
	// absent or unparseable.
	TriggeredAt time.Time

	// Body is the raw, verified JSON payload.
	Body []byte
}

// Handler processes one delivery. Returning an error makes the HTTP
// endpoint answer 500 so the platform redelivers.
type Handler func(ctx context.Context, d *Delivery) error

// Registry verifies deliveries and dispatches them by topic.
type Registry struct {
	secret string
	log    *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry builds a registry verifying with the app's API secret. A
// nil logger falls back to slog.Default.
func NewRegistry(apiSecret string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		secret:   apiSecret,
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// On registers the handler for a topic, replacing any previous one.
func (reg *Registry) On(topic string, h Handler) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.handlers[topic] = h
}

// handlerFor returns the registered handler for topic.
func (reg *Registry) handlerFor(topic string) (Handler, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	h, ok := reg.handlers[topic]
	return h, ok
}

// VerifyDigest checks the base64 HMAC-SHA256 digest the platform sends
// against the raw body.
func VerifyDigest(body []byte, digest, apiSecret string) bool {
	want, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Parse reads and verifies a delivery from an incoming request. The body
// is consumed. ErrInvalidDigest means the request did not come from the
// platform; ErrUnknownTopic is never returned here, only by dispatch.
func (reg *Registry) Parse(r *http.Request) (*Delivery, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if !VerifyDigest(body, r.Header.Get(HeaderHMAC), reg.secret) {
		return nil, ErrInvalidDigest
	}

	d := &Delivery{
		Topic:      r.Header.Get(HeaderTopic),
		Shop:       r.Header.Get(HeaderShop),
		ID:         r.Header.Get(HeaderWebhookID),
		APIVersion: r.Header.Get(HeaderAPIVer),
		Body:       body,
	}
	if ts := r.Header.Get(HeaderTriggered); ts != "" {
		if at, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			d.TriggeredAt = at
		}
	}

	return d, nil
}

// Dispatch routes a verified delivery to its topic handler.
func (reg *Registry) Dispatch(ctx context.Context, d *Delivery) error {
	h, ok := reg.handlerFor(d.Topic)
	if !ok {
		return ErrUnknownTopic
	}
	return h(ctx, d)
}

// HTTPHandler returns the endpoint to mount at the app's webhook path.
// Responses: 401 for a bad digest, 404 for an unregistered topic, 500
// when the handler errors (the platform retries those), 200 otherwise.
func (reg *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := reg.Parse(r)
		if err != nil {
			reg.log.Warn("webhook rejected", "err", err)
			http.Error(w, "digest validation failed", http.StatusUnauthorized)
			return
		}

		err = reg.Dispatch(r.Context(), d)
		switch {
		case errors.Is(err, ErrUnknownTopic):
			reg.log.Warn("webhook for unregistered topic", "topic", d.Topic, "shop", d.Shop)
			http.Error(w, "unknown topic", http.StatusNotFound)
		case err != nil:
			reg.log.Error("webhook handler failed", "topic", d.Topic, "shop", d.Shop, "err", err)
			http.Error(w, "handler failed", http.StatusInternalServerError)
		default:
			reg.log.Debug("webhook handled", "topic", d.Topic, "shop", d.Shop, "id", d.ID)
			w.WriteHeader(http.StatusOK)
		}
	})
}
