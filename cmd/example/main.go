// Command example is a minimal Harbor Commerce app built on the SDK:
// OAuth install flow, session-token authentication for the embedded
// admin, a webhook endpoint, and one API route that calls the Admin API
// with the request's session.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/harborlane/shopkit/pkg/httpx"
	"github.com/harborlane/shopkit/pkg/session/sqlitestore"
	"github.com/harborlane/shopkit/pkg/shopkit"
	"github.com/harborlane/shopkit/pkg/slogx"
	"github.com/harborlane/shopkit/pkg/webhook"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("example app: %v", err)
	}
}

func run() error {
	logger := slogx.New(slogx.Config{
		App:     "shopkit-example",
		Env:     os.Getenv("APP_ENV"),
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
		Default: true,
	})

	cfg, err := shopkit.ConfigFromEnv()
	if err != nil {
		return err
	}

	dsn := os.Getenv("SESSION_DB")
	if dsn == "" {
		dsn = "file:sessions.db?_pragma=journal_mode(WAL)"
	}
	store, err := sqlitestore.New(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg.Storage = store
	cfg.Logger = logger

	app, err := shopkit.New(cfg)
	if err != nil {
		return err
	}

	hooks := webhook.NewRegistry(cfg.APISecret, logger)
	hooks.On("app/uninstalled", func(ctx context.Context, d *webhook.Delivery) error {
		logger.Info("app uninstalled, dropping sessions", "shop", d.Shop)
		sessions, err := store.FindByShop(ctx, d.Shop)
		if err != nil {
			return err
		}
		ids := make([]string, len(sessions))
		for i, s := range sessions {
			ids[i] = s.ID
		}
		return store.DeleteMany(ctx, ids)
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.AuthPath, app.AuthBegin())
	mux.Handle(cfg.CallbackPath, app.AuthCallback(nil))
	mux.Handle("/webhooks", hooks.HTTPHandler())
	mux.Handle("/api/shop", app.RequireSession(http.HandlerFunc(shopInfo(app))))

	handler := httpx.Chain(mux, slogx.HTTPMiddleware(logger))

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("example app listening", "addr", addr, "embedded", cfg.Embedded)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}

// shopInfo proxies a shop query through the Admin API using the
// authenticated session.
func shopInfo(app *shopkit.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := shopkit.SessionFromContext(r.Context())

		var out struct {
			Shop map[string]any `json:"shop"`
		}
		if err := app.Admin(sess).Get(r.Context(), "shop", &out, nil); err != nil {
			slogx.FromContext(r.Context()).Error("shop query failed", "err", err)
			httpx.WriteJSON(w, http.StatusBadGateway, map[string]string{
				"error": "admin api unavailable",
			})
			return
		}

		httpx.WriteJSON(w, http.StatusOK, out.Shop)
	}
}
