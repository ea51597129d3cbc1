package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/cart"
	"github.com/xenking/storefront-checkout/internal/checkout"
	"github.com/xenking/storefront-checkout/internal/httpapi"
	"github.com/xenking/storefront-checkout/internal/kv"
	"github.com/xenking/storefront-checkout/internal/order"
	"github.com/xenking/storefront-checkout/internal/payment"
	"github.com/xenking/storefront-checkout/internal/reaper"
	"github.com/xenking/storefront-checkout/internal/session"
	"github.com/xenking/storefront-checkout/pkg/health"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("backend", cfg.BackendURL))

	// Durable key-value store backing the session and staged checkouts.
	storePath := cfg.StorePath
	if storePath == "" {
		storePath = kv.DefaultPath("checkout-gateway/store.json")
	}
	store, err := kv.OpenFile(storePath)
	if err != nil {
		return errors.Wrap(err, "open store")
	}

	sessions := session.New(store)

	// Backend client. A 401 means the stored token is no longer honored, so
	// the session is cleared before the error surfaces.
	client := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		OnUnauthorized: func(ctx context.Context) {
			if err := sessions.Clear(); err != nil {
				zctx.From(ctx).Warn("Clear session after 401", zap.Error(err))
			}
		},
	}, sessions)

	// Domain services.
	carts := cart.New(client)
	orders := order.New(client)
	intents := checkout.NewIntents(store)
	bridge := payment.NewBridge(payment.Config{
		MerchantID:  cfg.Payment.MerchantID,
		CallbackURL: cfg.Payment.CallbackURL,
		StartPayURL: cfg.Payment.StartPayURL,
	}, client, orders, carts, intents)
	flow := checkout.NewFlow(carts, orders, bridge)

	// Pending-order reaper, scanning users with staged checkouts.
	go reaper.New(client, intents, cfg.Reaper.TTL).Run(ctx, cfg.Reaper.Interval)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Mux: health endpoints + gateway routes on one server.
	h := httpapi.NewHandler(flow, bridge, client)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
