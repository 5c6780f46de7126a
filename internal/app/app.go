// Package app wires the canteen API server together: configuration,
// storage, domain services, HTTP transport, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/campuskitchen/canteen-api/internal/api"
	"github.com/campuskitchen/canteen-api/internal/domain/checkout"
	"github.com/campuskitchen/canteen-api/internal/domain/feedback"
	"github.com/campuskitchen/canteen-api/internal/domain/menu"
	"github.com/campuskitchen/canteen-api/internal/domain/order"
	"github.com/campuskitchen/canteen-api/internal/domain/stats"
	"github.com/campuskitchen/canteen-api/internal/postgres"
	"github.com/campuskitchen/canteen-api/pkg/health"
	"github.com/campuskitchen/canteen-api/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddCheck(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddCheck(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	menuRepo := postgres.NewMenuRepository(pool)
	orderStore := postgres.NewOrderStore(pool)
	feedbackRepo := postgres.NewFeedbackRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services. The ledger recovers live orders from storage, so the
	// queue survives a restart.
	tokenGen := order.NewTokenGenerator(cfg.Token.ReuseWindow)
	ledger, err := order.NewLedger(ctx, orderStore, tokenGen)
	if err != nil {
		return errors.Wrap(err, "create order ledger")
	}
	menuSvc := menu.NewService(menuRepo)
	calc := checkout.NewCalculator(menuRepo)
	aggregator := stats.NewAggregator(ledger, menuRepo)
	feedbackSvc := feedback.NewService(feedbackRepo)

	// HTTP handlers: probes stay outside authentication, API routes inside.
	h := api.NewHandler(menuSvc, calc, ledger, aggregator, feedbackSvc)
	security := api.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", security.Authenticate(h.Routes()))

	instrumented := otelhttp.NewHandler(mux, "canteen-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", api.APIKeyHeader},
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.SetReady(true)

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
