package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/cache"
	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/internal/handler"
	"github.com/xenking/kart-coupons/internal/repository"
	"github.com/xenking/kart-coupons/pkg/health"
	"github.com/xenking/kart-coupons/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	repo, closeRepo, err := openRepository(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeRepo()

	// The catalog cache sits in front of the store for the scanner. Apply
	// stays exact because IncrementUsage revalidates in the store.
	coupons := repo
	if cfg.Cache.TTL > 0 {
		coupons = cache.NewCouponCache(repo, cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	}

	svc, err := coupon.NewServiceWithTelemetry(coupons, m.MeterProvider(), m.TracerProvider(),
		coupon.WithScanner(coupon.NewScanner(cfg.Scan.Workers, cfg.Scan.ParallelThreshold)),
	)
	if err != nil {
		return errors.Wrap(err, "create coupon service")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: NewHTTPHandler(ctx, HTTPDeps{
			Coupons:        coupons,
			Service:        svc,
			Health:         healthSvc,
			RateLimit:      cfg.RateLimit,
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
		}),
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

// openRepository returns the configured coupon store and its close func. The
// postgres store also gets a readiness check.
func openRepository(ctx context.Context, cfg *Config, h *health.Health) (coupon.Repository, func(), error) {
	if cfg.Store == StoreMemory {
		zctx.From(ctx).Warn("Using in-memory coupon store, data is lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	return repository.NewCouponRepository(pool), pool.Close, nil
}

// HTTPDeps are the collaborators of the HTTP handler.
type HTTPDeps struct {
	Coupons        coupon.Repository
	Service        *coupon.Service
	Health         *health.Health
	RateLimit      RateLimitConfig
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewHTTPHandler assembles the router and middleware chain. The logger in
// ctx becomes the base of every request logger.
func NewHTTPHandler(ctx context.Context, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Instrument("coupon-api", deps.TracerProvider, deps.MeterProvider),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", deps.Health.LiveEndpoint)
	r.Get("/readyz", deps.Health.ReadyEndpoint)
	handler.NewHandler(deps.Coupons, deps.Service).Mount(r, httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
		Max:    deps.RateLimit.Max,
		Window: deps.RateLimit.Window,
	}))

	return httpmiddleware.Wrap(r,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Recovery(),
	)
}
