package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/debriswatch/internal/api"
	"github.com/star/debriswatch/internal/auth"
	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/collision"
	"github.com/star/debriswatch/internal/forecast"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/metrics"
	"github.com/star/debriswatch/internal/orbit"
	"github.com/star/debriswatch/internal/stream"
	"github.com/star/debriswatch/internal/tracing"
	"github.com/star/debriswatch/web"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the catalog and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Error("tracing init failed", "component", "main", "error", err)
		return err
	}
	defer tracing.Shutdown(context.Background(), shutdownTracing, logger)

	store, err := catalog.Load(ctx, loadConfig(), logger)
	if err != nil {
		logger.Error("catalog load failed", "component", "main", "error", err)
		return err
	}

	forecaster := forecast.NewForecaster(store,
		forecast.NewRandomWalk(cfg.Forecast.NoiseSigma, cfg.Forecast.Seed),
		forecast.Config{DefaultHours: cfg.Forecast.DefaultHours, MaxHours: cfg.Forecast.MaxHours},
	)
	estimator := collision.NewEstimator(store, collision.NewRandomClassifier(cfg.Collision.Seed))
	screener := collision.NewScreener(estimator, cfg.Collision.Workers, cfg.Collision.ScreenLimit, logger)

	streamHandler := stream.NewHandler(forecaster, store, stream.Config{
		MaxConcurrentPerIP: cfg.Stream.MaxConcurrentPerIP,
		MaxTotal:           cfg.Stream.MaxTotal,
		Interval:           cfg.Stream.Interval,
		KeepaliveInterval:  cfg.Stream.KeepaliveInterval,
		TrustProxy:         cfg.Server.TrustProxy,
	}, logger)

	var limiter *httputil.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = httputil.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.Server.TrustProxy)
		go sweepLimiter(ctx, limiter)
	}

	srv := api.NewServer(api.Config{
		Addr:              cfg.Server.Addr,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		CORSOrigins:       cfg.Server.CORSOrigins,
		TrustProxy:        cfg.Server.TrustProxy,
		ListLimit:         cfg.Catalog.ListLimit,
		Auth:              auth.Config{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token},
	}, api.Deps{
		Store:      store,
		Orbits:     orbit.NewEngine(store),
		Forecaster: forecaster,
		Estimator:  estimator,
		Screener:   screener,
		Stream:     streamHandler,
		Limiter:    limiter,
		Web:        web.Content,
	}, logger)

	// Background goroutine to update the catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SetCatalogAge(store.AgeSeconds())
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"component", "main",
			"addr", cfg.Server.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"ratelimit_enabled", cfg.RateLimit.Enabled,
			"tracing_enabled", cfg.Tracing.Enabled,
			"trajectory_model", forecaster.Model(),
			"collision_model", estimator.Model(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("server listen error", "component", "main", "error", err)
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...", "component", "main")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "component", "main", "error", err)
		return err
	}

	logger.Info("server stopped", "component", "main")
	return nil
}

func loadConfig() catalog.LoadConfig {
	return catalog.LoadConfig{
		Source:        cfg.Catalog.Source,
		CacheDir:      cfg.Catalog.CacheDir,
		MaxFiles:      cfg.Catalog.MaxFiles,
		Attempts:      cfg.Catalog.LoadAttempts,
		RetryInterval: cfg.Catalog.RetryInterval,
		MaxBytes:      int64(cfg.Catalog.MaxSizeMB) << 20,
		S3: catalog.S3Config{
			Region:          cfg.Catalog.S3.Region,
			AccessKeyID:     cfg.Catalog.S3.AccessKeyID,
			SecretAccessKey: cfg.Catalog.S3.SecretAccessKey,
			Endpoint:        cfg.Catalog.S3.Endpoint,
		},
	}
}

// sweepLimiter drops idle rate limiter buckets until ctx is done.
func sweepLimiter(ctx context.Context, l *httputil.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				logger.Debug("rate limiter swept", "component", "main", "clients", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
