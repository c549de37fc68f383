package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/riskadvisor/internal/config"
	"github.com/ehr/riskadvisor/internal/domain/patient"
	"github.com/ehr/riskadvisor/internal/domain/plancatalog"
	"github.com/ehr/riskadvisor/internal/domain/riskassessment"
	"github.com/ehr/riskadvisor/internal/platform/auth"
	"github.com/ehr/riskadvisor/internal/platform/cache"
	"github.com/ehr/riskadvisor/internal/platform/db"
	"github.com/ehr/riskadvisor/internal/platform/jsoncodec"
	"github.com/ehr/riskadvisor/internal/platform/middleware"
	"github.com/ehr/riskadvisor/internal/platform/reporting"
	"github.com/ehr/riskadvisor/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "risk-server",
		Short: "Patient risk assessment and insurance plan advisor",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the risk advisor API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// catalogSource picks where plans are loaded from. A file path wins over a
// URL; with neither set the embedded catalog is used.
func catalogSource(cfg *config.Config) plancatalog.Source {
	switch {
	case cfg.PlanCatalogPath != "":
		return plancatalog.FileSource{Path: cfg.PlanCatalogPath}
	case cfg.PlanCatalogURL != "":
		return plancatalog.NewRemoteSource(cfg.PlanCatalogURL)
	}
	return plancatalog.EmbeddedSource{}
}

// authMiddleware builds the authentication layer for the resolved auth mode.
func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	switch mode := cfg.ResolvedAuthMode(); mode {
	case config.AuthModeDevelopment:
		return auth.DevAuthMiddleware([]byte(cfg.AuthSigningKey)), nil
	case config.AuthModeJWKS:
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}), nil
	case config.AuthModeHMAC:
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	// Summary storage, with a Redis read-through cache when configured
	summaries := patient.NewSummaryRepoPG(pool)
	if cfg.RedisURL != "" && cfg.SummaryCacheTTL > 0 {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		summaries = patient.NewCachedSummaryRepository(summaries, cache.NewRedisKVStore(client), cfg.SummaryCacheTTL, logger)
		logger.Info().Dur("ttl", cfg.SummaryCacheTTL).Msg("summary cache enabled")
	}

	// Plan catalog
	source := catalogSource(cfg)
	catalogs, err := plancatalog.NewProvider(ctx, source, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("source", source.Name()).Msg("failed to load plan catalog")
	}
	if cfg.PlanCatalogWatch {
		if err := catalogs.Watch(ctx, cfg.PlanCatalogPath); err != nil {
			logger.Fatal().Err(err).Msg("failed to watch plan catalog")
		}
		logger.Info().Str("path", cfg.PlanCatalogPath).Msg("watching plan catalog")
	}

	patientSvc := patient.NewService(summaries, logger)
	riskSvc := riskassessment.NewService(summaries, catalogs, cfg.BatchConcurrency, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsoncodec.Serializer{}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/v1/reports/"))
	if cfg.MetricsEnabled {
		e.Use(telemetry.MetricsMiddleware())
	}

	// Health checks sit outside authentication
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	if cfg.MetricsEnabled {
		e.GET("/metrics", telemetry.PrometheusHandler())
	}

	authMW, err := authMiddleware(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure authentication")
	}

	// API group
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	limiter.StartCleanup(ctx, time.Minute)

	apiV1 := e.Group("/api/v1", authMW, middleware.Audit(logger), limiter.Middleware())

	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	riskassessment.NewHandler(riskSvc).RegisterRoutes(apiV1)
	reporting.NewHandler(riskSvc).RegisterRoutes(apiV1)

	// Start server
	addr := ":" + cfg.Port
	go func() {
		var err error
		if cfg.TLSEnabled {
			logger.Info().Str("addr", addr).Msg("starting risk advisor server with TLS")
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logger.Info().Str("addr", addr).Msg("starting risk advisor server")
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
