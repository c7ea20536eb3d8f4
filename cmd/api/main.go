// Package main is the entry point for the SkyGuard API server.
//
// It loads configuration, opens the database pool, wires the domain
// services behind the core chassis (middleware, routing, health checks) and
// serves HTTP until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-chi/chi/v5"

	"skyguard/internal/api/handlers"
	"skyguard/internal/app"
	"skyguard/internal/audit"
	"skyguard/internal/auth"
	"skyguard/internal/config"
	"skyguard/internal/core"
	"skyguard/internal/db"
	"skyguard/internal/directory"
	"skyguard/internal/external"
	"skyguard/internal/metrics"
	"skyguard/internal/qa"
	"skyguard/internal/ratelimit"
	"skyguard/internal/receipts"
	"skyguard/internal/types"
	"skyguard/internal/weather"
)

// authFailureLimits flags a client IP as suspicious after this many failed
// token checks.
var authFailureLimits = ratelimit.Limits{Max: 10, Window: 15 * time.Minute}

// auditStore is satisfied by both audit backends.
type auditStore interface {
	audit.Store
	handlers.AuditReader
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := config.NewLogger(cfg.LogLevel, "api")
	logger.Info("skyguard API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"locations", len(cfg.Locations),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires every dependency of the API process.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	clock := types.RealClock{}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Clock = clock

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	srv.Closers = append(srv.Closers, pool.Close)
	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{Label: "database", Fn: pool.Ping})
	stores := app.NewStores(pool)

	awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	prom := metrics.NewPrometheus(cfg.Observability.MetricNamespace)
	srv.Metrics = prom

	var store auditStore = stores.Audit
	if cfg.Audit.Backend == "memory" {
		store = audit.NewMemoryStore(cfg.Audit.MemoryRetention)
	}
	monitor := audit.NewMonitor(store, clock, logger, prom)
	srv.Auditor = monitor

	limiters, closeLimiters, err := app.NewLimiterFactory(ctx, cfg.RateLimit, stores, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("creating rate limiters: %w", err)
	}
	srv.Closers = append(srv.Closers, closeLimiters)
	if rdb := limiters.Redis(); rdb != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{Label: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	srv.APILimiter = limiters.New(ratelimit.Limits{Max: cfg.RateLimit.APIMax, Window: cfg.RateLimit.APIWindow})

	srv.Authenticator = auth.NewAuthenticator(auth.Config{
		Verifier:         auth.NewTokenVerifier(cfg.Auth.JWTSecret.Unmask(), cfg.Auth.JWTIssuer, clock),
		Directory:        stores.Profiles,
		MachineTokenHash: cfg.Auth.SchedulerTokenHash,
		Auditor:          monitor,
		Failures:         limiters.New(authFailureLimits),
		Logger:           logger,
	})

	engine := app.NewEngine(stores, app.EngineDeps{
		Limiter:    limiters.New(ratelimit.Limits{Max: cfg.RateLimit.SendMax, Window: cfg.RateLimit.SendWindow}),
		Auditor:    monitor,
		Dispatcher: app.NewDispatcher(awsCfg, cfg.AWS.DeliveryQueueURL, logger),
		Recorder:   prom,
	}, clock, logger)

	provider := app.NewWeatherProvider(cfg.Weather, cfg.Build)
	evaluator := weather.NewEvaluator(provider, stores.Rules, stores.TriggerLog, engine, clock, logger, weather.Options{
		Cooldown:     cfg.Weather.Cooldown,
		FetchTimeout: cfg.Weather.FetchTimeout,
		AQIThreshold: cfg.Weather.AQIThreshold,
		MaxParallel:  cfg.Weather.MaxParallel,
	})

	tracker := receipts.NewTracker(stores.Recipients, stores.Alerts, stores.Profiles, stores.Preferences, clock, logger)
	users := directory.NewService(stores.Profiles, stores.Preferences, monitor, clock, logger)
	rules := weather.NewRuleService(stores.Rules, monitor, logger)
	board := qa.NewService(stores.QA, stores.Profiles, engine, clock, logger)

	v := srv.Validator
	guards := handlers.NewGuards(srv)
	alertH := handlers.NewAlertHandler(engine, tracker, v, logger)
	userH := handlers.NewUserHandler(users, v, logger)
	weatherH := handlers.NewWeatherHandler(rules, evaluator, monitor, prom, cfg.Locations, v, logger)
	qaH := handlers.NewQAHandler(board, v, logger)
	auditH := handlers.NewAuditHandler(store, logger)
	systemH := handlers.NewSystemHandler(systemProbes(cfg, awsCfg, provider, pool.Ping, logger), logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { alertH.RegisterRoutes(r, guards) },
		func(r chi.Router) { userH.RegisterRoutes(r, guards) },
		func(r chi.Router) { weatherH.RegisterRoutes(r, guards) },
		func(r chi.Router) { qaH.RegisterRoutes(r, guards) },
		func(r chi.Router) { auditH.RegisterRoutes(r, guards) },
		func(r chi.Router) { systemH.RegisterRoutes(r, guards) },
	)
	return srv, nil
}

// systemProbes builds the connectivity checks behind GET /v1/system/test.
// Push is omitted when no gateway is configured and reports false.
func systemProbes(cfg *config.Config, awsCfg aws.Config, provider *external.OpenWeatherClient,
	dbPing func(context.Context) error, logger *slog.Logger) []core.HealthProbe {
	sms := external.NewSNSClientFromConfig(awsCfg, cfg.Delivery.SMSSenderID, logger)
	email := external.NewSESClientFromConfig(awsCfg, cfg.Delivery.EmailFromAddress, cfg.Delivery.EmailFromName, logger)

	probes := []core.HealthProbe{
		core.ProbeFunc{Label: handlers.ProbeSMS, Fn: sms.Ping},
		core.ProbeFunc{Label: handlers.ProbeEmail, Fn: email.Ping},
		core.ProbeFunc{Label: handlers.ProbeWeather, Fn: provider.Ping},
		core.ProbeFunc{Label: handlers.ProbeDatabase, Fn: dbPing},
	}
	if push := app.NewPushClient(cfg.Delivery, cfg.Build); push != nil {
		probes = append(probes, core.ProbeFunc{Label: handlers.ProbePush, Fn: push.Ping})
	}
	return probes
}

// runHTTPServer serves until a shutdown signal, then drains in-flight
// requests for up to ten seconds.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
