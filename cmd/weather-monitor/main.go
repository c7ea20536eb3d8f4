// Package main is the entrypoint for the scheduled weather monitor Lambda.
//
// An EventBridge schedule invokes it every few minutes. Each invocation runs
// one evaluation cycle over the configured locations as the system actor and
// publishes the cycle counters to CloudWatch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"skyguard/internal/app"
	"skyguard/internal/config"
	"skyguard/internal/db"
	"skyguard/internal/metrics"
	"skyguard/internal/types"
	"skyguard/internal/weather"
)

// cycleSource labels scheduled runs in the CloudWatch cycle metrics.
const cycleSource = "scheduled"

// CycleRunner runs one evaluation cycle. *weather.Evaluator implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context, locations []types.Location) (*weather.CycleResult, error)
}

// CycleRecorder publishes cycle counters. *metrics.CloudWatch implements it.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, source string, alerts, suppressed, failures int)
}

// Handler holds the dependencies of the monitor Lambda.
type Handler struct {
	Runner    CycleRunner
	Recorder  CycleRecorder
	Locations []types.Location
	Logger    *slog.Logger
}

// Handle runs a cycle. Per-location failures are reported in the result and
// do not fail the invocation; only a cycle that could not start does.
func (h *Handler) Handle(ctx context.Context, ev events.CloudWatchEvent) (*weather.CycleResult, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx = types.WithRequestID(ctx, ev.ID)

	if len(h.Locations) == 0 {
		logger.WarnContext(ctx, "no monitored locations configured; skipping cycle")
		return &weather.CycleResult{Results: []weather.Trigger{}}, nil
	}

	res, err := h.Runner.RunCycle(types.WithActor(ctx, types.SystemActor()), h.Locations)
	if err != nil {
		logger.ErrorContext(ctx, "weather cycle failed", "error", err)
		return nil, fmt.Errorf("running weather cycle: %w", err)
	}

	if h.Recorder != nil {
		h.Recorder.RecordCycle(ctx, cycleSource, res.AlertsCreated, res.Suppressed, res.Failures)
	}
	return res, nil
}

func main() {
	logger := config.NewLogger("info", "weather-monitor")
	logger.Info("weather monitor Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = config.NewLogger(cfg.LogLevel, "weather-monitor")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}
	awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	clock := types.RealClock{}
	stores := app.NewStores(pool)
	// System sends bypass the rate limiter and produce no admin audit entry.
	engine := app.NewEngine(stores, app.EngineDeps{
		Dispatcher: app.NewDispatcher(awsCfg, cfg.AWS.DeliveryQueueURL, logger),
	}, clock, logger)

	evaluator := weather.NewEvaluator(app.NewWeatherProvider(cfg.Weather, cfg.Build),
		stores.Rules, stores.TriggerLog, engine, clock, logger, weather.Options{
			Cooldown:     cfg.Weather.Cooldown,
			FetchTimeout: cfg.Weather.FetchTimeout,
			AQIThreshold: cfg.Weather.AQIThreshold,
			MaxParallel:  cfg.Weather.MaxParallel,
		})

	handler := &Handler{
		Runner:    evaluator,
		Recorder:  metrics.NewCloudWatch(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger),
		Locations: cfg.Locations,
		Logger:    logger,
	}

	logger.Info("weather monitor Lambda initialized", "locations", len(cfg.Locations))
	lambda.Start(handler.Handle)
}
