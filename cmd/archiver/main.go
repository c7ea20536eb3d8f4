// Package main is the entrypoint for the maintenance Lambda.
//
// EventBridge rules send a MaintenancePayload naming the task. The handler
// routes it to the matching job, so the low-frequency housekeeping shares a
// single function:
//
//   - archive_audit_logs moves audit entries past retention to S3.
//   - purge_rate_limits drops expired rate-limit windows from PostgreSQL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"skyguard/internal/audit"
	"skyguard/internal/config"
	"skyguard/internal/db"
	"skyguard/internal/metrics"
	"skyguard/internal/types"
)

// TaskType names a maintenance job.
type TaskType string

const (
	TaskArchiveAuditLogs TaskType = "archive_audit_logs"
	TaskPurgeRateLimits  TaskType = "purge_rate_limits"
)

// rateLimitRetention drops keys idle for a day; the longest configured
// window is far shorter.
const rateLimitRetention = 24 * time.Hour

// MaintenancePayload is the EventBridge input. ReferenceTime pins "now" for
// replays.
type MaintenancePayload struct {
	Task          TaskType   `json:"task"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// AuditArchiver moves old audit entries to cold storage. *audit.Archiver
// implements it.
type AuditArchiver interface {
	Archive(ctx context.Context, retention time.Duration, batchSize int) (int, error)
}

// RateLimitPurger deletes limiter keys idle since cutoff. db.RateLimitRepository implements it.
type RateLimitPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveRecorder receives the archived entry count.
type ArchiveRecorder interface {
	RecordArchived(ctx context.Context, n int)
}

// Handler holds the dependencies of the maintenance Lambda.
type Handler struct {
	// Archiver is nil when no archive bucket is configured.
	Archiver     AuditArchiver
	RateLimits   RateLimitPurger
	Recorder     ArchiveRecorder
	Retention    time.Duration
	BatchSize    int
	Clock        types.Clock
	InvocationID string
	Logger       *slog.Logger
}

// Handle runs the task named in payload and returns a summary line.
func (h *Handler) Handle(ctx context.Context, payload MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := h.now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	task := string(payload.Task)
	logger.InfoContext(ctx, "maintenance handler invoked",
		"task", task,
		"reference_time", now.Format(time.RFC3339),
		"instance_id", h.InvocationID,
	)

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	items, err := h.dispatch(ctx, payload.Task, now)
	if err != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"task", task,
			"error", err,
			"items_before_error", items,
		)
		return "", fmt.Errorf("task %s failed: %w", task, err)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", task, items)
	logger.InfoContext(ctx, result, "task", task, "items", items)
	return result, nil
}

func (h *Handler) dispatch(ctx context.Context, task TaskType, now time.Time) (int, error) {
	switch task {
	case TaskArchiveAuditLogs:
		if h.Archiver == nil {
			return 0, fmt.Errorf("audit archive bucket is not configured")
		}
		n, err := h.Archiver.Archive(ctx, h.Retention, h.BatchSize)
		if n > 0 && h.Recorder != nil {
			h.Recorder.RecordArchived(ctx, n)
		}
		return n, err

	case TaskPurgeRateLimits:
		n, err := h.RateLimits.DeleteBefore(ctx, now.Add(-rateLimitRetention))
		return int(n), err

	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}

func (h *Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now()
}

func main() {
	logger := config.NewLogger("info", "archiver")
	logger.Info("archiver Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = config.NewLogger(cfg.LogLevel, "archiver")

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
	handler := &Handler{
		RateLimits:   db.NewRateLimitRepository(pool),
		Recorder:     metrics.NewCloudWatch(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger),
		Retention:    cfg.Audit.ArchiveAfter,
		BatchSize:    cfg.Audit.ArchiveBatch,
		Clock:        clock,
		InvocationID: uuid.New().String(),
		Logger:       logger,
	}
	if cfg.AWS.ArchiveBucket != "" {
		handler.Archiver = audit.NewArchiver(db.NewAuditRepository(pool), s3.NewFromConfig(awsCfg),
			cfg.AWS.ArchiveBucket, clock, logger)
	} else {
		logger.Warn("ARCHIVE_BUCKET not set; audit archival disabled")
	}

	logger.Info("archiver Lambda initialized", "instance_id", handler.InvocationID)
	lambda.Start(handler.Handle)
}
