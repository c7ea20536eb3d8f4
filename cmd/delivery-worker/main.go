// Package main is the entrypoint for the delivery worker Lambda.
//
// It consumes the delivery queue filled by the fan-out engine and sends each
// message through the recipient's channel: SMS via SNS, email via SES and push
// via the push gateway. Failed records are reported back to SQS as batch item
// failures.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"skyguard/internal/app"
	"skyguard/internal/config"
	"skyguard/internal/db"
	"skyguard/internal/delivery"
	"skyguard/internal/external"
	"skyguard/internal/metrics"
	"skyguard/internal/receipts"
	"skyguard/internal/types"
)

// buildSenders maps each external channel to its provider. Local runs log
// instead of calling AWS, and push falls back to logging when no gateway is
// configured.
func buildSenders(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) map[types.DeliveryMethod]external.Sender {
	senders := map[types.DeliveryMethod]external.Sender{
		types.DeliverySMS:   external.NewLogSender(string(types.DeliverySMS), logger),
		types.DeliveryEmail: external.NewLogSender(string(types.DeliveryEmail), logger),
		types.DeliveryPush:  external.NewLogSender(string(types.DeliveryPush), logger),
	}
	if cfg.Environment != "local" {
		senders[types.DeliverySMS] = external.NewSNSClientFromConfig(awsCfg, cfg.Delivery.SMSSenderID, logger)
		senders[types.DeliveryEmail] = external.NewSESClientFromConfig(awsCfg,
			cfg.Delivery.EmailFromAddress, cfg.Delivery.EmailFromName, logger)
	}
	if push := app.NewPushClient(cfg.Delivery, cfg.Build); push != nil {
		senders[types.DeliveryPush] = push
	}
	return senders
}

func main() {
	logger := config.NewLogger("info", "delivery-worker")
	logger.Info("delivery worker Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = config.NewLogger(cfg.LogLevel, "delivery-worker")

	ctx := context.Background()
	awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	dispatcher := app.NewDispatcher(awsCfg, cfg.AWS.DeliveryQueueURL, logger)
	if dispatcher == nil {
		logger.Error("SQS_DELIVERY must be set for the delivery worker")
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}

	clock := types.RealClock{}
	stores := app.NewStores(pool)
	tracker := receipts.NewTracker(stores.Recipients, stores.Alerts, stores.Profiles, stores.Preferences, clock, logger)

	worker := delivery.NewWorker(delivery.WorkerConfig{
		Contacts:   stores.Profiles,
		Status:     tracker,
		Requeuer:   dispatcher,
		Senders:    buildSenders(cfg, awsCfg, logger),
		Metrics:    metrics.NewCloudWatch(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger),
		Clock:      clock,
		Logger:     logger,
		MaxRetries: cfg.Delivery.MaxRetries,
	})

	logger.Info("delivery worker Lambda initialized")
	lambda.Start(worker.Handle)
}
