package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"skyguard/internal/types"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch publishes Lambda worker metrics. Publishing errors are logged
// and never returned; telemetry must not fail a delivery or a cycle.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatch creates a publisher. An empty namespace falls back to
// types.MetricNamespace.
func NewCloudWatch(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatch {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger}
}

// RecordDelivery emits DeliveryAttempt with Channel and Result dimensions.
func (c *CloudWatch) RecordDelivery(ctx context.Context, method types.DeliveryMethod, result string) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimChannel), Value: aws.String(string(method))},
			{Name: aws.String(types.DimResult), Value: aws.String(result)},
		},
	})
}

// RecordQueueLag emits the time between enqueue and processing start.
func (c *CloudWatch) RecordQueueLag(ctx context.Context, lag time.Duration) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// RecordCycle emits the counters of one monitor cycle in a single call.
func (c *CloudWatch) RecordCycle(ctx context.Context, source string, alerts, suppressed, failures int) {
	dims := []cwtypes.Dimension{{Name: aws.String(types.DimSource), Value: aws.String(source)}}
	c.put(ctx,
		cwtypes.MetricDatum{MetricName: aws.String(types.MetricMonitorAlerts), Value: aws.Float64(float64(alerts)), Unit: cwtypes.StandardUnitCount, Dimensions: dims},
		cwtypes.MetricDatum{MetricName: aws.String(types.MetricMonitorSuppressed), Value: aws.Float64(float64(suppressed)), Unit: cwtypes.StandardUnitCount, Dimensions: dims},
		cwtypes.MetricDatum{MetricName: aws.String(types.MetricMonitorFailures), Value: aws.Float64(float64(failures)), Unit: cwtypes.StandardUnitCount, Dimensions: dims},
	)
}

// RecordArchived emits the number of audit entries moved to cold storage.
func (c *CloudWatch) RecordArchived(ctx context.Context, n int) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAuditArchived),
		Value:      aws.Float64(float64(n)),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (c *CloudWatch) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to publish metrics",
			"metric", aws.ToString(data[0].MetricName),
			"count", len(data),
			"error", err,
		)
	}
}
