// Package delivery moves recipient deliveries from the fan-out engine to the
// SMS, email and push providers through an SQS queue.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"skyguard/internal/types"
)

const (
	// maxBatchSize is the SQS SendMessageBatch limit.
	maxBatchSize = 10
	// maxDelay is the SQS DelaySeconds limit.
	maxDelay = 900 * time.Second
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SQSDispatcher publishes DeliveryMessages to the delivery queue.
type SQSDispatcher struct {
	client   SQSAPI
	queueURL string
	logger   *slog.Logger
}

// NewSQSDispatcher creates a dispatcher targeting queueURL.
func NewSQSDispatcher(client SQSAPI, queueURL string, logger *slog.Logger) *SQSDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSDispatcher{client: client, queueURL: queueURL, logger: logger}
}

// Dispatch sends msgs in groups of ten. It stops at the first failed call;
// entries rejected inside a successful call are reported together at the end.
func (d *SQSDispatcher) Dispatch(ctx context.Context, msgs []types.DeliveryMessage) error {
	var rejected int
	var firstReject string

	for i := 0; i < len(msgs); i += maxBatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dispatch cancelled after %d of %d messages: %w", i, len(msgs), err)
		}

		end := min(i+maxBatchSize, len(msgs))
		entries := make([]sqsTypes.SendMessageBatchRequestEntry, 0, end-i)
		for j, msg := range msgs[i:end] {
			body, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("marshal delivery message %s: %w", msg.RecipientID, err)
			}
			entries = append(entries, sqsTypes.SendMessageBatchRequestEntry{
				Id:          aws.String(fmt.Sprintf("msg-%d", i+j)),
				MessageBody: aws.String(string(body)),
			})
		}

		out, err := d.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(d.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("SQS SendMessageBatch failed: %w", err)
		}
		if len(out.Failed) > 0 {
			if rejected == 0 {
				firstReject = fmt.Sprintf("code=%s, message=%s",
					aws.ToString(out.Failed[0].Code), aws.ToString(out.Failed[0].Message))
			}
			rejected += len(out.Failed)
		}
	}

	if rejected > 0 {
		return fmt.Errorf("SQS rejected %d of %d delivery messages, first: %s", rejected, len(msgs), firstReject)
	}
	d.logger.DebugContext(ctx, "delivery messages enqueued", "count", len(msgs))
	return nil
}

// Requeue increments msg.RetryCount and publishes it again after delay,
// clamped to the SQS maximum.
func (d *SQSDispatcher) Requeue(ctx context.Context, msg types.DeliveryMessage, delay time.Duration) error {
	msg.RetryCount++

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal delivery message %s: %w", msg.RecipientID, err)
	}

	delay = max(0, min(delay, maxDelay))
	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(d.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return fmt.Errorf("requeue delivery %s: %w", msg.RecipientID, err)
	}

	d.logger.InfoContext(ctx, "delivery requeued",
		"recipient_id", msg.RecipientID,
		"retry_count", msg.RetryCount,
		"delay_seconds", int(delay/time.Second),
		"trace_id", msg.TraceID,
	)
	return nil
}
