package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"skyguard/internal/external"
	"skyguard/internal/types"
)

// Delivery outcomes reported to Metrics.
const (
	ResultSuccess = "success"
	ResultRetry   = "retry"
	ResultFailed  = "failed"
)

// ContactLookup loads the recipient's contact details.
// db.ProfileRepository implements it.
type ContactLookup interface {
	GetByID(ctx context.Context, userID string) (*types.Profile, error)
}

// StatusUpdater reads and records the delivery state of the recipient row.
// *receipts.Tracker implements it.
type StatusUpdater interface {
	DeliveryStatus(ctx context.Context, recipientID string) (types.DeliveryStatus, error)
	MarkDelivered(ctx context.Context, recipientID string) error
	MarkFailed(ctx context.Context, recipientID, reason string) error
}

// Requeuer publishes a message again after a delay. *SQSDispatcher implements it.
type Requeuer interface {
	Requeue(ctx context.Context, msg types.DeliveryMessage, delay time.Duration) error
}

// Metrics receives delivery telemetry.
type Metrics interface {
	RecordDelivery(ctx context.Context, method types.DeliveryMethod, result string)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// WorkerConfig groups the collaborators of a Worker. Metrics may be nil.
type WorkerConfig struct {
	Contacts   ContactLookup
	Status     StatusUpdater
	Requeuer   Requeuer
	Senders    map[types.DeliveryMethod]external.Sender
	Metrics    Metrics
	Clock      types.Clock
	Logger     *slog.Logger
	MaxRetries int
	// BaseDelay is doubled on every retry.
	BaseDelay time.Duration
}

// Worker consumes delivery messages and sends them through the channel
// providers.
type Worker struct {
	cfg WorkerConfig
}

// NewWorker creates a Worker, filling defaults for the optional fields.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 30 * time.Second
	}
	return &Worker{cfg: cfg}
}

// Handle processes one SQS batch. Each record is independent; records that
// could not be settled are returned as batch item failures so SQS redelivers
// only those.
func (w *Worker) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range event.Records {
		if err := w.process(ctx, record); err != nil {
			w.cfg.Logger.ErrorContext(ctx, "failed to process delivery message",
				"message_id", record.MessageId,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	if len(resp.BatchItemFailures) > 0 {
		w.cfg.Logger.WarnContext(ctx, "delivery batch had failures",
			"records", len(event.Records),
			"failures", len(resp.BatchItemFailures),
		)
	}
	return resp, nil
}

func (w *Worker) process(ctx context.Context, record events.SQSMessage) error {
	var msg types.DeliveryMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// Malformed bodies never parse; ack them.
		w.cfg.Logger.ErrorContext(ctx, "dropping malformed delivery message",
			"message_id", record.MessageId, "error", err)
		return nil
	}

	logger := w.cfg.Logger.With(
		"recipient_id", msg.RecipientID,
		"alert_id", msg.AlertID,
		"method", string(msg.DeliveryMethod),
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok && w.cfg.Metrics != nil {
		if ms, err := strconv.ParseInt(sent, 10, 64); err == nil {
			w.cfg.Metrics.RecordQueueLag(ctx, w.cfg.Clock.Now().Sub(time.UnixMilli(ms)))
		}
	}

	// SQS delivers at least once. A row that already reached a terminal
	// state was settled by an earlier copy of this message: ACK and skip.
	status, err := w.cfg.Status.DeliveryStatus(ctx, msg.RecipientID)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundRecipient) {
			logger.WarnContext(ctx, "recipient row no longer exists; dropping message")
			return nil
		}
		return fmt.Errorf("reading delivery status of %s: %w", msg.RecipientID, err)
	}
	if status.Terminal() {
		logger.InfoContext(ctx, "delivery already settled; skipping", "status", string(status))
		return nil
	}

	sender, ok := w.cfg.Senders[msg.DeliveryMethod]
	if !ok {
		return w.fail(ctx, logger, msg, fmt.Sprintf("no sender for method %q", msg.DeliveryMethod))
	}

	profile, err := w.cfg.Contacts.GetByID(ctx, msg.UserID)
	if err != nil {
		if types.IsCode(err, types.ErrCodeNotFoundUser) {
			return w.fail(ctx, logger, msg, "recipient no longer exists")
		}
		return fmt.Errorf("loading recipient %s: %w", msg.UserID, err)
	}

	to, ok := address(profile, msg.DeliveryMethod)
	if !ok {
		return w.fail(ctx, logger, msg, "recipient has no "+string(msg.DeliveryMethod)+" contact")
	}

	providerID, err := sender.Send(ctx, external.Notification{
		To:          to,
		Title:       msg.Title,
		Body:        msg.Message,
		Priority:    msg.Priority,
		ReferenceID: msg.RecipientID,
	})
	if err != nil {
		return w.handleSendError(ctx, logger, msg, err)
	}

	w.record(ctx, msg.DeliveryMethod, ResultSuccess)
	if err := w.cfg.Status.MarkDelivered(ctx, msg.RecipientID); err != nil {
		// Provider accepted it; a redelivery would duplicate the message.
		logger.ErrorContext(ctx, "delivered but status update failed", "error", err)
		return nil
	}
	logger.InfoContext(ctx, "delivery succeeded", "provider_id", providerID)
	return nil
}

func (w *Worker) handleSendError(ctx context.Context, logger *slog.Logger, msg types.DeliveryMessage, sendErr error) error {
	if !external.IsRetryable(sendErr) {
		return w.fail(ctx, logger, msg, sendErr.Error())
	}
	if msg.RetryCount >= w.cfg.MaxRetries {
		return w.fail(ctx, logger, msg, fmt.Sprintf("retries exhausted: %v", sendErr))
	}

	delay := w.cfg.BaseDelay << msg.RetryCount
	if err := w.cfg.Requeuer.Requeue(ctx, msg, delay); err != nil {
		// Let SQS redeliver the original instead.
		return fmt.Errorf("send failed (%v) and requeue failed: %w", sendErr, err)
	}
	w.record(ctx, msg.DeliveryMethod, ResultRetry)
	logger.WarnContext(ctx, "delivery deferred for retry", "error", sendErr, "delay", delay)
	return nil
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, msg types.DeliveryMessage, reason string) error {
	w.record(ctx, msg.DeliveryMethod, ResultFailed)
	if err := w.cfg.Status.MarkFailed(ctx, msg.RecipientID, reason); err != nil {
		return fmt.Errorf("marking %s failed: %w", msg.RecipientID, err)
	}
	logger.WarnContext(ctx, "delivery failed permanently", "reason", reason)
	return nil
}

func (w *Worker) record(ctx context.Context, method types.DeliveryMethod, result string) {
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordDelivery(ctx, method, result)
	}
}

// address returns the channel address for method. Push gateways address
// devices by user ID.
func address(p *types.Profile, method types.DeliveryMethod) (string, bool) {
	switch method {
	case types.DeliverySMS:
		if p.HasPhone() {
			return *p.PhoneNumber, true
		}
	case types.DeliveryEmail:
		if p.HasEmail() {
			return *p.Email, true
		}
	case types.DeliveryPush:
		return p.UserID, true
	}
	return "", false
}
