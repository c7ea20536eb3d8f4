// Package alerting implements alert fan-out: one submitted alert becomes one
// recipient record per eligible user, followed by asynchronous delivery.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"skyguard/internal/db"
	"skyguard/internal/eligibility"
	"skyguard/internal/ratelimit"
	"skyguard/internal/types"
)

// DefaultChunkSize bounds the rows written by one recipient insert.
const DefaultChunkSize = 500

// SendRequest is an alert submission. The sender is the Actor in the context.
type SendRequest struct {
	Type       types.AlertType      `json:"type"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	Priority   types.Priority       `json:"priority"`
	Recipients types.TargetSpec     `json:"recipients"`
	Channel    types.DeliveryMethod `json:"channel,omitempty"`
	// Source labels where the alert came from (api, weather_monitor, qa).
	Source string `json:"-"`
}

// SendResult reports the outcome of a send.
type SendResult struct {
	AlertID        string `json:"alert_id"`
	RecipientCount int    `json:"recipients"`
	// ExpectedCount is the number of eligible users. It exceeds
	// RecipientCount only after a partial fan-out.
	ExpectedCount int  `json:"expected_recipients"`
	Partial       bool `json:"partial,omitempty"`
}

// Resolver expands a target into recipients.
type Resolver interface {
	Resolve(ctx context.Context, t eligibility.Target) ([]eligibility.Recipient, error)
}

// AlertStore persists alerts. db.AlertRepository implements it.
type AlertStore interface {
	Create(ctx context.Context, a *types.Alert) error
}

// RecipientStore persists recipient rows. db.RecipientRepository implements it.
type RecipientStore interface {
	BulkInsert(ctx context.Context, alertID string, recipients []db.NewRecipient, sentAt time.Time) ([]types.AlertRecipient, error)
}

// Auditor records admin actions. *audit.Monitor implements it.
type Auditor interface {
	AdminAction(ctx context.Context, actor types.Actor, action string, details map[string]any)
}

// Dispatcher hands recipient deliveries to the delivery workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []types.DeliveryMessage) error
}

// Recorder receives fan-out metrics.
type Recorder interface {
	AlertSent(alertType types.AlertType, source string, recipients int)
	PartialFanout(alertType types.AlertType)
	RateLimited()
}

// Deps groups the collaborators of an Engine. Dispatcher and Recorder are
// optional.
type Deps struct {
	Limiter    ratelimit.Limiter
	Resolver   Resolver
	Alerts     AlertStore
	Recipients RecipientStore
	Auditor    Auditor
	Dispatcher Dispatcher
	Recorder   Recorder
	Clock      types.Clock
	Logger     *slog.Logger
	ChunkSize  int
}

// Engine runs alert fan-out.
type Engine struct {
	deps Deps
}

// NewEngine creates an Engine.
func NewEngine(deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ChunkSize <= 0 {
		deps.ChunkSize = DefaultChunkSize
	}
	return &Engine{deps: deps}
}

// SendAlert validates, persists, and fans out one alert.
//
// Validation and rate-limit failures reject before anything is written. Once
// the alert row exists the call succeeds: a recipient insert failure is
// reported through SendResult.Partial with the count actually enrolled.
func (e *Engine) SendAlert(ctx context.Context, req SendRequest) (*SendResult, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || actor.ID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required to send alerts", nil)
	}
	logger := types.LoggerFromContext(ctx, e.deps.Logger)

	if actor.Type != types.ActorTypeSystem {
		if err := e.checkRate(ctx, logger, actor.ID); err != nil {
			return nil, err
		}
	}

	clean, err := ValidateRequest(req)
	if err != nil {
		return nil, err
	}

	resolved, err := e.deps.Resolver.Resolve(ctx, eligibility.Target{
		Recipients: clean.Recipients,
		AlertType:  clean.Type,
		Channel:    clean.Channel,
	})
	if err != nil {
		return nil, err
	}

	now := e.deps.Clock.Now()
	alert := &types.Alert{
		AlertType:  clean.Type,
		Title:      clean.Title,
		Message:    clean.Message,
		Priority:   clean.Priority,
		Recipients: clean.Recipients,
		Status:     types.AlertStatusSent,
		SentBy:     senderID(actor),
		CreatedAt:  now,
		SentAt:     &now,
	}
	if err := e.deps.Alerts.Create(ctx, alert); err != nil {
		logger.ErrorContext(ctx, "failed to persist alert", "error", err)
		return nil, err
	}

	rows := make([]db.NewRecipient, len(resolved))
	for i, r := range resolved {
		status := types.DeliverySent
		if r.DeliveryMethod == types.DeliverySystem {
			status = types.DeliveryDelivered
		}
		rows[i] = db.NewRecipient{UserID: r.UserID, DeliveryMethod: r.DeliveryMethod, DeliveryStatus: status}
	}

	inserted, insertErr := e.insertChunked(ctx, alert.ID, rows, now)
	result := &SendResult{
		AlertID:        alert.ID,
		RecipientCount: len(inserted),
		ExpectedCount:  len(resolved),
		Partial:        insertErr != nil,
	}
	if insertErr != nil {
		logger.ErrorContext(ctx, "partial fan-out",
			"alert_id", alert.ID,
			"enrolled", result.RecipientCount,
			"expected", result.ExpectedCount,
			"error", insertErr,
		)
		if e.deps.Recorder != nil {
			e.deps.Recorder.PartialFanout(alert.AlertType)
		}
	}

	if actor.Type == types.ActorTypeUser && actor.IsAdmin() && e.deps.Auditor != nil {
		e.deps.Auditor.AdminAction(ctx, actor, types.ActionSendAlert, map[string]any{
			"alert_id":   alert.ID,
			"alert_type": string(alert.AlertType),
			"priority":   string(alert.Priority),
			"recipients": string(alert.Recipients),
			"title":      alert.Title,
		})
	}

	e.dispatch(ctx, logger, alert, inserted)

	if e.deps.Recorder != nil {
		e.deps.Recorder.AlertSent(alert.AlertType, sourceOf(clean.Source), result.RecipientCount)
	}
	logger.InfoContext(ctx, "alert sent",
		"alert_id", alert.ID,
		"alert_type", string(alert.AlertType),
		"priority", string(alert.Priority),
		"recipients", result.RecipientCount,
	)
	return result, nil
}

// SendToUsers sends an in-app alert to explicit users, bypassing role
// resolution and preferences. Used for notifications addressed to one person
// (a Q&A answer reaching its asker). Unknown or duplicate IDs are ignored by
// the store.
func (e *Engine) SendToUsers(ctx context.Context, req SendRequest, userIDs []string) (*SendResult, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || actor.ID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required to send alerts", nil)
	}
	logger := types.LoggerFromContext(ctx, e.deps.Logger)

	req.Recipients = types.TargetAll
	clean, err := ValidateRequest(req)
	if err != nil {
		return nil, err
	}
	clean.Recipients = types.TargetSpecific

	seen := make(map[string]struct{}, len(userIDs))
	rows := make([]db.NewRecipient, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, db.NewRecipient{
			UserID:         id,
			DeliveryMethod: types.DeliverySystem,
			DeliveryStatus: types.DeliveryDelivered,
		})
	}

	now := e.deps.Clock.Now()
	alert := &types.Alert{
		AlertType:  clean.Type,
		Title:      clean.Title,
		Message:    clean.Message,
		Priority:   clean.Priority,
		Recipients: types.TargetSpecific,
		Status:     types.AlertStatusSent,
		SentBy:     senderID(actor),
		CreatedAt:  now,
		SentAt:     &now,
	}
	if err := e.deps.Alerts.Create(ctx, alert); err != nil {
		return nil, err
	}

	inserted, insertErr := e.insertChunked(ctx, alert.ID, rows, now)
	if insertErr != nil {
		logger.ErrorContext(ctx, "partial fan-out", "alert_id", alert.ID, "error", insertErr)
	}
	if e.deps.Recorder != nil {
		e.deps.Recorder.AlertSent(alert.AlertType, sourceOf(clean.Source), len(inserted))
	}
	return &SendResult{
		AlertID:        alert.ID,
		RecipientCount: len(inserted),
		ExpectedCount:  len(rows),
		Partial:        insertErr != nil,
	}, nil
}

func (e *Engine) checkRate(ctx context.Context, logger *slog.Logger, senderID string) error {
	if e.deps.Limiter == nil {
		return nil
	}
	decision, err := e.deps.Limiter.Allow(ctx, ratelimit.SendKey(senderID))
	if err != nil {
		logger.WarnContext(ctx, "rate limiter unavailable; allowing send", "sender_id", senderID, "error", err)
		return nil
	}
	if decision.Allowed {
		return nil
	}
	if e.deps.Recorder != nil {
		e.deps.Recorder.RateLimited()
	}
	retry := decision.RetryAfter(e.deps.Clock.Now())
	return types.NewAppErrorWithDetails(types.ErrCodeRateLimit,
		fmt.Sprintf("Too many alerts sent. Try again in %d seconds.", int(retry.Seconds())), nil,
		map[string]any{"retry_after_seconds": int(retry.Seconds()), "limit": decision.Limit})
}

// insertChunked writes rows in chunks and stops at the first failing chunk,
// returning what was enrolled so far.
func (e *Engine) insertChunked(ctx context.Context, alertID string, rows []db.NewRecipient, now time.Time) ([]types.AlertRecipient, error) {
	var inserted []types.AlertRecipient
	for start := 0; start < len(rows); start += e.deps.ChunkSize {
		end := min(start+e.deps.ChunkSize, len(rows))
		got, err := e.deps.Recipients.BulkInsert(ctx, alertID, rows[start:end], now)
		if err != nil {
			return inserted, fmt.Errorf("inserting recipients %d-%d of %d: %w", start, end-1, len(rows), err)
		}
		inserted = append(inserted, got...)
	}
	return inserted, nil
}

// dispatch enqueues external deliveries. Failures are logged only; the
// recipient rows already exist and the alert is visible in-app.
func (e *Engine) dispatch(ctx context.Context, logger *slog.Logger, alert *types.Alert, recipients []types.AlertRecipient) {
	if e.deps.Dispatcher == nil {
		return
	}
	msgs := make([]types.DeliveryMessage, 0, len(recipients))
	for _, r := range recipients {
		if r.DeliveryMethod == types.DeliverySystem {
			continue
		}
		msgs = append(msgs, types.DeliveryMessage{
			RecipientID:    r.ID,
			AlertID:        alert.ID,
			UserID:         r.UserID,
			DeliveryMethod: r.DeliveryMethod,
			AlertType:      alert.AlertType,
			Priority:       alert.Priority,
			Title:          alert.Title,
			Message:        alert.Message,
			TraceID:        types.GetRequestID(ctx),
		})
	}
	if len(msgs) == 0 {
		return
	}
	if err := e.deps.Dispatcher.Dispatch(ctx, msgs); err != nil {
		logger.ErrorContext(ctx, "failed to enqueue deliveries",
			"alert_id", alert.ID, "count", len(msgs), "error", err)
	}
}

func senderID(actor types.Actor) *string {
	if actor.Type == types.ActorTypeSystem {
		return nil
	}
	id := actor.ID
	return &id
}

func sourceOf(s string) string {
	if s == "" {
		return "api"
	}
	return s
}
