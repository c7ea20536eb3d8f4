// Package receipts tracks per-recipient read and delivery state and derives
// the admin views built on it.
package receipts

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"skyguard/internal/types"
)

// ResponseWindow is the look-back used for the response rate statistic.
const ResponseWindow = 30 * 24 * time.Hour

// RecipientStore is the subset of db.RecipientRepository the tracker uses.
type RecipientStore interface {
	MarkRead(ctx context.Context, alertID, userID string, at time.Time) (bool, error)
	ListReceipts(ctx context.Context, alertID string) ([]types.ReadReceipt, error)
	DeliveryStatus(ctx context.Context, recipientID string) (types.DeliveryStatus, error)
	MarkDelivered(ctx context.Context, recipientID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, recipientID string) (bool, error)
	ResponseCounts(ctx context.Context, since time.Time) (read, total int, err error)
}

// AlertReader is the subset of db.AlertRepository the tracker uses.
type AlertReader interface {
	ListWithCounts(ctx context.Context, limit, offset int) ([]types.AlertSummary, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]types.UserAlert, error)
	CountSentSince(ctx context.Context, since time.Time) (int, error)
}

// UserCounter provides the user totals for Stats.
type UserCounter interface {
	Count(ctx context.Context) (int, error)
}

// ActiveCounter counts users with at least one enabled channel.
type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// Receipts partitions an alert's recipients by read state.
type Receipts struct {
	Read        []types.ReadReceipt `json:"read"`
	Unread      []types.ReadReceipt `json:"unread"`
	ReadCount   int                 `json:"read_count"`
	UnreadCount int                 `json:"unread_count"`
}

// Tracker implements read receipts, delivery status transitions and stats.
type Tracker struct {
	recipients RecipientStore
	alerts     AlertReader
	users      UserCounter
	active     ActiveCounter
	clock      types.Clock
	logger     *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(recipients RecipientStore, alerts AlertReader, users UserCounter, active ActiveCounter, clock types.Clock, logger *slog.Logger) *Tracker {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		recipients: recipients,
		alerts:     alerts,
		users:      users,
		active:     active,
		clock:      clock,
		logger:     logger,
	}
}

// MarkAlertAsRead records that userID viewed alertID. Repeating the call or
// naming an alert the user never received is a no-op.
func (t *Tracker) MarkAlertAsRead(ctx context.Context, alertID, userID string) error {
	changed, err := t.recipients.MarkRead(ctx, alertID, userID, t.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		types.LoggerFromContext(ctx, t.logger).DebugContext(ctx, "alert marked read",
			"alert_id", alertID, "user_id", userID)
	}
	return nil
}

// GetReadReceipts returns the recipients of alertID split into read (most
// recently read first) and unread (most recently sent first).
func (t *Tracker) GetReadReceipts(ctx context.Context, alertID string) (*Receipts, error) {
	all, err := t.recipients.ListReceipts(ctx, alertID)
	if err != nil {
		return nil, err
	}

	out := &Receipts{Read: []types.ReadReceipt{}, Unread: []types.ReadReceipt{}}
	for _, rc := range all {
		if rc.ReadStatus == types.ReadStatusRead {
			out.Read = append(out.Read, rc)
		} else {
			out.Unread = append(out.Unread, rc)
		}
	}
	sort.SliceStable(out.Read, func(i, j int) bool { return after(out.Read[i].ReadAt, out.Read[j].ReadAt) })
	sort.SliceStable(out.Unread, func(i, j int) bool { return after(out.Unread[i].SentAt, out.Unread[j].SentAt) })
	out.ReadCount = len(out.Read)
	out.UnreadCount = len(out.Unread)
	return out, nil
}

// after orders non-nil timestamps descending with nils last.
func after(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

// DeliveryStatus returns the recipient's current delivery state.
func (t *Tracker) DeliveryStatus(ctx context.Context, recipientID string) (types.DeliveryStatus, error) {
	return t.recipients.DeliveryStatus(ctx, recipientID)
}

// MarkDelivered moves a recipient from pending/sent to delivered.
func (t *Tracker) MarkDelivered(ctx context.Context, recipientID string) error {
	moved, err := t.recipients.MarkDelivered(ctx, recipientID, t.clock.Now())
	if err != nil {
		return err
	}
	if !moved {
		types.LoggerFromContext(ctx, t.logger).DebugContext(ctx, "delivery status already terminal",
			"recipient_id", recipientID)
	}
	return nil
}

// MarkFailed moves a recipient from pending/sent to failed. The reason is
// logged; the schema keeps no failure detail.
func (t *Tracker) MarkFailed(ctx context.Context, recipientID, reason string) error {
	moved, err := t.recipients.MarkFailed(ctx, recipientID)
	if err != nil {
		return err
	}
	types.LoggerFromContext(ctx, t.logger).WarnContext(ctx, "delivery failed",
		"recipient_id", recipientID, "reason", reason, "transitioned", moved)
	return nil
}

// GetUserAlerts returns the alerts addressed to userID, newest first.
func (t *Tracker) GetUserAlerts(ctx context.Context, userID string, limit, offset int) ([]types.UserAlert, error) {
	return t.alerts.ListForUser(ctx, userID, limit, offset)
}

// GetAllAlerts returns every alert with recipient and read counts.
func (t *Tracker) GetAllAlerts(ctx context.Context, limit, offset int) ([]types.AlertSummary, error) {
	return t.alerts.ListWithCounts(ctx, limit, offset)
}

// GetStats computes the dashboard statistics. "Today" starts at UTC midnight.
func (t *Tracker) GetStats(ctx context.Context) (*types.Stats, error) {
	now := t.clock.Now().UTC()

	total, err := t.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	active, err := t.active.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := t.alerts.CountSentSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	read, recipients, err := t.recipients.ResponseCounts(ctx, now.Add(-ResponseWindow))
	if err != nil {
		return nil, err
	}

	return &types.Stats{
		TotalUsers:      total,
		ActiveUsers:     active,
		AlertsSentToday: today,
		ResponseRate:    ResponseRate(read, recipients),
	}, nil
}

// ResponseRate returns read/total as a percentage rounded to one decimal.
// Zero recipients yields zero.
func ResponseRate(read, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(read)*1000/float64(total)) / 10
}
