package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skyguard/internal/types"
)

// AlertRepository provides data access for the alerts table.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates an AlertRepository.
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `a.id, a.alert_type, a.title, a.message, a.priority, a.recipients, a.status,
	a.sent_by, a.created_at, a.sent_at`

func alertScanTargets(a *types.Alert) []any {
	return []any{
		&a.ID,
		&a.AlertType,
		&a.Title,
		&a.Message,
		&a.Priority,
		&a.Recipients,
		&a.Status,
		&a.SentBy,
		&a.CreatedAt,
		&a.SentAt,
	}
}

// Create inserts the alert and fills in its generated ID and created_at.
func (r *AlertRepository) Create(ctx context.Context, a *types.Alert) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO alerts (alert_type, title, message, priority, recipients, status, sent_by, sent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
		 RETURNING id, created_at`,
		a.AlertType,
		a.Title,
		a.Message,
		a.Priority,
		a.Recipients,
		a.Status,
		a.SentBy,
		a.SentAt,
		nilIfZeroTime(a.CreatedAt),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create alert", err)
	}
	return nil
}

// GetByID returns the alert or ErrCodeNotFoundAlert.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*types.Alert, error) {
	var a types.Alert
	err := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts a WHERE a.id = $1`,
		id,
	).Scan(alertScanTargets(&a)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve alert", err)
	}
	return &a, nil
}

// ListWithCounts returns alerts newest first with their recipient and read
// counts, for the admin view.
func (r *AlertRepository) ListWithCounts(ctx context.Context, limit, offset int) ([]types.AlertSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+`,
		        COUNT(ar.id) AS recipient_count,
		        COUNT(ar.id) FILTER (WHERE ar.read_status = 'read') AS read_count
		 FROM alerts a
		 LEFT JOIN alert_recipients ar ON ar.alert_id = a.id
		 GROUP BY a.id
		 ORDER BY a.created_at DESC, a.id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alerts", err)
	}
	defer rows.Close()

	var out []types.AlertSummary
	for rows.Next() {
		var s types.AlertSummary
		targets := append(alertScanTargets(&s.Alert), &s.RecipientCount, &s.ReadCount)
		if err := rows.Scan(targets...); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate alerts", err)
	}
	return out, nil
}

// ListForUser returns the alerts userID received, newest first, with that
// user's delivery and read state.
func (r *AlertRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]types.UserAlert, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+`,
		        ar.id, ar.delivery_method, ar.delivery_status, ar.read_status, ar.read_at
		 FROM alert_recipients ar
		 JOIN alerts a ON a.id = ar.alert_id
		 WHERE ar.user_id = $1
		 ORDER BY a.created_at DESC, a.id
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list user alerts", err)
	}
	defer rows.Close()

	var out []types.UserAlert
	for rows.Next() {
		var ua types.UserAlert
		targets := append(alertScanTargets(&ua.Alert),
			&ua.RecipientID, &ua.DeliveryMethod, &ua.DeliveryStatus, &ua.ReadStatus, &ua.ReadAt)
		if err := rows.Scan(targets...); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user alert", err)
		}
		out = append(out, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate user alerts", err)
	}
	return out, nil
}

// CountSentSince returns the number of alerts sent at or after since.
func (r *AlertRepository) CountSentSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE status = 'sent' AND sent_at >= $1`,
		since,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count alerts", err)
	}
	return n, nil
}
