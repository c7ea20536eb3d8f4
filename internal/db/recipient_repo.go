package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skyguard/internal/types"
)

// NewRecipient is one row for RecipientRepository.BulkInsert.
type NewRecipient struct {
	UserID         string
	DeliveryMethod types.DeliveryMethod
	DeliveryStatus types.DeliveryStatus
}

// RecipientRepository provides data access for the alert_recipients table.
//
// The (alert_id, user_id) unique constraint is the source of truth for the
// one-row-per-recipient rule; inserts never fail on duplicates.
type RecipientRepository struct {
	db DBTX
}

// NewRecipientRepository creates a RecipientRepository.
func NewRecipientRepository(db DBTX) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// BulkInsert enrolls recipients for alertID in a single statement and returns
// the rows actually inserted. Rows that already exist are skipped silently,
// so a retried chunk does not create duplicates.
func (r *RecipientRepository) BulkInsert(ctx context.Context, alertID string, recipients []NewRecipient, sentAt time.Time) ([]types.AlertRecipient, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	userIDs := make([]string, len(recipients))
	methods := make([]string, len(recipients))
	statuses := make([]string, len(recipients))
	for i, rec := range recipients {
		userIDs[i] = rec.UserID
		methods[i] = string(rec.DeliveryMethod)
		statuses[i] = string(rec.DeliveryStatus)
	}

	rows, err := r.db.Query(ctx,
		`INSERT INTO alert_recipients (alert_id, user_id, delivery_method, delivery_status, read_status, sent_at,
		     delivered_at)
		 SELECT $1::uuid, u.user_id, u.method, u.status, 'unread', $5::timestamptz,
		        CASE WHEN u.status = 'delivered' THEN $5::timestamptz END
		 FROM unnest($2::uuid[], $3::text[], $4::text[]) AS u(user_id, method, status)
		 ON CONFLICT (alert_id, user_id) DO NOTHING
		 RETURNING id, user_id, delivery_method, delivery_status`,
		alertID, userIDs, methods, statuses, sentAt,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert recipients", err)
	}
	defer rows.Close()

	var out []types.AlertRecipient
	for rows.Next() {
		rec := types.AlertRecipient{
			AlertID:    alertID,
			ReadStatus: types.ReadStatusUnread,
			SentAt:     &sentAt,
		}
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.DeliveryMethod, &rec.DeliveryStatus); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan inserted recipient", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert recipients", err)
	}
	return out, nil
}

// MarkRead transitions the (alertID, userID) row from unread to read. It
// reports whether a row changed; an already-read or missing row is not an
// error. read_at is written only on the first transition.
func (r *RecipientRepository) MarkRead(ctx context.Context, alertID, userID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alert_recipients SET read_status = 'read', read_at = $3
		 WHERE alert_id = $1 AND user_id = $2 AND read_status = 'unread'`,
		alertID, userID, at,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark alert as read", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListReceipts returns every recipient of alertID joined with their profile.
func (r *RecipientRepository) ListReceipts(ctx context.Context, alertID string) ([]types.ReadReceipt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT ar.user_id, p.username, p.role, ar.read_status, ar.read_at, ar.sent_at
		 FROM alert_recipients ar
		 JOIN profiles p ON p.user_id = ar.user_id
		 WHERE ar.alert_id = $1
		 ORDER BY ar.read_at DESC NULLS LAST, ar.sent_at DESC NULLS LAST`,
		alertID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list read receipts", err)
	}
	defer rows.Close()

	var out []types.ReadReceipt
	for rows.Next() {
		var rc types.ReadReceipt
		if err := rows.Scan(&rc.UserID, &rc.Username, &rc.Role, &rc.ReadStatus, &rc.ReadAt, &rc.SentAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan read receipt", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate read receipts", err)
	}
	return out, nil
}

// DeliveryStatus returns the current transport state of one recipient row.
func (r *RecipientRepository) DeliveryStatus(ctx context.Context, recipientID string) (types.DeliveryStatus, error) {
	var status types.DeliveryStatus
	err := r.db.QueryRow(ctx,
		`SELECT delivery_status FROM alert_recipients WHERE id = $1`,
		recipientID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundRecipient, "recipient not found", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to read delivery status", err)
	}
	return status, nil
}

// MarkDelivered records a successful hand-off to the channel provider.
// Terminal rows (delivered, failed) are left unchanged; the return value
// reports whether the row moved.
func (r *RecipientRepository) MarkDelivered(ctx context.Context, recipientID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alert_recipients SET delivery_status = 'delivered', delivered_at = $2
		 WHERE id = $1 AND delivery_status IN ('pending', 'sent')`,
		recipientID, at,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark recipient delivered", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed records a terminal delivery failure.
func (r *RecipientRepository) MarkFailed(ctx context.Context, recipientID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alert_recipients SET delivery_status = 'failed'
		 WHERE id = $1 AND delivery_status IN ('pending', 'sent')`,
		recipientID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark recipient failed", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResponseCounts returns read and total recipient counts for alerts sent at
// or after since.
func (r *RecipientRepository) ResponseCounts(ctx context.Context, since time.Time) (read, total int, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE ar.read_status = 'read'), COUNT(*)
		 FROM alert_recipients ar
		 JOIN alerts a ON a.id = ar.alert_id
		 WHERE a.sent_at >= $1`,
		since,
	).Scan(&read, &total)
	if err != nil {
		return 0, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to compute response rate", err)
	}
	return read, total, nil
}
