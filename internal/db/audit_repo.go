package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"skyguard/internal/types"
)

// AuditFilter selects entries for AuditRepository.List.
type AuditFilter struct {
	EventType types.AuditEventType
	UserID    string
	Limit     int
	Offset    int
}

// AuditRepository provides data access for the append-only audit_logs table.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an entry and fills in its ID.
func (r *AuditRepository) Insert(ctx context.Context, e *types.AuditLogEntry) error {
	details, err := marshalJSONB(e.Details)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode audit details", err)
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO audit_logs (event_type, user_id, details, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		 RETURNING id, created_at`,
		e.EventType,
		e.UserID,
		details,
		e.IPAddress,
		e.UserAgent,
		nilIfZeroTime(e.CreatedAt),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write audit log", err)
	}
	return nil
}

// List returns entries newest first. Callers pass Limit+1 to detect more pages.
func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]types.AuditLogEntry, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if f.EventType != "" {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argIdx))
		args = append(args, f.EventType)
		argIdx++
	}
	if f.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, f.UserID)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := clampLimit(f.Limit, types.DefaultPageSize, types.MaxPageSize+1)
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(
		`SELECT id, event_type, user_id, details, ip_address, user_agent, created_at
		 FROM audit_logs %s
		 ORDER BY created_at DESC, id
		 LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1,
	)
	return r.queryEntries(ctx, query, args...)
}

// ListOlderThan returns up to limit of the oldest entries created before cutoff.
func (r *AuditRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.AuditLogEntry, error) {
	return r.queryEntries(ctx,
		`SELECT id, event_type, user_id, details, ip_address, user_agent, created_at
		 FROM audit_logs
		 WHERE created_at < $1
		 ORDER BY created_at, id
		 LIMIT $2`,
		cutoff, limit,
	)
}

func (r *AuditRepository) queryEntries(ctx context.Context, sql string, args ...any) ([]types.AuditLogEntry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list audit logs", err)
	}
	defer rows.Close()

	var out []types.AuditLogEntry
	for rows.Next() {
		var (
			e       types.AuditLogEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &details, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan audit log", err)
		}
		e.Details = unmarshalJSONB(details)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate audit logs", err)
	}
	return out, nil
}

// DeleteByIDs removes archived entries and returns the number deleted.
func (r *AuditRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_logs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived audit logs", err)
	}
	return tag.RowsAffected(), nil
}
