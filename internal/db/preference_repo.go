package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"skyguard/internal/types"
)

// PreferenceRepository provides data access for the user_preferences table.
//
// Rows are created lazily with every flag enabled. Readers never observe a
// missing row as "all disabled".
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a PreferenceRepository.
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

const preferenceColumns = `user_id, emergency_alerts, weather_alerts, company_alerts, system_alerts,
	sms_enabled, push_enabled, email_enabled, updated_at`

func scanPreferences(row pgx.Row) (*types.Preferences, error) {
	var p types.Preferences
	err := row.Scan(
		&p.UserID,
		&p.EmergencyAlerts,
		&p.WeatherAlerts,
		&p.CompanyAlerts,
		&p.SystemAlerts,
		&p.SMSEnabled,
		&p.PushEnabled,
		&p.EmailEnabled,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureDefaults inserts all-enabled rows for any of userIDs that have none.
// Existing rows are left untouched.
func (r *PreferenceRepository) EnsureDefaults(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_preferences (user_id)
		 SELECT u FROM unnest($1::uuid[]) AS u
		 ON CONFLICT (user_id) DO NOTHING`,
		userIDs,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create default preferences", err)
	}
	return nil
}

// Get returns the preferences for userID, creating the default row first when
// none exists.
func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*types.Preferences, error) {
	if err := r.EnsureDefaults(ctx, []string{userID}); err != nil {
		return nil, err
	}
	p, err := scanPreferences(r.db.QueryRow(ctx,
		`SELECT `+preferenceColumns+` FROM user_preferences WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row vanished between insert and select (user deleted).
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve preferences", err)
	}
	return p, nil
}

// Update writes every flag of p. The row is created if missing.
func (r *PreferenceRepository) Update(ctx context.Context, p *types.Preferences) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_preferences (user_id, emergency_alerts, weather_alerts, company_alerts,
		     system_alerts, sms_enabled, push_enabled, email_enabled, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
		 ON CONFLICT (user_id) DO UPDATE SET
		     emergency_alerts = EXCLUDED.emergency_alerts,
		     weather_alerts   = EXCLUDED.weather_alerts,
		     company_alerts   = EXCLUDED.company_alerts,
		     system_alerts    = EXCLUDED.system_alerts,
		     sms_enabled      = EXCLUDED.sms_enabled,
		     push_enabled     = EXCLUDED.push_enabled,
		     email_enabled    = EXCLUDED.email_enabled,
		     updated_at       = EXCLUDED.updated_at`,
		p.UserID,
		p.EmergencyAlerts,
		p.WeatherAlerts,
		p.CompanyAlerts,
		p.SystemAlerts,
		p.SMSEnabled,
		p.PushEnabled,
		p.EmailEnabled,
		nilIfZeroTime(p.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update preferences", err)
	}
	return nil
}

// ListForUsers returns the stored preferences of userIDs keyed by user ID.
// Users without a row are absent from the map.
func (r *PreferenceRepository) ListForUsers(ctx context.Context, userIDs []string) (map[string]types.Preferences, error) {
	out := make(map[string]types.Preferences, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+preferenceColumns+` FROM user_preferences WHERE user_id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list preferences", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPreferences(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan preferences", err)
		}
		out[p.UserID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate preferences", err)
	}
	return out, nil
}

// CountActive returns the number of users with at least one enabled delivery
// channel. Users without a row count as active since their defaults are all
// enabled.
func (r *PreferenceRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM profiles p
		 LEFT JOIN user_preferences up ON up.user_id = p.user_id
		 WHERE up.user_id IS NULL OR up.sms_enabled OR up.push_enabled OR up.email_enabled`,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count active users", err)
	}
	return n, nil
}
