package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skyguard/internal/types"
)

// WeatherRuleRepository provides data access for the weather_alerts table.
type WeatherRuleRepository struct {
	db DBTX
}

// NewWeatherRuleRepository creates a WeatherRuleRepository.
func NewWeatherRuleRepository(db DBTX) *WeatherRuleRepository {
	return &WeatherRuleRepository{db: db}
}

const ruleColumns = `id, alert_type, condition_operator, threshold_value, location_filter, is_active,
	alert_title, alert_message, created_by, created_at, updated_at`

func scanRule(row pgx.Row) (*types.WeatherAlertRule, error) {
	var rule types.WeatherAlertRule
	err := row.Scan(
		&rule.ID,
		&rule.AlertType,
		&rule.ConditionOperator,
		&rule.ThresholdValue,
		&rule.LocationFilter,
		&rule.IsActive,
		&rule.AlertTitle,
		&rule.AlertMessage,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *WeatherRuleRepository) queryRules(ctx context.Context, sql string, args ...any) ([]types.WeatherAlertRule, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list weather rules", err)
	}
	defer rows.Close()

	var out []types.WeatherAlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan weather rule", err)
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate weather rules", err)
	}
	return out, nil
}

// List returns every rule, newest first.
func (r *WeatherRuleRepository) List(ctx context.Context) ([]types.WeatherAlertRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM weather_alerts ORDER BY created_at DESC`)
}

// ListActive returns the rules the evaluator should check.
func (r *WeatherRuleRepository) ListActive(ctx context.Context) ([]types.WeatherAlertRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM weather_alerts WHERE is_active ORDER BY created_at`)
}

// GetByID returns the rule or ErrCodeNotFoundRule.
func (r *WeatherRuleRepository) GetByID(ctx context.Context, id string) (*types.WeatherAlertRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM weather_alerts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "weather rule not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve weather rule", err)
	}
	return rule, nil
}

// Create inserts rule and fills in its ID and timestamps.
func (r *WeatherRuleRepository) Create(ctx context.Context, rule *types.WeatherAlertRule) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO weather_alerts (alert_type, condition_operator, threshold_value, location_filter,
		     is_active, alert_title, alert_message, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		rule.AlertType,
		rule.ConditionOperator,
		rule.ThresholdValue,
		rule.LocationFilter,
		rule.IsActive,
		rule.AlertTitle,
		rule.AlertMessage,
		rule.CreatedBy,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create weather rule", err)
	}
	return nil
}

// Update overwrites the editable fields of rule.
func (r *WeatherRuleRepository) Update(ctx context.Context, rule *types.WeatherAlertRule) error {
	err := r.db.QueryRow(ctx,
		`UPDATE weather_alerts SET alert_type = $2, condition_operator = $3, threshold_value = $4,
		     location_filter = $5, is_active = $6, alert_title = $7, alert_message = $8, updated_at = NOW()
		 WHERE id = $1
		 RETURNING created_at, updated_at, created_by`,
		rule.ID,
		rule.AlertType,
		rule.ConditionOperator,
		rule.ThresholdValue,
		rule.LocationFilter,
		rule.IsActive,
		rule.AlertTitle,
		rule.AlertMessage,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt, &rule.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundRule, "weather rule not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update weather rule", err)
	}
	return nil
}

// SetActive flips is_active and returns the updated rule.
func (r *WeatherRuleRepository) SetActive(ctx context.Context, id string, active bool) (*types.WeatherAlertRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx,
		`UPDATE weather_alerts SET is_active = $2, updated_at = NOW() WHERE id = $1
		 RETURNING `+ruleColumns,
		id, active,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "weather rule not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to toggle weather rule", err)
	}
	return rule, nil
}

// Delete removes the rule. Its logs keep their rows with a NULL rule id.
func (r *WeatherRuleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM weather_alerts WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete weather rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "weather rule not found", nil)
	}
	return nil
}

// WeatherLogRepository provides data access for weather_alert_logs, the
// de-duplication ledger of the weather evaluator.
type WeatherLogRepository struct {
	db DBTX
}

// NewWeatherLogRepository creates a WeatherLogRepository.
func NewWeatherLogRepository(db DBTX) *WeatherLogRepository {
	return &WeatherLogRepository{db: db}
}

// ExistsByTriggerKey reports whether any log ever carried key.
func (r *WeatherLogRepository) ExistsByTriggerKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM weather_alert_logs WHERE trigger_key = $1)`,
		key,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check weather trigger", err)
	}
	return exists, nil
}

// ExistsSince reports whether a log with key was written at or after since.
func (r *WeatherLogRepository) ExistsSince(ctx context.Context, key string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM weather_alert_logs WHERE trigger_key = $1 AND created_at >= $2)`,
		key, since,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check weather cooldown", err)
	}
	return exists, nil
}

// ExistsForRuleSince reports whether ruleID fired at or after since.
func (r *WeatherLogRepository) ExistsForRuleSince(ctx context.Context, ruleID string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM weather_alert_logs WHERE weather_alert_id = $1 AND created_at >= $2)`,
		ruleID, since,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check rule cooldown", err)
	}
	return exists, nil
}

// Create appends a log entry.
func (r *WeatherLogRepository) Create(ctx context.Context, entry *types.WeatherAlertLog) error {
	data, err := marshalJSONB(entry.WeatherData)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode weather snapshot", err)
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO weather_alert_logs (weather_alert_id, alert_id, trigger_key, weather_data,
		     affected_users_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		 RETURNING id, created_at`,
		entry.WeatherAlertID,
		entry.AlertID,
		entry.TriggerKey,
		data,
		entry.AffectedUsersCount,
		nilIfZeroTime(entry.CreatedAt),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write weather alert log", err)
	}
	return nil
}
