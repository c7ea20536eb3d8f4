package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skyguard/internal/types"
)

// ProfileRepository provides data access for the profiles table (the user
// directory).
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a ProfileRepository backed by the given
// connection (pool or transaction).
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// profileColumns must match the scan order in scanProfile.
const profileColumns = `p.user_id, p.username, p.email, p.phone_number, p.role, p.created_at, p.updated_at`

func scanProfile(row pgx.Row) (*types.Profile, error) {
	var p types.Profile
	err := row.Scan(
		&p.UserID,
		&p.Username,
		&p.Email,
		&p.PhoneNumber,
		&p.Role,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProfiles(rows pgx.Rows) ([]types.Profile, error) {
	defer rows.Close()
	var out []types.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetByID returns the profile for userID or ErrCodeNotFoundUser.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*types.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.user_id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return p, nil
}

// ListByRoles returns every profile whose role is in roles. An empty roles
// slice selects all users.
func (r *ProfileRepository) ListByRoles(ctx context.Context, roles []types.UserRole) ([]types.Profile, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(roles) == 0 {
		rows, err = r.db.Query(ctx,
			`SELECT `+profileColumns+` FROM profiles p ORDER BY p.created_at`)
	} else {
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		rows, err = r.db.Query(ctx,
			`SELECT `+profileColumns+` FROM profiles p WHERE p.role = ANY($1) ORDER BY p.created_at`,
			names,
		)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	profiles, err := collectProfiles(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan users", err)
	}
	return profiles, nil
}

// ListByIDs returns the profiles among userIDs that exist.
func (r *ProfileRepository) ListByIDs(ctx context.Context, userIDs []string) ([]types.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.user_id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	profiles, err := collectProfiles(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan users", err)
	}
	return profiles, nil
}

// List returns one page of users ordered by username. The caller passes
// limit+1 to detect further pages.
func (r *ProfileRepository) List(ctx context.Context, limit, offset int) ([]types.Profile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles p ORDER BY p.username, p.user_id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	profiles, err := collectProfiles(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan users", err)
	}
	return profiles, nil
}

// Count returns the total number of users.
func (r *ProfileRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count users", err)
	}
	return n, nil
}

// UpdateRole sets the role of userID and returns the previous role.
func (r *ProfileRepository) UpdateRole(ctx context.Context, userID string, role types.UserRole, now time.Time) (types.UserRole, error) {
	var previous types.UserRole
	err := r.db.QueryRow(ctx,
		`UPDATE profiles p SET role = $2, updated_at = $3
		 FROM (SELECT user_id, role FROM profiles WHERE user_id = $1 FOR UPDATE) old
		 WHERE p.user_id = old.user_id
		 RETURNING old.role`,
		userID, role, now,
	).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to update user role", err)
	}
	return previous, nil
}

// UpdatePhone stores a normalized phone number, or clears it when phone is
// empty.
func (r *ProfileRepository) UpdatePhone(ctx context.Context, userID, phone string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET phone_number = $2, updated_at = $3 WHERE user_id = $1`,
		userID, nilIfEmpty(phone), now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update phone number", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
