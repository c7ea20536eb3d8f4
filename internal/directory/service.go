// Package directory manages user profiles and delivery preferences on
// behalf of the API: listing users, role changes, phone numbers and
// preference updates.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"skyguard/internal/types"
)

// ProfileStore is the subset of db.ProfileRepository used here.
type ProfileStore interface {
	GetByID(ctx context.Context, userID string) (*types.Profile, error)
	List(ctx context.Context, limit, offset int) ([]types.Profile, error)
	UpdateRole(ctx context.Context, userID string, role types.UserRole, now time.Time) (types.UserRole, error)
	UpdatePhone(ctx context.Context, userID, phone string, now time.Time) error
}

// PreferenceStore is the subset of db.PreferenceRepository used here.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*types.Preferences, error)
	Update(ctx context.Context, p *types.Preferences) error
	ListForUsers(ctx context.Context, userIDs []string) (map[string]types.Preferences, error)
}

// Auditor records role changes and admin actions. *audit.Monitor
// implements it.
type Auditor interface {
	RoleChange(ctx context.Context, actor types.Actor, targetUserID string, oldRole, newRole types.UserRole, success bool)
	AdminAction(ctx context.Context, actor types.Actor, action string, details map[string]any)
}

// User is a profile with its effective preferences.
type User struct {
	types.Profile
	Preferences types.Preferences `json:"preferences"`
}

// Service implements the user-management operations.
type Service struct {
	profiles ProfileStore
	prefs    PreferenceStore
	auditor  Auditor
	clock    types.Clock
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(profiles ProfileStore, prefs PreferenceStore, auditor Auditor, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{profiles: profiles, prefs: prefs, auditor: auditor, clock: clock, logger: logger}
}

// ListUsers returns a page of users with their preferences. Users without a
// stored preference row get the all-enabled defaults.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	profiles, err := s.profiles.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.UserID
	}
	prefs, err := s.prefs.ListForUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]User, len(profiles))
	for i, p := range profiles {
		pref, ok := prefs[p.UserID]
		if !ok {
			pref = types.DefaultPreferences(p.UserID)
		}
		out[i] = User{Profile: p, Preferences: pref}
	}
	return out, nil
}

// GetPreferences returns userID's preferences, creating the default row on
// first access.
func (s *Service) GetPreferences(ctx context.Context, userID string) (*types.Preferences, error) {
	return s.prefs.Get(ctx, userID)
}

// UpdatePreferences applies patch to userID's preferences. An empty patch
// returns the current preferences unchanged.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, patch types.PreferencesPatch) (*types.Preferences, error) {
	current, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated := patch.Apply(*current)
	updated.UserID = userID
	updated.UpdatedAt = s.clock.Now()
	if err := s.prefs.Update(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ChangeRole sets targetID's role. Only admins may change roles and nobody
// may change their own. Every attempt is audited, including rejected ones.
func (s *Service) ChangeRole(ctx context.Context, targetID string, role types.UserRole) (*types.Profile, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || actor.ID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}
	if !role.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationRole, fmt.Sprintf("Invalid role %q", role), nil)
	}
	if !actor.IsAdmin() {
		s.audit(ctx, actor, targetID, "", role, false)
		return nil, types.NewAppError(types.ErrCodePermissionRole, "Only administrators can change roles", nil)
	}
	if actor.ID == targetID {
		s.audit(ctx, actor, targetID, actor.Role, role, false)
		return nil, types.NewAppError(types.ErrCodeValidationSelfDemotion, "You cannot change your own role", nil)
	}

	previous, err := s.profiles.UpdateRole(ctx, targetID, role, s.clock.Now())
	if err != nil {
		s.audit(ctx, actor, targetID, "", role, false)
		return nil, err
	}
	s.audit(ctx, actor, targetID, previous, role, true)

	return s.profiles.GetByID(ctx, targetID)
}

func (s *Service) audit(ctx context.Context, actor types.Actor, targetID string, oldRole, newRole types.UserRole, success bool) {
	if s.auditor != nil {
		s.auditor.RoleChange(ctx, actor, targetID, oldRole, newRole, success)
	}
}

// UpdatePhone sets or clears targetID's phone number. Users may edit their
// own number; admins may edit anyone's.
func (s *Service) UpdatePhone(ctx context.Context, targetID, phone string) (*types.Profile, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || actor.ID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}
	if actor.ID != targetID && !actor.IsAdmin() {
		return nil, types.NewAppError(types.ErrCodePermissionRole, "You can only change your own phone number", nil)
	}

	normalized := ""
	if phone != "" {
		var err error
		if normalized, err = types.NormalizePhoneNumber(phone); err != nil {
			return nil, err
		}
	}
	if err := s.profiles.UpdatePhone(ctx, targetID, normalized, s.clock.Now()); err != nil {
		return nil, err
	}

	if s.auditor != nil && actor.ID != targetID {
		s.auditor.AdminAction(ctx, actor, types.ActionPhoneUpdated, map[string]any{
			"target_user_id": targetID,
			"cleared":        normalized == "",
		})
	}
	return s.profiles.GetByID(ctx, targetID)
}
