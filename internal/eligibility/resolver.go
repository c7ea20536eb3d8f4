// Package eligibility turns an alert's target specification into the concrete
// set of users to enroll and the channel each one is reached on.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"

	"skyguard/internal/types"
)

// Directory lists users by role. db.ProfileRepository implements it.
type Directory interface {
	ListByRoles(ctx context.Context, roles []types.UserRole) ([]types.Profile, error)
}

// PreferenceStore reads and lazily creates preference rows.
// db.PreferenceRepository implements it.
type PreferenceStore interface {
	ListForUsers(ctx context.Context, userIDs []string) (map[string]types.Preferences, error)
	EnsureDefaults(ctx context.Context, userIDs []string) error
}

// Target describes who an alert is for.
type Target struct {
	Recipients types.TargetSpec
	AlertType  types.AlertType
	// Channel restricts delivery to one method. Empty picks per user.
	Channel types.DeliveryMethod
}

// Recipient is one resolved user and the channel chosen for them.
type Recipient struct {
	UserID         string
	DeliveryMethod types.DeliveryMethod
}

// channelOrder is the preference order when the sender names no channel.
var channelOrder = []types.DeliveryMethod{types.DeliverySMS, types.DeliveryPush, types.DeliveryEmail}

// Resolver implements target resolution.
type Resolver struct {
	directory Directory
	prefs     PreferenceStore
	logger    *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(directory Directory, prefs PreferenceStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{directory: directory, prefs: prefs, logger: logger}
}

// RolesFor maps a target spec to the roles it selects. A nil slice means
// every user.
func RolesFor(spec types.TargetSpec) ([]types.UserRole, error) {
	switch spec {
	case types.TargetAll:
		return nil, nil
	case types.TargetEmergency, types.TargetManagement:
		return []types.UserRole{types.RoleAdmin}, nil
	case types.TargetStaff:
		return []types.UserRole{types.RoleEmployee}, nil
	}
	return nil, types.NewAppError(types.ErrCodeValidationRecipients,
		fmt.Sprintf("Invalid recipients %q", spec), nil)
}

// Resolve returns the deduplicated recipients of t. An empty result is valid.
//
// Users without a preference row are treated as all-enabled and their row is
// created on the way; a failure to create it does not drop them.
func (r *Resolver) Resolve(ctx context.Context, t Target) ([]Recipient, error) {
	roles, err := RolesFor(t.Recipients)
	if err != nil {
		return nil, err
	}
	if !t.AlertType.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationAlertType,
			fmt.Sprintf("Invalid alert type %q", t.AlertType), nil)
	}
	if t.Channel != "" && !t.Channel.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationChannel,
			fmt.Sprintf("Invalid delivery channel %q", t.Channel), nil)
	}

	profiles, err := r.directory.ListByRoles(ctx, roles)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}
	stored, err := r.prefs.ListForUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := stored[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		if err := r.prefs.EnsureDefaults(ctx, missing); err != nil {
			types.LoggerFromContext(ctx, r.logger).WarnContext(ctx,
				"failed to create default preferences; treating users as opted in",
				"count", len(missing), "error", err)
		}
	}

	seen := make(map[string]struct{}, len(profiles))
	out := make([]Recipient, 0, len(profiles))
	for _, p := range profiles {
		if _, dup := seen[p.UserID]; dup {
			continue
		}
		seen[p.UserID] = struct{}{}

		prefs, ok := stored[p.UserID]
		if !ok {
			prefs = types.DefaultPreferences(p.UserID)
		}
		if !prefs.AllowsType(t.AlertType) {
			continue
		}
		method, ok := ChooseChannel(p, prefs, t.Channel, t.AlertType)
		if !ok {
			continue
		}
		out = append(out, Recipient{UserID: p.UserID, DeliveryMethod: method})
	}
	return out, nil
}

// ChooseChannel picks the delivery method for one user. With requested set,
// only that channel is considered. Emergency alerts fall back to in-app
// delivery when no external channel is usable; other types drop the user.
func ChooseChannel(p types.Profile, prefs types.Preferences, requested types.DeliveryMethod, alertType types.AlertType) (types.DeliveryMethod, bool) {
	if requested != "" {
		if Usable(p, prefs, requested) {
			return requested, true
		}
	} else {
		for _, m := range channelOrder {
			if Usable(p, prefs, m) {
				return m, true
			}
		}
	}
	if alertType == types.AlertTypeEmergency {
		return types.DeliverySystem, true
	}
	return "", false
}

// Usable reports whether m is enabled for the user and their profile has
// the contact detail it needs.
func Usable(p types.Profile, prefs types.Preferences, m types.DeliveryMethod) bool {
	if !prefs.ChannelEnabled(m) {
		return false
	}
	switch m {
	case types.DeliverySMS:
		return p.HasPhone()
	case types.DeliveryEmail:
		return p.HasEmail()
	}
	return true
}
