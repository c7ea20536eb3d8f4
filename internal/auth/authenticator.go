package auth

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"skyguard/internal/ratelimit"
	"skyguard/internal/types"
)

// machineCost is the bcrypt cost used by HashMachineToken.
const machineCost = 12

// RoleLookup loads the current role of a user. db.ProfileRepository
// implements it.
type RoleLookup interface {
	GetByID(ctx context.Context, userID string) (*types.Profile, error)
}

// FailureAuditor records authentication failures. *audit.Monitor implements it.
type FailureAuditor interface {
	FailedAuth(ctx context.Context, identifier, reason, ip, userAgent string)
	SuspiciousActivity(ctx context.Context, actor types.Actor, reason string, details map[string]any)
}

// Config groups the collaborators of an Authenticator. Directory,
// MachineTokenHash, Auditor and Failures are optional.
type Config struct {
	Verifier *TokenVerifier
	// Directory supplies the live role. Without it the token's role claim
	// is trusted.
	Directory RoleLookup
	// MachineTokenHash is the bcrypt hash of the scheduler token.
	MachineTokenHash string
	Auditor          FailureAuditor
	// Failures counts failed attempts per client IP. A rejection from it
	// marks the client as suspicious.
	Failures ratelimit.Limiter
	Logger   *slog.Logger
}

// Authenticator resolves bearer tokens to actors.
type Authenticator struct {
	cfg Config
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg Config) *Authenticator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Authenticator{cfg: cfg}
}

// ResolveToken returns the actor for token. Three-segment tokens are JWTs;
// anything else is compared against the machine token.
func (a *Authenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	if strings.Count(token, ".") != 2 {
		return a.resolveMachine(token)
	}

	claims, err := a.cfg.Verifier.Parse(token)
	if err != nil {
		return nil, err
	}

	role := types.UserRole(claims.Role)
	if a.cfg.Directory != nil {
		profile, err := a.cfg.Directory.GetByID(ctx, claims.Subject)
		if err != nil {
			if types.IsCode(err, types.ErrCodeNotFoundUser) {
				return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Unknown user", err)
			}
			return nil, err
		}
		role = profile.Role
	}
	if !role.Valid() {
		role = types.RoleEmployee
	}

	return &types.Actor{ID: claims.Subject, Type: types.ActorTypeUser, Role: role}, nil
}

func (a *Authenticator) resolveMachine(token string) (*types.Actor, error) {
	if a.cfg.MachineTokenHash == "" || token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid authentication token", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.cfg.MachineTokenHash), []byte(token)); err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid authentication token", nil)
	}
	actor := types.SystemActor()
	return &actor, nil
}

// RecordFailure audits a failed authentication and flags clients that keep
// failing.
func (a *Authenticator) RecordFailure(ctx context.Context, reason, ip, userAgent string) {
	if a.cfg.Auditor != nil {
		a.cfg.Auditor.FailedAuth(ctx, "bearer_token", reason, ip, userAgent)
	}
	if a.cfg.Failures == nil || ip == "" {
		return
	}

	decision, err := a.cfg.Failures.Allow(ctx, "auth_fail:"+ip)
	if err != nil {
		a.cfg.Logger.WarnContext(ctx, "auth failure counter unavailable", "error", err)
		return
	}
	if !decision.Allowed && a.cfg.Auditor != nil {
		client := types.Actor{IPAddress: ip, UserAgent: userAgent}
		a.cfg.Auditor.SuspiciousActivity(ctx, client, "repeated_auth_failures", map[string]any{
			"limit": decision.Limit,
		})
	}
}

// HashMachineToken returns the bcrypt hash stored in SCHEDULER_TOKEN_HASH.
func HashMachineToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), machineCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
