// Package audit records security events. Writes never fail the caller: a
// store error is logged, counted, and swallowed.
package audit

import (
	"context"
	"log/slog"
	"sync/atomic"

	"skyguard/internal/types"
)

// Event is one security event to record.
type Event struct {
	Type      types.AuditEventType
	UserID    string
	Details   map[string]any
	IPAddress string
	UserAgent string
}

// Store appends audit entries. db.AuditRepository and MemoryStore implement it.
type Store interface {
	Insert(ctx context.Context, e *types.AuditLogEntry) error
}

// FailureCounter is notified when a write is dropped.
type FailureCounter interface {
	AuditWriteFailed()
}

// Monitor is the audit log entry point shared by all services.
type Monitor struct {
	store    Store
	clock    types.Clock
	logger   *slog.Logger
	counter  FailureCounter
	failures atomic.Int64
}

// NewMonitor creates a Monitor. clock, logger and counter may be nil.
func NewMonitor(store Store, clock types.Clock, logger *slog.Logger, counter FailureCounter) *Monitor {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{store: store, clock: clock, logger: logger, counter: counter}
}

// Log appends ev. Unknown event types and store failures are logged and
// dropped.
func (m *Monitor) Log(ctx context.Context, ev Event) {
	if !ev.Type.Valid() {
		m.drop(ctx, ev, "unknown audit event type", nil)
		return
	}

	entry := &types.AuditLogEntry{
		EventType: ev.Type,
		UserID:    optional(ev.UserID),
		Details:   ev.Details,
		IPAddress: optional(ev.IPAddress),
		UserAgent: optional(ev.UserAgent),
		CreatedAt: m.clock.Now(),
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}

	if err := m.store.Insert(ctx, entry); err != nil {
		m.drop(ctx, ev, "failed to write audit log", err)
	}
}

func (m *Monitor) drop(ctx context.Context, ev Event, msg string, err error) {
	m.failures.Add(1)
	if m.counter != nil {
		m.counter.AuditWriteFailed()
	}
	attrs := []any{"event_type", string(ev.Type), "user_id", ev.UserID}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	types.LoggerFromContext(ctx, m.logger).ErrorContext(ctx, msg, attrs...)
}

// Failures returns the number of dropped writes since start.
func (m *Monitor) Failures() int64 {
	return m.failures.Load()
}

// FailedAuth records a rejected authentication attempt.
func (m *Monitor) FailedAuth(ctx context.Context, identifier, reason, ip, userAgent string) {
	m.Log(ctx, Event{
		Type:      types.AuditFailedAuth,
		Details:   map[string]any{"identifier": identifier, "reason": reason},
		IPAddress: ip,
		UserAgent: userAgent,
	})
}

// RoleChange records an attempt by actor to change targetUserID's role.
func (m *Monitor) RoleChange(ctx context.Context, actor types.Actor, targetUserID string, oldRole, newRole types.UserRole, success bool) {
	details := map[string]any{
		"action":         types.ActionRoleChange,
		"target_user_id": targetUserID,
		"new_role":       string(newRole),
		"success":        success,
	}
	if oldRole != "" {
		details["old_role"] = string(oldRole)
	}
	m.Log(ctx, Event{
		Type:      types.AuditRoleChangeAttempt,
		UserID:    actor.ID,
		Details:   details,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
}

// AdminAction records a privileged operation. details is copied and gains an
// "action" key.
func (m *Monitor) AdminAction(ctx context.Context, actor types.Actor, action string, details map[string]any) {
	merged := make(map[string]any, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	merged["action"] = action
	m.Log(ctx, Event{
		Type:      types.AuditAdminAction,
		UserID:    actorUserID(actor),
		Details:   merged,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
}

// UnauthorizedAccess records a request rejected for insufficient role.
func (m *Monitor) UnauthorizedAccess(ctx context.Context, actor types.Actor, method, path string) {
	m.Log(ctx, Event{
		Type:      types.AuditUnauthorizedAccess,
		UserID:    actorUserID(actor),
		Details:   map[string]any{"method": method, "path": path, "role": string(actor.Role)},
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
}

// SuspiciousActivity records anything else worth a second look.
func (m *Monitor) SuspiciousActivity(ctx context.Context, actor types.Actor, reason string, details map[string]any) {
	merged := map[string]any{"reason": reason}
	for k, v := range details {
		merged[k] = v
	}
	m.Log(ctx, Event{
		Type:      types.AuditSuspiciousActivity,
		UserID:    actorUserID(actor),
		Details:   merged,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
}

// actorUserID returns "" for the system actor, whose ID is not a user.
func actorUserID(actor types.Actor) string {
	if actor.Type == types.ActorTypeSystem {
		return ""
	}
	return actor.ID
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
