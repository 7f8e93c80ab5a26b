// Package audit emits structured records for security-relevant account events.
// Plaintext credentials are never part of an Entry.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Event names.
const (
	EventPrincipalProvisioned = "principal.provisioned"
	EventRoleChanged          = "principal.role_changed"
	EventPasswordReset        = "principal.password_reset"
	EventStatusChanged        = "principal.status_changed"
	EventCredentialSet        = "principal.credential_set"
	EventStaffUpdated         = "principal.staff_updated"
	EventTenantCreated        = "tenant.created"
	EventTenantRenamed        = "tenant.renamed"
	EventTenantStatusChanged  = "tenant.status_changed"
	EventLocationCreated      = "location.created"
	EventLocationArchived     = "location.archived"
)

// Entry is one audit record.
type Entry struct {
	Event    string
	ActorID  uuid.UUID
	TargetID uuid.UUID
	TenantID *uuid.UUID
	Details  map[string]string
}

// Logger writes audit entries to slog.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates an audit logger. If logger is nil, uses slog.Default().
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// Record writes entry at info level.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	attrs := []slog.Attr{
		slog.String("event", entry.Event),
		slog.String("actor_id", entry.ActorID.String()),
	}
	if entry.TargetID != uuid.Nil {
		attrs = append(attrs, slog.String("target_id", entry.TargetID.String()))
	}
	if entry.TenantID != nil {
		attrs = append(attrs, slog.String("tenant_id", entry.TenantID.String()))
	}
	for k, v := range entry.Details {
		attrs = append(attrs, slog.String(k, v))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
