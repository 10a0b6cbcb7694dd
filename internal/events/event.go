package events

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types emitted on user mutations.
const (
	TypeUserCreated         = "user.created"
	TypeUserUpdated         = "user.updated"
	TypeUserDeleted         = "user.deleted"
	TypeUserPasswordChanged = "user.password_changed"
)

// Event is the payload delivered to downstream sinks.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	TenantName string         `json:"tenant_name"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New constructs an Event for the given user and type.
func New(eventType, userID, tenantName string, details map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		TenantName: tenantName,
		Details:    details,
		OccurredAt: time.Now().UTC(),
	}
}
