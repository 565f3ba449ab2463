package domain

import "time"

// EventKind categorises audit events.
type EventKind string

// Audit event kinds.
const (
	EventOrchestration EventKind = "orchestration"
	EventCost          EventKind = "cost"
	EventWorkflow      EventKind = "workflow"
	EventIndex         EventKind = "index"
)

// AuditEvent is one append-only history record. Events are never
// mutated or deleted, and are never read back for control decisions.
type AuditEvent struct {
	// ID is the unique event identifier.
	ID string

	// Kind categorises the event.
	Kind EventKind

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// SessionID scopes the event to a session.
	SessionID string

	// Ref points at the subject record (orchestration ID, workflow ID,
	// provider name, corpus path).
	Ref string

	// Payload carries event-specific details.
	Payload map[string]any
}
