package driven

import (
	"context"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

// HistoryStore is the append-only audit sink. Events are never mutated
// or deleted, and core never reads them back for control decisions.
// Concurrent appends are allowed.
type HistoryStore interface {
	// Append records one event.
	Append(ctx context.Context, event domain.AuditEvent) error

	// List returns events for a session in timestamp order. Display
	// only; no component branches on the result.
	List(ctx context.Context, sessionID string) ([]domain.AuditEvent, error)
}

// WorkflowStore persists workflow records across process restarts.
// The workflow engine is the only writer.
type WorkflowStore interface {
	// Save stores or updates a record.
	Save(ctx context.Context, record *domain.WorkflowRecord) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*domain.WorkflowRecord, error)

	// List returns all records.
	List(ctx context.Context) ([]domain.WorkflowRecord, error)
}

// LedgerStore persists cost ledger entries so session spend survives
// process restarts within a session scope.
type LedgerStore interface {
	// Save stores or updates the entries of a session snapshot.
	Save(ctx context.Context, snapshot domain.LedgerSnapshot) error

	// Load returns the persisted snapshot for a session.
	Load(ctx context.Context, sessionID string) (*domain.LedgerSnapshot, error)
}

// ConfigStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and type conversion.
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	// Returns the value and a boolean indicating if the key exists.
	Get(key string) (any, bool)

	// GetString retrieves a string configuration value.
	GetString(key string) string

	// GetInt retrieves an integer configuration value.
	GetInt(key string) int

	// GetFloat retrieves a float configuration value.
	GetFloat(key string) float64

	// GetBool retrieves a boolean configuration value.
	GetBool(key string) bool

	// Set stores a configuration value. The value is persisted
	// immediately.
	Set(key string, value any) error

	// Save persists the current configuration to storage.
	Save() error

	// Load reads configuration from storage.
	Load() error

	// Path returns the configuration file path.
	Path() string
}
