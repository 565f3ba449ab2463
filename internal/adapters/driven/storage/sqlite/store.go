// Package sqlite provides persistent store adapters backed by a single
// SQLite database file. Workflow state, ledger snapshots and the audit
// history survive process restarts; chunks and vectors are rebuilt by
// re-indexing and stay in memory.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/forge-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides the persistent
// store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.forge/data/forge.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".forge", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "forge.db")

	// WAL mode for concurrent readers alongside the writer.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// WorkflowStore returns a WorkflowStore interface backed by this store.
func (s *Store) WorkflowStore() driven.WorkflowStore {
	return &workflowStore{store: s}
}

// LedgerStore returns a LedgerStore interface backed by this store.
func (s *Store) LedgerStore() driven.LedgerStore {
	return &ledgerStore{store: s}
}

// HistoryStore returns a HistoryStore interface backed by this store.
func (s *Store) HistoryStore() driven.HistoryStore {
	return &historyStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Workflow Store ====================

// workflowStore implements driven.WorkflowStore.
type workflowStore struct {
	store *Store
}

var _ driven.WorkflowStore = (*workflowStore)(nil)

// Save stores or replaces a workflow record.
func (s *workflowStore) Save(ctx context.Context, rec *domain.WorkflowRecord) error {
	if rec == nil || rec.ID == "" {
		return domain.ErrInvalidInput
	}

	filesJSON, err := json.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("marshalling files: %w", err)
	}
	historyJSON, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("marshalling history: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO workflow_records
			(id, state, branch_name, pr_number, rollback_pr_number, orchestration_id,
			 title, body, files, history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			branch_name = excluded.branch_name,
			pr_number = excluded.pr_number,
			rollback_pr_number = excluded.rollback_pr_number,
			title = excluded.title,
			body = excluded.body,
			files = excluded.files,
			history = excluded.history,
			updated_at = excluded.updated_at
	`, rec.ID, string(rec.State), rec.BranchName, rec.PRNumber, rec.RollbackPRNumber,
		rec.OrchestrationID, rec.Title, rec.Body, string(filesJSON), string(historyJSON),
		rec.CreatedAt, rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving workflow record: %w", err)
	}
	return nil
}

// Get retrieves a workflow record by ID.
func (s *workflowStore) Get(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, state, branch_name, pr_number, rollback_pr_number, orchestration_id,
		       title, body, files, history, created_at, updated_at
		FROM workflow_records WHERE id = ?
	`, id)

	rec, err := scanWorkflowRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List retrieves all workflow records, newest first.
func (s *workflowStore) List(ctx context.Context) ([]domain.WorkflowRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, state, branch_name, pr_number, rollback_pr_number, orchestration_id,
		       title, body, files, history, created_at, updated_at
		FROM workflow_records ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing workflow records: %w", err)
	}
	defer rows.Close()

	var records []domain.WorkflowRecord
	for rows.Next() {
		rec, err := scanWorkflowRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanWorkflowRecord scans one row into a record.
func scanWorkflowRecord(scan func(...any) error) (*domain.WorkflowRecord, error) {
	var (
		rec         domain.WorkflowRecord
		state       string
		filesJSON   string
		historyJSON string
	)
	if err := scan(&rec.ID, &state, &rec.BranchName, &rec.PRNumber, &rec.RollbackPRNumber,
		&rec.OrchestrationID, &rec.Title, &rec.Body, &filesJSON, &historyJSON,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.State = domain.WorkflowState(state)

	if err := json.Unmarshal([]byte(filesJSON), &rec.Files); err != nil {
		return nil, fmt.Errorf("unmarshaling files: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &rec.History); err != nil {
		return nil, fmt.Errorf("unmarshaling history: %w", err)
	}
	return &rec, nil
}

// ==================== Ledger Store ====================

// ledgerStore implements driven.LedgerStore.
type ledgerStore struct {
	store *Store
}

var _ driven.LedgerStore = (*ledgerStore)(nil)

// Save replaces the persisted snapshot for the snapshot's session in
// one transaction.
func (s *ledgerStore) Save(ctx context.Context, snapshot domain.LedgerSnapshot) error {
	if snapshot.SessionID == "" {
		return domain.ErrInvalidInput
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM ledger_entries WHERE session_id = ?", snapshot.SessionID); err != nil {
		return fmt.Errorf("clearing ledger entries: %w", err)
	}

	for _, entry := range snapshot.Entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (session_id, provider, call_count, total_cost_usd)
			VALUES (?, ?, ?, ?)
		`, snapshot.SessionID, entry.Provider, entry.CallCount, entry.TotalCostUSD); err != nil {
			return fmt.Errorf("saving ledger entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_sessions (session_id, total_usd, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			total_usd = excluded.total_usd,
			updated_at = excluded.updated_at
	`, snapshot.SessionID, snapshot.SessionTotalUSD, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving ledger session: %w", err)
	}

	return tx.Commit()
}

// Load returns the persisted snapshot for a session.
func (s *ledgerStore) Load(ctx context.Context, sessionID string) (*domain.LedgerSnapshot, error) {
	var snapshot domain.LedgerSnapshot
	snapshot.SessionID = sessionID

	row := s.store.db.QueryRowContext(ctx,
		"SELECT total_usd FROM ledger_sessions WHERE session_id = ?", sessionID)
	if err := row.Scan(&snapshot.SessionTotalUSD); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("loading ledger session: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT provider, call_count, total_cost_usd
		FROM ledger_entries WHERE session_id = ? ORDER BY provider
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading ledger entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry := domain.CostLedgerEntry{SessionID: sessionID}
		if err := rows.Scan(&entry.Provider, &entry.CallCount, &entry.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		snapshot.Entries = append(snapshot.Entries, entry)
	}
	return &snapshot, rows.Err()
}

// ==================== History Store ====================

// historyStore implements driven.HistoryStore.
type historyStore struct {
	store *Store
}

var _ driven.HistoryStore = (*historyStore)(nil)

// Append adds an audit event. Events are immutable once written.
func (s *historyStore) Append(ctx context.Context, event domain.AuditEvent) error {
	if event.ID == "" {
		return domain.ErrInvalidInput
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, kind, timestamp, session_id, ref, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, string(event.Kind), event.Timestamp, event.SessionID, event.Ref, string(payloadJSON))

	if err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// List returns the events for a session in timestamp order. An empty
// session ID returns everything.
func (s *historyStore) List(ctx context.Context, sessionID string) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, kind, timestamp, session_id, ref, payload
		FROM audit_events WHERE session_id = ? ORDER BY timestamp, id
	`
	args := []any{sessionID}
	if sessionID == "" {
		query = `
			SELECT id, kind, timestamp, session_id, ref, payload
			FROM audit_events ORDER BY timestamp, id
		`
		args = nil
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event       domain.AuditEvent
			kind        string
			payloadJSON string
		)
		if err := rows.Scan(&event.ID, &kind, &event.Timestamp, &event.SessionID,
			&event.Ref, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		event.Kind = domain.EventKind(kind)
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling payload: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
