// Package journal persists the outcome of every executed intent in a local sqlite file,
// so unconfirmed transactions can be looked up after the fact.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for unknown intents
var ErrNotFound = errors.New("journal entry not found")

// lockTimeout bounds the wait for the cross-process write lock
const lockTimeout = 5 * time.Second

// Entry is the journal record of one intent
type Entry struct {
	IntentID    string    `json:"intent_id"`
	Action      string    `json:"action"`
	UserID      string    `json:"user_id,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	State       string    `json:"state"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Confirmed   bool      `json:"confirmed"`
	ExplorerURL string    `json:"explorer_url,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the sqlite journal. Writes are serialized across processes with a file lock
// so the CLI and a running service can share one journal.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// Open creates or opens the journal at path; the lock file sits next to it
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS intents (
			intent_id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			state TEXT NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			confirmed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_intents_state_updated ON intents(state, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(path + ".lock"), now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts or updates entry, keeping the first creation time
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.IntentID) == "" {
		return fmt.Errorf("record intent: missing intent id")
	}
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	now := s.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	if existing, err := s.Get(ctx, entry.IntentID); err == nil {
		entry.CreatedAt = existing.CreatedAt
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intents (intent_id, action, state, tx_hash, confirmed, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(intent_id) DO UPDATE SET
			action=excluded.action,
			state=excluded.state,
			tx_hash=excluded.tx_hash,
			confirmed=excluded.confirmed,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, entry.IntentID, entry.Action, entry.State, entry.TxHash, entry.Confirmed,
		entry.CreatedAt.UnixNano(), entry.UpdatedAt.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("record intent: %w", err)
	}
	return nil
}

// Get returns the entry of intentID
func (s *Store) Get(ctx context.Context, intentID string) (Entry, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM intents WHERE intent_id = ?", intentID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, intentID)
		}
		return Entry{}, fmt.Errorf("read intent: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode intent payload: %w", err)
	}
	return entry, nil
}

// List returns the most recently updated entries, optionally filtered by state
func (s *Store) List(ctx context.Context, state string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	if strings.TrimSpace(state) == "" {
		return s.query(ctx, "SELECT payload FROM intents ORDER BY updated_at DESC LIMIT ?", limit)
	}
	return s.query(ctx, "SELECT payload FROM intents WHERE state = ? ORDER BY updated_at DESC LIMIT ?", state, limit)
}

// Unconfirmed returns submitted intents whose confirmation wait gave up
func (s *Store) Unconfirmed(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, "SELECT payload FROM intents WHERE tx_hash != '' AND confirmed = 0 ORDER BY updated_at DESC LIMIT ?", limit)
}

// Counts returns the number of entries per state
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM intents GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("count intents: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan intent row: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode intent row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent rows: %w", err)
	}
	return entries, nil
}
