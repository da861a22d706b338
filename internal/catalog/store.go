// Package catalog implements the durable catalog store (spec component
// C5): transactional persistence of remotes, buttons, signals, captures,
// agents, and settings, backed by an embedded SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered as "sqlite"
)

var (
	// ErrEmptyName is returned when a remote/button name is empty after
	// trimming.
	ErrEmptyName = errors.New("catalog: name must not be empty")
	// ErrUnknownRemote is returned when an operation references a remote id
	// that does not exist.
	ErrUnknownRemote = errors.New("catalog: unknown remote")
	// ErrUnknownButton is returned when an operation references a button id
	// that does not exist.
	ErrUnknownButton = errors.New("catalog: unknown button")
	// ErrUnknownAgent is returned when an operation references an agent id
	// that does not exist.
	ErrUnknownAgent = errors.New("catalog: unknown agent")
	// ErrPressMissing is returned by UpdateHold when no press signal exists
	// yet for the button (press must precede hold, spec §3).
	ErrPressMissing = errors.New("catalog: press signal missing")
	// ErrEmptyKey is returned by settings operations given an empty key.
	ErrEmptyKey = errors.New("catalog: setting key must not be empty")
	// ErrMasterKeyMissing is returned by GetRuntimeSettings when a secret is
	// stored but no master key is configured to decrypt it.
	ErrMasterKeyMissing = errors.New("catalog: mqtt_password_decrypt_failed: master key not configured")
	// ErrDecryptFailed is returned by GetRuntimeSettings when the stored
	// ciphertext cannot be decrypted under the configured master key.
	ErrDecryptFailed = errors.New("catalog: mqtt_password_decrypt_failed: decryption failed")
)

// Store wraps a *sql.DB with the catalog's schema and one method set per
// entity (remotes.go, buttons.go, signals.go, captures.go, agents.go,
// settings.go), mirroring the teacher's one-struct-many-files shape.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL journaling and foreign-key enforcement, and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + WAL: serialize writers in-process

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("catalog: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("catalog: enable foreign keys: %w", err)
	}
	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("catalog: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS remotes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		icon TEXT,
		carrier_hz INTEGER,
		duty_cycle INTEGER,
		assigned_agent_id TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS buttons (
		id TEXT PRIMARY KEY,
		remote_id TEXT NOT NULL REFERENCES remotes(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		icon TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(remote_id, name)
	);

	CREATE TABLE IF NOT EXISTS button_signals (
		button_id TEXT PRIMARY KEY REFERENCES buttons(id) ON DELETE CASCADE,
		press_initial TEXT NOT NULL,
		press_repeat TEXT,
		hold_initial TEXT,
		hold_repeat TEXT,
		hold_gap_us INTEGER,
		quality_score_press REAL,
		quality_score_hold REAL,
		sample_count_press INTEGER NOT NULL,
		sample_count_hold INTEGER,
		encoding TEXT NOT NULL DEFAULT 'signed_us_v1',
		protocol TEXT,
		address TEXT,
		command TEXT,
		confidence REAL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS captures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		button_id TEXT NOT NULL REFERENCES buttons(id) ON DELETE CASCADE,
		mode TEXT NOT NULL,
		take_index INTEGER NOT NULL,
		raw TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_captures_button ON captures(button_id);

	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		name TEXT,
		icon TEXT,
		transport TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'offline',
		can_send INTEGER NOT NULL DEFAULT 0,
		can_learn INTEGER NOT NULL DEFAULT 0,
		sw_version TEXT,
		agent_topic TEXT,
		configuration_url TEXT,
		pending INTEGER NOT NULL DEFAULT 0,
		pairing_session_id TEXT,
		last_seen DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS app_settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting every mutating
// method accept an optional caller-supplied transaction (spec §4.5: "unless
// a caller-supplied connection/handle is passed through").
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a new transaction, committing on success and
// rolling back on error or panic. Callers composing multi-table updates
// (e.g. settings.update_ui_settings) use this to get one handle to pass
// through to several Store methods.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
