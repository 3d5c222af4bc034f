package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// ErrDBPathRequired is returned when Open is called without a path.
var ErrDBPathRequired = errors.New("db path is required")

type migration struct {
	version     int
	description string
	sql         string
}

// migrations is the ordered list of schema migrations.
var migrations = []migration{
	{
		version:     1,
		description: "ledger snapshots keyed by owner scope and kind",
		sql: `
CREATE TABLE IF NOT EXISTS ledger_snapshots (
  owner_scope TEXT NOT NULL,
  kind TEXT NOT NULL,
  document BLOB NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (owner_scope, kind)
);
`,
	},
}

// SQLiteSnapshotStore keeps snapshots in a local SQLite database.
type SQLiteSnapshotStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at path and bootstraps the schema.
func OpenSQLite(path string) (*SQLiteSnapshotStore, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database '%s': %w", path, err)
	}

	configErr := configureDB(db)
	if configErr != nil {
		_ = db.Close()

		return nil, configErr
	}

	migrateErr := runMigrations(db)
	if migrateErr != nil {
		_ = db.Close()

		return nil, migrateErr
	}

	return &SQLiteSnapshotStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteSnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// ReadSnapshot returns the stored document for the pair.
func (s *SQLiteSnapshotStore) ReadSnapshot(ctx context.Context, ownerScope string, kind core.Kind) ([]byte, error) {
	var document []byte

	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM ledger_snapshots WHERE owner_scope = ? AND kind = ?",
		ownerScope, string(kind),
	).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s snapshot: %w", kind, err)
	}

	return document, nil
}

// WriteSnapshot replaces the stored document for the pair.
func (s *SQLiteSnapshotStore) WriteSnapshot(ctx context.Context, ownerScope string, kind core.Kind, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ledger_snapshots (owner_scope, kind, document, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (owner_scope, kind) DO UPDATE SET
  document = excluded.document,
  updated_at = excluded.updated_at`,
		ownerScope, string(kind), data, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s snapshot: %w", kind, err)
	}

	return nil
}

// DeleteSnapshot removes the stored document for the pair.
func (s *SQLiteSnapshotStore) DeleteSnapshot(ctx context.Context, ownerScope string, kind core.Kind) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM ledger_snapshots WHERE owner_scope = ? AND kind = ?",
		ownerScope, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s snapshot: %w", kind, err)
	}

	return nil
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = FULL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}

	for _, stmt := range pragmas {
		_, err := db.Exec(stmt)
		if err != nil {
			return fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  description TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int

	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, step := range migrations {
		if step.version <= current {
			continue
		}

		applyErr := applyMigration(db, step)
		if applyErr != nil {
			return applyErr
		}
	}

	return nil
}

func applyMigration(db *sql.DB, step migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", step.version, err)
	}

	_, err = tx.Exec(step.sql)
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("failed to apply migration %d (%s): %w", step.version, step.description, err)
	}

	_, err = tx.Exec(
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
		step.version, step.description, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("failed to record migration %d: %w", step.version, err)
	}

	commitErr := tx.Commit()
	if commitErr != nil {
		return fmt.Errorf("failed to commit migration %d: %w", step.version, commitErr)
	}

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", ErrDBPathRequired
	}

	u := url.URL{Scheme: "file", Path: path}

	return u.String(), nil
}
