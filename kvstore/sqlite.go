package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBFileName is the SQLite filename created under a data directory.
const DefaultDBFileName = "deaddrop.db"

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS records (
  bucket     TEXT NOT NULL,
  id         TEXT NOT NULL,
  value      BLOB NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (bucket, id)
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_records_bucket_updated
ON records (bucket, updated_at DESC);
`,
}

// SQLite is a durable Store backed by a single SQLite database file.
type SQLite struct {
	db        *sql.DB
	closeOnce sync.Once
}

// OpenSQLite opens (or creates) deaddrop.db under dataDir and runs schema
// migrations.
func OpenSQLite(dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return OpenSQLitePath(filepath.Join(dataDir, DefaultDBFileName))
}

// OpenSQLitePath opens SQLite at an explicit path and runs schema migrations.
func OpenSQLitePath(dbPath string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(dbPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &SQLite{db: db}
	if err := store.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Get returns the record stored under bucket/id, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, bucket, id string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE bucket = ? AND id = ?`,
		bucket, id,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return value, nil
}

// Set stores value under bucket/id, replacing any existing record.
func (s *SQLite) Set(ctx context.Context, bucket, id string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO records (bucket, id, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (bucket, id) DO UPDATE SET
  value      = excluded.value,
  updated_at = excluded.updated_at;
`,
		bucket, id, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set record: %w", err)
	}
	return nil
}

// Delete removes the record under bucket/id if present.
func (s *SQLite) Delete(ctx context.Context, bucket, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE bucket = ? AND id = ?`,
		bucket, id,
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// List returns every record in bucket, keyed by id.
func (s *SQLite) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, value FROM records WHERE bucket = ?`,
		bucket,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			id    string
			value []byte
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out[id] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Apply performs every write inside one transaction; either all of them
// land or none do.
func (s *SQLite) Apply(ctx context.Context, writes []Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UnixMilli()
	for _, w := range writes {
		if w.Value == nil {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM records WHERE bucket = ? AND id = ?`,
				w.Bucket, w.ID,
			)
		} else {
			_, err = tx.ExecContext(ctx, `
INSERT INTO records (bucket, id, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (bucket, id) DO UPDATE SET
  value      = excluded.value,
  updated_at = excluded.updated_at;
`,
				w.Bucket, w.ID, w.Value, now)
		}
		if err != nil {
			return fmt.Errorf("apply batch write %s/%s: %w", w.Bucket, w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *SQLite) enableWALMode() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", journalMode)
	}
	return nil
}

func (s *SQLite) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}

	return nil
}
