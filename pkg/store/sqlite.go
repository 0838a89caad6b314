package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (bucket, key)
);
`

// SQLiteStore implements Store using SQLite. A single database file holds
// all buckets; SQLite transactions provide the atomic-replace guarantee
// required for generation counters and their content.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path. Parent directories are created.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, NewOpError("sqlite", "mkdir", err)
	}

	// WAL mode for concurrent readers during writes.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewOpError("sqlite", "open", err)
	}

	// Single writer: SQLite serializes write transactions anyway, and a
	// single connection avoids SQLITE_BUSY churn under contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, NewOpError("sqlite", "create_schema", err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   cfg.Path,
		logger: slog.Default().With("component", "store.sqlite"),
	}

	s.logger.Info("sqlite store opened", "path", cfg.Path)

	return s, nil
}

// View runs fn in a read-only transaction.
func (s *SQLiteStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, fn, true)
}

// Update runs fn in a read-write transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, fn, false)
}

func (s *SQLiteStore) run(ctx context.Context, fn func(Tx) error, readOnly bool) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return NewOpError("sqlite", "begin", err)
	}

	if err := fn(&sqliteTx{tx: tx, ctx: ctx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewOpError("sqlite", "commit", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if err := s.db.Close(); err != nil {
			closeErr = NewOpError("sqlite", "close", err)
			return
		}
		s.logger.Info("sqlite store closed")
	})
	return closeErr
}

// sqliteTx adapts a sql.Tx to the Tx interface.
type sqliteTx struct {
	tx  *sql.Tx
	ctx context.Context
}

func (t *sqliteTx) Get(bucket, key string) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT value FROM kv WHERE bucket = ? AND key = ?", bucket, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, NewOpError("sqlite", "get", err)
	}
	return value, true, nil
}

func (t *sqliteTx) Put(bucket, key string, value []byte) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO kv (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		bucket, key, value, time.Now().UTC(),
	)
	if err != nil {
		return NewOpError("sqlite", "put", err)
	}
	return nil
}

func (t *sqliteTx) Delete(bucket, key string) error {
	_, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM kv WHERE bucket = ? AND key = ?", bucket, key,
	)
	if err != nil {
		return NewOpError("sqlite", "delete", err)
	}
	return nil
}

func (t *sqliteTx) List(bucket string) (map[string][]byte, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT key, value FROM kv WHERE bucket = ?", bucket,
	)
	if err != nil {
		return nil, NewOpError("sqlite", "list", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, NewOpError("sqlite", "scan", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, NewOpError("sqlite", "list", err)
	}
	return out, nil
}
