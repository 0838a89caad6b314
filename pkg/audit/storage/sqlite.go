package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/decision"
)

// SQLiteConfig contains configuration for the SQLite audit sink.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStorage implements audit.Storage using SQLite. Decision records and
// administrative events live in separate append-only tables.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if necessary) the audit database at
// config.Path and initializes the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, audit.NewStorageError("sqlite", "mkdir", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	// Single writer keeps SQLite happy under concurrent appends.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{
		db:     db,
		logger: slog.Default().With("component", "audit.storage.sqlite"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("audit storage initialized", "path", config.Path)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id                  TEXT PRIMARY KEY,
		request_id          TEXT NOT NULL,
		fingerprint         TEXT NOT NULL DEFAULT '',
		user_id             TEXT NOT NULL,
		department          TEXT NOT NULL DEFAULT '',
		resource_key        TEXT NOT NULL,
		verdict             TEXT NOT NULL,
		reason              TEXT NOT NULL,
		risk_score          INTEGER NOT NULL DEFAULT 0,
		overridden          INTEGER NOT NULL DEFAULT 0,
		cached              INTEGER NOT NULL DEFAULT 0,
		degraded            INTEGER NOT NULL DEFAULT 0,
		policy_generation   INTEGER NOT NULL DEFAULT 0,
		override_generation INTEGER NOT NULL DEFAULT 0,
		source              TEXT NOT NULL DEFAULT '',
		latency_ms          INTEGER NOT NULL DEFAULT 0,
		created_at          TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
	CREATE INDEX IF NOT EXISTS idx_decisions_verdict ON decisions(verdict);
	CREATE INDEX IF NOT EXISTS idx_decisions_user ON decisions(user_id);
	CREATE INDEX IF NOT EXISTS idx_decisions_resource ON decisions(resource_key);

	CREATE TABLE IF NOT EXISTS admin_events (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		actor      TEXT NOT NULL DEFAULT '',
		subject    TEXT NOT NULL,
		detail     TEXT NOT NULL DEFAULT '',
		generation INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_admin_events_created_at ON admin_events(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return audit.NewStorageError("sqlite", "initialize", err)
	}
	return nil
}

// WriteDecision implements audit.Storage.
func (s *SQLiteStorage) WriteDecision(ctx context.Context, record *audit.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (
			id, request_id, fingerprint, user_id, department, resource_key,
			verdict, reason, risk_score, overridden, cached, degraded,
			policy_generation, override_generation, source, latency_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.RequestID, record.Fingerprint, record.UserID,
		record.Department, record.ResourceKey, string(record.Verdict),
		record.Reason, record.RiskScore, boolInt(record.Overridden),
		boolInt(record.Cached), boolInt(record.Degraded),
		record.PolicyGeneration, record.OverrideGeneration, record.Source,
		record.LatencyMillis, record.CreatedAt.UTC(),
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "write decision", err)
	}
	return nil
}

// WriteEvent implements audit.Storage.
func (s *SQLiteStorage) WriteEvent(ctx context.Context, event *audit.AdminEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_events (id, type, actor, subject, detail, generation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Type), event.Actor, event.Subject,
		event.Detail, event.Generation, event.CreatedAt.UTC(),
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "write event", err)
	}
	return nil
}

const decisionColumns = `
	id, request_id, fingerprint, user_id, department, resource_key,
	verdict, reason, risk_score, overridden, cached, degraded,
	policy_generation, override_generation, source, latency_ms, created_at`

// RecentDecisions implements audit.Storage.
func (s *SQLiteStorage) RecentDecisions(ctx context.Context, limit int) ([]*audit.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query decisions", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// Violations implements audit.Storage.
func (s *SQLiteStorage) Violations(ctx context.Context, limit int) ([]*audit.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions
		 WHERE verdict IN ('DENY', 'REVIEW')
		 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query violations", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// Summarize implements audit.Storage.
func (s *SQLiteStorage) Summarize(ctx context.Context, since time.Time) (*audit.Summary, error) {
	summary := &audit.Summary{Since: since}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN verdict = 'ALLOW' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verdict = 'DENY' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verdict = 'REVIEW' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(overridden), 0),
			COALESCE(SUM(cached), 0),
			COALESCE(SUM(degraded), 0),
			COUNT(DISTINCT user_id),
			COALESCE(AVG(latency_ms), 0)
		FROM decisions WHERE created_at >= ?`, since.UTC())

	err := row.Scan(
		&summary.Total, &summary.Allowed, &summary.Denied, &summary.Review,
		&summary.Overridden, &summary.Cached, &summary.Degraded,
		&summary.UniqueUsers, &summary.AvgLatencyMillis,
	)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "summarize", err)
	}
	return summary, nil
}

// Prune implements audit.Storage.
func (s *SQLiteStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM decisions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "prune", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "prune", err)
	}
	return removed, nil
}

// Close implements audit.Storage.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func scanDecisions(rows *sql.Rows) ([]*audit.DecisionRecord, error) {
	var records []*audit.DecisionRecord
	for rows.Next() {
		record := &audit.DecisionRecord{}
		var verdict string
		var overridden, cached, degraded int
		err := rows.Scan(
			&record.ID, &record.RequestID, &record.Fingerprint,
			&record.UserID, &record.Department, &record.ResourceKey,
			&verdict, &record.Reason, &record.RiskScore,
			&overridden, &cached, &degraded,
			&record.PolicyGeneration, &record.OverrideGeneration,
			&record.Source, &record.LatencyMillis, &record.CreatedAt,
		)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan decision", err)
		}
		record.Verdict = decision.Verdict(verdict)
		record.Overridden = overridden != 0
		record.Cached = cached != 0
		record.Degraded = degraded != 0
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "scan decisions", err)
	}
	return records, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
