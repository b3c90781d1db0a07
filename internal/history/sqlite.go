package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
)

// defaultRecentLimit bounds RecentRuns when the caller passes no limit.
const defaultRecentLimit = 50

// SQLiteStore implements Store on a single SQLite database. The mutex
// serializes writers; modernc's driver allows one writer at a time.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema. Use ":memory:" in tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.StorageError("open", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, apperrors.StorageError("initialize schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		branch TEXT NOT NULL,
		commit_sha TEXT NOT NULL DEFAULT '',
		trigger_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		failed_step_index INTEGER NOT NULL DEFAULT -1,
		error TEXT NOT NULL DEFAULT '',
		published_to TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		record BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		message TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun upserts the run: the columns carry the queryable projection, the
// record blob the full JSON run.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(id, repository, branch, commit_sha, trigger_kind, status,
		 failed_step_index, error, published_to, started_at, finished_at,
		 duration_ms, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Event.Repository, run.Event.Branch, run.Commit,
		string(run.Event.Kind), string(run.Status), run.FailedStepIndex,
		run.Error, run.PublishedTo, msec(run.StartedAt), msec(run.FinishedAt),
		run.Duration().Milliseconds(), record,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// AppendEvent adds one lifecycle event for a run.
func (s *SQLiteStore) AppendEvent(ctx context.Context, runID, eventType, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_events (run_id, event_type, message, created_at) VALUES (?, ?, ?, ?)",
		runID, eventType, message, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert event for run %s: %w", runID, err)
	}
	return nil
}

// Run returns the full stored run.
func (s *SQLiteStore) Run(ctx context.Context, id string) (*pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var record []byte
	err := s.db.QueryRowContext(ctx, "SELECT record FROM runs WHERE id = ?", id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}

	var run pipeline.Run
	if err := json.Unmarshal(record, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return &run, nil
}

// Events returns a run's lifecycle events in append order.
func (s *SQLiteStore) Events(ctx context.Context, runID string) ([]RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, event_type, message, created_at FROM run_events WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events for run %s: %w", runID, err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var message sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Message = message.String
		e.CreatedAt = fromMsec(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// RecentRuns returns summaries, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repository, branch, commit_sha, trigger_kind, status,
		       failed_step_index, error, published_to, started_at,
		       finished_at, duration_ms
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var rs RunSummary
		var startedAt, finishedAt int64
		err := rows.Scan(&rs.ID, &rs.Repository, &rs.Branch, &rs.Commit,
			&rs.Trigger, &rs.Status, &rs.FailedStepIndex, &rs.Error,
			&rs.PublishedTo, &startedAt, &finishedAt, &rs.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rs.StartedAt = fromMsec(startedAt)
		rs.FinishedAt = fromMsec(finishedAt)
		summaries = append(summaries, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return summaries, nil
}

// Prune deletes all but the newest keep runs and their events.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN
		(SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM run_events WHERE run_id NOT IN (SELECT id FROM runs)"); err != nil {
		return int(pruned), fmt.Errorf("prune events: %w", err)
	}
	return int(pruned), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// msec flattens a time to Unix milliseconds for storage, keeping zero times
// at zero.
func msec(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMsec(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
