package cooklog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the journal database at dbPath,
// creating parent directories as needed.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun opens a new journal run for the given tool and spec and
// returns its identifier.
func (s *Store) BeginRun(ctx context.Context, tool, spec string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithRetry(ctx,
		"INSERT INTO runs (id, tool, spec, started_at, outcome) VALUES (?, ?, ?, ?, ?)",
		id, tool, spec, now, RunRunning)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run with its final outcome and counters.
func (s *Store) FinishRun(ctx context.Context, runID, outcome string, totals Totals, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithRetry(ctx,
		"UPDATE runs SET finished_at = ?, outcome = ?, cooked = ?, skipped = ?, failed = ?, message = ? WHERE id = ?",
		now, outcome, totals.Cooked, totals.Skipped, totals.Failed, message, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordObject appends one per-object event to a run.
func (s *Store) RecordObject(ctx context.Context, rec ObjectRecord) error {
	loggedAt := rec.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = time.Now()
	}
	err := s.execWithRetry(ctx,
		"INSERT INTO object_log (run_id, path, spec, pass, outcome, duration_ms, message, logged_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.RunID, rec.Path, rec.Spec, rec.Pass, rec.Outcome,
		rec.Duration.Milliseconds(), rec.Message,
		loggedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record object: %w", err)
	}
	return nil
}

// RecordSuccess upserts the last-success fingerprint for a (path, spec)
// pair after a cook lands on disk.
func (s *Store) RecordSuccess(ctx context.Context, path, spec, fingerprint, cookedFile, runID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithRetry(ctx,
		`INSERT INTO last_success (path, spec, fingerprint, cooked_file, run_id, cooked_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path, spec) DO UPDATE SET
		   fingerprint = excluded.fingerprint,
		   cooked_file = excluded.cooked_file,
		   run_id = excluded.run_id,
		   cooked_at = excluded.cooked_at`,
		path, spec, fingerprint, cookedFile, runID, now)
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

// LastFingerprint returns the fingerprint stored by the most recent
// successful cook of path for the named spec. The second return is
// false when no successful cook is on record.
func (s *Store) LastFingerprint(ctx context.Context, path, spec string) (string, bool, error) {
	ctx = ensureContext(ctx)
	var fingerprint string
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint FROM last_success WHERE path = ? AND spec = ?",
		path, spec).Scan(&fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query last fingerprint: %w", err)
	}
	return fingerprint, true, nil
}

// ForgetUnder drops last-success records for path and everything below
// it, for one spec or, with an empty spec, for all of them. An empty
// path means the whole project. Clean uses this so the next cook
// rebuilds from scratch.
func (s *Store) ForgetUnder(ctx context.Context, spec, path string) error {
	var err error
	switch {
	case spec == "" && path == "":
		err = s.execWithRetry(ctx, "DELETE FROM last_success")
	case path == "":
		err = s.execWithRetry(ctx, "DELETE FROM last_success WHERE spec = ?", spec)
	case spec == "":
		err = s.execWithRetry(ctx,
			"DELETE FROM last_success WHERE path = ? OR path LIKE ? || '/%'",
			path, path)
	default:
		err = s.execWithRetry(ctx,
			"DELETE FROM last_success WHERE spec = ? AND (path = ? OR path LIKE ? || '/%')",
			spec, path, path)
	}
	if err != nil {
		return fmt.Errorf("forget cooked records: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, tool, spec, started_at, finished_at, outcome, cooked, skipped, failed, message FROM runs ORDER BY started_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RunObjects returns the per-object events of one run in logged order.
func (s *Store) RunObjects(ctx context.Context, runID string) ([]*ObjectRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, path, spec, pass, outcome, duration_ms, message, logged_at FROM object_log WHERE run_id = ? ORDER BY id",
		runID)
	if err != nil {
		return nil, fmt.Errorf("query run objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*ObjectRecord
	for rows.Next() {
		var (
			rec        ObjectRecord
			durationMS int64
			loggedRaw  string
		)
		if err := rows.Scan(&rec.RunID, &rec.Path, &rec.Spec, &rec.Pass, &rec.Outcome, &durationMS, &rec.Message, &loggedRaw); err != nil {
			return nil, fmt.Errorf("scan object record: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if logged, err := parseTimeString(loggedRaw); err == nil {
			rec.LoggedAt = logged
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate object records: %w", err)
	}
	return records, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		finishedRaw sql.NullString
		startedRaw  string
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Tool,
		&run.Spec,
		&startedRaw,
		&finishedRaw,
		&run.Outcome,
		&run.Cooked,
		&run.Skipped,
		&run.Failed,
		&run.Message,
	); err != nil {
		return nil, err
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
