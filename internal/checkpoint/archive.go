package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Current layout: runs + streams keyed by (run_id, step, rank)
const currentSchemaVersion = 1

// ErrNotFound is returned when a run or stream does not exist.
var ErrNotFound = errors.New("checkpoint: not found")

// Archive is a SQLite-backed store of checkpoint streams.
// Uses WAL mode so readers can inspect an archive while a run writes.
type Archive struct {
	db *sql.DB
}

// Run identifies one archived simulation run.
type Run struct {
	ID        string
	Name      string
	Ranks     int
	CreatedAt time.Time
}

// OpenArchive creates or opens a SQLite archive at the given path.
// Applies required pragmas and migrations automatically; safe to call
// on an existing archive.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to archive: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent checkpoints.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	// Version 0 databases only need the version stamp; the schema above
	// is already idempotent.
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// CreateRun registers a new run and returns it. Run IDs are time-ordered
// so ListRuns naturally sorts by creation.
func (a *Archive) CreateRun(ctx context.Context, name string, ranks int) (Run, error) {
	if ranks < 1 {
		return Run{}, fmt.Errorf("checkpoint: run needs at least 1 rank, got %d", ranks)
	}
	run := Run{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Ranks:     ranks,
		CreatedAt: time.Now().UTC(),
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, ranks, created_at)
		VALUES (?, ?, ?, ?)
	`,
		run.ID,
		run.Name,
		run.Ranks,
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// GetRun looks a run up by ID.
func (a *Archive) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	var created string
	err := a.db.QueryRowContext(ctx, `
		SELECT id, name, ranks, created_at FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Name, &run.Ranks, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("get run: parse created_at: %w", err)
	}
	return run, nil
}

// ListRuns returns every run, oldest first.
func (a *Archive) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, ranks, created_at FROM runs ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var created string
		if err := rows.Scan(&run.ID, &run.Name, &run.Ranks, &created); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		run.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("list runs: parse created_at: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// PutStream stores one partition's stream for a step. Rewriting the same
// (run, step, rank) replaces the previous bytes, so an interrupted
// checkpoint can simply be retried.
func (a *Archive) PutStream(ctx context.Context, runID string, step, rank int, data []byte) error {
	res, err := a.db.ExecContext(ctx, `
		INSERT INTO streams (run_id, step, rank, data, written_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step, rank) DO UPDATE SET
			data = excluded.data,
			written_at = excluded.written_at
	`,
		runID, step, rank, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put stream: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("put stream: no row written for run %s step %d rank %d", runID, step, rank)
	}
	return nil
}

// GetStream fetches one partition's stream for a step.
func (a *Archive) GetStream(ctx context.Context, runID string, step, rank int) ([]byte, error) {
	var data []byte
	err := a.db.QueryRowContext(ctx, `
		SELECT data FROM streams WHERE run_id = ? AND step = ? AND rank = ?
	`, runID, step, rank).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s step %d rank %d", ErrNotFound, runID, step, rank)
	}
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}
	return data, nil
}

// Steps lists the checkpointed steps of a run in ascending order.
func (a *Archive) Steps(ctx context.Context, runID string) ([]int, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT DISTINCT step FROM streams WHERE run_id = ? ORDER BY step
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []int
	for rows.Next() {
		var step int
		if err := rows.Scan(&step); err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	return steps, nil
}
