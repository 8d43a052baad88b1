package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/visionfive-tools/tftpboot/pkg/errors"
	_ "modernc.org/sqlite"
)

const runColumns = `id, target, baud, server_address, kernel_prefix, status,
		       stage, reason, transcript_path, archive_key, started_at, finished_at`

// Repository provides database operations for boot runs
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Create schema
	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run. Status defaults to running and StartedAt to now.
func (r *Repository) Create(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	slog.Info("database_create_run", "target", run.Target, "status", run.Status)

	query := `
		INSERT INTO boot_runs (target, baud, server_address, kernel_prefix, status,
		                       stage, reason, transcript_path, archive_key, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		run.Target, run.Baud, run.ServerAddress, run.KernelPrefix, run.Status,
		run.Stage, run.Reason, run.TranscriptPath, run.ArchiveKey, formatTime(run.StartedAt))
	if err != nil {
		slog.Error("database_insert_failed", "target", run.Target, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "target", run.Target, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id

	slog.Info("database_run_created", "run_id", run.ID, "target", run.Target)
	return nil
}

// Finish records the final status of a run.
func (r *Repository) Finish(ctx context.Context, id int64, status, stage, reason string) error {
	slog.Info("database_finish_run", "run_id", id, "status", status, "stage", stage)

	query := `UPDATE boot_runs SET status = ?, stage = ?, reason = ?, finished_at = ? WHERE id = ?`
	return r.update(ctx, id, "finish run", query, status, stage, reason, formatTime(time.Now()), id)
}

// SetTranscript records where the run's transcript was saved and archived.
func (r *Repository) SetTranscript(ctx context.Context, id int64, path, archiveKey string) error {
	slog.Info("database_set_transcript", "run_id", id, "transcript_path", path, "archive_key", archiveKey)

	query := `UPDATE boot_runs SET transcript_path = ?, archive_key = ? WHERE id = ?`
	return r.update(ctx, id, "set transcript", query, path, archiveKey, id)
}

func (r *Repository) update(ctx context.Context, id int64, what, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("database_update_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to "+what)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_run_not_found_for_update", "run_id", id)
		return fmt.Errorf("run not found: id=%d", id)
	}
	return nil
}

// GetByID retrieves a run. A missing run is returned as nil without error.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Run, error) {
	slog.Info("database_query_run", "run_id", id)

	query := `SELECT ` + runColumns + ` FROM boot_runs WHERE id = ?`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		slog.Info("database_run_not_found", "run_id", id)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "run_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query run")
	}
	return run, nil
}

// List retrieves the most recent runs first. A limit of zero or less lists
// every run.
func (r *Repository) List(ctx context.Context, limit int) ([]*Run, error) {
	slog.Info("database_list_runs", "limit", limit)

	query := `SELECT ` + runColumns + ` FROM boot_runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "run_count", len(runs))
	return runs, nil
}

// Delete deletes a run by ID
func (r *Repository) Delete(ctx context.Context, id int64) error {
	slog.Info("database_delete_run", "run_id", id)

	_, err := r.db.ExecContext(ctx, `DELETE FROM boot_runs WHERE id = ?`, id)
	if err != nil {
		slog.Error("database_delete_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to delete run")
	}

	slog.Info("database_run_deleted", "run_id", id)
	return nil
}

// DeleteBefore deletes finished runs started before cutoff and returns how
// many were removed. Running entries are kept.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	slog.Info("database_prune_runs", "cutoff", cutoff)

	query := `DELETE FROM boot_runs WHERE started_at < ? AND status != ?`
	result, err := r.db.ExecContext(ctx, query, formatTime(cutoff), StatusRunning)
	if err != nil {
		slog.Error("database_prune_failed", "error", err)
		return 0, errors.Wrap(err, "failed to prune runs")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	slog.Info("database_prune_complete", "deleted", n)
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var stage, reason, transcriptPath, archiveKey, finishedAt sql.NullString
	var startedAt string

	err := row.Scan(
		&run.ID, &run.Target, &run.Baud, &run.ServerAddress, &run.KernelPrefix, &run.Status,
		&stage, &reason, &transcriptPath, &archiveKey, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	// Handle nullable fields
	run.Stage = stage.String
	run.Reason = reason.String
	run.TranscriptPath = transcriptPath.String
	run.ArchiveKey = archiveKey.String

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t, nil
}
