package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"catalog-sync/internal/models"
)

type runRow struct {
	ID                 string       `db:"id"`
	Target             string       `db:"target"`
	Status             string       `db:"status"`
	TestMode           bool         `db:"test_mode"`
	UpdateOnly         bool         `db:"update_only"`
	MaxItems           int          `db:"max_items"`
	ItemsSeen          int          `db:"items_seen"`
	Created            int          `db:"created"`
	Updated            int          `db:"updated"`
	Skipped            int          `db:"skipped"`
	SkippedNotExisting int          `db:"skipped_not_existing"`
	Missing            int          `db:"missing_combinations"`
	Errored            int          `db:"errored"`
	StartedAt          time.Time    `db:"started_at"`
	FinishedAt         sql.NullTime `db:"finished_at"`
}

func (r runRow) toModel() *models.SyncRun {
	run := &models.SyncRun{
		ID:     r.ID,
		Target: r.Target,
		Status: r.Status,
		Policy: models.SyncPolicy{
			TestMode:   r.TestMode,
			UpdateOnly: r.UpdateOnly,
			MaxItems:   r.MaxItems,
		},
		Counters: models.RunCounters{
			ItemsSeen:          r.ItemsSeen,
			Created:            r.Created,
			Updated:            r.Updated,
			Skipped:            r.Skipped,
			SkippedNotExisting: r.SkippedNotExisting,
			Missing:            r.Missing,
			Errored:            r.Errored,
		},
		StartedAt: r.StartedAt,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		run.FinishedAt = &t
	}
	return run
}

// CreateRun inserts a new run row in pending state.
func (s *Store) CreateRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, target, status, test_mode, update_only, max_items)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING started_at`

	return s.db.GetContext(ctx, &run.StartedAt, query,
		run.ID, run.Target, run.Status,
		run.Policy.TestMode, run.Policy.UpdateOnly, run.Policy.MaxItems)
}

// GetRun retrieves a run with its live counters.
func (s *Store) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM sync_runs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync run not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// UpdateRunStatus moves a run between states.
func (s *Store) UpdateRunStatus(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_runs SET status = $1 WHERE id = $2", status, runID)
	return err
}

// FinishRun fixes the terminal status and finish time in one statement.
func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_runs SET status = $1, finished_at = NOW() WHERE id = $2", status, runID)
	return err
}

// UpdateRunCounters overwrites the denormalized counters. The orchestrator
// is the only writer, so last write wins is exact.
func (s *Store) UpdateRunCounters(ctx context.Context, runID string, c models.RunCounters) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET
			items_seen = $1, created = $2, updated = $3, skipped = $4,
			skipped_not_existing = $5, missing_combinations = $6, errored = $7
		WHERE id = $8`,
		c.ItemsSeen, c.Created, c.Updated, c.Skipped,
		c.SkippedNotExisting, c.Missing, c.Errored, runID)
	return err
}

// LatestRun returns the most recent run for a target, nil when the target
// has never been synced.
func (s *Store) LatestRun(ctx context.Context, target string) (*models.SyncRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM sync_runs WHERE target = $1 ORDER BY started_at DESC LIMIT 1", target)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// LastCompletedAt returns the finish time of the target's newest completed
// run, zero when none exists. Delta sync filters the source listing by it.
func (s *Store) LastCompletedAt(ctx context.Context, target string) (time.Time, error) {
	var t sql.NullTime
	err := s.db.GetContext(ctx, &t, `
		SELECT finished_at FROM sync_runs
		WHERE target = $1 AND status = $2
		ORDER BY finished_at DESC LIMIT 1`,
		target, models.RunStatusCompleted)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}

// AppendCheckpoint records the latest outcome for a product within a run.
// Re-processing the same product overwrites the outcome and bumps the
// attempt count; rows are never deleted. Failures are wrapped as
// CheckpointWriteError because losing progress durability is fatal.
func (s *Store) AppendCheckpoint(ctx context.Context, runID, productID, outcome string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_checkpoints (run_id, product_id, outcome, attempts, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (run_id, product_id)
		DO UPDATE SET outcome = EXCLUDED.outcome,
		              attempts = sync_checkpoints.attempts + 1,
		              updated_at = NOW()`,
		runID, productID, outcome)
	if err != nil {
		return &models.CheckpointWriteError{RunID: runID, Err: err}
	}
	return nil
}

// GetCheckpoint loads the full checkpoint of a run keyed by product ID.
func (s *Store) GetCheckpoint(ctx context.Context, runID string) (map[string]models.CheckpointEntry, error) {
	var rows []models.CheckpointEntry
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM sync_checkpoints WHERE run_id = $1", runID)
	if err != nil {
		return nil, err
	}
	checkpoint := make(map[string]models.CheckpointEntry, len(rows))
	for _, row := range rows {
		checkpoint[row.ProductID] = row
	}
	return checkpoint, nil
}

// RecordError appends one per-item (or run-level) failure to the audit log.
func (s *Store) RecordError(ctx context.Context, e *models.SyncError) error {
	query := `
		INSERT INTO sync_errors (run_id, product_id, kind, message, retries)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, e, query,
		e.RunID, e.ProductID, e.Kind, e.Message, e.Retries)
}

// GetErrors retrieves all recorded errors for a run, oldest first.
func (s *Store) GetErrors(ctx context.Context, runID string) ([]models.SyncError, error) {
	var errs []models.SyncError
	err := s.db.SelectContext(ctx, &errs,
		"SELECT * FROM sync_errors WHERE run_id = $1 ORDER BY created_at", runID)
	return errs, err
}
