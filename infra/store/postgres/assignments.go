package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/haulage/core/assignment"
	"github.com/kilianp07/haulage/core/model"
)

var _ assignment.Store = (*AssignmentStore)(nil)

// AssignmentStore keeps one row per job in haulage_assignments.
type AssignmentStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

const assignmentColumns = `job_id, truck_id, day, time_slot_id, updated_at`

func (s *AssignmentStore) Assign(ctx context.Context, a model.Assignment) (model.Assignment, bool, error) {
	if a.JobID == "" || a.TruckID == "" {
		return model.Assignment{}, false, fmt.Errorf("assignment requires job and truck ids")
	}
	a = assignment.Normalize(a, s.now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Assignment{}, false, fmt.Errorf("haulage/postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock so concurrent reassignments of one job report the right previous bucket.
	prev, err := scanAssignment(tx.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM haulage_assignments WHERE job_id = $1 FOR UPDATE`, a.JobID))
	existed := err == nil
	if err != nil && !isNoRows(err) {
		return model.Assignment{}, false, fmt.Errorf("haulage/postgres: read assignment: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO haulage_assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE SET
			truck_id = EXCLUDED.truck_id,
			day = EXCLUDED.day,
			time_slot_id = EXCLUDED.time_slot_id,
			updated_at = EXCLUDED.updated_at`,
		a.JobID, a.TruckID, a.Date, a.TimeSlotID, a.UpdatedAt)
	if err != nil {
		return model.Assignment{}, false, fmt.Errorf("haulage/postgres: upsert assignment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Assignment{}, false, fmt.Errorf("haulage/postgres: commit: %w", err)
	}
	return prev, existed, nil
}

func (s *AssignmentStore) Get(ctx context.Context, jobID string) (model.Assignment, error) {
	a, err := scanAssignment(s.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM haulage_assignments WHERE job_id = $1`, jobID))
	if isNoRows(err) {
		return model.Assignment{}, fmt.Errorf("%w: %s", assignment.ErrNotFound, jobID)
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("haulage/postgres: get assignment: %w", err)
	}
	return a, nil
}

func (s *AssignmentStore) Remove(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM haulage_assignments WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("haulage/postgres: remove assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", assignment.ErrNotFound, jobID)
	}
	return nil
}

func (s *AssignmentStore) ListBucket(ctx context.Context, truckID string, date time.Time, slot string) ([]model.Assignment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM haulage_assignments
		WHERE truck_id = $1 AND day = $2 AND time_slot_id = $3 ORDER BY job_id`,
		truckID, model.Day(date), slot)
	if err != nil {
		return nil, fmt.Errorf("haulage/postgres: list bucket: %w", err)
	}
	return collectAssignments(rows)
}

func (s *AssignmentStore) ListRange(ctx context.Context, truckID string, from, to time.Time) ([]model.Assignment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM haulage_assignments
		WHERE truck_id = $1 AND day BETWEEN $2 AND $3 ORDER BY day, job_id`,
		truckID, model.Day(from), model.Day(to))
	if err != nil {
		return nil, fmt.Errorf("haulage/postgres: list range: %w", err)
	}
	return collectAssignments(rows)
}

func collectAssignments(rows pgx.Rows) ([]model.Assignment, error) {
	defer rows.Close()
	res := make([]model.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func scanAssignment(row pgx.Row) (model.Assignment, error) {
	var a model.Assignment
	if err := row.Scan(&a.JobID, &a.TruckID, &a.Date, &a.TimeSlotID, &a.UpdatedAt); err != nil {
		return model.Assignment{}, err
	}
	a.Date = model.Day(a.Date)
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}
