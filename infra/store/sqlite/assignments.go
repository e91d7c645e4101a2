package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/haulage/core/assignment"
	"github.com/kilianp07/haulage/core/model"
)

var _ assignment.Store = (*AssignmentStore)(nil)

// AssignmentStore keeps one row per job.
type AssignmentStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *AssignmentStore) Assign(ctx context.Context, a model.Assignment) (model.Assignment, bool, error) {
	if a.JobID == "" || a.TruckID == "" {
		return model.Assignment{}, false, fmt.Errorf("assignment requires job and truck ids")
	}
	a = assignment.Normalize(a, s.now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Assignment{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := scanAssignment(tx.QueryRowContext(ctx,
		`SELECT job_id, truck_id, day, time_slot_id, updated_at FROM assignments WHERE job_id = ?`, a.JobID))
	existed := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, false, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO assignments (job_id, truck_id, day, time_slot_id, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(job_id) DO UPDATE SET
            truck_id = excluded.truck_id,
            day = excluded.day,
            time_slot_id = excluded.time_slot_id,
            updated_at = excluded.updated_at`,
		a.JobID, a.TruckID, a.Date.Unix(), a.TimeSlotID, a.UpdatedAt.UnixNano())
	if err != nil {
		return model.Assignment{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.Assignment{}, false, err
	}
	return prev, existed, nil
}

func (s *AssignmentStore) Get(ctx context.Context, jobID string) (model.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT job_id, truck_id, day, time_slot_id, updated_at FROM assignments WHERE job_id = ?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, fmt.Errorf("%w: %s", assignment.ErrNotFound, jobID)
	}
	return a, err
}

func (s *AssignmentStore) Remove(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assignments WHERE job_id = ?`, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", assignment.ErrNotFound, jobID)
	}
	return nil
}

func (s *AssignmentStore) ListBucket(ctx context.Context, truckID string, date time.Time, slot string) ([]model.Assignment, error) {
	return s.query(ctx, `SELECT job_id, truck_id, day, time_slot_id, updated_at FROM assignments
        WHERE truck_id = ? AND day = ? AND time_slot_id = ? ORDER BY job_id`,
		truckID, model.Day(date).Unix(), slot)
}

func (s *AssignmentStore) ListRange(ctx context.Context, truckID string, from, to time.Time) ([]model.Assignment, error) {
	return s.query(ctx, `SELECT job_id, truck_id, day, time_slot_id, updated_at FROM assignments
        WHERE truck_id = ? AND day >= ? AND day <= ? ORDER BY day, job_id`,
		truckID, model.Day(from).Unix(), model.Day(to).Unix())
}

func (s *AssignmentStore) query(ctx context.Context, q string, args ...any) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(r scanner) (model.Assignment, error) {
	var a model.Assignment
	var day, updated int64
	if err := r.Scan(&a.JobID, &a.TruckID, &day, &a.TimeSlotID, &updated); err != nil {
		return model.Assignment{}, err
	}
	a.Date = time.Unix(day, 0).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	return a, nil
}
