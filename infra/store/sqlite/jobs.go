package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kilianp07/haulage/core/jobs"
	"github.com/kilianp07/haulage/core/model"
)

var _ jobs.Store = (*JobStore)(nil)

// JobStore keeps jobs as JSON records with a few indexed columns.
type JobStore struct {
	db *sql.DB
}

func (s *JobStore) Create(ctx context.Context, j model.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, customer_id, truck_id, status, requested_day, version, record) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.CustomerID, j.TruckID, string(j.Status), model.Day(j.RequestedDate).Unix(), j.Version, string(b))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", jobs.ErrExists, j.ID)
		}
		return err
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (model.Job, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM jobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	if err != nil {
		return model.Job{}, err
	}
	var j model.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return model.Job{}, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return j, nil
}

func (s *JobStore) Update(ctx context.Context, j model.Job, expected int64) (model.Job, error) {
	j.Version = expected + 1
	b, err := json.Marshal(j)
	if err != nil {
		return model.Job{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET customer_id = ?, truck_id = ?, status = ?, requested_day = ?, version = ?, record = ?
        WHERE id = ? AND version = ?`,
		j.CustomerID, j.TruckID, string(j.Status), model.Day(j.RequestedDate).Unix(), j.Version, string(b), j.ID, expected)
	if err != nil {
		return model.Job{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Job{}, err
	}
	if n == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, j.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, j.ID)
		}
		return model.Job{}, fmt.Errorf("%w: %s expected %d", jobs.ErrVersionConflict, j.ID, expected)
	}
	return j, nil
}

func (s *JobStore) List(ctx context.Context, f jobs.Filter) ([]model.Job, error) {
	var args []any
	query := `SELECT record FROM jobs WHERE 1=1`
	if f.CustomerID != "" {
		query += ` AND customer_id = ?`
		args = append(args, f.CustomerID)
	}
	if f.TruckID != "" {
		query += ` AND truck_id = ?`
		args = append(args, f.TruckID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		query += ` AND requested_day >= ?`
		args = append(args, model.Day(f.From).Unix())
	}
	if !f.To.IsZero() {
		query += ` AND requested_day <= ?`
		args = append(args, model.Day(f.To).Unix())
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := make([]model.Job, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var j model.Job
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		res = append(res, j)
	}
	return res, rows.Err()
}
