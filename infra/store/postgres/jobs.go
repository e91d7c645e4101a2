package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/haulage/core/jobs"
	"github.com/kilianp07/haulage/core/model"
)

var _ jobs.Store = (*JobStore)(nil)

// JobStore keeps each job as a JSONB record plus indexed columns.
type JobStore struct {
	pool *pgxpool.Pool
}

func (s *JobStore) Create(ctx context.Context, j model.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO haulage_jobs (id, customer_id, truck_id, status, requested_day, version, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.ID, j.CustomerID, j.TruckID, string(j.Status), model.Day(j.RequestedDate), j.Version, b)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", jobs.ErrExists, j.ID)
		}
		return fmt.Errorf("haulage/postgres: create job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (model.Job, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM haulage_jobs WHERE id = $1`, id).Scan(&data)
	if isNoRows(err) {
		return model.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("haulage/postgres: get job: %w", err)
	}
	var j model.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return model.Job{}, fmt.Errorf("haulage/postgres: decode job %s: %w", id, err)
	}
	return j, nil
}

func (s *JobStore) Update(ctx context.Context, j model.Job, expected int64) (model.Job, error) {
	j.Version = expected + 1
	b, err := json.Marshal(j)
	if err != nil {
		return model.Job{}, err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE haulage_jobs
		SET customer_id = $1, truck_id = $2, status = $3, requested_day = $4, version = $5, record = $6
		WHERE id = $7 AND version = $8`,
		j.CustomerID, j.TruckID, string(j.Status), model.Day(j.RequestedDate), j.Version, b, j.ID, expected)
	if err != nil {
		return model.Job{}, fmt.Errorf("haulage/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM haulage_jobs WHERE id = $1)`, j.ID).Scan(&exists); err != nil {
			return model.Job{}, fmt.Errorf("haulage/postgres: update job: %w", err)
		}
		if !exists {
			return model.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, j.ID)
		}
		return model.Job{}, fmt.Errorf("%w: %s expected %d", jobs.ErrVersionConflict, j.ID, expected)
	}
	return j, nil
}

func (s *JobStore) List(ctx context.Context, f jobs.Filter) ([]model.Job, error) {
	query := `SELECT record FROM haulage_jobs WHERE TRUE`
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		query += " AND " + clause + " $" + strconv.Itoa(len(args))
	}
	if f.CustomerID != "" {
		add("customer_id =", f.CustomerID)
	}
	if f.TruckID != "" {
		add("truck_id =", f.TruckID)
	}
	if f.Status != "" {
		add("status =", string(f.Status))
	}
	if !f.From.IsZero() {
		add("requested_day >=", model.Day(f.From))
	}
	if !f.To.IsZero() {
		add("requested_day <=", model.Day(f.To))
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("haulage/postgres: list jobs: %w", err)
	}
	defer rows.Close()
	res := make([]model.Job, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var j model.Job
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, fmt.Errorf("haulage/postgres: decode job: %w", err)
		}
		res = append(res, j)
	}
	return res, rows.Err()
}
