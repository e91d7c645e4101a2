package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/reference"
)

var _ reference.CounterStore = (*CounterStore)(nil)

// CounterStore increments customer counters with a single upsert statement.
type CounterStore struct {
	db *sql.DB
}

func (s *CounterStore) Next(ctx context.Context, customerID string, docketID int) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx, `INSERT INTO customer_job_counters (customer_id, docket_id, last_sequence)
        VALUES (?, ?, 1)
        ON CONFLICT(customer_id) DO UPDATE SET
            last_sequence = (last_sequence + 1) % ?,
            docket_id = excluded.docket_id
        RETURNING last_sequence`,
		customerID, docketID, reference.SequenceModulo).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return seq, nil
}

// Get returns the stored counter of a customer.
func (s *CounterStore) Get(ctx context.Context, customerID string) (model.CustomerJobCounter, bool, error) {
	c := model.CustomerJobCounter{CustomerID: customerID}
	err := s.db.QueryRowContext(ctx, `SELECT docket_id, last_sequence FROM customer_job_counters WHERE customer_id = ?`,
		customerID).Scan(&c.DocketID, &c.LastSequence)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CustomerJobCounter{}, false, nil
	}
	if err != nil {
		return model.CustomerJobCounter{}, false, err
	}
	return c, true, nil
}

// Set overwrites a counter.
func (s *CounterStore) Set(ctx context.Context, c model.CustomerJobCounter) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO customer_job_counters (customer_id, docket_id, last_sequence)
        VALUES (?, ?, ?)
        ON CONFLICT(customer_id) DO UPDATE SET docket_id = excluded.docket_id, last_sequence = excluded.last_sequence`,
		c.CustomerID, c.DocketID, c.LastSequence)
	return err
}
