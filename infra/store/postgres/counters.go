package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/reference"
)

var _ reference.CounterStore = (*CounterStore)(nil)

// CounterStore increments customer counters with one upsert per call, so two
// concurrent allocations can never read the same value.
type CounterStore struct {
	pool *pgxpool.Pool
}

func (s *CounterStore) Next(ctx context.Context, customerID string, docketID int) (int, error) {
	var seq int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO customer_job_counters (customer_id, docket_id, last_sequence)
		VALUES ($1, $2, 1)
		ON CONFLICT (customer_id) DO UPDATE SET
			last_sequence = (customer_job_counters.last_sequence + 1) % $3,
			docket_id = EXCLUDED.docket_id
		RETURNING last_sequence`,
		customerID, docketID, reference.SequenceModulo).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("haulage/postgres: increment counter: %w", err)
	}
	return seq, nil
}

// Get returns the stored counter of a customer.
func (s *CounterStore) Get(ctx context.Context, customerID string) (model.CustomerJobCounter, bool, error) {
	c := model.CustomerJobCounter{CustomerID: customerID}
	err := s.pool.QueryRow(ctx,
		`SELECT docket_id, last_sequence FROM customer_job_counters WHERE customer_id = $1`, customerID,
	).Scan(&c.DocketID, &c.LastSequence)
	if isNoRows(err) {
		return model.CustomerJobCounter{}, false, nil
	}
	if err != nil {
		return model.CustomerJobCounter{}, false, fmt.Errorf("haulage/postgres: get counter: %w", err)
	}
	return c, true, nil
}

// Set overwrites a counter.
func (s *CounterStore) Set(ctx context.Context, c model.CustomerJobCounter) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customer_job_counters (customer_id, docket_id, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET
			docket_id = EXCLUDED.docket_id,
			last_sequence = EXCLUDED.last_sequence`,
		c.CustomerID, c.DocketID, c.LastSequence)
	if err != nil {
		return fmt.Errorf("haulage/postgres: set counter: %w", err)
	}
	return nil
}
