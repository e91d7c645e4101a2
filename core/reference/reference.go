// Package reference allocates per-customer job reference numbers of the form
// YYDNNN: two-digit year, one-digit docket id and a three-digit sequence.
package reference

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/haulage/core/model"
)

// SequenceModulo is the number of distinct sequences per customer.
const SequenceModulo = 1000

var (
	ErrCustomerNotFound = errors.New("reference: customer not found")
	ErrMissingDocketID  = errors.New("reference: customer has no docket id")
	ErrInvalidDocketID  = errors.New("reference: docket id must be between 0 and 9")
	ErrMalformed        = errors.New("reference: malformed reference number")
)

// CustomerDirectory resolves customers by id.
type CustomerDirectory interface {
	Customer(ctx context.Context, id string) (model.Customer, error)
}

// CounterStore increments the per-customer counter atomically. Next must
// lazily create the counter with a last sequence of zero, advance it by one
// modulo SequenceModulo and return the new value. Two concurrent calls for
// the same customer must never return the same value.
type CounterStore interface {
	Next(ctx context.Context, customerID string, docketID int) (int, error)
}

// Allocator turns customer ids into reference numbers.
type Allocator struct {
	customers CustomerDirectory
	counters  CounterStore
	now       func() time.Time
}

// NewAllocator returns an Allocator using the given collaborators.
func NewAllocator(customers CustomerDirectory, counters CounterStore) *Allocator {
	return &Allocator{customers: customers, counters: counters, now: time.Now}
}

// SetClock overrides the time source used for the year prefix.
func (a *Allocator) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// Allocate returns the next reference number for the customer.
func (a *Allocator) Allocate(ctx context.Context, customerID string) (string, error) {
	c, err := a.customers.Customer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if c.DocketID == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingDocketID, customerID)
	}
	docket := *c.DocketID
	if docket < 0 || docket > 9 {
		return "", fmt.Errorf("%w: %d", ErrInvalidDocketID, docket)
	}
	seq, err := a.counters.Next(ctx, customerID, docket)
	if err != nil {
		return "", fmt.Errorf("increment counter for %s: %w", customerID, err)
	}
	return Format(a.now().Year(), docket, seq), nil
}

// NextSequence advances last by one, wrapping at SequenceModulo.
func NextSequence(last int) int {
	return (last + 1) % SequenceModulo
}

// Format composes a reference number.
func Format(year, docket, seq int) string {
	return fmt.Sprintf("%02d%d%03d", year%100, docket, seq%SequenceModulo)
}

// Parts is a decoded reference number.
type Parts struct {
	Year     int
	DocketID int
	Sequence int
}

// Parse splits a reference number into its parts. The year is returned as
// the two-digit value.
func Parse(ref string) (Parts, error) {
	if len(ref) != 6 {
		return Parts{}, fmt.Errorf("%w: %q", ErrMalformed, ref)
	}
	for i := 0; i < len(ref); i++ {
		if ref[i] < '0' || ref[i] > '9' {
			return Parts{}, fmt.Errorf("%w: %q", ErrMalformed, ref)
		}
	}
	yy, _ := strconv.Atoi(ref[:2])
	seq, _ := strconv.Atoi(ref[3:])
	return Parts{Year: yy, DocketID: int(ref[2] - '0'), Sequence: seq}, nil
}
