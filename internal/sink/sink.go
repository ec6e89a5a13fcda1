// Package sink holds the table writers that accepted records are emitted to.
package sink

import (
	"context"
	"errors"
	"fmt"

	"aboproducts/internal/listing"
)

// Sink receives records in processing order. Close makes every written row
// visible at the destination. Abort releases the sink after a failed run;
// transactional sinks discard what they were given and leave the
// destination as it was.
type Sink interface {
	Write(ctx context.Context, rec listing.Record) error
	Close(ctx context.Context) error
	Abort(ctx context.Context) error
}

type multi []Sink

// Multi fans each record out to every sink, in argument order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Write(ctx context.Context, rec listing.Record) error {
	for i, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

func (m multi) Close(ctx context.Context) error {
	var errs []error
	for i, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m multi) Abort(ctx context.Context) error {
	var errs []error
	for i, s := range m {
		if err := s.Abort(ctx); err != nil {
			errs = append(errs, fmt.Errorf("abort sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
