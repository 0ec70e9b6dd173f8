package usecase

import (
	"context"
	"errors"
	"fmt"
)

// attempt is one entry of an ordered fallback list
type attempt[T any] struct {
	name string
	run  func(ctx context.Context) (T, error)
}

// runAttempts evaluates attempts in order and stops at the first success. It
// returns the index of the attempt that succeeded, or -1 with every failure
// joined.
func runAttempts[T any](ctx context.Context, attempts []attempt[T]) (T, int, error) {
	var zero T
	var errs []error
	for i, a := range attempts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out, err := a.run(ctx)
		if err == nil {
			return out, i, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
	}
	return zero, -1, errors.Join(errs...)
}
