package report

import (
	"context"
	"errors"
)

// Fanout records every row to each recorder in order.
type Fanout []Recorder

func (f Fanout) Record(ctx context.Context, row Row) error {
	var errs []error
	for _, r := range f {
		if err := r.Record(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, r := range f {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
