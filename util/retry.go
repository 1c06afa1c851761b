package util

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrRetryLimit = NewError("over retry limit")

// Retry calls f until f returns false. attempt starts from 0. If limit is
// less than 1, Retry keeps trying until ctx is done. When limit is reached,
// the last error of f is wrapped by ErrRetryLimit.
func Retry(
	ctx context.Context,
	f func(attempt int) (keep bool, _ error),
	limit int,
	interval time.Duration,
) error {
	var lerr error

	timer := time.NewTimer(0)
	defer timer.Stop()

	if !timer.Stop() {
		<-timer.C
	}

	for attempt := 0; limit < 1 || attempt < limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		keep, err := f(attempt)
		if !keep {
			return err
		}

		if err != nil {
			lerr = err
		}

		timer.Reset(interval)

		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-timer.C:
		}
	}

	e := ErrRetryLimit.Errorf("%d", limit)

	if lerr != nil {
		return e.Wrap(lerr)
	}

	return e
}
