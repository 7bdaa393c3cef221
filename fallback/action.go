package fallback

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrOriginTimeout is the cause of errors returned when a Timeout action wrapper gives up
// on an origin call. Match it with errors.Is.
var ErrOriginTimeout = goerrors.New("origin call timed out", goerrors.CategoryExternal)

// ActionWrapper decides how an origin call is executed.
type ActionWrapper interface {
	Do(ctx context.Context, call func(ctx context.Context) error) error
}

type direct struct{}

func (direct) Do(ctx context.Context, call func(ctx context.Context) error) error {
	return call(ctx)
}

// Direct calls the origin on the caller's goroutine with the caller's context.
func Direct() ActionWrapper { return direct{} }

type timeout struct {
	d time.Duration
}

// Timeout bounds every origin call by d. The call runs on its own goroutine with a
// context cancelled at the deadline, so an origin that ignores its context still cannot
// hold the caller past d.
func Timeout(d time.Duration) ActionWrapper { return timeout{d: d} }

func (t timeout) Do(ctx context.Context, call func(ctx context.Context) error) error {
	if t.d <= 0 {
		return call(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- call(ctx)
	}()

	select {
	case err := <-result:
		if err != nil && goerrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return t.timedOut()
		}
		return err
	case <-ctx.Done():
		if goerrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return t.timedOut()
		}
		return ctx.Err()
	}
}

func (t timeout) timedOut() error {
	e := goerrors.New(fmt.Sprintf("origin call exceeded %s", t.d), goerrors.CategoryExternal)
	e.Source = ErrOriginTimeout
	return e
}

// Call runs fn through w and returns its result. On error the zero value is returned.
func Call[T any](ctx context.Context, w ActionWrapper, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := w.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
