package recognize

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type callResult struct {
	out Output
	err error
}

// callLimiter runs engine calls that cannot be interrupted. A call is abandoned
// when ctx ends but keeps its slot until it actually returns, so at most n
// calls, abandoned ones included, are ever in flight.
type callLimiter struct {
	sem *semaphore.Weighted
}

func newCallLimiter(n int64) *callLimiter {
	if n < 1 {
		n = 1
	}
	return &callLimiter{sem: semaphore.NewWeighted(n)}
}

func (l *callLimiter) do(ctx context.Context, fn func() (Output, error)) (Output, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Output{}, err
	}
	done := make(chan callResult, 1)
	go func() {
		defer l.sem.Release(1)
		out, err := fn()
		done <- callResult{out: out, err: err}
	}()
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case r := <-done:
		return r.out, r.err
	}
}
