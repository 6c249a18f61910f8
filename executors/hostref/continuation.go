package hostref

import (
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gomlx/bulkexec/executors"
	"github.com/gomlx/bulkexec/futures"
)

// Continuation is the fork-join reference executor. A bulk call waits for its
// predecessor future asynchronously, then recursively splits [0, n) at the
// midpoint: a background task per non-empty half, the midpoint agent run
// inline. The fork-join is structured -- a task never completes before both
// its halves have -- so the result and shared objects, which live on the root
// task's stack and are captured by reference, stay valid for the whole
// fan-out. Depth is O(log n), total tasks O(n).
type Continuation[P, R, S any] struct {
	pool *workersPool
}

// NewContinuation returns a continuation reference executor backed by the
// engine's workers pool.
func NewContinuation[P, R, S any](engine *Engine) *Continuation[P, R, S] {
	return &Continuation[P, R, S]{pool: &engine.pool}
}

// Compile-time check of the executor contract.
var _ executors.BulkContinuationExecutor[int, int, int] = (*Continuation[int, int, int])(nil)

// BulkThenExecute returns immediately with a future that completes with the
// result once the predecessor has completed and f has been invoked on every
// index in [0, n) exactly once.
//
// The predecessor is waited on by continuation, never by blocking the calling
// goroutine. If it completes with an error, f is not invoked and the error is
// forwarded. When n == 0 only the result factory runs.
func (e *Continuation[P, R, S]) BulkThenExecute(f executors.ThenFunc[P, R, S], n uint64,
	predecessor *futures.Future[P],
	resultFactory executors.ResultFactory[R], sharedFactory executors.SharedFactory[S]) *futures.Future[R] {
	if n == 0 {
		return futures.Ready(resultFactory(0))
	}

	future, complete := futures.New[R]()
	predecessor.Then(func(predValue P, predErr error) {
		if predErr != nil {
			var zero R
			complete(zero, errors.WithMessage(predErr, "bulk predecessor failed"))
			return
		}
		e.pool.WaitToStart(func() {
			// The root task: result and shared state live on its stack for
			// the duration of the whole fan-out, and it runs agent n/2.
			result := resultFactory(n)
			shared := sharedFactory(n)
			g := func(i uint64) {
				f(i, &predValue, &result, &shared)
			}

			mid := n / 2
			var group errgroup.Group
			if 0 < mid {
				group.Go(func() error { return forkJoin(g, 0, mid) })
			}
			if mid+1 < n {
				group.Go(func() error { return forkJoin(g, mid+1, n) })
			}
			err := invokeRange(g, mid, mid+1)

			// The root worker sleeps while joining its halves; let the pool
			// backfill its slot meanwhile.
			e.pool.WorkerIsAsleep()
			joinErr := group.Wait()
			e.pool.WorkerRestarted()

			if err == nil {
				err = joinErr
			}
			complete(result, err)
		})
	})
	return future
}

// forkJoin runs g on every index of the non-empty range [first, last):
// background tasks for [first, mid) and [mid+1, last), g(mid) inline, then
// both halves joined before returning.
func forkJoin(g func(i uint64), first, last uint64) error {
	mid := (first + last) / 2

	var group errgroup.Group
	if first < mid {
		group.Go(func() error { return forkJoin(g, first, mid) })
	}
	if mid+1 < last {
		group.Go(func() error { return forkJoin(g, mid+1, last) })
	}
	err := invokeRange(g, mid, mid+1)

	if joinErr := group.Wait(); err == nil {
		err = joinErr
	}
	return err
}
