package executors

import "github.com/gomlx/bulkexec/futures"

// Func is the per-agent function of synchronous and asynchronous bulk calls.
// It is invoked exactly once per index i in [0, n), with pointers to the
// bulk-call-scoped result and shared objects.
type Func[R, S any] func(i uint64, result *R, shared *S)

// ThenFunc is the per-agent function of continuation bulk calls. It
// additionally receives a pointer to the predecessor future's value. When the
// predecessor carries no value, P is futures.Void and pred points at its zero
// value.
type ThenFunc[P, R, S any] func(i uint64, pred *P, result *R, shared *S)

// ResultFactory builds the value a bulk call eventually returns. It is
// invoked exactly once per bulk call, before any agent runs.
type ResultFactory[R any] func(n uint64) R

// SharedFactory builds the mutable state shared by all agents of one bulk
// call. It is invoked exactly once per bulk call, before any agent runs.
type SharedFactory[S any] func(n uint64) S

// The three executor contracts below are the compile-time tier of capability
// checking: an executor that cannot satisfy a contract simply does not
// implement the interface, so an incapable call never compiles. The runtime
// tier is the Capabilities tag set declared by each Engine.

// BulkSynchronousExecutor runs a bulk call on the calling goroutine and
// returns the completed result directly.
type BulkSynchronousExecutor[R, S any] interface {
	BulkExecute(f Func[R, S], n uint64, resultFactory ResultFactory[R], sharedFactory SharedFactory[S]) R
}

// BulkAsynchronousExecutor runs a bulk call in the background and returns a
// future that completes with the result.
type BulkAsynchronousExecutor[R, S any] interface {
	BulkAsyncExecute(f Func[R, S], n uint64, resultFactory ResultFactory[R], sharedFactory SharedFactory[S]) *futures.Future[R]
}

// BulkContinuationExecutor runs a bulk call after a predecessor future
// completes, without blocking the calling goroutine on the predecessor.
type BulkContinuationExecutor[P, R, S any] interface {
	BulkThenExecute(f ThenFunc[P, R, S], n uint64, predecessor *futures.Future[P],
		resultFactory ResultFactory[R], sharedFactory SharedFactory[S]) *futures.Future[R]
}
