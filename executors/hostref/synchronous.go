package hostref

import "github.com/gomlx/bulkexec/executors"

// Synchronous is the sequential reference executor: a plain loop on the
// calling goroutine, no concurrency. Panics from f propagate directly to the
// caller, there is no future to carry them.
type Synchronous[R, S any] struct{}

// Compile-time check of the executor contract.
var _ executors.BulkSynchronousExecutor[int, int] = Synchronous[int, int]{}

// BulkExecute invokes f once per index in [0, n), in order, and returns the
// completed result. The result and shared factories are each invoked exactly
// once, before any agent runs.
func (Synchronous[R, S]) BulkExecute(f executors.Func[R, S], n uint64,
	resultFactory executors.ResultFactory[R], sharedFactory executors.SharedFactory[S]) R {
	result := resultFactory(n)
	shared := sharedFactory(n)

	for i := uint64(0); i < n; i++ {
		f(i, &result, &shared)
	}

	return result
}
