package hostref

import (
	"github.com/pkg/errors"

	"github.com/gomlx/bulkexec/executors"
	"github.com/gomlx/bulkexec/futures"
)

// Asynchronous is the background-task reference executor: the whole loop is
// handed to one pool task and the result delivered through a future.
type Asynchronous[R, S any] struct {
	pool *workersPool
}

// NewAsynchronous returns an asynchronous reference executor backed by the
// engine's workers pool.
func NewAsynchronous[R, S any](engine *Engine) *Asynchronous[R, S] {
	return &Asynchronous[R, S]{pool: &engine.pool}
}

// Compile-time check of the executor contract.
var _ executors.BulkAsynchronousExecutor[int, int] = (*Asynchronous[int, int])(nil)

// BulkAsyncExecute returns immediately with a future that completes with the
// result once f has been invoked on every index in [0, n). A panic from f
// completes the future with an error instead.
func (e *Asynchronous[R, S]) BulkAsyncExecute(f executors.Func[R, S], n uint64,
	resultFactory executors.ResultFactory[R], sharedFactory executors.SharedFactory[S]) *futures.Future[R] {
	future, complete := futures.New[R]()
	e.pool.WaitToStart(func() {
		result := resultFactory(n)
		shared := sharedFactory(n)

		err := invokeRange(func(i uint64) { f(i, &result, &shared) }, 0, n)
		complete(result, err)
	})
	return future
}

// invokeRange runs g(i) for i in [first, last) sequentially, converting a
// panic into an error naming the agent that threw.
func invokeRange(g func(i uint64), first, last uint64) (err error) {
	i := first
	defer func() {
		if exception := recover(); exception != nil {
			err = errors.Errorf("bulk agent %d panicked: %v", i, exception)
		}
	}()
	for ; i < last; i++ {
		g(i)
	}
	return
}
