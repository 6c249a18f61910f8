package hostref

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// workersPool bounds how many background bulk tasks run at once. The bound is
// soft: a worker that blocks joining its children reports itself asleep,
// which temporarily raises the bound so the children it waits on can start.
type workersPool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	// The actual number of goroutines is higher than that -- because of waits and such.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int

	// extraParallelism is temporarily increased when a worker goes to sleep.
	extraParallelism atomic.Int32
}

// Initialize should be called before use.
func (w *workersPool) Initialize() {
	w.maxParallelism = runtime.NumCPU()
	w.cond = sync.Cond{L: &w.mu}
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0).
func (w *workersPool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// SetMaxParallelism sets the soft target for parallelism. 0 disables
// parallelism (tasks run inline), -1 makes it unlimited.
//
// Only change the parallelism before any bulk call is issued. If changed
// during execution the behavior is undefined.
func (w *workersPool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

const goroutineToParallelismRatio = 2

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with workersPool.mu acquired.
func (w *workersPool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= goroutineToParallelismRatio*w.maxParallelism+int(w.extraParallelism.Load())
}

// WaitToStart waits until there is a worker available to run the task.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline
// and returns when it is finished. Bulk calls that rely on concurrency must
// not disable parallelism, or they can deadlock.
func (w *workersPool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return

	} else if w.maxParallelism == 0 {
		// No parallelism, run inline -- better avoided.
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with workersPool.mu acquired.
func (w *workersPool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// WorkerIsAsleep indicates the worker (the one that called the method) is
// going to sleep waiting for other workers, and temporarily increases the
// available number of workers.
//
// Call WorkerRestarted when the worker is ready to run again.
func (w *workersPool) WorkerIsAsleep() {
	w.extraParallelism.Add(1)
}

// WorkerRestarted indicates the worker (the one that called the method) is
// ready to run again. It should only be called after WorkerIsAsleep.
func (w *workersPool) WorkerRestarted() {
	w.extraParallelism.Add(-1)
}
