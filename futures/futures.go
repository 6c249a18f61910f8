// Package futures implements the one-shot completion handle returned by
// asynchronous bulk calls.
//
// A Future is a write-once cell: it is completed exactly once, with a value
// or an error, and never regresses. Once completed it stays completed, like a
// latch. It is observed either by blocking (Wait), by selecting on Done, or
// by chaining a continuation (Then).
package futures

import "sync"

// Void is the value type of futures that carry no result.
type Void struct{}

// Future is a one-shot, single-result asynchronous completion handle.
//
// The producer side is the complete function returned by New. Completing an
// already-completed future is a no-op: the first completion wins, later ones
// are discarded.
type Future[T any] struct {
	mu   sync.Mutex
	wait chan struct{}

	value T
	err   error

	// callbacks registered before completion; drained exactly once.
	callbacks []func(T, error)
}

// New returns an un-completed future and the function that completes it.
func New[T any]() (f *Future[T], complete func(T, error)) {
	f = &Future[T]{wait: make(chan struct{})}
	return f, f.complete
}

// Ready returns a future already completed with value.
func Ready[T any](value T) *Future[T] {
	f, complete := New[T]()
	complete(value, nil)
	return f
}

// ReadyErr returns a future already completed with err.
func ReadyErr[T any](err error) *Future[T] {
	f, complete := New[T]()
	var zero T
	complete(zero, err)
	return f
}

// ReadyVoid returns a valueless future that is already completed.
func ReadyVoid() *Future[Void] {
	return Ready(Void{})
}

func (f *Future[T]) complete(value T, err error) {
	f.mu.Lock()
	if f.completedLocked() {
		// Already completed, discard value.
		f.mu.Unlock()
		return
	}
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.wait)
	f.mu.Unlock()

	for _, callback := range callbacks {
		callback(value, err)
	}
}

func (f *Future[T]) completedLocked() bool {
	select {
	case <-f.wait:
		return true
	default:
		return false
	}
}

// Wait blocks until the future completes and returns its value and error.
func (f *Future[T]) Wait() (T, error) {
	<-f.wait
	return f.value, f.err
}

// Done returns a channel that is closed when the future completes. Use it on
// a select to observe completion without blocking.
func (f *Future[T]) Done() <-chan struct{} {
	return f.wait
}

// Test reports whether the future has already completed.
func (f *Future[T]) Test() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completedLocked()
}

// Then registers fn to run exactly once when the future completes. If the
// future has already completed, fn runs immediately on the calling goroutine;
// otherwise it runs on the completing goroutine. Continuations must not block
// for long -- spawn work elsewhere if they do.
func (f *Future[T]) Then(fn func(T, error)) {
	f.mu.Lock()
	if !f.completedLocked() {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f.value, f.err)
}
