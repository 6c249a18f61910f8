// Package grid implements the accelerator-backed bulk executor: it maps a
// two-level shape onto a runtime's launch parameters (outer extent to the
// group grid, inner extent to agents per group), marshals per-level shared
// state into group-local memory with barrier-guarded single initialization,
// and delivers completion through a future fulfilled by a stream callback.
//
// The executor is a value: an immutable bundle of runtime, device, stream and
// group-local memory budget. It owns no per-call state, so copies issue calls
// independently.
//
// Runtime failures throw (panic) with an exception naming the failing
// operation. See package github.com/gomlx/exceptions.
package grid

import (
	"sync"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/bulkexec/executors"
	"github.com/gomlx/bulkexec/futures"
	"github.com/gomlx/bulkexec/shapes"
)

// Executor issues bulk calls over two-level shapes on one device of a
// Runtime. The zero value is not usable; construct with New.
type Executor struct {
	rt             Runtime
	device         executors.DeviceNum
	stream         Stream
	sharedMemBytes int
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithDevice targets the executor at the given device. Default is device 0.
func WithDevice(device executors.DeviceNum) Option {
	return func(ex *Executor) { ex.device = device }
}

// WithStream issues the executor's calls on the given stream instead of the
// device's default stream.
func WithStream(stream Stream) Option {
	return func(ex *Executor) { ex.stream = stream }
}

// WithSharedMemory reserves sharedMemBytes of group-local memory per launch.
func WithSharedMemory(sharedMemBytes int) Option {
	return func(ex *Executor) { ex.sharedMemBytes = sharedMemBytes }
}

// New returns an executor over rt, targeting device 0 and its default stream
// unless options say otherwise.
func New(rt Runtime, options ...Option) Executor {
	ex := Executor{rt: rt}
	for _, option := range options {
		option(&ex)
	}
	if ex.stream == nil {
		ex.stream = rt.DefaultStream(ex.device)
	}
	return ex
}

// Runtime returns the runtime the executor drives.
func (ex Executor) Runtime() Runtime { return ex.rt }

// Device returns the device the executor targets.
func (ex Executor) Device() executors.DeviceNum { return ex.device }

// Stream returns the stream the executor issues calls on.
func (ex Executor) Stream() Stream { return ex.stream }

// SharedMemoryBytes returns the group-local memory budget per launch.
func (ex Executor) SharedMemoryBytes() int { return ex.sharedMemBytes }

// throwOnError converts a runtime error into an exception naming the failing
// operation, the runtime tier of error handling.
func throwOnError(err error, op string) {
	if err == nil {
		return
	}
	exceptions.Panicf("grid executor: %s: %+v", op, err)
}

// launch enqueues f over shape on the executor's stream.
func (ex Executor) launch(f Kernel, shape shapes.Shape) {
	err := ex.rt.Launch(f, shape.Outer, shape.Inner, ex.sharedMemBytes, ex.stream, ex.device)
	throwOnError(err, "Launch")
}

// completionToken fulfills a future exactly once from a stream callback and
// then releases the resources it privately owns.
type completionToken struct {
	once     sync.Once
	complete func(futures.Void, error)
}

func (t *completionToken) notify(err error) {
	// The callback must not be re-entered; Once guards against a misbehaving
	// runtime firing twice.
	t.once.Do(func() {
		complete := t.complete
		t.complete = nil // Release the token's reference after fulfilling.
		complete(futures.Void{}, err)
	})
}

// BulkAsync executes f once per index in shape and returns immediately with a
// future that completes when the underlying device signals completion.
func BulkAsync(ex Executor, f Kernel, shape shapes.Shape) *futures.Future[futures.Void] {
	ex.launch(f, shape)

	future, complete := futures.New[futures.Void]()
	token := &completionToken{complete: complete}
	err := ex.rt.AddStreamCallback(ex.stream, token.notify)
	throwOnError(err, "BulkAsync: AddStreamCallback")
	return future
}

// BulkInvoke executes f once per index in shape and blocks the calling
// goroutine until completion. A failure of the launched work throws.
func BulkInvoke(ex Executor, f Kernel, shape shapes.Shape) {
	_, err := BulkAsync(ex, f, shape).Wait()
	throwOnError(err, "BulkInvoke")
}
