package simrt

import (
	"sync"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/gomlx/bulkexec/executors"
)

// stream is a serial execution queue: operations run in FIFO order, one at a
// time, on a drainer goroutine that exists only while the queue is non-empty.
type stream struct {
	id     string
	device executors.DeviceNum

	mu       sync.Mutex
	cond     sync.Cond // Signaled when the queue drains, for waitIdle.
	queue    []func()
	draining bool

	// err is the stream's sticky error: the first launch failure on this
	// stream, reported to every later callback.
	err error
}

func newStream(device executors.DeviceNum) *stream {
	s := &stream{id: uuid.NewString(), device: device}
	s.cond = sync.Cond{L: &s.mu}
	return s
}

// StreamID implements grid.Stream.
func (s *stream) StreamID() string { return s.id }

// enqueue appends op to the queue and makes sure a drainer is running.
func (s *stream) enqueue(op func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, op)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

func (s *stream) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
		op := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		op()
	}
}

// waitIdle blocks until everything enqueued so far has run.
func (s *stream) waitIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.draining || len(s.queue) > 0 {
		s.cond.Wait()
	}
}

// fail records the stream's sticky error; the first failure wins.
func (s *stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
		klog.Warningf("simrt: stream %s failed: %+v", s.id, err)
	}
}

func (s *stream) stickyErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
