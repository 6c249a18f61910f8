package simrt

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/bulkexec/executors"
	"github.com/gomlx/bulkexec/executors/grid"
	"github.com/gomlx/bulkexec/shapes"
)

func invalidConfiguration(op string) error {
	return errors.WithStack(&grid.Error{Op: op, Status: grid.StatusInvalidConfiguration})
}

// validateLaunch checks every extent component independently against the
// device limits. Exceeding a limit is an error, never a silent clamp.
func validateLaunch(attrs grid.DeviceAttributes, outer, inner shapes.Dim3, sharedMemBytes int) error {
	if outer.Size() == 0 || inner.Size() == 0 {
		return errors.WithMessagef(invalidConfiguration("Launch"), "empty extent: outer %s, inner %s", outer, inner)
	}
	if outer.X > attrs.MaxGridDim.X || outer.Y > attrs.MaxGridDim.Y || outer.Z > attrs.MaxGridDim.Z {
		return errors.WithMessagef(invalidConfiguration("Launch"), "outer extent %s exceeds device limit %s", outer, attrs.MaxGridDim)
	}
	if inner.X > attrs.MaxBlockDim.X || inner.Y > attrs.MaxBlockDim.Y || inner.Z > attrs.MaxBlockDim.Z {
		return errors.WithMessagef(invalidConfiguration("Launch"), "inner extent %s exceeds device limit %s", inner, attrs.MaxBlockDim)
	}
	if inner.Size() > uint64(attrs.MaxAgentsPerGroup) {
		return errors.WithMessagef(invalidConfiguration("Launch"), "inner extent %s exceeds %d agents per group", inner, attrs.MaxAgentsPerGroup)
	}
	if sharedMemBytes > attrs.LocalMemoryPerGroup {
		return errors.WithMessagef(invalidConfiguration("Launch"), "%d bytes of group-local memory requested, device offers %d", sharedMemBytes, attrs.LocalMemoryPerGroup)
	}
	return nil
}

// Launch schedules k over outer x inner agents on the stream. It returns once
// the work is enqueued; failures of the work itself surface through stream
// callbacks.
func (r *Runtime) Launch(k grid.Kernel, outer, inner shapes.Dim3, sharedMemBytes int, st grid.Stream, num executors.DeviceNum) error {
	d, err := r.device(num)
	if err != nil {
		return errors.WithMessagef(err, "Launch on device %d", num)
	}
	s, ok := st.(*stream)
	if !ok || s == nil {
		return errors.WithMessage(invalidConfiguration("Launch"), "stream does not belong to this runtime")
	}
	if s.device != num {
		return errors.WithMessagef(invalidConfiguration("Launch"), "stream %s belongs to device %d, not %d", s.id, s.device, num)
	}
	if err := validateLaunch(d.attrs, outer, inner, sharedMemBytes); err != nil {
		return err
	}

	launchID := uuid.NewString()
	if klog.V(1).Enabled() {
		klog.Infof("simrt: launch %s on device %d stream %s: outer %s x inner %s (%d agents)",
			launchID, num, s.id, outer, inner, outer.Size()*inner.Size())
	}

	s.enqueue(func() {
		if err := runLaunch(k, outer, inner); err != nil {
			s.fail(errors.WithMessagef(err, "launch %s", launchID))
		}
	})
	return nil
}

// AddStreamCallback registers a single-shot callback that fires after all
// work previously enqueued on the stream has completed, on a runtime-owned
// goroutine (the stream's drainer).
func (r *Runtime) AddStreamCallback(st grid.Stream, callback func(err error)) error {
	s, ok := st.(*stream)
	if !ok || s == nil {
		return errors.WithMessage(invalidConfiguration("AddStreamCallback"), "stream does not belong to this runtime")
	}
	s.enqueue(func() {
		callback(s.stickyErr())
	})
	return nil
}

// runLaunch runs every outer group concurrently, one goroutine per agent,
// and returns when all groups have drained. Order across groups is
// unspecified; groups never synchronize with each other.
func runLaunch(k grid.Kernel, outer, inner shapes.Dim3) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for z := uint32(0); z < outer.Z; z++ {
		for y := uint32(0); y < outer.Y; y++ {
			for x := uint32(0); x < outer.X; x++ {
				outerIdx := shapes.Dim3{X: x, Y: y, Z: z}
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := runGroup(k, outerIdx, inner); err != nil {
						mu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						mu.Unlock()
					}
				}()
			}
		}
	}
	wg.Wait()
	return firstErr
}

// groupAborted unwinds agents whose group barrier was broken by another
// agent's panic; it is not itself a failure to report.
type groupAborted struct{}

// group implements grid.Group for one inner group.
type group struct {
	barrier     *barrier
	innerExtent shapes.Dim3

	// local is the group-local memory slot. Only the visibility the barrier
	// provides is guaranteed: write before Sync, read after.
	local any
}

func (g *group) Sync()                    { g.barrier.await() }
func (g *group) SetLocal(v any)           { g.local = v }
func (g *group) Local() any               { return g.local }
func (g *group) InnerExtent() shapes.Dim3 { return g.innerExtent }

// runGroup runs one goroutine per agent of the inner group, all sharing one
// barrier. A panicking agent breaks the barrier so the rest of the group
// unwinds instead of deadlocking, and the launch reports the panic.
func runGroup(k grid.Kernel, outerIdx, inner shapes.Dim3) error {
	g := &group{
		barrier:     newBarrier(int(inner.Size())),
		innerExtent: inner,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for z := uint32(0); z < inner.Z; z++ {
		for y := uint32(0); y < inner.Y; y++ {
			for x := uint32(0); x < inner.X; x++ {
				idx := shapes.Index{Outer: outerIdx, Inner: shapes.Dim3{X: x, Y: y, Z: z}}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() {
						exception := recover()
						if exception == nil {
							return
						}
						if _, aborted := exception.(groupAborted); !aborted {
							mu.Lock()
							if firstErr == nil {
								firstErr = errors.WithMessagef(
									errors.WithStack(&grid.Error{Op: "Launch", Status: grid.StatusLaunchFailure}),
									"agent %s panicked: %v", idx, exception)
							}
							mu.Unlock()
						}
						g.barrier.abort()
					}()
					k(g, idx)
				}()
			}
		}
	}
	wg.Wait()
	return firstErr
}
