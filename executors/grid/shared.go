package grid

import (
	"github.com/gomlx/bulkexec/futures"
	"github.com/gomlx/bulkexec/shapes"
)

// This file implements the shared-state marshaling protocol: how a per-outer
// group object and a per-inner-group object become visible to agents,
// initialized exactly once, and torn down safely.
//
// The inner shared object lives in the group-local memory slot. The agent
// whose inner index is all-zero (the group leader) constructs it from the
// initial value; a barrier then guarantees every agent of the group observes
// the construction before first use. After the agent function returns, a
// second barrier guarantees no agent is still using the object when the
// leader tears it down. These two barriers are the only synchronization the
// executor ever introduces; the variants that don't use the inner level add
// no barrier at all.
//
// The outer shared object is a single heap allocation addressed by pointer,
// never value-copied per agent. Its teardown is attached as a continuation on
// the completion future.

// KernelBoth is an agent function receiving both shared levels.
type KernelBoth[O, I any] func(g Group, idx shapes.Index, outer *O, inner *I)

// KernelOuter is an agent function receiving only the per-outer-group shared
// object.
type KernelOuter[O any] func(g Group, idx shapes.Index, outer *O)

// KernelInner is an agent function receiving only the per-inner-group shared
// object.
type KernelInner[I any] func(g Group, idx shapes.Index, inner *I)

// Disposer is implemented by shared objects that need teardown. The executor
// calls Dispose exactly once per constructed instance: for inner shared
// objects, by the group leader after the second barrier; for outer shared
// objects, after the bulk call's future completes.
type Disposer interface {
	Dispose()
}

func dispose(v any) {
	if d, ok := v.(Disposer); ok {
		d.Dispose()
	}
}

// marshalInner wraps invoke with the inner-level protocol: leader constructs
// from innerInit, barrier, invoke, barrier, leader destroys.
func marshalInner[I any](innerInit I, invoke func(g Group, idx shapes.Index, inner *I)) Kernel {
	return func(g Group, idx shapes.Index) {
		leader := idx.Inner.IsZero()
		if leader {
			inner := innerInit
			g.SetLocal(&inner)
		}
		g.Sync()

		inner := g.Local().(*I)
		invoke(g, idx, inner)

		g.Sync()
		if leader {
			dispose(inner)
			g.SetLocal(nil)
		}
	}
}

// newOuter allocates the per-call outer shared object and attaches its
// teardown to the completion future, so the allocation is reclaimed instead
// of leaked once the caller's work is done.
func newOuter[O any](outerArg O) (outerPtr *O, attachDisposal func(*futures.Future[futures.Void])) {
	outerPtr = new(O)
	*outerPtr = outerArg
	attachDisposal = func(future *futures.Future[futures.Void]) {
		future.Then(func(futures.Void, error) {
			dispose(outerPtr)
		})
	}
	return
}

// BulkAsyncBoth is BulkAsync with both an outer and an inner shared argument:
// the outer object is constructed once for the whole call, the inner object
// once per outer group from innerArg's value.
func BulkAsyncBoth[O, I any](ex Executor, f KernelBoth[O, I], shape shapes.Shape, outerArg O, innerArg I) *futures.Future[futures.Void] {
	outerPtr, attachDisposal := newOuter(outerArg)
	kernel := marshalInner(innerArg, func(g Group, idx shapes.Index, inner *I) {
		f(g, idx, outerPtr, inner)
	})
	future := BulkAsync(ex, kernel, shape)
	attachDisposal(future)
	return future
}

// BulkAsyncOuter is BulkAsync with only an outer shared argument. No inner
// object means no barrier is introduced.
func BulkAsyncOuter[O any](ex Executor, f KernelOuter[O], shape shapes.Shape, outerArg O) *futures.Future[futures.Void] {
	outerPtr, attachDisposal := newOuter(outerArg)
	kernel := func(g Group, idx shapes.Index) {
		f(g, idx, outerPtr)
	}
	future := BulkAsync(ex, kernel, shape)
	attachDisposal(future)
	return future
}

// BulkAsyncInner is BulkAsync with only an inner shared argument, constructed
// once per outer group from innerArg's value.
func BulkAsyncInner[I any](ex Executor, f KernelInner[I], shape shapes.Shape, innerArg I) *futures.Future[futures.Void] {
	kernel := marshalInner(innerArg, func(g Group, idx shapes.Index, inner *I) {
		f(g, idx, inner)
	})
	return BulkAsync(ex, kernel, shape)
}

// BulkInvokeBoth is the blocking form of BulkAsyncBoth.
func BulkInvokeBoth[O, I any](ex Executor, f KernelBoth[O, I], shape shapes.Shape, outerArg O, innerArg I) {
	_, err := BulkAsyncBoth(ex, f, shape, outerArg, innerArg).Wait()
	throwOnError(err, "BulkInvokeBoth")
}

// BulkInvokeOuter is the blocking form of BulkAsyncOuter.
func BulkInvokeOuter[O any](ex Executor, f KernelOuter[O], shape shapes.Shape, outerArg O) {
	_, err := BulkAsyncOuter(ex, f, shape, outerArg).Wait()
	throwOnError(err, "BulkInvokeOuter")
}

// BulkInvokeInner is the blocking form of BulkAsyncInner.
func BulkInvokeInner[I any](ex Executor, f KernelInner[I], shape shapes.Shape, innerArg I) {
	_, err := BulkAsyncInner(ex, f, shape, innerArg).Wait()
	throwOnError(err, "BulkInvokeInner")
}
