// Package flattened presents a flat, one-dimensional bulk-execution contract
// over the grid executor, which natively speaks two-level shapes.
//
// The flat space [0, n) is partitioned by making inner groups as large as the
// device allows and using as many outer groups as needed to cover n. Each
// dispatched agent re-derives its flat index from its two-level one and does
// nothing when the index falls beyond n, which can only happen in the final
// outer group. If even the largest partitioning cannot cover n in one launch,
// the call throws: this adapter performs no multi-launch chunking.
package flattened

import (
	"github.com/gomlx/exceptions"

	"github.com/gomlx/bulkexec/executors/grid"
	"github.com/gomlx/bulkexec/futures"
	"github.com/gomlx/bulkexec/shapes"
)

// Executor adapts a grid executor to the flat contract. It is a value, like
// the executor it wraps.
type Executor struct {
	base grid.Executor
}

// New returns a flat executor over base.
func New(base grid.Executor) Executor {
	return Executor{base: base}
}

// Base returns the underlying grid executor.
func (ex Executor) Base() grid.Executor { return ex.base }

// partition returns the two-level shape covering the flat extent n for
// launch target f: inner groups as large as the device allows, then the
// outer count to cover n. Exceeding the device's outer limit is fatal.
func (ex Executor) partition(f grid.Kernel, n uint64) shapes.Shape {
	maxShape := grid.MaxShape(ex.base, f)

	innerSize := uint64(maxShape.Inner.X)
	outerSize := shapes.CeilDiv(n, innerSize)
	if outerSize > uint64(maxShape.Outer.X) {
		exceptions.Panicf("flattened executor: flat extent %d needs %d outer groups of %d agents, device allows at most %d groups -- iteration space too large for one bulk call",
			n, outerSize, innerSize, maxShape.Outer.X)
	}
	return shapes.Shape{
		Outer: shapes.FromFlat(outerSize),
		Inner: shapes.D1(maxShape.Inner.X),
	}
}

// BulkAsync executes f once per flat index in [0, n) and returns immediately
// with a future that completes when the device signals completion.
func BulkAsync(ex Executor, f func(i uint64), n uint64) *futures.Future[futures.Void] {
	if n == 0 {
		return futures.ReadyVoid()
	}
	var partitioning shapes.Shape
	kernel := func(_ grid.Group, idx shapes.Index) {
		// Tail agents of the final outer group silently skip.
		if flat := idx.Flat(partitioning); flat < n {
			f(flat)
		}
	}
	partitioning = ex.partition(kernel, n)
	return grid.BulkAsync(ex.base, kernel, partitioning)
}

// BulkInvoke executes f once per flat index in [0, n), blocking until
// completion.
func BulkInvoke(ex Executor, f func(i uint64), n uint64) {
	_, err := BulkAsync(ex, f, n).Wait()
	if err != nil {
		exceptions.Panicf("flattened executor: BulkInvoke: %+v", err)
	}
}

// BulkAsyncShared is BulkAsync with a caller-supplied shared argument: one
// object for the whole call, mapped onto the underlying executor's outer
// level, with the inner level held absent (so no barrier is introduced).
func BulkAsyncShared[T any](ex Executor, f func(i uint64, shared *T), n uint64, sharedArg T) *futures.Future[futures.Void] {
	if n == 0 {
		return futures.ReadyVoid()
	}
	var partitioning shapes.Shape
	kernel := func(_ grid.Group, idx shapes.Index, shared *T) {
		if flat := idx.Flat(partitioning); flat < n {
			f(flat, shared)
		}
	}
	// The launch target handed to the limit queries is the flat wrapper; the
	// shared-argument marshaling does not change the partitioning.
	partitioning = ex.partition(func(g grid.Group, idx shapes.Index) { kernel(g, idx, nil) }, n)
	return grid.BulkAsyncOuter(ex.base, kernel, partitioning, sharedArg)
}

// BulkInvokeShared is the blocking form of BulkAsyncShared.
func BulkInvokeShared[T any](ex Executor, f func(i uint64, shared *T), n uint64, sharedArg T) {
	_, err := BulkAsyncShared(ex, f, n, sharedArg).Wait()
	if err != nil {
		exceptions.Panicf("flattened executor: BulkInvokeShared: %+v", err)
	}
}
