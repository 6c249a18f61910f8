// Package algorithms provides slice algorithm front-ends over the bulk
// execution engine. They are thin: each one issues a single bulk call and
// exists mostly to exercise the engine end to end.
package algorithms

import (
	"github.com/gomlx/exceptions"

	"github.com/gomlx/bulkexec/executors/flattened"
	"github.com/gomlx/bulkexec/executors/hostref"
	"github.com/gomlx/bulkexec/futures"
)

func voidFactory(uint64) futures.Void { return futures.Void{} }

// Copy copies src into dst, one agent per element, on the flat executor.
// dst must be at least as long as src.
func Copy[T any](ex flattened.Executor, dst, src []T) {
	if len(dst) < len(src) {
		exceptions.Panicf("algorithms.Copy: destination holds %d elements, source %d", len(dst), len(src))
	}
	flattened.BulkInvoke(ex, func(i uint64) {
		dst[i] = src[i]
	}, uint64(len(src)))
}

// CopySequenced is Copy on the sequential reference executor.
func CopySequenced[T any](dst, src []T) {
	if len(dst) < len(src) {
		exceptions.Panicf("algorithms.CopySequenced: destination holds %d elements, source %d", len(dst), len(src))
	}
	forEachSequenced(uint64(len(src)), func(i uint64) {
		dst[i] = src[i]
	})
}

// ForEach invokes fn once per element of s, one agent per element, on the
// flat executor.
func ForEach[T any](ex flattened.Executor, s []T, fn func(i uint64, v *T)) {
	flattened.BulkInvoke(ex, func(i uint64) {
		fn(i, &s[i])
	}, uint64(len(s)))
}

// ForEachSequenced is ForEach on the sequential reference executor.
func ForEachSequenced[T any](s []T, fn func(i uint64, v *T)) {
	forEachSequenced(uint64(len(s)), func(i uint64) {
		fn(i, &s[i])
	})
}

// Fill sets every element of s to v, one agent per element, on the flat
// executor.
func Fill[T any](ex flattened.Executor, s []T, v T) {
	flattened.BulkInvoke(ex, func(i uint64) {
		s[i] = v
	}, uint64(len(s)))
}

// forEachSequenced drives the synchronous reference executor with no result
// or shared state.
func forEachSequenced(n uint64, fn func(i uint64)) {
	var ex hostref.Synchronous[futures.Void, futures.Void]
	ex.BulkExecute(func(i uint64, _ *futures.Void, _ *futures.Void) {
		fn(i)
	}, n, voidFactory, voidFactory)
}
