package flattened

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gomlx/bulkexec/executors/grid"
	"github.com/gomlx/bulkexec/executors/grid/simrt"
	"github.com/gomlx/bulkexec/futures"
	"github.com/gomlx/bulkexec/shapes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("k8s.io/klog/v2.(*flushDaemon).run"))
}

// tinyExecutor builds a flat executor over a simulated device with small
// limits, so partitioning and the tail path are exercised with few agents.
func tinyExecutor(maxGroups, maxAgentsPerGroup uint32) Executor {
	attrs := simrt.DefaultDeviceAttributes
	attrs.MaxGridDim = shapes.D1(maxGroups)
	attrs.MaxBlockDim = shapes.D1(maxAgentsPerGroup)
	attrs.MaxAgentsPerGroup = int(maxAgentsPerGroup)
	return New(grid.New(simrt.NewRuntime(simrt.WithDeviceAttributes(attrs))))
}

func TestBulkInvokeCoversFlatSpace(t *testing.T) {
	ex := tinyExecutor(8, 4)
	// 13 needs 4 groups of 4 with a 3-agent tail skipped in the last group.
	for _, n := range []uint64{1, 4, 13, 32} {
		counts := make([]atomic.Int32, n)
		BulkInvoke(ex, func(i uint64) {
			counts[i].Add(1)
		}, n)
		for i := range counts {
			assert.Equal(t, int32(1), counts[i].Load(), "index %d of n=%d", i, n)
		}
	}
}

func TestBulkAsyncZeroIsImmediatelyReady(t *testing.T) {
	ex := tinyExecutor(8, 4)
	future := BulkAsync(ex, func(uint64) {
		t.Error("no index may run for n == 0")
	}, 0)
	assert.True(t, future.Test())
	_, err := future.Wait()
	assert.NoError(t, err)
}

func TestPartitioning(t *testing.T) {
	ex := tinyExecutor(8, 4)
	noop := func(grid.Group, shapes.Index) {}

	shape := ex.partition(noop, 13)
	assert.Equal(t, shapes.D1(4), shape.Outer, "ceil(13/4) groups")
	assert.Equal(t, shapes.D1(4), shape.Inner)

	shape = ex.partition(noop, 32)
	assert.Equal(t, shapes.D1(8), shape.Outer, "exact fit uses no extra group")
}

func TestOversizedExtentThrows(t *testing.T) {
	ex := tinyExecutor(8, 4) // at most 32 agents in one call
	err := exceptions.TryCatch[error](func() {
		BulkInvoke(ex, func(uint64) {}, 33)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestBulkInvokeSharedSingleInstance(t *testing.T) {
	ex := tinyExecutor(8, 4)
	const n = 13

	type tally struct{ hits atomic.Int64 }
	var seen sync.Map
	BulkInvokeShared(ex, func(i uint64, shared *tally) {
		shared.hits.Add(1)
		seen.Store(shared, true)
	}, n, tally{})

	distinct := 0
	var only *tally
	seen.Range(func(k, _ any) bool {
		distinct++
		only = k.(*tally)
		return true
	})
	require.Equal(t, 1, distinct, "one shared instance spans all groups")
	assert.Equal(t, int64(n), only.hits.Load())
}

func TestSharedDisposedAfterCompletion(t *testing.T) {
	ex := tinyExecutor(8, 4)

	var disposals atomic.Int64
	future := BulkAsyncShared(ex, func(uint64, *sharedTally) {}, 5, sharedTally{disposals: &disposals})

	// Continuations run in registration order: once this one fires, the
	// internally attached teardown has already run.
	done := make(chan struct{})
	future.Then(func(futures.Void, error) { close(done) })
	<-done
	assert.Equal(t, int64(1), disposals.Load())
}

type sharedTally struct {
	disposals *atomic.Int64
}

func (s *sharedTally) Dispose() { s.disposals.Add(1) }

func TestAgentPanicSurfacesThroughInvoke(t *testing.T) {
	ex := tinyExecutor(8, 4)
	err := exceptions.TryCatch[error](func() {
		BulkInvoke(ex, func(i uint64) {
			if i == 5 {
				panic("flat agent 5 exploded")
			}
		}, 13)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}
