// Package hostref implements the host-side reference bulk executors: a
// synchronous loop, a single background task, and a recursive fork-join
// continuation executor, all over ordinary goroutines.
//
// The three variants differ only in scheduling, never in outcome: for the
// same function, count and factories they produce the same result and invoke
// the function on every index exactly once. That equivalence is what makes
// them the semantic oracle against which other engines (notably the grid
// executor) are validated.
package hostref

import (
	"strconv"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/bulkexec/executors"
)

// EngineName to use in BULKEXEC_ENGINE to select this engine.
const EngineName = "hostref"

func init() {
	executors.Register(EngineName, New)
}

// New constructs a host reference Engine. The configuration string, if not
// empty, is the maximum parallelism for background tasks (-1 for unlimited).
func New(config string) executors.Engine {
	e := &Engine{}
	e.pool.Initialize()
	if config != "" {
		parallelism, err := strconv.Atoi(config)
		if err != nil {
			exceptions.Panicf("engine %q: invalid parallelism configuration %q: %v", EngineName, config, err)
		}
		e.pool.SetMaxParallelism(parallelism)
	}
	return e
}

// Engine provides the host reference executors. Create the executors
// themselves with Synchronous{}, NewAsynchronous and NewContinuation.
type Engine struct {
	pool workersPool
}

// Compile-time check that hostref.Engine implements executors.Engine.
var _ executors.Engine = (*Engine)(nil)

// Name returns the short name of the engine.
func (e *Engine) Name() string {
	return EngineName
}

// String implements fmt.Stringer.
func (e *Engine) String() string { return EngineName }

// Description is a longer description of the engine that can be used to pretty-print.
func (e *Engine) Description() string {
	return "Host-side reference bulk executors over goroutine fork-join"
}

// NumDevices returns the number of devices available for this engine.
func (e *Engine) NumDevices() executors.DeviceNum {
	return 1
}

// Capabilities returns the capability tags this engine declares.
func (e *Engine) Capabilities() executors.Capabilities {
	return executors.Capabilities{Tags: map[executors.Capability]bool{
		executors.CapFlatShape:    true,
		executors.CapSharedState:  true,
		executors.CapSynchronous:  true,
		executors.CapAsynchronous: true,
		executors.CapContinuation: true,
	}}
}

// Finalize releases all associated resources immediately and makes the engine invalid.
func (e *Engine) Finalize() {}
