package grid

import (
	"github.com/gomlx/bulkexec/executors"
)

// Engine adapts a Runtime to the executors.Engine registry contract. Runtime
// implementations (e.g. the simrt subpackage) register themselves wrapped in
// one of these.
type Engine struct {
	name        string
	description string
	rt          Runtime
}

// NewEngine wraps rt as a registrable engine.
func NewEngine(name, description string, rt Runtime) *Engine {
	return &Engine{name: name, description: description, rt: rt}
}

// Compile-time check that grid.Engine implements executors.Engine.
var _ executors.Engine = (*Engine)(nil)

// Name returns the short name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// String implements fmt.Stringer.
func (e *Engine) String() string { return e.name }

// Description is a longer description of the engine that can be used to pretty-print.
func (e *Engine) Description() string {
	return e.description
}

// Runtime returns the wrapped runtime, from which Executors are built with New.
func (e *Engine) Runtime() Runtime {
	return e.rt
}

// NumDevices returns the number of devices available for this engine.
func (e *Engine) NumDevices() executors.DeviceNum {
	return e.rt.NumDevices()
}

// Capabilities returns the capability tags this engine declares.
func (e *Engine) Capabilities() executors.Capabilities {
	return executors.Capabilities{Tags: map[executors.Capability]bool{
		executors.CapFlatShape:    true, // through the flattened adapter
		executors.CapNestedShape:  true,
		executors.CapSharedState:  true,
		executors.CapSynchronous:  true,
		executors.CapAsynchronous: true,
	}}
}

// Finalize releases all associated resources immediately and makes the engine invalid.
func (e *Engine) Finalize() {
	if finalizer, ok := e.rt.(interface{ Finalize() }); ok {
		finalizer.Finalize()
	}
	e.rt = nil
}
