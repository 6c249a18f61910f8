package executors

import "maps"

// Capability is a named tag an engine declares support for. Callers that
// dispatch dynamically check tags instead of structurally introspecting the
// executor type.
type Capability string

const (
	// CapFlatShape: the engine accepts flat (one-dimensional) iteration spaces.
	CapFlatShape Capability = "flat-shape"

	// CapNestedShape: the engine accepts two-level (outer x inner) iteration spaces.
	CapNestedShape Capability = "nested-shape"

	// CapSharedState: the engine marshals per-level shared mutable state.
	CapSharedState Capability = "shared-state"

	// CapSynchronous: the engine offers the blocking BulkExecute contract.
	CapSynchronous Capability = "synchronous"

	// CapAsynchronous: the engine offers the BulkAsyncExecute contract.
	CapAsynchronous Capability = "asynchronous"

	// CapContinuation: the engine offers the BulkThenExecute contract.
	CapContinuation Capability = "continuation"
)

// Capabilities holds the set of capability tags an engine supports.
// If a tag is not listed, it's assumed to be false, hence not supported.
type Capabilities struct {
	Tags map[Capability]bool
}

// Has reports whether the capability tag is declared supported.
func (c Capabilities) Has(tag Capability) bool {
	return c.Tags[tag]
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Tags = make(map[Capability]bool, len(c.Tags))
	maps.Copy(c2.Tags, c.Tags)
	return c2
}
