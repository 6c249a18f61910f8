package grid

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/gomlx/bulkexec/executors"
	"github.com/gomlx/bulkexec/shapes"
)

// Kernel is the launch target of a grid executor: it is invoked once per
// agent of the launched shape, with the group the agent belongs to and its
// index within the shape.
type Kernel func(g Group, idx shapes.Index)

// Group is the view an agent has of its inner group. All agents of one inner
// group share one Group; agents in different outer groups never synchronize
// with each other.
type Group interface {
	// Sync blocks until every agent of the inner group has reached it.
	Sync()

	// SetLocal stores v in the group-local memory slot. Writes made before a
	// Sync are visible to every agent of the group after it.
	SetLocal(v any)

	// Local returns the current value of the group-local memory slot.
	Local() any

	// InnerExtent returns the inner (agents-per-group) extent of the launch.
	InnerExtent() shapes.Dim3
}

// Stream is an opaque handle to an in-order execution queue owned by a
// Runtime. Work enqueued on one stream runs in FIFO order; distinct streams
// are unordered relative to each other.
type Stream interface {
	// StreamID identifies the stream for diagnostics.
	StreamID() string
}

// Status is a runtime status code, carried by Error.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidConfiguration
	StatusInvalidDevice
	StatusNotSupported
	StatusLaunchFailure
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidConfiguration:
		return "invalid configuration"
	case StatusInvalidDevice:
		return "invalid device"
	case StatusNotSupported:
		return "not supported"
	case StatusLaunchFailure:
		return "launch failure"
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// Error is the error type Runtime implementations report: the failing
// operation's name plus the runtime's status code.
type Error struct {
	Op     string
	Status Status
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// DeviceAttributes are the hardware limits of one device.
type DeviceAttributes struct {
	// MaxGridDim bounds each component of an outer (group-grid) extent.
	MaxGridDim shapes.Dim3

	// MaxBlockDim bounds each component of an inner (agents-per-group) extent.
	MaxBlockDim shapes.Dim3

	// MaxAgentsPerGroup bounds the product of the inner extent's components.
	MaxAgentsPerGroup int

	// LocalMemoryPerGroup is the group-local memory budget, in bytes.
	LocalMemoryPerGroup int
}

// String implements fmt.Stringer.
func (a DeviceAttributes) String() string {
	return fmt.Sprintf("max grid %s, max block %s, %d agents/group, %s local memory/group",
		a.MaxGridDim, a.MaxBlockDim, a.MaxAgentsPerGroup, humanize.IBytes(uint64(a.LocalMemoryPerGroup)))
}

// KernelAttributes are the per-kernel limits a runtime reports for a launch
// target on a given device.
type KernelAttributes struct {
	// MaxAgentsPerGroup bounds the inner extent for this kernel; it may be
	// tighter than the device-wide limit.
	MaxAgentsPerGroup int
}

// Runtime is the accelerator runtime a grid executor drives. It is consumed
// only through this narrow interface; the simrt subpackage provides the
// host-simulated implementation.
type Runtime interface {
	// NumDevices returns the number of devices the runtime exposes.
	NumDevices() executors.DeviceNum

	// Launch schedules k over outer x inner agents on the stream. Each extent
	// component is independently bounded by the device's attributes;
	// exceeding a bound is an error, never a silent clamp. Launch returns
	// once the work is enqueued, not once it completes.
	Launch(k Kernel, outer, inner shapes.Dim3, sharedMemBytes int, stream Stream, device executors.DeviceNum) error

	// AddStreamCallback registers a single-shot callback that fires, on a
	// runtime-owned goroutine, after all work previously enqueued on the
	// stream has completed. A non-nil error reports a failure of that work.
	AddStreamCallback(stream Stream, callback func(err error)) error

	// DeviceAttributes returns the hardware limits of the device.
	DeviceAttributes(device executors.DeviceNum) (DeviceAttributes, error)

	// KernelAttributes returns the limits of launching k on the device.
	KernelAttributes(k Kernel, device executors.DeviceNum) (KernelAttributes, error)

	// CurrentDevice returns the runtime's active device.
	CurrentDevice() (executors.DeviceNum, error)

	// SetDevice switches the runtime's active device.
	SetDevice(device executors.DeviceNum) error

	// Synchronize blocks until all work enqueued on the device has completed.
	Synchronize(device executors.DeviceNum) error

	// DefaultStream returns the device's default stream.
	DefaultStream(device executors.DeviceNum) Stream

	// NewStream creates a new independent stream on the device.
	NewStream(device executors.DeviceNum) (Stream, error)
}
