// Package simrt implements a host-simulated device runtime for the grid
// executor: streams are serial dispatch queues, groups are sets of goroutines
// rendezvousing on a phase barrier, and device limits are ordinary
// configuration. It is the portable twin of a real accelerator runtime, and
// the engine the reference executors are validated against.
//
// Import it with import _ "github.com/gomlx/bulkexec/executors/grid/simrt" to
// make the "sim" engine available through the executors registry.
package simrt

import (
	"strconv"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gomlx/bulkexec/executors"
	"github.com/gomlx/bulkexec/executors/grid"
	"github.com/gomlx/bulkexec/shapes"
)

// EngineName to use in BULKEXEC_ENGINE to select this engine.
const EngineName = "sim"

func init() {
	executors.Register(EngineName, New)
}

// New constructs a "sim" engine. The configuration string, if not empty, is
// the number of simulated devices.
func New(config string) executors.Engine {
	var options []Option
	if config != "" {
		numDevices, err := strconv.Atoi(config)
		if err != nil {
			exceptions.Panicf("engine %q: invalid device count configuration %q: %v", EngineName, config, err)
		}
		options = append(options, WithNumDevices(numDevices))
	}
	return grid.NewEngine(EngineName, "Simulated device runtime over goroutine groups", NewRuntime(options...))
}

// DefaultDeviceAttributes mirror common accelerator hardware limits.
var DefaultDeviceAttributes = grid.DeviceAttributes{
	MaxGridDim:          shapes.Dim3{X: 2147483647, Y: 65535, Z: 65535},
	MaxBlockDim:         shapes.Dim3{X: 1024, Y: 1024, Z: 64},
	MaxAgentsPerGroup:   1024,
	LocalMemoryPerGroup: 48 * 1024,
}

// Runtime is the simulated device runtime. Construct with NewRuntime.
type Runtime struct {
	devices []*device

	muActive sync.Mutex
	active   executors.DeviceNum
}

// Compile-time check that simrt.Runtime implements grid.Runtime.
var _ grid.Runtime = (*Runtime)(nil)

type device struct {
	num           executors.DeviceNum
	attrs         grid.DeviceAttributes
	defaultStream *stream

	mu      sync.Mutex
	streams []*stream
}

// runtimeConfig accumulates option values; the device table is built from it
// once, after every option has run, so options compose in any order.
type runtimeConfig struct {
	numDevices int
	attrs      grid.DeviceAttributes
}

// Option configures a Runtime at construction.
type Option func(*runtimeConfig)

// WithNumDevices sets the number of simulated devices. Default is 1.
func WithNumDevices(n int) Option {
	return func(c *runtimeConfig) {
		if n < 1 {
			exceptions.Panicf("simrt.WithNumDevices: need at least 1 device, got %d", n)
		}
		c.numDevices = n
	}
}

// WithDeviceAttributes overrides the limits of every simulated device.
func WithDeviceAttributes(attrs grid.DeviceAttributes) Option {
	return func(c *runtimeConfig) {
		c.attrs = attrs
	}
}

// NewRuntime returns a simulated runtime with one device, unless options say
// otherwise.
func NewRuntime(options ...Option) *Runtime {
	config := runtimeConfig{numDevices: 1, attrs: DefaultDeviceAttributes}
	for _, option := range options {
		option(&config)
	}

	r := &Runtime{devices: make([]*device, config.numDevices)}
	for i := range r.devices {
		d := &device{num: executors.DeviceNum(i), attrs: config.attrs}
		d.defaultStream = newStream(d.num)
		d.streams = []*stream{d.defaultStream}
		r.devices[i] = d
	}
	return r
}

func (r *Runtime) device(num executors.DeviceNum) (*device, error) {
	if num < 0 || int(num) >= len(r.devices) {
		return nil, errors.WithStack(&grid.Error{Op: "device lookup", Status: grid.StatusInvalidDevice})
	}
	return r.devices[num], nil
}

// NumDevices returns the number of simulated devices.
func (r *Runtime) NumDevices() executors.DeviceNum {
	return executors.DeviceNum(len(r.devices))
}

// DeviceAttributes returns the limits of the device.
func (r *Runtime) DeviceAttributes(num executors.DeviceNum) (grid.DeviceAttributes, error) {
	d, err := r.device(num)
	if err != nil {
		return grid.DeviceAttributes{}, err
	}
	return d.attrs, nil
}

// KernelAttributes returns the limits of launching k on the device. The
// simulation imposes no per-kernel tightening: the device-wide group limit
// applies.
func (r *Runtime) KernelAttributes(_ grid.Kernel, num executors.DeviceNum) (grid.KernelAttributes, error) {
	d, err := r.device(num)
	if err != nil {
		return grid.KernelAttributes{}, err
	}
	return grid.KernelAttributes{MaxAgentsPerGroup: d.attrs.MaxAgentsPerGroup}, nil
}

// CurrentDevice returns the runtime's active device.
func (r *Runtime) CurrentDevice() (executors.DeviceNum, error) {
	r.muActive.Lock()
	defer r.muActive.Unlock()
	return r.active, nil
}

// SetDevice switches the runtime's active device.
func (r *Runtime) SetDevice(num executors.DeviceNum) error {
	if _, err := r.device(num); err != nil {
		return errors.WithMessagef(err, "SetDevice(%d)", num)
	}
	r.muActive.Lock()
	defer r.muActive.Unlock()
	r.active = num
	return nil
}

// DefaultStream returns the device's default stream, or nil for an invalid
// device (a later Launch on it reports the error).
func (r *Runtime) DefaultStream(num executors.DeviceNum) grid.Stream {
	d, err := r.device(num)
	if err != nil {
		return nil
	}
	return d.defaultStream
}

// NewStream creates a new independent stream on the device.
func (r *Runtime) NewStream(num executors.DeviceNum) (grid.Stream, error) {
	d, err := r.device(num)
	if err != nil {
		return nil, errors.WithMessagef(err, "NewStream(%d)", num)
	}
	s := newStream(num)
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Synchronize blocks until all work enqueued on the device's streams has
// completed.
func (r *Runtime) Synchronize(num executors.DeviceNum) error {
	d, err := r.device(num)
	if err != nil {
		return errors.WithMessagef(err, "Synchronize(%d)", num)
	}
	d.mu.Lock()
	streams := append([]*stream(nil), d.streams...)
	d.mu.Unlock()
	for _, s := range streams {
		s.waitIdle()
	}
	return nil
}

// Finalize drains every device. The runtime spawns no permanent goroutines,
// so nothing else needs tearing down.
func (r *Runtime) Finalize() {
	for _, d := range r.devices {
		_ = r.Synchronize(d.num)
	}
}
