// Package executors defines the bulk-execution contract every engine in this
// module implements, and a registry to select one at runtime.
//
// A bulk call runs a function once per logical agent over an iteration space
// and yields a result built by caller-supplied factories. Engines differ only
// in scheduling -- host goroutines, simulated device groups -- never in
// observable outcome, which is what makes the host reference executors (see
// the hostref subpackage) usable as a correctness oracle for the accelerator
// one (see the grid subpackage).
//
// To simplify error handling, configuration and launch errors throw (panic)
// with an exception. See package github.com/gomlx/exceptions.
package executors

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"
)

// DeviceNum identifies a device within an engine. It's up to the engine to
// interpret it, but it should be between 0 and Engine.NumDevices.
type DeviceNum int

// Engine is a named provider of bulk executors: it owns devices (or the lack
// of them) and declares what it can do through Capabilities.
type Engine interface {
	// Name returns the short name of the engine, e.g. "hostref" or "sim".
	Name() string

	// Description is a longer description of the engine that can be used to pretty-print.
	Description() string

	// NumDevices returns the number of devices available for this engine.
	NumDevices() DeviceNum

	// Capabilities returns the set of capability tags the engine declares.
	Capabilities() Capabilities

	// Finalize releases all associated resources immediately and makes the engine invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns an Engine.
type Constructor func(config string) Engine

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register an engine with the given name and a constructor that takes a
// configuration string.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the engine configuration to use if BULKEXEC_ENGINE is not
// set. See NewWithConfig for the format.
var DefaultConfig string

// EnvEngine is the environment variable with the default engine
// configuration, formatted as "<engine_name>:<engine_configuration>".
const EnvEngine = "BULKEXEC_ENGINE"

// New returns a new Engine, selected by, in order: the BULKEXEC_ENGINE
// environment variable, the DefaultConfig variable, the first registered
// engine with an empty configuration.
//
// It panics if no engine was registered.
func New() Engine {
	if config, found := os.LookupEnv(EnvEngine); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as
// "<engine_name>:<engine_configuration>", where "<engine_name>" is the name
// of a registered engine and "<engine_configuration>" is engine specific.
func NewWithConfig(config string) Engine {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered bulk-execution engines -- import one, e.g. import _ "github.com/gomlx/bulkexec/executors/hostref"`)
	}
	engineName := firstRegistered
	engineConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		engineName = config[:idx]
		engineConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[engineName]
	if !found {
		exceptions.Panicf("can't find bulk-execution engine %q for configuration %q given", engineName, config)
	}
	return constructor(engineConfig)
}
