package executors

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	name   string
	config string
}

func (e *fakeEngine) Name() string               { return e.name }
func (e *fakeEngine) Description() string        { return "fake engine for registry tests" }
func (e *fakeEngine) NumDevices() DeviceNum      { return 1 }
func (e *fakeEngine) Capabilities() Capabilities { return Capabilities{} }
func (e *fakeEngine) Finalize()                  {}

func TestRegistry(t *testing.T) {
	Register("fake1", func(config string) Engine { return &fakeEngine{name: "fake1", config: config} })
	Register("fake2", func(config string) Engine { return &fakeEngine{name: "fake2", config: config} })

	// Empty config picks the first registered engine.
	engine := NewWithConfig("")
	assert.Equal(t, "fake1", engine.Name())

	// "<name>:<config>" selects by name and forwards the configuration.
	engine = NewWithConfig("fake2:some config")
	require.Equal(t, "fake2", engine.Name())
	assert.Equal(t, "some config", engine.(*fakeEngine).config)

	exception := exceptions.Try(func() { NewWithConfig("no-such-engine:") })
	require.NotNil(t, exception, "unknown engine names must panic")
}

func TestNewUsesEnvironment(t *testing.T) {
	Register("fake3", func(config string) Engine { return &fakeEngine{name: "fake3", config: config} })
	t.Setenv(EnvEngine, "fake3:from-env")
	engine := New()
	require.Equal(t, "fake3", engine.Name())
	assert.Equal(t, "from-env", engine.(*fakeEngine).config)
}

func TestCapabilities(t *testing.T) {
	c := Capabilities{Tags: map[Capability]bool{
		CapFlatShape:    true,
		CapSharedState:  true,
		CapContinuation: false,
	}}
	assert.True(t, c.Has(CapFlatShape))
	assert.False(t, c.Has(CapContinuation), "explicit false tag")
	assert.False(t, c.Has(CapNestedShape), "missing tags default to unsupported")

	clone := c.Clone()
	clone.Tags[CapNestedShape] = true
	assert.False(t, c.Has(CapNestedShape), "Clone must be deep")
	assert.True(t, clone.Has(CapFlatShape))
}
