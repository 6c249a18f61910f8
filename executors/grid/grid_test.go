package grid

import (
	"sync/atomic"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/bulkexec/executors"
	"github.com/gomlx/bulkexec/shapes"
)

type fakeStream struct{ id string }

func (s *fakeStream) StreamID() string { return s.id }

type launchRecord struct {
	outer, inner   shapes.Dim3
	sharedMemBytes int
	device         executors.DeviceNum
}

// fakeRuntime records calls and lets tests control completion and failures.
type fakeRuntime struct {
	attrs    DeviceAttributes
	attrsErr error

	current  executors.DeviceNum
	setCalls []executors.DeviceNum

	launchErr error
	launches  []launchRecord

	// When immediateErr is set (possibly to a nil-error marker via
	// completeNow), callbacks fire inline from AddStreamCallback.
	completeNow  bool
	immediateErr error
	callbacks    []func(error)
}

var _ Runtime = (*fakeRuntime)(nil)

func (r *fakeRuntime) NumDevices() executors.DeviceNum { return 2 }

func (r *fakeRuntime) Launch(k Kernel, outer, inner shapes.Dim3, sharedMemBytes int, stream Stream, device executors.DeviceNum) error {
	if r.launchErr != nil {
		return r.launchErr
	}
	r.launches = append(r.launches, launchRecord{outer: outer, inner: inner, sharedMemBytes: sharedMemBytes, device: device})
	return nil
}

func (r *fakeRuntime) AddStreamCallback(stream Stream, callback func(error)) error {
	if r.completeNow {
		callback(r.immediateErr)
		return nil
	}
	r.callbacks = append(r.callbacks, callback)
	return nil
}

func (r *fakeRuntime) DeviceAttributes(executors.DeviceNum) (DeviceAttributes, error) {
	return r.attrs, r.attrsErr
}

func (r *fakeRuntime) KernelAttributes(Kernel, executors.DeviceNum) (KernelAttributes, error) {
	return KernelAttributes{MaxAgentsPerGroup: r.attrs.MaxAgentsPerGroup}, nil
}

func (r *fakeRuntime) CurrentDevice() (executors.DeviceNum, error) { return r.current, nil }

func (r *fakeRuntime) SetDevice(device executors.DeviceNum) error {
	r.setCalls = append(r.setCalls, device)
	r.current = device
	return nil
}

func (r *fakeRuntime) Synchronize(executors.DeviceNum) error { return nil }

func (r *fakeRuntime) DefaultStream(executors.DeviceNum) Stream { return &fakeStream{id: "default"} }

func (r *fakeRuntime) NewStream(executors.DeviceNum) (Stream, error) {
	return &fakeStream{id: "extra"}, nil
}

func testAttrs() DeviceAttributes {
	return DeviceAttributes{
		MaxGridDim:          shapes.D3(1024, 64, 64),
		MaxBlockDim:         shapes.D3(256, 256, 64),
		MaxAgentsPerGroup:   256,
		LocalMemoryPerGroup: 48 * 1024,
	}
}

func TestBulkAsyncCompletionFiresOnce(t *testing.T) {
	rt := &fakeRuntime{attrs: testAttrs()}
	ex := New(rt)

	future := BulkAsync(ex, func(Group, shapes.Index) {}, shapes.Shape{Outer: shapes.D1(2), Inner: shapes.D1(4)})
	require.Len(t, rt.launches, 1)
	require.Len(t, rt.callbacks, 1)
	assert.False(t, future.Test(), "future must not resolve before the stream signals")

	notify := rt.callbacks[0]
	notify(nil)
	assert.True(t, future.Test())
	_, err := future.Wait()
	require.NoError(t, err)

	// A misbehaving runtime re-entering the callback must be a no-op.
	notify(errors.New("spurious second signal"))
	_, err = future.Wait()
	assert.NoError(t, err)
}

func TestBulkAsyncLaunchErrorThrows(t *testing.T) {
	rt := &fakeRuntime{
		attrs:     testAttrs(),
		launchErr: errors.WithStack(&Error{Op: "Launch", Status: StatusInvalidConfiguration}),
	}
	ex := New(rt)
	err := exceptions.TryCatch[error](func() {
		BulkAsync(ex, func(Group, shapes.Index) {}, shapes.Shape{Outer: shapes.D1(1), Inner: shapes.D1(1)})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), StatusInvalidConfiguration.String())
}

func TestBulkInvokeBlocksAndSurfacesErrors(t *testing.T) {
	rt := &fakeRuntime{attrs: testAttrs(), completeNow: true}
	ex := New(rt)
	ran := false
	BulkInvoke(ex, func(Group, shapes.Index) { ran = true }, shapes.Shape{Outer: shapes.D1(1), Inner: shapes.D1(1)})
	// The fake never runs kernels; BulkInvoke only guarantees completion of
	// the stream, which the fake signaled inline.
	assert.False(t, ran)

	rt.immediateErr = errors.WithStack(&Error{Op: "Launch", Status: StatusLaunchFailure})
	err := exceptions.TryCatch[error](func() {
		BulkInvoke(ex, func(Group, shapes.Index) {}, shapes.Shape{Outer: shapes.D1(1), Inner: shapes.D1(1)})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BulkInvoke")
}

func TestMaxShapeRetargetsAndRestores(t *testing.T) {
	rt := &fakeRuntime{attrs: testAttrs(), current: 0}
	ex := New(rt, WithDevice(1))

	shape := MaxShape(ex, func(Group, shapes.Index) {})
	assert.Equal(t, shapes.D1(1024), shape.Outer)
	assert.Equal(t, shapes.D1(256), shape.Inner)
	assert.Equal(t, []executors.DeviceNum{1, 0}, rt.setCalls, "retarget then restore")
	assert.Equal(t, executors.DeviceNum(0), rt.current)
}

func TestMaxShapeRestoresOnErrorPath(t *testing.T) {
	rt := &fakeRuntime{attrs: testAttrs(), current: 0, attrsErr: errors.New("attribute query failed")}
	ex := New(rt, WithDevice(1))

	err := exceptions.TryCatch[error](func() { MaxShape(ex, func(Group, shapes.Index) {}) })
	require.Error(t, err)
	assert.Equal(t, []executors.DeviceNum{1, 0}, rt.setCalls,
		"the previously active device must be restored even when the query throws")
	assert.Equal(t, executors.DeviceNum(0), rt.current)
}

func TestMaxShapeSameDeviceNoSwitch(t *testing.T) {
	rt := &fakeRuntime{attrs: testAttrs(), current: 0}
	ex := New(rt) // device 0, already active
	MaxShape(ex, func(Group, shapes.Index) {})
	assert.Empty(t, rt.setCalls)
}

func TestMaxShapeHonorsKernelLimit(t *testing.T) {
	attrs := testAttrs()
	attrs.MaxAgentsPerGroup = 64 // tighter than MaxBlockDim.X
	rt := &fakeRuntime{attrs: attrs}
	shape := MaxShape(New(rt), func(Group, shapes.Index) {})
	assert.Equal(t, shapes.D1(64), shape.Inner)
}

type disposable struct {
	disposals *atomic.Int64
}

func (d *disposable) Dispose() { d.disposals.Add(1) }

func TestOuterSharedDisposedAfterCompletion(t *testing.T) {
	rt := &fakeRuntime{attrs: testAttrs()}
	ex := New(rt)

	var disposals atomic.Int64
	future := BulkAsyncOuter(ex, func(_ Group, _ shapes.Index, outer *disposable) {},
		shapes.Shape{Outer: shapes.D1(1), Inner: shapes.D1(1)},
		disposable{disposals: &disposals})

	require.Len(t, rt.callbacks, 1)
	assert.Zero(t, disposals.Load(), "outer shared object must live until the call completes")

	rt.callbacks[0](nil)
	_, err := future.Wait()
	require.NoError(t, err)
	assert.Equal(t, int64(1), disposals.Load(), "disposal runs exactly once, as a continuation on the future")
}

// stubGroup is a single-agent group: barriers are trivially satisfied.
type stubGroup struct {
	local any
}

func (g *stubGroup) Sync()                    {}
func (g *stubGroup) SetLocal(v any)           { g.local = v }
func (g *stubGroup) Local() any               { return g.local }
func (g *stubGroup) InnerExtent() shapes.Dim3 { return shapes.D1(1) }

func TestMarshalInnerSingleAgent(t *testing.T) {
	var disposals atomic.Int64
	init := disposable{disposals: &disposals}

	var seen *disposable
	kernel := marshalInner(init, func(_ Group, _ shapes.Index, inner *disposable) {
		seen = inner
	})

	g := &stubGroup{}
	kernel(g, shapes.Index{}) // the all-zero agent is the group leader

	require.NotNil(t, seen)
	assert.Equal(t, &disposals, seen.disposals, "inner object constructed from the initial value")
	assert.Equal(t, int64(1), disposals.Load(), "leader destroys after the second barrier")
	assert.Nil(t, g.local, "group-local slot cleared after destruction")
}

func TestExecutorOptions(t *testing.T) {
	rt := &fakeRuntime{attrs: testAttrs()}
	stream := &fakeStream{id: "mine"}
	ex := New(rt, WithDevice(1), WithStream(stream), WithSharedMemory(1024))
	assert.Equal(t, executors.DeviceNum(1), ex.Device())
	assert.Equal(t, stream, ex.Stream())
	assert.Equal(t, 1024, ex.SharedMemoryBytes())

	// Default stream comes from the runtime.
	def := New(rt)
	require.NotNil(t, def.Stream())
	assert.Equal(t, "default", def.Stream().StreamID())
}
