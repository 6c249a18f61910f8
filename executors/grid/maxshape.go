package grid

import (
	"k8s.io/klog/v2"

	"github.com/gomlx/bulkexec/shapes"
)

// MaxShape returns the hardware-imposed upper bound on the outer and inner
// extents for launching f on the executor's device: outer bounded by the
// device's group grid, inner by the smaller of the device's per-group limit
// and f's own per-group limit.
//
// The attribute queries run against the executor's device: if it is not the
// runtime's active device, MaxShape retargets it for the duration of the
// queries and restores the previously active device before returning, on the
// error path included.
func MaxShape(ex Executor, f Kernel) shapes.Shape {
	rt := ex.rt
	current, err := rt.CurrentDevice()
	throwOnError(err, "MaxShape: CurrentDevice")

	if current != ex.device {
		throwOnError(rt.SetDevice(ex.device), "MaxShape: SetDevice")
		defer func() {
			// Runs whether the queries below succeed or throw.
			if err := rt.SetDevice(current); err != nil {
				klog.Warningf("MaxShape: failed to restore active device %d: %+v", current, err)
			}
		}()
	}

	attrs, err := rt.DeviceAttributes(ex.device)
	throwOnError(err, "MaxShape: DeviceAttributes")

	kernelAttrs, err := rt.KernelAttributes(f, ex.device)
	throwOnError(err, "MaxShape: KernelAttributes")

	maxInner := attrs.MaxBlockDim.X
	if kernelAttrs.MaxAgentsPerGroup > 0 && uint32(kernelAttrs.MaxAgentsPerGroup) < maxInner {
		maxInner = uint32(kernelAttrs.MaxAgentsPerGroup)
	}
	return shapes.Shape{
		Outer: shapes.D1(attrs.MaxGridDim.X),
		Inner: shapes.D1(maxInner),
	}
}
