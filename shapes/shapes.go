// Package shapes describes the one- and two-level iteration spaces over which
// bulk calls execute, and the position (index) of one agent within them.
//
// A flat space is a scalar extent. A two-level space is a pair of extents
// (outer, inner): the outer extent counts groups, the inner extent counts
// agents per group. Each extent is a Dim3, an unsigned coordinate with up to
// three components, mirroring hardware grid/block dimensionality.
//
// All conversions here are pure functions: same input, same output, no hidden
// state. Invalid conversions panic with an exception (see
// github.com/gomlx/exceptions), like the rest of this module.
package shapes

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
)

// Dim3 is an extent or a coordinate with up to three unsigned components.
//
// When used as an extent, unused components must be 1 (see D1, D2). When used
// as a coordinate, components are bounded component-wise by the corresponding
// extent.
type Dim3 struct {
	X, Y, Z uint32
}

// D1 returns a one-dimensional extent.
func D1(x uint32) Dim3 { return Dim3{X: x, Y: 1, Z: 1} }

// D2 returns a two-dimensional extent.
func D2(x, y uint32) Dim3 { return Dim3{X: x, Y: y, Z: 1} }

// D3 returns a three-dimensional extent.
func D3(x, y, z uint32) Dim3 { return Dim3{X: x, Y: y, Z: z} }

// Size returns the number of positions in the extent, the product of its
// components.
func (d Dim3) Size() uint64 {
	return uint64(d.X) * uint64(d.Y) * uint64(d.Z)
}

// IsZero reports whether every component is zero. The all-zero coordinate
// identifies the designated (leader) agent of a group.
func (d Dim3) IsZero() bool {
	return d.X == 0 && d.Y == 0 && d.Z == 0
}

// Within reports whether the coordinate d is component-wise inside extent.
func (d Dim3) Within(extent Dim3) bool {
	return d.X < extent.X && d.Y < extent.Y && d.Z < extent.Z
}

// Rank returns the flat position of coordinate d inside extent, in row-major
// order with X fastest: (z*extentY + y)*extentX + x.
func (d Dim3) Rank(extent Dim3) uint64 {
	return (uint64(d.Z)*uint64(extent.Y)+uint64(d.Y))*uint64(extent.X) + uint64(d.X)
}

// String implements fmt.Stringer.
func (d Dim3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", d.X, d.Y, d.Z)
}

// FromFlat converts a flat extent to a Dim3 extent, placing everything in the
// X component (the truncation rule when dimensionality differs: higher
// components are 1). It panics if n doesn't fit a single component.
func FromFlat(n uint64) Dim3 {
	if n > math.MaxUint32 {
		exceptions.Panicf("shapes.FromFlat: flat extent %d overflows a single extent component (max %d)", n, uint32(math.MaxUint32))
	}
	return D1(uint32(n))
}

// Flat converts an extent back to its flat size. It is the inverse of
// FromFlat for any extent, not only one-dimensional ones.
func (d Dim3) Flat() uint64 { return d.Size() }

// Shape is a two-level iteration space: Outer counts groups, Inner counts
// agents per group. Agents in the same inner group may synchronize with one
// another; agents in different outer groups may not.
type Shape struct {
	Outer, Inner Dim3
}

// Agents returns the total number of agents the shape describes.
func (s Shape) Agents() uint64 {
	return s.Outer.Size() * s.Inner.Size()
}

// String implements fmt.Stringer.
func (s Shape) String() string {
	return fmt.Sprintf("{outer: %s, inner: %s}", s.Outer, s.Inner)
}

// Index identifies one agent within a Shape.
type Index struct {
	Outer, Inner Dim3
}

// Within reports whether the index is valid for shape: each coordinate
// bounded component-wise by the corresponding extent.
func (i Index) Within(shape Shape) bool {
	return i.Outer.Within(shape.Outer) && i.Inner.Within(shape.Inner)
}

// Flat returns the flat position of the agent in shape, counting whole inner
// groups first: outerRank*innerSize + innerRank. This is the recomputation
// rule the flattening adapter relies on.
func (i Index) Flat(shape Shape) uint64 {
	return i.Outer.Rank(shape.Outer)*shape.Inner.Size() + i.Inner.Rank(shape.Inner)
}

// String implements fmt.Stringer.
func (i Index) String() string {
	return fmt.Sprintf("{outer: %s, inner: %s}", i.Outer, i.Inner)
}

// CeilDiv returns ceil(a/b) for non-negative integers. It panics if b == 0.
func CeilDiv[T constraints.Integer](a, b T) T {
	if b == 0 {
		exceptions.Panicf("shapes.CeilDiv: division by zero")
	}
	// Split instead of (a+b-1)/b, which wraps when a is near the type's limit.
	quotient := a / b
	if a%b != 0 {
		quotient++
	}
	return quotient
}
