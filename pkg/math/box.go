package math

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// OBB is an oriented box. The rows of Basis are the box axes in parent space,
// so Basis maps parent directions into box-local coordinates.
type OBB struct {
	Center   mgl64.Vec3
	HalfSize mgl64.Vec3
	Basis    mgl64.Mat3
}

// FromAABB returns an axis-aligned box spanning min..max.
func FromAABB(min, max mgl64.Vec3) OBB {
	return OBB{
		Center:   min.Add(max).Mul(0.5),
		HalfSize: max.Sub(min).Mul(0.5),
		Basis:    mgl64.Ident3(),
	}
}

// BoundPoints returns the axis-aligned box of pts. It panics on an empty slice.
func BoundPoints(pts []mgl64.Vec3) OBB {
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo = MinVec(lo, p)
		hi = MaxVec(hi, p)
	}
	return FromAABB(lo, hi)
}

// ToLocal returns p in box coordinates relative to the center.
func (b OBB) ToLocal(p mgl64.Vec3) mgl64.Vec3 {
	return b.Basis.Mul3x1(p.Sub(b.Center))
}

// Contains reports whether p lies strictly inside the box.
func (b OBB) Contains(p mgl64.Vec3) bool {
	l := b.ToLocal(p)
	return math.Abs(l[0]) < b.HalfSize[0] && math.Abs(l[1]) < b.HalfSize[1] && math.Abs(l[2]) < b.HalfSize[2]
}

// AABB returns the axis-aligned bounds of the box in parent space.
func (b OBB) AABB() (min, max mgl64.Vec3) {
	ext := AbsMat(b.Basis).Transpose().Mul3x1(b.HalfSize)
	return b.Center.Sub(ext), b.Center.Add(ext)
}

// Corners returns the 8 box corners in parent space.
func (b OBB) Corners() [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	axes := b.Basis.Transpose()
	for i := 0; i < 8; i++ {
		p := b.Center
		for k := 0; k < 3; k++ {
			s := b.HalfSize[k]
			if i>>k&1 == 0 {
				s = -s
			}
			p = p.Add(axes.Col(k).Mul(s))
		}
		out[i] = p
	}
	return out
}

// Volume returns the box volume.
func (b OBB) Volume() float64 {
	return 8 * b.HalfSize[0] * b.HalfSize[1] * b.HalfSize[2]
}

// Overlaps reports whether the axis-aligned bounds of b and o intersect.
func (b OBB) Overlaps(o OBB) bool {
	amin, amax := b.AABB()
	bmin, bmax := o.AABB()
	for i := 0; i < 3; i++ {
		if amax[i] < bmin[i] || bmax[i] < amin[i] {
			return false
		}
	}
	return true
}

// Transform returns the box placed by xf.
func (b OBB) Transform(xf Transform) OBB {
	return OBB{
		Center:   xf.Apply(b.Center),
		HalfSize: b.HalfSize.Mul(xf.Scale),
		Basis:    b.Basis.Mul3(xf.R.Transpose()),
	}
}
