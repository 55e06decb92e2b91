package math

import "github.com/go-gl/mathgl/mgl64"

// Transform is a similarity transform: p' = R*p*Scale + Offset.
type Transform struct {
	R      mgl64.Mat3
	Offset mgl64.Vec3
	Scale  float64
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{R: mgl64.Ident3(), Scale: 1}
}

// NewTransform builds a transform from a rotation, offset and uniform scale.
func NewTransform(q Quat, offset mgl64.Vec3, scale float64) Transform {
	return Transform{R: q.Mat3(), Offset: offset, Scale: scale}
}

// Translation returns a pure translation.
func Translation(offset mgl64.Vec3) Transform {
	return Transform{R: mgl64.Ident3(), Offset: offset, Scale: 1}
}

// Apply maps a point from local into parent space.
func (t Transform) Apply(p mgl64.Vec3) mgl64.Vec3 {
	return t.R.Mul3x1(p).Mul(t.Scale).Add(t.Offset)
}

// ApplyDir rotates a direction without scale or offset.
func (t Transform) ApplyDir(d mgl64.Vec3) mgl64.Vec3 {
	return t.R.Mul3x1(d)
}

// ToLocal maps a point from parent into local space.
func (t Transform) ToLocal(p mgl64.Vec3) mgl64.Vec3 {
	if t.Scale == 0 {
		return mgl64.Vec3{}
	}
	return t.R.Transpose().Mul3x1(p.Sub(t.Offset)).Mul(1 / t.Scale)
}

// Mul returns the transform that applies o first, then t.
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		R:      t.R.Mul3(o.R),
		Offset: t.R.Mul3x1(o.Offset).Mul(t.Scale).Add(t.Offset),
		Scale:  t.Scale * o.Scale,
	}
}

// Inverse returns the inverse transform. R is assumed orthonormal.
func (t Transform) Inverse() Transform {
	rt := t.R.Transpose()
	s := 1 / t.Scale
	return Transform{
		R:      rt,
		Offset: rt.Mul3x1(t.Offset).Mul(-s),
		Scale:  s,
	}
}
