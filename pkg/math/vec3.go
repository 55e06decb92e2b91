package math

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// CrossMatrix returns the skew-symmetric matrix [v]x so that
// CrossMatrix(v).Mul3x1(u) == v.Cross(u).
func CrossMatrix(v mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Mat3FromRows(
		mgl64.Vec3{0, -v[2], v[1]},
		mgl64.Vec3{v[2], 0, -v[0]},
		mgl64.Vec3{-v[1], v[0], 0},
	)
}

// Outer returns the outer product a*b^T.
func Outer(a, b mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Mat3FromCols(a.Mul(b[0]), a.Mul(b[1]), a.Mul(b[2]))
}

// MinVec returns the component-wise minimum.
func MinVec(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])}
}

// MaxVec returns the component-wise maximum.
func MaxVec(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])}
}

// AbsMat returns m with every element replaced by its absolute value.
func AbsMat(m mgl64.Mat3) mgl64.Mat3 {
	for i := range m {
		m[i] = math.Abs(m[i])
	}
	return m
}

// SqrSigned returns x*|x|.
func SqrSigned(x float64) float64 {
	return x * math.Abs(x)
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
