// Package math provides the vector, matrix and comparison helpers shared by the
// lattice and breakable-grid packages.
package math

import (
	"math"

	"github.com/paulmach/orb"
)

// Vec2 is a 2D vector.
type Vec2 struct {
	X, Y float64
}

// FromPoint converts an orb point.
func FromPoint(p orb.Point) Vec2 {
	return Vec2{p[0], p[1]}
}

// Point returns v as an orb point.
func (v Vec2) Point() orb.Point {
	return orb.Point{v.X, v.Y}
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{v.X + other.X, v.Y + other.Y}
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}

// Scale returns v * scalar.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

// Dot returns the dot product.
func (v Vec2) Dot(other Vec2) float64 {
	return v.X*other.X + v.Y*other.Y
}

// Cross returns the z component of the 3D cross product.
func (v Vec2) Cross(other Vec2) float64 {
	return v.X*other.Y - v.Y*other.X
}

// LengthSq returns the squared magnitude.
func (v Vec2) LengthSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Length returns the magnitude.
func (v Vec2) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// Normalize returns a unit vector.
func (v Vec2) Normalize() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Distance returns the distance to another point.
func (v Vec2) Distance(other Vec2) float64 {
	return v.Sub(other).Length()
}

// Sine returns the signed sine of the angle from v to other.
// Zero vectors yield 0.
func (v Vec2) Sine(other Vec2) float64 {
	d := math.Sqrt(v.LengthSq() * other.LengthSq())
	if d == 0 {
		return 0
	}
	return v.Cross(other) / d
}
