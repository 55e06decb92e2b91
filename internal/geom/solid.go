package geom

import (
	gomath "math"
	"sync"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/shatter/pkg/math"
)

// sampleRes is the per-axis resolution used to estimate the volume of solids
// without a closed form.
const sampleRes = 24

// Solid is an immutable signed distance solid placed by a similarity
// transform. It satisfies both Geometry and sdf.SDF3.
type Solid struct {
	shape sdf.SDF3
	xf    math.Transform

	once   sync.Once
	volume float64 // local, unscaled
	center mgl64.Vec3
	exact  bool
}

// Compile-time interface checks.
var (
	_ Geometry = (*Solid)(nil)
	_ sdf.SDF3 = (*Solid)(nil)
)

// NewSolid wraps an sdfx shape. Volume and centre are estimated on first use.
func NewSolid(shape sdf.SDF3) *Solid {
	return &Solid{shape: shape, xf: math.Identity()}
}

// NewSphere returns a sphere of radius r centred at the origin.
func NewSphere(r float64) (*Solid, error) {
	shape, err := sdf.Sphere3D(r)
	if err != nil {
		return nil, err
	}
	s := NewSolid(shape)
	s.setExact(4.0/3.0*gomath.Pi*r*r*r, mgl64.Vec3{})
	return s, nil
}

// NewBox returns an axis-aligned box of the given size centred at the origin.
func NewBox(size mgl64.Vec3) (*Solid, error) {
	shape, err := sdf.Box3D(toV3(size), 0)
	if err != nil {
		return nil, err
	}
	s := NewSolid(shape)
	s.setExact(size[0]*size[1]*size[2], mgl64.Vec3{})
	return s, nil
}

func (s *Solid) setExact(volume float64, center mgl64.Vec3) {
	s.once.Do(func() {
		s.volume, s.center, s.exact = volume, center, true
	})
}

// Place returns the solid moved by xf, applied after its current placement.
func (s *Solid) Place(xf math.Transform) *Solid {
	s.ensureMoments()
	p := &Solid{shape: s.shape, xf: xf.Mul(s.xf)}
	p.setExact(s.volume, s.center)
	p.exact = s.exact
	return p
}

// Transform returns the placement of the solid.
func (s *Solid) Transform() math.Transform {
	return s.xf
}

// Evaluate returns the signed distance at p. Negative values are inside.
func (s *Solid) Evaluate(p v3.Vec) float64 {
	local := s.xf.ToLocal(fromV3(p))
	return s.shape.Evaluate(toV3(local)) * s.xf.Scale
}

// BoundingBox returns the axis-aligned bounds in placed space.
func (s *Solid) BoundingBox() sdf.Box3 {
	lo, hi := s.Bounds().AABB()
	return sdf.Box3{Min: toV3(lo), Max: toV3(hi)}
}

// Bounds returns the oriented bounds in placed space.
func (s *Solid) Bounds() math.OBB {
	bb := s.shape.BoundingBox()
	local := math.FromAABB(fromV3(bb.Min), fromV3(bb.Max))
	return local.Transform(s.xf)
}

// Contains reports whether p is strictly inside the solid.
func (s *Solid) Contains(p mgl64.Vec3) bool {
	return s.Evaluate(toV3(p)) < 0
}

// Volume returns the placed volume.
func (s *Solid) Volume() float64 {
	s.ensureMoments()
	sc := s.xf.Scale
	return s.volume * sc * sc * sc
}

// Center returns the placed centroid.
func (s *Solid) Center() mgl64.Vec3 {
	s.ensureMoments()
	return s.xf.Apply(s.center)
}

// Exact reports whether volume and centre are closed-form values.
func (s *Solid) Exact() bool {
	s.ensureMoments()
	return s.exact
}

func (s *Solid) ensureMoments() {
	s.once.Do(func() {
		m := sampleMoments(NewSolid(s.shape), sampleRes)
		s.volume, s.center = m.volume, m.center
	})
}

// Difference returns s minus o.
func (s *Solid) Difference(o *Solid) *Solid {
	return NewSolid(sdf.Difference3D(s, o))
}

// Intersect returns the intersection of s and o.
func (s *Solid) Intersect(o *Solid) *Solid {
	return NewSolid(sdf.Intersect3D(s, o))
}

// Union returns the union of s and others.
func (s *Solid) Union(others ...*Solid) *Solid {
	shapes := []sdf.SDF3{s}
	for _, o := range others {
		shapes = append(shapes, o)
	}
	return NewSolid(sdf.Union3D(shapes...))
}

func toV3(p mgl64.Vec3) v3.Vec {
	return v3.Vec{X: p[0], Y: p[1], Z: p[2]}
}

func fromV3(p v3.Vec) mgl64.Vec3 {
	return mgl64.Vec3{p.X, p.Y, p.Z}
}

// SDF returns the unplaced sdfx shape.
func (s *Solid) SDF() sdf.SDF3 {
	return s.shape
}
