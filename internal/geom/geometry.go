// Package geom holds the geometry collaborators of the fracture system: solids
// backed by signed distance functions, carvable surfaces, and the shared
// manager that owns crack patterns and physical geometry records.
package geom

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/shatter/pkg/math"
)

// Geometry errors.
var (
	ErrInvalidHandle    = errors.New("invalid or released geometry handle")
	ErrNotSolid         = errors.New("geometry is not a solid")
	ErrNoCrackMatch     = errors.New("no matching crack pattern")
	ErrSubtractRejected = errors.New("subtract rejected")
	ErrUnknownCrack     = errors.New("unknown crack id")
	ErrUnknownPhysical  = errors.New("unknown physical geometry")
)

// Geometry is a closed volume in lattice space.
type Geometry interface {
	Bounds() math.OBB
	Contains(p mgl64.Vec3) bool
	Volume() float64
	Center() mgl64.Vec3
}

// moments are the mass moments of a unit-density volume.
type moments struct {
	volume  float64
	center  mgl64.Vec3
	inertia mgl64.Mat3 // about center
}

// sampleMoments integrates g over a res^3 lattice of cell centres inside its
// axis-aligned bounds. The result is deterministic for a given res.
func sampleMoments(g Geometry, res int) moments {
	lo, hi := g.Bounds().AABB()
	size := hi.Sub(lo)
	step := size.Mul(1 / float64(res))
	dv := step[0] * step[1] * step[2]
	if dv <= 0 {
		return moments{center: lo.Add(hi).Mul(0.5)}
	}

	var (
		n      int
		sum    mgl64.Vec3
		second mgl64.Mat3
	)
	for i := 0; i < res; i++ {
		for j := 0; j < res; j++ {
			for k := 0; k < res; k++ {
				p := lo.Add(mgl64.Vec3{
					(float64(i) + 0.5) * step[0],
					(float64(j) + 0.5) * step[1],
					(float64(k) + 0.5) * step[2],
				})
				if !g.Contains(p) {
					continue
				}
				n++
				sum = sum.Add(p)
				second = second.Add(math.Outer(p, p))
			}
		}
	}
	if n == 0 {
		return moments{center: lo.Add(hi).Mul(0.5)}
	}

	c := sum.Mul(1 / float64(n))
	// covariance about the centroid
	cov := second.Mul(1 / float64(n)).Sub(math.Outer(c, c))
	m := float64(n) * dv
	tr := cov.Trace()
	inertia := mgl64.Ident3().Mul(tr).Sub(cov).Mul(m)
	return moments{volume: m, center: c, inertia: inertia}
}
