package math

import "github.com/go-gl/mathgl/mgl64"

// Plane is an oriented plane through Origin. Normal points to the free side.
type Plane struct {
	Normal mgl64.Vec3
	Origin mgl64.Vec3
}

// Distance returns the signed distance of p along Normal (scaled by |Normal|).
func (p Plane) Distance(pt mgl64.Vec3) float64 {
	return p.Normal.Dot(pt.Sub(p.Origin))
}

// GroundPlane returns the horizontal plane at height z with +Z up.
func GroundPlane(z float64) Plane {
	return Plane{Normal: mgl64.Vec3{0, 0, 1}, Origin: mgl64.Vec3{0, 0, z}}
}
