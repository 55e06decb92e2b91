package lattice

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl64"
)

// AddImpulse accumulates an external impulse at pt on the tetrahedra of its
// grid cell. Accumulations reset whenever worldTime changes. It reports
// whether the impulse is large enough relative to gravity that the structure
// should be checked.
func (l *Lattice) AddImpulse(pt, impulse, momentum, gravity mgl64.Vec3, worldTime float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.impulseTimeSet || worldTime != l.impulseTime {
		for i := range l.tets {
			l.tets[i].Pext = mgl64.Vec3{}
			l.tets[i].Lext = mgl64.Vec3{}
		}
		l.impulseTime = worldTime
		l.impulseTimeSet = true
	}

	g2 := gravity.LenSqr()
	check := false
	for _, ti := range l.grid.Tets(l.grid.CellOf(pt)) {
		t := &l.tets[ti]
		if t.Flags&Removed != 0 {
			continue
		}
		t.Pext = t.Pext.Add(impulse)
		t.Lext = t.Lext.Add(momentum).Add(pt.Sub(l.center(ti)).Cross(impulse))
		dv := t.Pext.Mul(t.Minv).LenSqr()
		dw := t.Iinv.Mul3x1(t.Lext).LenSqr() * t.MeanArea()
		if g2 < gomath.Max(dv, dw) {
			check = true
		}
	}
	return check
}
