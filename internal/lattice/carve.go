package lattice

import (
	gomath "math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/pkg/math"
)

// liveRecip[k] is 1/k for the number of live vertices on a face.
var liveRecip = [4]float64{0, 1, 0.5, 1.0 / 3}

// Subtract carves g, placed into lattice space by xf, out of the lattice.
// Vertices inside g are removed and the faces that lose vertices are weakened
// in proportion. The tetrahedron holding the centre of g loses mass in
// proportion to the carved volume, and tetrahedra left without live vertices
// are removed.
func (l *Lattice) Subtract(g geom.Geometry, xf math.Transform) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bounds := g.Bounds().Transform(xf)
	center := xf.Apply(g.Center())
	volume := g.Volume() * xf.Scale * xf.Scale * xf.Scale
	inside := func(p mgl64.Vec3) bool {
		return bounds.Contains(p) && g.Contains(xf.ToLocal(p))
	}

	lo, hi := l.grid.CellRange(bounds)
	var seenTets, seenVerts []int32
	removedBefore := l.removed

	l.grid.ForEachInRange(lo, hi, func(ti int32) bool {
		t := &l.tets[ti]
		if t.Flags&(Removed|Visited) != 0 {
			return true
		}
		t.Flags |= Visited
		seenTets = append(seenTets, ti)

		var before, after uint8
		face := -gomath.MaxFloat64
		for i, vi := range t.Verts {
			v := &l.verts[vi]
			if v.Flags&Removed == 0 {
				before |= 1 << i
			}
			if v.Flags&(Removed|Visited) == 0 {
				v.Flags |= Visited
				seenVerts = append(seenVerts, vi)
				if inside(v.Pos) {
					v.Flags |= RemovedPending
				}
			}
			if v.Flags&(Removed|RemovedPending) == 0 {
				after |= 1 << i
			}
			tri := l.faceTri(ti, i)
			face = gomath.Max(face, l.faceNormal(ti, i).Dot(center.Sub(tri[0])))
		}

		if face <= 0 {
			frac := 1 - math.Clamp(volume*0.7*t.Vinv, 0.1, 0.9)
			t.M *= frac
			t.Minv /= frac
			t.Vinv /= frac
			t.Iinv = t.Iinv.Mul(1 / frac)
			for j := 0; j < 4; j++ {
				l.scaleFrac(ti, j, frac)
			}
		}

		if before != after {
			for j := 0; j < 4; j++ {
				mask := uint8(0xF) &^ (1 << j)
				t.Frac[j] *= float64(bits.OnesCount8(after&mask)) * liveRecip[bits.OnesCount8(before&mask)]
			}
		}
		if after == 0 {
			t.Flags |= Removed
			for j := 0; j < 4; j++ {
				l.sever(ti, j)
			}
			l.removed++
		}
		return true
	})

	for _, ti := range seenTets {
		l.tets[ti].Flags &^= Visited
	}
	for _, vi := range seenVerts {
		v := &l.verts[vi]
		if v.Flags&RemovedPending != 0 {
			v.Flags |= Removed
		}
		v.Flags &^= Visited | RemovedPending
	}

	logger.Named("lattice").Debug("lattice carved",
		zap.Int("tets", len(seenTets)),
		zap.Int("removed", l.removed-removedBefore))
}
