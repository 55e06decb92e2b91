package lattice

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/shatter/pkg/math"
)

// Stats summarizes the lattice size.
type Stats struct {
	Vertices    int
	Tets        int
	Removed     int
	Cells       int
	GridEntries int
}

// MassProps are the mass properties of the live tetrahedra.
type MassProps struct {
	Mass    float64
	Center  mgl64.Vec3
	Inertia [3]float64 // principal moments about Center
	Frame   mgl64.Mat3 // principal axes as columns
}

// CheckPoint finds the live tetrahedron containing p and returns its vertex
// indices with the barycentric weights of p.
func (l *Lattice) CheckPoint(p mgl64.Vec3) (verts [4]int32, w [4]float64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkPoint(p)
}

func (l *Lattice) checkPoint(p mgl64.Vec3) (verts [4]int32, w [4]float64, ok bool) {
	for _, ti := range l.grid.Tets(l.grid.CellOf(p)) {
		t := &l.tets[ti]
		if t.Flags&Removed != 0 {
			continue
		}
		inside := true
		for j := 0; j < 4; j++ {
			// volume of the sub-tetrahedron on face j over the whole volume
			a := l.verts[t.Verts[(j+1)&3]].Pos
			w[j] = l.faceNormal(ti, j).Dot(a.Sub(p)) / 6 * t.Vinv
			if w[j] <= 0 {
				inside = false
			}
		}
		if inside {
			return t.Verts, w, true
		}
	}
	return verts, [4]float64{}, false
}

// PointInside reports whether p lies inside a live tetrahedron.
func (l *Lattice) PointInside(p mgl64.Vec3) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, _, ok := l.checkPoint(p)
	return ok
}

// SkinFaces returns the boundary faces of the live tetrahedra, wound so
// their normals point outwards.
func (l *Lattice) SkinFaces() [][3]int32 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out [][3]int32
	for i := range l.tets {
		t := &l.tets[i]
		if t.Flags&Removed != 0 {
			continue
		}
		for j := 0; j < 4; j++ {
			if t.Buddy[j] >= 0 {
				continue
			}
			a, b, c := t.Verts[(j+1)&3], t.Verts[(j+2)&3], t.Verts[(j+3)&3]
			if j&1 == 0 {
				b, c = c, b
			}
			out = append(out, [3]int32{a, b, c})
		}
	}
	return out
}

// MassProperties sums the live tetrahedra into principal mass properties.
func (l *Lattice) MassProperties() MassProps {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var mp MassProps
	var weighted mgl64.Vec3
	for i := range l.tets {
		if l.tets[i].Flags&Removed != 0 {
			continue
		}
		mp.Mass += l.tets[i].M
		weighted = weighted.Add(l.center(int32(i)).Mul(l.tets[i].M))
	}
	if mp.Mass <= 0 {
		mp.Frame = mgl64.Ident3()
		return mp
	}
	mp.Center = weighted.Mul(1 / mp.Mass)

	var inertia mgl64.Mat3
	for i := range l.tets {
		t := &l.tets[i]
		if t.Flags&Removed != 0 {
			continue
		}
		d := l.center(int32(i)).Sub(mp.Center)
		shift := mgl64.Ident3().Mul(d.LenSqr()).Sub(math.Outer(d, d)).Mul(t.M)
		inertia = inertia.Add(t.Iinv.Inv()).Add(shift)
	}

	vals, vecs, ok := math.SymEigen(inertia)
	if !ok {
		mp.Inertia = [3]float64{inertia.At(0, 0), inertia.At(1, 1), inertia.At(2, 2)}
		mp.Frame = mgl64.Ident3()
		return mp
	}
	mp.Inertia, mp.Frame = vals, vecs
	return mp
}

// Bounds returns the axis-aligned box of the live vertices.
func (l *Lattice) Bounds() math.OBB {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var pts []mgl64.Vec3
	for _, v := range l.verts {
		if v.Flags&Removed == 0 {
			pts = append(pts, v.Pos)
		}
	}
	if len(pts) == 0 {
		return math.OBB{Basis: mgl64.Ident3()}
	}
	return math.BoundPoints(pts)
}

// Stats returns size counters.
func (l *Lattice) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Vertices:    len(l.verts),
		Tets:        len(l.tets),
		Removed:     l.removed,
		Cells:       l.grid.Cells(),
		GridEntries: l.grid.Entries(),
	}
}

// Vertex returns vertex i.
func (l *Lattice) Vertex(i int) Vertex {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verts[i]
}

// Tet returns a copy of tetrahedron i.
func (l *Lattice) Tet(i int) Tet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tets[i]
}
