package lattice

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/shatter/pkg/math"
)

// Grid is a uniform spatial grid over the lattice in compressed sparse row
// form: cell c holds cellTets[cellStart[c]:cellStart[c+1]].
type Grid struct {
	rot    mgl64.Mat3 // rows are the grid axes
	origin mgl64.Vec3 // min corner in lattice space
	size   [3]int
	stride [3]int
	step   mgl64.Vec3
	rstep  mgl64.Vec3

	cellStart []int32
	cellTets  []int32
}

// buildGrid spans bounds, widened to any vertex outside it, sizes the grid to
// about four tetrahedra per cell and records each tetrahedron in every cell
// it overlaps.
func buildGrid(verts []Vertex, tets []Tet, bounds math.OBB) *Grid {
	g := &Grid{rot: bounds.Basis}

	c := g.rot.Mul3x1(bounds.Center)
	lo, hi := c.Sub(bounds.HalfSize), c.Add(bounds.HalfSize)
	for _, v := range verts {
		if v.Flags&Removed != 0 {
			continue
		}
		p := g.rot.Mul3x1(v.Pos)
		lo = math.MinVec(lo, p)
		hi = math.MaxVec(hi, p)
	}
	g.origin = g.rot.Transpose().Mul3x1(lo)

	sz := hi.Sub(lo)
	vol := 1.0
	for i := 0; i < 3; i++ {
		if sz[i] < 1e-9 {
			sz[i] = 1
		}
		vol *= sz[i]
	}
	rs := gomath.Cbrt(float64(len(tets)) * 4 / vol)
	for i := 0; i < 3; i++ {
		g.size[i] = max(1, int(gomath.Round(sz[i]*rs)))
		g.step[i] = sz[i] / float64(g.size[i])
		g.rstep[i] = float64(g.size[i]) / sz[i]
	}
	g.stride = [3]int{g.size[2] * g.size[1], g.size[2], 1}

	type entry struct{ cell, tet int32 }
	var entries []entry
	counts := make([]int32, g.Cells()+1)
	for i := range tets {
		var local [4]mgl64.Vec3
		for j, v := range tets[i].Verts {
			local[j] = g.toLocal(verts[v].Pos)
		}
		tlo, thi := local[0], local[0]
		for _, p := range local[1:] {
			tlo = math.MinVec(tlo, p)
			thi = math.MaxVec(thi, p)
		}
		clo, chi := g.cellSpan(tlo, thi)
		for x := clo[0]; x < chi[0]; x++ {
			for y := clo[1]; y < chi[1]; y++ {
				for z := clo[2]; z < chi[2]; z++ {
					if g.separated(&local, [3]int{x, y, z}) {
						continue
					}
					c := int32(g.index([3]int{x, y, z}))
					entries = append(entries, entry{c, int32(i)})
					counts[c+1]++
				}
			}
		}
	}

	for i := 1; i < len(counts); i++ {
		counts[i] += counts[i-1]
	}
	g.cellStart = counts
	g.cellTets = make([]int32, len(entries))
	fill := make([]int32, g.Cells())
	copy(fill, counts)
	for _, e := range entries {
		g.cellTets[fill[e.cell]] = e.tet
		fill[e.cell]++
	}
	return g
}

// tetEdges lists the six vertex pairs of a tetrahedron.
var tetEdges = [6][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}

// separated runs a separating axis test between a tetrahedron in grid
// coordinates and one cell.
func (g *Grid) separated(v *[4]mgl64.Vec3, c [3]int) bool {
	pt := mgl64.Vec3{
		(float64(c[0]) + 0.5) * g.step[0],
		(float64(c[1]) + 0.5) * g.step[1],
		(float64(c[2]) + 0.5) * g.step[2],
	}
	cellExt := func(n mgl64.Vec3) float64 {
		return g.step[0]*gomath.Abs(n[0]) + g.step[1]*gomath.Abs(n[1]) + g.step[2]*gomath.Abs(n[2])
	}

	for j := 0; j < 4; j++ {
		a, b, d := v[(j+1)&3], v[(j+2)&3], v[(j+3)&3]
		n := b.Sub(a).Cross(d.Sub(a))
		s, e := a.Dot(n), v[j].Dot(n)
		if gomath.Abs(s+e-2*pt.Dot(n)) > gomath.Abs(s-e)+cellExt(n) {
			return true
		}
	}

	for _, ed := range tetEdges {
		edge := v[ed[0]].Sub(v[ed[1]])
		for k := 0; k < 3; k++ {
			var axis mgl64.Vec3
			axis[k] = 1
			n := edge.Cross(axis)
			s, e := gomath.Inf(1), gomath.Inf(-1)
			for _, p := range v {
				d := p.Dot(n)
				s, e = gomath.Min(s, d), gomath.Max(e, d)
			}
			if gomath.Abs(s+e-2*pt.Dot(n)) > e-s+cellExt(n) {
				return true
			}
		}
	}
	return false
}

// toLocal maps a lattice-space point into grid coordinates.
func (g *Grid) toLocal(p mgl64.Vec3) mgl64.Vec3 {
	return g.rot.Mul3x1(p.Sub(g.origin))
}

// cellSpan returns the half-open cell range covering a box in grid
// coordinates. The range is never empty.
func (g *Grid) cellSpan(lo, hi mgl64.Vec3) (clo, chi [3]int) {
	for i := 0; i < 3; i++ {
		clo[i] = min(g.size[i]-1, max(0, int(gomath.Floor(lo[i]*g.rstep[i]))))
		chi[i] = min(g.size[i], max(clo[i]+1, int(gomath.Ceil(hi[i]*g.rstep[i]))))
	}
	return clo, chi
}

func (g *Grid) index(c [3]int) int {
	return c[0]*g.stride[0] + c[1]*g.stride[1] + c[2]*g.stride[2]
}

// Cells returns the number of cells.
func (g *Grid) Cells() int {
	return g.size[0] * g.size[1] * g.size[2]
}

// Size returns the per-axis cell counts.
func (g *Grid) Size() [3]int {
	return g.size
}

// Entries returns the total number of cell entries.
func (g *Grid) Entries() int {
	return len(g.cellTets)
}

// CellOf returns the cell holding p, clamped to the grid.
func (g *Grid) CellOf(p mgl64.Vec3) [3]int {
	l := g.toLocal(p)
	var c [3]int
	for i := 0; i < 3; i++ {
		c[i] = min(g.size[i]-1, max(0, int(gomath.Floor(l[i]*g.rstep[i]))))
	}
	return c
}

// CellRange returns the half-open cell range overlapped by b. The range is
// empty on an axis where b misses the grid.
func (g *Grid) CellRange(b math.OBB) (lo, hi [3]int) {
	c := g.toLocal(b.Center)
	ext := math.AbsMat(g.rot.Mul3(b.Basis.Transpose())).Mul3x1(b.HalfSize)
	for i := 0; i < 3; i++ {
		lo[i] = min(g.size[i], max(0, int(gomath.Floor((c[i]-ext[i])*g.rstep[i]))))
		hi[i] = min(g.size[i], max(0, int(gomath.Ceil((c[i]+ext[i])*g.rstep[i]))))
	}
	return lo, hi
}

// Tets returns the tetrahedra recorded in cell c.
func (g *Grid) Tets(c [3]int) []int32 {
	i := g.index(c)
	return g.cellTets[g.cellStart[i]:g.cellStart[i+1]]
}

// ForEachInRange calls fn for every entry of the cells in [lo, hi) until fn
// returns false. A tetrahedron spanning several cells is visited once per
// cell.
func (g *Grid) ForEachInRange(lo, hi [3]int, fn func(tet int32) bool) {
	for x := lo[0]; x < hi[0]; x++ {
		for y := lo[1]; y < hi[1]; y++ {
			for z := lo[2]; z < hi[2]; z++ {
				for _, t := range g.Tets([3]int{x, y, z}) {
					if !fn(t) {
						return
					}
				}
			}
		}
	}
}

// subset returns the grid restricted to [lo, hi) holding only the entries
// remap sends to a non-negative index.
func (g *Grid) subset(lo, hi [3]int, remap []int32) *Grid {
	s := &Grid{
		rot:   g.rot,
		step:  g.step,
		rstep: g.rstep,
	}
	for i := 0; i < 3; i++ {
		s.size[i] = max(1, hi[i]-lo[i])
	}
	s.stride = [3]int{s.size[2] * s.size[1], s.size[2], 1}
	shift := mgl64.Vec3{
		float64(lo[0]) * g.step[0],
		float64(lo[1]) * g.step[1],
		float64(lo[2]) * g.step[2],
	}
	s.origin = g.origin.Add(g.rot.Transpose().Mul3x1(shift))

	s.cellStart = make([]int32, s.Cells()+1)
	for x := lo[0]; x < lo[0]+s.size[0]; x++ {
		for y := lo[1]; y < lo[1]+s.size[1]; y++ {
			for z := lo[2]; z < lo[2]+s.size[2]; z++ {
				dst := s.index([3]int{x - lo[0], y - lo[1], z - lo[2]})
				s.cellStart[dst] = int32(len(s.cellTets))
				if x >= g.size[0] || y >= g.size[1] || z >= g.size[2] {
					continue
				}
				for _, t := range g.Tets([3]int{x, y, z}) {
					if n := remap[t]; n >= 0 {
						s.cellTets = append(s.cellTets, n)
					}
				}
			}
		}
	}
	s.cellStart[s.Cells()] = int32(len(s.cellTets))
	return s
}

// compact rewrites the entries through remap, dropping those sent to -1.
func (g *Grid) compact(remap []int32) {
	n := int32(0)
	for c := 0; c < g.Cells(); c++ {
		from, to := g.cellStart[c], g.cellStart[c+1]
		g.cellStart[c] = n
		for _, t := range g.cellTets[from:to] {
			if r := remap[t]; r >= 0 {
				g.cellTets[n] = r
				n++
			}
		}
	}
	g.cellStart[g.Cells()] = n
	g.cellTets = g.cellTets[:n]
}
