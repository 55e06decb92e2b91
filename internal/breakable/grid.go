package breakable

import (
	"errors"
	gomath "math"
	"math/rand/v2"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/pkg/math"
)

// ErrDegenerateBoundary is returned for boundaries without area or cells.
var ErrDegenerateBoundary = errors.New("breakable: boundary needs 3 points, a non-zero extent and positive cell counts")

// GenerateOptions tunes grid generation.
type GenerateOptions struct {
	// DiagSine is the smallest corner sine a quad diagonal may produce
	// before the other diagonal is tried.
	DiagSine float64
	// StaticBorder keeps the outer quads fixed. The generator always does
	// this; the field exists so callers can state it.
	StaticBorder bool
}

// DefaultGenerateOptions returns the stock generator tuning.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{DiagSine: 0.2, StaticBorder: true}
}

// Grid is a jittered triangle grid covering a polygon. Node (ix, iy) lives
// in cell (ix, iy); quad (qx, qy) joins nodes (qx..qx+1, qy..qy+1) and owns
// triangles 2*(qx+qy*(size.x-1)) and the one after it.
type Grid struct {
	origin math.Vec2
	step   math.Vec2
	size   [2]int // nodes per axis
	pts    []math.Vec2
	tris   []tri
	total  int
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate lays a jittered grid of cells[0] x cells[1] cells over the
// boundary's extent and triangulates the part inside it.
func Generate(boundary orb.Ring, cells [2]int, seed uint64, opts GenerateOptions) (*Grid, error) {
	n := len(boundary)
	if n > 1 && boundary[0].Equal(boundary[n-1]) {
		n--
	}
	if n < 3 || cells[0] < 1 || cells[1] < 1 {
		return nil, ErrDegenerateBoundary
	}
	poly := boundary[:n]
	b := poly.Bound()
	ext := math.FromPoint(b.Max).Sub(math.FromPoint(b.Min))
	if ext.X <= 0 || ext.Y <= 0 {
		return nil, ErrDegenerateBoundary
	}

	g := &Grid{
		step: math.Vec2{X: ext.X / (float64(cells[0]) - 0.02), Y: ext.Y / (float64(cells[1]) - 0.02)},
		size: [2]int{cells[0] + 3, cells[1] + 3},
	}
	g.origin = math.FromPoint(b.Min).Sub(math.Vec2{X: g.step.X * 1.51, Y: g.step.Y * 1.51})

	rng := newRNG(seed)
	g.pts = make([]math.Vec2, g.size[0]*g.size[1])
	for iy := 0; iy < g.size[1]; iy++ {
		for ix := 0; ix < g.size[0]; ix++ {
			g.pts[g.node(ix, iy)] = math.Vec2{
				X: g.origin.X + (float64(ix)+0.1+0.8*rng.Float64())*g.step.X,
				Y: g.origin.Y + (float64(iy)+0.1+0.8*rng.Float64())*g.step.Y,
			}
		}
	}

	used := g.fillInterior(poly, g.rasterize(poly))
	g.triangulate(used, rng, opts.DiagSine)
	g.link()

	logger.Named("breakable").Debug("generated grid",
		zap.Int("cells_x", cells[0]),
		zap.Int("cells_y", cells[1]),
		zap.Int("triangles", g.total))
	return g, nil
}

func (g *Grid) node(ix, iy int) int {
	return ix + iy*g.size[0]
}

func (g *Grid) cellOf(p math.Vec2) (int, int) {
	ix := int(gomath.Floor((p.X - g.origin.X) / g.step.X))
	iy := int(gomath.Floor((p.Y - g.origin.Y) / g.step.Y))
	return min(max(ix, 0), g.size[0]-1), min(max(iy, 0), g.size[1]-1)
}

func (g *Grid) cellMin(ix, iy int) math.Vec2 {
	return math.Vec2{X: g.origin.X + float64(ix)*g.step.X, Y: g.origin.Y + float64(iy)*g.step.Y}
}

func (g *Grid) cellCenter(c int) math.Vec2 {
	lo := g.cellMin(c%g.size[0], c/g.size[0])
	return lo.Add(g.step.Scale(0.5))
}

// neighbours4 returns the edge-adjacent cells of c, -1 past the grid.
func (g *Grid) neighbours4(c int) [4]int {
	ix, iy := c%g.size[0], c/g.size[0]
	nb := [4]int{-1, -1, -1, -1}
	if ix > 0 {
		nb[0] = c - 1
	}
	if ix < g.size[0]-1 {
		nb[1] = c + 1
	}
	if iy > 0 {
		nb[2] = c - g.size[0]
	}
	if iy < g.size[1]-1 {
		nb[3] = c + g.size[0]
	}
	return nb
}

// traverse visits every cell the segment a-b passes through, stepping one
// axis at a time so consecutive cells share an edge.
func (g *Grid) traverse(a, b math.Vec2, visit func(ix, iy int)) {
	ua := math.Vec2{X: (a.X - g.origin.X) / g.step.X, Y: (a.Y - g.origin.Y) / g.step.Y}
	ub := math.Vec2{X: (b.X - g.origin.X) / g.step.X, Y: (b.Y - g.origin.Y) / g.step.Y}
	ix, iy := g.cellOf(a)
	ex, ey := g.cellOf(b)

	axis := func(u, d float64, i int) (step int, tMax, tDelta float64) {
		switch {
		case d > 0:
			return 1, (float64(i+1) - u) / d, 1 / d
		case d < 0:
			return -1, (float64(i) - u) / d, -1 / d
		default:
			return 0, gomath.Inf(1), gomath.Inf(1)
		}
	}
	sx, tMaxX, tDeltaX := axis(ua.X, ub.X-ua.X, ix)
	sy, tMaxY, tDeltaY := axis(ua.Y, ub.Y-ua.Y, iy)

	visit(ix, iy)
	for n := abs(ex-ix) + abs(ey-iy); n > 0; n-- {
		if (tMaxX < tMaxY && ix != ex) || iy == ey {
			ix += sx
			tMaxX += tDeltaX
		} else {
			iy += sy
			tMaxY += tDeltaY
		}
		visit(ix, iy)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// rasterize marks the cells crossed by the polygon and moves their nodes
// onto it: to a polygon vertex inside the cell when there is one, otherwise
// to the crossing segment.
func (g *Grid) rasterize(poly orb.Ring) []bool {
	crossed := make([]bool, len(g.pts))
	snapped := make([]bool, len(g.pts))
	for _, p := range poly {
		c := g.node(g.cellOf(math.FromPoint(p)))
		g.pts[c] = math.FromPoint(p)
		snapped[c] = true
	}
	for i := range poly {
		a := math.FromPoint(poly[i])
		b := math.FromPoint(poly[(i+1)%len(poly)])
		g.traverse(a, b, func(ix, iy int) {
			c := g.node(ix, iy)
			crossed[c] = true
			if !snapped[c] {
				g.pts[c] = g.snap(a, b, ix, iy)
				snapped[c] = true
			}
		})
	}
	return crossed
}

// snap returns the point of segment a-b closest to the cell centre, clamped
// into the cell.
func (g *Grid) snap(a, b math.Vec2, ix, iy int) math.Vec2 {
	lo := g.cellMin(ix, iy)
	hi := lo.Add(g.step)
	centre := lo.Add(g.step.Scale(0.5))
	d := b.Sub(a)
	t := 0.0
	if l := d.LengthSq(); l > 0 {
		t = min(max(centre.Sub(a).Dot(d)/l, 0), 1)
	}
	p := a.Add(d.Scale(t))
	return math.Vec2{X: min(max(p.X, lo.X), hi.X), Y: min(max(p.Y, lo.Y), hi.Y)}
}

// fillInterior extends the crossed cells with every cell enclosed by them.
func (g *Grid) fillInterior(poly orb.Ring, crossed []bool) []bool {
	used := slices.Clone(crossed)
	queue := make([]int, 0, len(used))
	for c, ok := range crossed {
		if !ok {
			continue
		}
		for _, n := range g.neighbours4(c) {
			if n < 0 || used[n] {
				continue
			}
			if planar.RingContains(poly, g.cellCenter(n).Point()) {
				used[n] = true
				queue = append(queue, n)
			}
		}
	}
	for head := 0; head < len(queue); head++ {
		for _, n := range g.neighbours4(queue[head]) {
			if n >= 0 && !used[n] {
				used[n] = true
				queue = append(queue, n)
			}
		}
	}
	return used
}

// quadTris splits quad corners a, b, c, d (counter-clockwise) along a-c for
// diag 0 and b-d for diag 1.
func quadTris(q [4]int32, diag int) [2][3]int32 {
	if diag == 0 {
		return [2][3]int32{{q[0], q[1], q[2]}, {q[0], q[2], q[3]}}
	}
	return [2][3]int32{{q[0], q[1], q[3]}, {q[1], q[2], q[3]}}
}

// minSine returns the smallest signed corner sine of triangle v.
func (g *Grid) minSine(v [3]int32) float64 {
	s := gomath.Inf(1)
	for i := 0; i < 3; i++ {
		p := g.pts[v[i]]
		e1 := g.pts[v[(i+1)%3]].Sub(p)
		e2 := g.pts[v[(i+2)%3]].Sub(p)
		s = min(s, e1.Sine(e2))
	}
	return s
}

func (g *Grid) quadQuality(q [4]int32, diag int) float64 {
	t := quadTris(q, diag)
	return min(g.minSine(t[0]), g.minSine(t[1]))
}

// triangulate emits two triangles per quad. Quads with all four nodes in
// use become available unless they sit on the grid border; the rest are
// fixed. A used quad that cannot be split into two positive triangles is
// left empty.
func (g *Grid) triangulate(used []bool, rng *rand.Rand, diagSine float64) {
	sx, sy := g.size[0], g.size[1]
	g.tris = make([]tri, 0, 2*(sx-1)*(sy-1))
	for qy := 0; qy < sy-1; qy++ {
		for qx := 0; qx < sx-1; qx++ {
			a := int32(g.node(qx, qy))
			q := [4]int32{a, a + 1, a + 1 + int32(sx), a + int32(sx)}
			border := qx == 0 || qy == 0 || qx == sx-2 || qy == sy-2
			full := used[q[0]] && used[q[1]] && used[q[2]] && used[q[3]]

			state, diag := Fixed, 0
			if full && !border {
				diag = rng.IntN(2)
				quality := g.quadQuality(q, diag)
				if quality < diagSine {
					if alt := g.quadQuality(q, diag^1); alt > quality {
						diag ^= 1
						quality = alt
					}
				}
				if quality > 0 {
					state = Available
					g.total += 2
				} else {
					state = Empty
				}
			}
			for _, v := range quadTris(q, diag) {
				g.tris = append(g.tris, tri{v: v, nb: [3]int32{-1, -1, -1}, state: state, patch: -1})
			}
		}
	}
}

// link fills the triangle adjacency. Every triangle is wound the same way,
// so a shared edge appears once in each direction.
func (g *Grid) link() {
	type edge struct{ a, b int32 }
	open := make(map[edge]int32, len(g.tris)*2)
	for t := range g.tris {
		for i := 0; i < 3; i++ {
			a, b := g.tris[t].v[i], g.tris[t].v[(i+1)%3]
			if twin, ok := open[edge{b, a}]; ok {
				nt, ne := twin/3, twin%3
				g.tris[t].nb[i] = nt
				g.tris[nt].nb[ne] = int32(t)
				delete(open, edge{b, a})
				continue
			}
			open[edge{a, b}] = int32(t*3 + i)
		}
	}
}

// Points returns the grid nodes. Triangle and loop vertices index into it.
func (g *Grid) Points() []orb.Point {
	out := make([]orb.Point, len(g.pts))
	for i, p := range g.pts {
		out[i] = p.Point()
	}
	return out
}

// Cells returns the number of quads per axis.
func (g *Grid) Cells() [2]int {
	return [2]int{g.size[0] - 1, g.size[1] - 1}
}

// Triangles returns the number of breakable triangles Generate produced.
func (g *Grid) Triangles() int {
	return g.total
}

// Available returns the number of triangles that can still break.
func (g *Grid) Available() int {
	n := 0
	for i := range g.tris {
		if g.tris[i].state == Available {
			n++
		}
	}
	return n
}

func (g *Grid) centroid(t *tri) math.Vec2 {
	return g.pts[t.v[0]].Add(g.pts[t.v[1]]).Add(g.pts[t.v[2]]).Scale(1.0 / 3)
}

func (g *Grid) cross(t *tri) float64 {
	a := g.pts[t.v[0]]
	return g.pts[t.v[1]].Sub(a).Cross(g.pts[t.v[2]].Sub(a))
}
