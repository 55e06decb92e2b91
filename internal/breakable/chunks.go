package breakable

import (
	gomath "math"
	"math/rand/v2"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/pkg/math"
)

// BreakOptions tunes BreakIntoChunks.
type BreakOptions struct {
	FilterAngle float64 // radians; thinner spikes across the break edge are cropped, 0 disables
	EarSine     float64 // chunk ears with a smaller tip sine are trimmed
	RY          float64 // vertical radius of the break ellipse, 0 for a circle
}

// DefaultBreakOptions returns the stock chunking tuning.
func DefaultBreakOptions() BreakOptions {
	return BreakOptions{EarSine: 0.5}
}

// BreakIntoChunks shatters the triangles within r of center into random
// patches and returns them together with any stable islands the break cut
// loose. With maxPatchTris <= 0 the broken area is removed without forming
// patches. The grid keeps the result: patch triangles become empty and the
// remains can break again.
func (g *Grid) BreakIntoChunks(center orb.Point, r float64, maxPatchTris int, joinThresh float64, seed uint64, opts BreakOptions) *Breakage {
	rng := newRNG(seed)
	c := math.FromPoint(center)
	rx, ry := r, opts.RY
	if ry <= 0 {
		ry = r
	}

	for i := range g.tris {
		t := &g.tris[i]
		t.processed = false
		if t.state == Empty || t.state == Fixed {
			continue
		}
		t.patch = -1
		d := g.centroid(t).Sub(c)
		if d.X*d.X*ry*ry+d.Y*d.Y*rx*rx >= rx*rx*ry*ry {
			t.state = Stable
		} else {
			t.state = Available
		}
	}
	if opts.FilterAngle > 0 {
		cutoff := gomath.Sin(opts.FilterAngle)
		g.cropSpikes(Stable, Available, cutoff)
		g.cropSpikes(Available, Stable, cutoff)
	}

	var islands []bool
	out := &Breakage{}
	if maxPatchTris > 0 {
		out.GrownPatches = g.growPatches(maxPatchTris, joinThresh, rng)
		islands = make([]bool, out.GrownPatches)
	} else {
		for i := range g.tris {
			if g.tris[i].state == Available {
				g.tris[i].state = Empty
			}
		}
	}
	islands = g.findIslands(islands)
	g.trimEars(opts.EarSine)
	g.dropSlivers()

	members := make([][]int32, len(islands))
	var remains []int32
	for i := range g.tris {
		switch t := &g.tris[i]; t.state {
		case Patch:
			members[t.patch] = append(members[t.patch], int32(i))
		case Stable:
			remains = append(remains, int32(i))
		}
	}
	for id, tris := range members {
		if len(tris) == 0 {
			continue
		}
		ch := g.chunk(tris)
		ch.Island = islands[id]
		out.Chunks = append(out.Chunks, ch)
	}
	out.Remains = g.chunk(remains)

	for i := range g.tris {
		t := &g.tris[i]
		switch t.state {
		case Patch:
			t.state = Empty
		case Stable:
			t.state = Available
		}
		t.patch = -1
		t.processed = false
	}

	logger.Named("breakable").Debug("broke grid",
		zap.Int("chunks", len(out.Chunks)),
		zap.Int("grown_patches", out.GrownPatches),
		zap.Int("remains", len(remains)))
	return out
}

func (g *Grid) assign(t, id int32) {
	g.tris[t].state = Patch
	g.tris[t].patch = id
}

// tipSine returns the sine of the corner opposite edge e.
func (g *Grid) tipSine(t int32, e int) float64 {
	v := g.tris[t].v
	tip := g.pts[v[(e+2)%3]]
	return g.pts[v[e]].Sub(tip).Sine(g.pts[v[(e+1)%3]].Sub(tip))
}

// spikeEdge returns the edge t shares with its only neighbour in state s.
// It returns -1 when t is not in state s, touches the fixed border, or has
// any other number of such neighbours.
func (g *Grid) spikeEdge(t int32, s State) int {
	if g.tris[t].state != s {
		return -1
	}
	e := -1
	for i, n := range g.tris[t].nb {
		if n < 0 || g.tris[n].state == Fixed {
			return -1
		}
		if g.tris[n].state == s {
			if e >= 0 {
				return -1
			}
			e = i
		}
	}
	return e
}

// cropSpikes moves sharp single-neighbour triangles from one side of the
// break edge to the other and follows the spike inwards.
func (g *Grid) cropSpikes(from, to State, cutoff float64) int {
	var queue []int32
	for i := range g.tris {
		if g.spikeEdge(int32(i), from) >= 0 {
			queue = append(queue, int32(i))
		}
	}
	cropped := 0
	for head := 0; head < len(queue); head++ {
		t := queue[head]
		e := g.spikeEdge(t, from)
		if e < 0 || g.tipSine(t, e) >= cutoff {
			continue
		}
		g.tris[t].state = to
		cropped++
		if n := g.tris[t].nb[e]; g.spikeEdge(n, from) >= 0 {
			queue = append(queue, n)
		}
	}
	return cropped
}

// growPatches claims every available triangle for some patch. Each patch
// starts at a seed, draws a random size below maxTris and grows breadth
// first, accepting each candidate with probability 1-joinThresh. Rejected
// candidates seed later patches.
func (g *Grid) growPatches(maxTris int, joinThresh float64, rng *rand.Rand) int {
	var seeds []int32
	queue := make([]int32, 0, len(g.tris))
	scan := 0
	patches := 0

	markSeed := func(t int32) {
		if tr := &g.tris[t]; tr.state == Available && !tr.processed {
			tr.processed = true
			seeds = append(seeds, t)
		}
	}

	for {
		seed := int32(-1)
		for len(seeds) > 0 && seed < 0 {
			if g.tris[seeds[0]].state == Available {
				seed = seeds[0]
			}
			seeds = seeds[1:]
		}
		for ; seed < 0 && scan < len(g.tris); scan++ {
			if g.tris[scan].state == Available {
				seed = int32(scan)
			}
		}
		if seed < 0 {
			break
		}

		id := int32(patches)
		patches++
		g.assign(seed, id)
		for _, n := range g.tris[seed].nb {
			if n >= 0 {
				markSeed(n)
			}
		}

		target := rng.IntN(maxTris)
		queue = append(queue[:0], seed)
		head := 0
		for ; head < len(queue) && target > 0; head++ {
			t := queue[head]
			if g.tris[t].state == Available {
				if rng.Float64() > joinThresh {
					g.assign(t, id)
					target--
				} else {
					markSeed(t)
				}
			}
			if tr := &g.tris[t]; tr.state == Patch && tr.patch == id {
				for _, n := range tr.nb {
					if n >= 0 && g.tris[n].state == Available {
						queue = append(queue, n)
					}
				}
			}
		}
		for ; head < len(queue); head++ {
			markSeed(queue[head])
		}
	}

	for i := range g.tris {
		g.tris[i].processed = false
	}
	return patches
}

// findIslands turns every stable component that does not reach a fixed
// triangle into a patch of its own. It returns islands extended with one
// true entry per new patch.
func (g *Grid) findIslands(islands []bool) []bool {
	seen := make([]bool, len(g.tris))
	var comp []int32
	for i := range g.tris {
		if g.tris[i].state != Stable || seen[i] {
			continue
		}
		seen[i] = true
		comp = append(comp[:0], int32(i))
		anchored := false
		for head := 0; head < len(comp); head++ {
			for _, n := range g.tris[comp[head]].nb {
				if n < 0 {
					anchored = true
					continue
				}
				switch g.tris[n].state {
				case Fixed:
					anchored = true
				case Stable:
					if !seen[n] {
						seen[n] = true
						comp = append(comp, n)
					}
				}
			}
		}
		if anchored {
			continue
		}
		id := int32(len(islands))
		for _, t := range comp {
			g.assign(t, id)
		}
		islands = append(islands, true)
	}
	return islands
}

// earEdge returns the edge a patch triangle shares with its only neighbour
// in the same patch, or -1.
func (g *Grid) earEdge(t int32) int {
	tr := &g.tris[t]
	if tr.state != Patch {
		return -1
	}
	e := -1
	for i, n := range tr.nb {
		if n >= 0 && g.tris[n].state == Patch && g.tris[n].patch == tr.patch {
			if e >= 0 {
				return -1
			}
			e = i
		}
	}
	return e
}

// trimEars removes thin ears from patches until none is left.
func (g *Grid) trimEars(earSine float64) {
	var queue []int32
	for i := range g.tris {
		if g.tris[i].state == Patch {
			queue = append(queue, int32(i))
		}
	}
	for head := 0; head < len(queue); head++ {
		t := queue[head]
		e := g.earEdge(t)
		if e < 0 || g.tipSine(t, e) >= earSine {
			continue
		}
		g.tris[t].state = Empty
		g.tris[t].patch = -1
		queue = append(queue, g.tris[t].nb[e])
	}
}

// dropSlivers removes lone patch triangles smaller than a cell.
func (g *Grid) dropSlivers() {
	limit := sqr(0.9 * g.step.X)
	for i := range g.tris {
		t := &g.tris[i]
		if t.state != Patch || g.cross(t) >= limit {
			continue
		}
		alone := true
		for _, n := range t.nb {
			if n >= 0 && g.tris[n].state == Patch && g.tris[n].patch == t.patch {
				alone = false
				break
			}
		}
		if alone {
			t.state = Empty
			t.patch = -1
		}
	}
}

func sqr(v float64) float64 { return v * v }

func (g *Grid) edgeKind(t, n int32) EdgeKind {
	if n < 0 {
		return EdgeFixed
	}
	a, b := &g.tris[t], &g.tris[n]
	switch {
	case a.state == b.state && (a.state != Patch || a.patch == b.patch):
		return EdgeInner
	case b.state == Fixed:
		return EdgeFixed
	case b.state == Empty:
		return EdgeOpen
	default:
		return EdgeNeighbor
	}
}

func (g *Grid) chunk(tris []int32) Chunk {
	var ch Chunk
	for _, t := range tris {
		tr := &g.tris[t]
		out := Tri{V: [3]int{int(tr.v[0]), int(tr.v[1]), int(tr.v[2])}}
		for i, n := range tr.nb {
			out.Edges[i] = g.edgeKind(t, n)
		}
		ch.Triangles = append(ch.Triangles, out)
	}
	ch.Loops = traceLoops(ch.Triangles)
	return ch
}

// traceLoops chains the non-inner edges of tris into closed loops.
func traceLoops(tris []Tri) []Loop {
	type edge struct {
		from, to int
		kind     EdgeKind
		used     bool
	}
	var edges []edge
	leaving := make(map[int][]int)
	for _, t := range tris {
		for i, k := range t.Edges {
			if k == EdgeInner {
				continue
			}
			leaving[t.V[i]] = append(leaving[t.V[i]], len(edges))
			edges = append(edges, edge{from: t.V[i], to: t.V[(i+1)%3], kind: k})
		}
	}

	next := func(v int) int {
		for _, e := range leaving[v] {
			if !edges[e].used {
				return e
			}
		}
		return -1
	}

	var loops []Loop
	for start := range edges {
		if edges[start].used {
			continue
		}
		var loop Loop
		for e := start; e >= 0; {
			edges[e].used = true
			loop.Vertices = append(loop.Vertices, edges[e].from)
			loop.Edges = append(loop.Edges, edges[e].kind)
			if edges[e].to == edges[start].from {
				break
			}
			e = next(edges[e].to)
		}
		loops = append(loops, loop)
	}
	return loops
}
