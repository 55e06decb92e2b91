package breakable

import (
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/Faultbox/shatter/pkg/math"
)

func square(size float64) orb.Ring {
	return orb.Ring{{0, 0}, {size, 0}, {size, size}, {0, size}, {0, 0}}
}

func mustGenerate(t *testing.T, ring orb.Ring, cells [2]int, seed uint64) *Grid {
	t.Helper()
	g, err := Generate(ring, cells, seed, DefaultGenerateOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return g
}

func TestGenerateSquare(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		g := mustGenerate(t, square(4), [2]int{4, 4}, seed)

		if g.Triangles() != 2*4*4 {
			t.Errorf("seed %d: Triangles() = %d, want %d", seed, g.Triangles(), 2*4*4)
		}
		if g.Available() != g.Triangles() {
			t.Errorf("seed %d: Available() = %d, want %d", seed, g.Available(), g.Triangles())
		}

		cells := g.Cells()
		for i := range g.tris {
			tr := &g.tris[i]
			quad := i / 2
			qx, qy := quad%cells[0], quad/cells[0]
			border := qx == 0 || qy == 0 || qx == cells[0]-1 || qy == cells[1]-1
			if border && tr.state != Fixed {
				t.Errorf("seed %d: border triangle %d is %v", seed, i, tr.state)
			}
			if tr.state == Available && g.cross(tr) <= 0 {
				t.Errorf("seed %d: triangle %d has area %v", seed, i, g.cross(tr)/2)
			}
		}
	}
}

func TestGenerateSnapsBoundary(t *testing.T) {
	g := mustGenerate(t, square(4), [2]int{4, 4}, 9)
	pts := g.Points()
	for _, corner := range []orb.Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}} {
		found := false
		for _, p := range pts {
			if p.Equal(corner) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("corner %v is not a grid node", corner)
		}
	}
}

func TestGenerateLinksNeighbours(t *testing.T) {
	g := mustGenerate(t, square(4), [2]int{4, 4}, 2)
	for i := range g.tris {
		for e, n := range g.tris[i].nb {
			if n < 0 {
				continue
			}
			back := false
			for _, m := range g.tris[n].nb {
				if m == int32(i) {
					back = true
				}
			}
			if !back {
				t.Errorf("triangle %d edge %d names %d, which does not link back", i, e, n)
			}
		}
	}
}

func TestGenerateRejectsDegenerate(t *testing.T) {
	tests := []struct {
		name  string
		ring  orb.Ring
		cells [2]int
	}{
		{"two points", orb.Ring{{0, 0}, {1, 1}}, [2]int{4, 4}},
		{"flat", orb.Ring{{0, 0}, {1, 0}, {2, 0}}, [2]int{4, 4}},
		{"no cells", square(1), [2]int{0, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Generate(tt.ring, tt.cells, 1, DefaultGenerateOptions()); !errors.Is(err, ErrDegenerateBoundary) {
				t.Errorf("err = %v, want ErrDegenerateBoundary", err)
			}
		})
	}
}

func TestBreakWithoutPatches(t *testing.T) {
	g := mustGenerate(t, square(8), [2]int{8, 8}, 4)
	total := g.Available()

	b := g.BreakIntoChunks(orb.Point{4, 4}, 2, 0, 0.3, 1, DefaultBreakOptions())
	if b.GrownPatches != 0 {
		t.Errorf("GrownPatches = %d, want 0", b.GrownPatches)
	}
	if len(b.Chunks) != 0 {
		t.Errorf("got %d chunks, want none", len(b.Chunks))
	}
	remains := len(b.Remains.Triangles)
	if remains == 0 || remains >= total {
		t.Fatalf("remains = %d of %d triangles", remains, total)
	}
	if g.Available() != remains {
		t.Errorf("Available() = %d, want %d", g.Available(), remains)
	}

	open := 0
	for _, tr := range b.Remains.Triangles {
		for _, k := range tr.Edges {
			if k == EdgeOpen {
				open++
			}
		}
	}
	if open == 0 {
		t.Error("remains have no open edge around the hole")
	}
}

func TestBreakIntoPatches(t *testing.T) {
	g := mustGenerate(t, square(8), [2]int{8, 8}, 5)
	total := g.Available()

	b := g.BreakIntoChunks(orb.Point{4, 4}, 100, 6, 0.3, 3, DefaultBreakOptions())
	if b.GrownPatches == 0 || len(b.Chunks) == 0 {
		t.Fatalf("GrownPatches = %d, chunks = %d", b.GrownPatches, len(b.Chunks))
	}
	if len(b.Remains.Triangles) != 0 {
		t.Errorf("remains = %d triangles, want 0", len(b.Remains.Triangles))
	}
	if g.Available() != 0 {
		t.Errorf("Available() = %d after breaking everything", g.Available())
	}

	pts := g.Points()
	emitted, fixed := 0, 0
	for _, ch := range b.Chunks {
		if ch.Island {
			t.Error("grown patch flagged as island")
		}
		emitted += len(ch.Triangles)
		for _, tr := range ch.Triangles {
			p0, p1, p2 := math.FromPoint(pts[tr.V[0]]), math.FromPoint(pts[tr.V[1]]), math.FromPoint(pts[tr.V[2]])
			if p1.Sub(p0).Cross(p2.Sub(p0)) <= 0 {
				t.Errorf("emitted triangle %v is not counter-clockwise", tr.V)
			}
			for _, k := range tr.Edges {
				if k == EdgeFixed {
					fixed++
				}
			}
		}
		if len(ch.Loops) == 0 {
			t.Error("chunk without boundary loop")
		}
		for _, l := range ch.Loops {
			if len(l.Vertices) < 3 || len(l.Vertices) != len(l.Edges) {
				t.Errorf("malformed loop: %d vertices, %d edges", len(l.Vertices), len(l.Edges))
			}
		}
	}
	if emitted == 0 || emitted > total {
		t.Errorf("emitted %d of %d triangles", emitted, total)
	}
	if fixed == 0 {
		t.Error("no chunk edge faces the fixed border")
	}
}

func TestBreakDeterministic(t *testing.T) {
	run := func() *Breakage {
		g := mustGenerate(t, square(8), [2]int{8, 8}, 11)
		return g.BreakIntoChunks(orb.Point{3, 5}, 3, 5, 0.25, 17, BreakOptions{FilterAngle: 0.3, EarSine: 0.5})
	}
	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Error("same seeds produced different breakage")
	}
}

func TestBreakFindsIsland(t *testing.T) {
	g := mustGenerate(t, square(8), [2]int{8, 8}, 6)
	centre := orb.Point{4, 4}
	g.BreakIntoChunks(centre, 3, 0, 0, 1, DefaultBreakOptions())

	// Put a disc back inside the hole so it floats free of the border.
	restored := 0
	for i := range g.tris {
		tr := &g.tris[i]
		if tr.state == Empty && g.centroid(tr).Distance(math.FromPoint(centre)) < 1.6 {
			tr.state = Available
			restored++
		}
	}
	if restored == 0 {
		t.Fatal("nothing restored")
	}

	b := g.BreakIntoChunks(orb.Point{100, 100}, 1, 0, 0, 1, DefaultBreakOptions())
	if b.GrownPatches != 0 {
		t.Errorf("GrownPatches = %d, want 0", b.GrownPatches)
	}
	if len(b.Chunks) != 1 || !b.Chunks[0].Island {
		t.Fatalf("chunks = %+v, want one island", b.Chunks)
	}
	for _, tr := range b.Chunks[0].Triangles {
		for _, k := range tr.Edges {
			if k != EdgeInner && k != EdgeOpen {
				t.Errorf("island edge kind %v, want inner or open", k)
			}
		}
	}
}

func TestTraceLoops(t *testing.T) {
	tris := []Tri{
		{V: [3]int{0, 1, 2}, Edges: [3]EdgeKind{EdgeOpen, EdgeFixed, EdgeInner}},
		{V: [3]int{0, 2, 3}, Edges: [3]EdgeKind{EdgeInner, EdgeNeighbor, EdgeOpen}},
	}
	loops := traceLoops(tris)
	if len(loops) != 1 {
		t.Fatalf("got %d loops, want 1", len(loops))
	}
	want := Loop{
		Vertices: []int{0, 1, 2, 3},
		Edges:    []EdgeKind{EdgeOpen, EdgeFixed, EdgeNeighbor, EdgeOpen},
	}
	if !reflect.DeepEqual(loops[0], want) {
		t.Errorf("loop = %+v, want %+v", loops[0], want)
	}
}

func TestStateStrings(t *testing.T) {
	if Patch.String() != "patch" || EdgeNeighbor.String() != "neighbor" {
		t.Errorf("got %q and %q", Patch.String(), EdgeNeighbor.String())
	}
	if State(42).String() != "State(42)" {
		t.Errorf("unknown state = %q", State(42).String())
	}
}
