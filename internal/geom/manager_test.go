package geom

import (
	"errors"
	gomath "math"
	"sort"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/multierr"

	"github.com/Faultbox/shatter/pkg/math"
)

func TestManagerRefCounting(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	h := m.Register(mustSphere(t, 1))

	if err := m.AddRef(h); err != nil {
		t.Fatalf("AddRef failed: %v", err)
	}
	if m.Refs(h) != 2 {
		t.Errorf("expected 2 refs, got %d", m.Refs(h))
	}
	if err := m.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := m.Get(h); err != nil {
		t.Errorf("geometry freed early: %v", err)
	}
	if err := m.Unregister(h); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if _, err := m.Get(h); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty manager, got %d", m.Len())
	}
}

func TestManagerSlotReuse(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	h1 := m.Register(mustSphere(t, 1))
	if err := m.Release(h1); err != nil {
		t.Fatal(err)
	}
	h2 := m.Register(mustSphere(t, 2))

	if h2.Index != h1.Index {
		t.Errorf("expected slot %d to be reused, got %d", h1.Index, h2.Index)
	}
	if h2.Gen == h1.Gen {
		t.Error("expected generation to change on reuse")
	}
	if err := m.AddRef(h1); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("stale handle accepted: %v", err)
	}
}

func TestManagerConcurrentRefs(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	h := m.Register(mustSphere(t, 1))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := m.AddRef(h); err != nil {
					t.Error(err)
					return
				}
				if err := m.Release(h); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if m.Refs(h) != 1 {
		t.Errorf("expected 1 ref after balanced use, got %d", m.Refs(h))
	}
}

func TestManagerClone(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	h := m.Register(NewSurface(mustBox(t, mgl64.Vec3{2, 2, 2})))
	c, err := m.Clone(h)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	g1, _ := m.Get(h)
	g2, _ := m.Get(c)
	if g1 == g2 {
		t.Error("expected surface clone to be a distinct object")
	}
}

func TestManagerCloseReportsLeaks(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	m.Register(mustSphere(t, 1))
	m.Register(mustSphere(t, 2))
	released := m.Register(mustSphere(t, 3))
	m.Release(released)

	err := m.Close()
	if err == nil {
		t.Fatal("expected leak errors")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("expected 2 leaks, got %d: %v", n, err)
	}
}

func testTriangle() [3]mgl64.Vec3 {
	return [3]mgl64.Vec3{{0, 0, 0}, {2, 0, 0}, {0.5, 1, 0}}
}

func TestFindCrack(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	h := m.Register(mustSphere(t, 0.5))
	tri := testTriangle()
	id, err := m.RegisterCrack(h, tri, 3)
	if err != nil {
		t.Fatalf("RegisterCrack failed: %v", err)
	}
	if m.Refs(h) != 2 {
		t.Errorf("expected crack to hold a reference, got %d", m.Refs(h))
	}

	xf := math.NewTransform(math.QuatFromAxisAngle(mgl64.Vec3{0, 0, 1}, gomath.Pi/2),
		mgl64.Vec3{5, 5, 5}, 1.1)
	var query [3]mgl64.Vec3
	for i, p := range tri {
		query[i] = xf.Apply(p)
	}

	match, ok := m.FindCrack(query, 3)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.ID != id || match.Geometry != h {
		t.Errorf("unexpected match %+v", match)
	}
	if gomath.Abs(match.Distance-0.0025) > 1e-9 {
		t.Errorf("expected distance 0.0025, got %v", match.Distance)
	}
	for i, p := range tri {
		if got := match.Transform.Apply(p); got.Sub(query[i]).Len() > 1e-9 {
			t.Errorf("vertex %d maps to %v, want %v", i, got, query[i])
		}
	}

	// winding does not matter
	reversed := [3]mgl64.Vec3{query[2], query[1], query[0]}
	if _, ok := m.FindCrack(reversed, 3); !ok {
		t.Error("expected reversed winding to match")
	}
	if _, ok := m.FindCrack(query, 4); ok {
		t.Error("expected no match in another material")
	}
}

func TestFindCrackRejectsDistantShapes(t *testing.T) {
	m := NewManager(MatchConfig{PosWeight: 1, ScaleWeight: 0.25, MaxDistance: 0.01})
	h := m.Register(mustSphere(t, 0.5))
	if _, err := m.RegisterCrack(h, testTriangle(), 0); err != nil {
		t.Fatal(err)
	}

	sliver := [3]mgl64.Vec3{{0, 0, 0}, {2, 0, 0}, {1.8, 0.05, 0}}
	if _, ok := m.FindCrack(sliver, 0); ok {
		t.Error("expected sliver triangle to be rejected")
	}
	degenerate := [3]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	if _, ok := m.FindCrack(degenerate, 0); ok {
		t.Error("expected degenerate triangle to be rejected")
	}
}

func TestUnregisterCrack(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	h := m.Register(mustSphere(t, 0.5))
	id, err := m.RegisterCrack(h, testTriangle(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.UnregisterCrack(id); err != nil {
		t.Fatalf("UnregisterCrack failed: %v", err)
	}
	if m.Cracks() != 0 {
		t.Errorf("expected no cracks, got %d", m.Cracks())
	}
	if m.Refs(h) != 1 {
		t.Errorf("expected crack reference released, got %d", m.Refs(h))
	}
	if err := m.UnregisterCrack(id); !errors.Is(err, ErrUnknownCrack) {
		t.Errorf("expected ErrUnknownCrack, got %v", err)
	}
}

func TestRegisterCrackNeedsSolid(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	h := m.Register(NewSurface(mustBox(t, mgl64.Vec3{1, 1, 1})))
	if _, err := m.RegisterCrack(h, testTriangle(), 0); !errors.Is(err, ErrNotSolid) {
		t.Errorf("expected ErrNotSolid, got %v", err)
	}
}

func TestRegisterPhysical(t *testing.T) {
	m := NewManager(DefaultMatchConfig())
	h := m.Register(mustBox(t, mgl64.Vec3{2, 1, 1}))

	p, err := m.RegisterPhysical(h, 2, 1)
	if err != nil {
		t.Fatalf("RegisterPhysical failed: %v", err)
	}
	if gomath.Abs(p.Mass-4) > 1e-6 {
		t.Errorf("expected mass 4, got %v", p.Mass)
	}
	if p.Center.Len() > 1e-9 {
		t.Errorf("expected centre at origin, got %v", p.Center)
	}

	got := p.Inertia[:]
	sort.Float64s(got)
	want := []float64{4 * 2.0 / 12, 4 * 5.0 / 12, 4 * 5.0 / 12}
	for i := range want {
		if gomath.Abs(got[i]-want[i])/want[i] > 0.02 {
			t.Errorf("principal moment %d: got %v, want %v", i, got[i], want[i])
		}
	}

	if m.Refs(h) != 2 {
		t.Errorf("expected physical record to hold a reference, got %d", m.Refs(h))
	}
	if err := m.ReleasePhysical(p.ID); err != nil {
		t.Fatalf("ReleasePhysical failed: %v", err)
	}
	if _, ok := m.Physical(p.ID); ok {
		t.Error("expected record to be removed")
	}
	if m.Refs(h) != 1 {
		t.Errorf("expected reference released, got %d", m.Refs(h))
	}
}
