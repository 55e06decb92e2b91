package lattice

import (
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/pkg/math"
)

const testDt = 0.01

var (
	zeroGravity = mgl64.Vec3{}
	earth       = mgl64.Vec3{0, 0, -9.81}
	ground      = []math.Plane{math.GroundPlane(-0.5)}
)

func TestIsolatedTetNeverFractures(t *testing.T) {
	pts := []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	l := mustLattice(t, testMesh{pts, [][4]int32{{0, 1, 2, 3}}})
	l.tets[0].Pext = mgl64.Vec3{1e6, 0, 0}

	res := l.CheckStructure(testDt, earth, []math.Plane{math.GroundPlane(0.1)}, nil, 1000)
	if res.Fractured {
		t.Errorf("isolated tet fractured: %+v", res)
	}
	if res.Tet != -1 {
		t.Errorf("expected no evaluated face, got tet %d", res.Tet)
	}
}

func TestPinnedTets(t *testing.T) {
	l := mustLattice(t, twoTets())
	l.CheckStructure(testDt, earth, ground, nil, 1000)

	minv, ok := l.SolverState(0)
	if !ok || minv != 0 {
		t.Errorf("expected pinned tet with zero inverse mass, got %v (%v)", minv, ok)
	}
	minv, ok = l.SolverState(1)
	if !ok || minv <= 0 {
		t.Errorf("expected free tet with positive inverse mass, got %v (%v)", minv, ok)
	}
	if _, ok := l.SolverState(7); ok {
		t.Error("expected no state for unknown tet")
	}
}

func TestPullFracture(t *testing.T) {
	l := mustLattice(t, twoTets())
	l.tets[1].Pext = mgl64.Vec3{0, 0, 10}

	res := l.CheckStructure(testDt, zeroGravity, ground, nil, 1000)
	if !res.Fractured {
		t.Fatalf("expected fracture, got %+v", res)
	}
	if res.Mode != Pull {
		t.Errorf("expected pull failure, got %s", res.Mode)
	}
	if res.Tension < 1 {
		t.Errorf("expected tension >= 1, got %v", res.Tension)
	}
	if res.Tet != 0 || l.tets[0].Buddy[res.Face] != 1 {
		t.Errorf("expected the shared face, got tet %d face %d", res.Tet, res.Face)
	}
	if res.Cracks != 0 {
		t.Errorf("expected no cracks without collaborators, got %d", res.Cracks)
	}
}

func TestPushUnderGravity(t *testing.T) {
	l := mustLattice(t, twoTets())
	res := l.CheckStructure(testDt, earth, ground, nil, 1000)
	if !res.Fractured || res.Mode != Push {
		t.Fatalf("expected push failure, got %+v", res)
	}

	p := DefaultParams()
	p.MaxForcePush = 1e6
	l.SetParams(p)
	res = l.CheckStructure(testDt, earth, ground, nil, 1000)
	if res.Fractured {
		t.Errorf("expected strong material to hold, got %+v", res)
	}
	if res.Mode != Push || res.Stress <= 0 || res.Stress >= 1 {
		t.Errorf("expected sub-critical push load, got %+v", res)
	}
}

func TestExplosionLoadsStructure(t *testing.T) {
	l := mustLattice(t, twoTets())
	res := l.CheckStructure(testDt, zeroGravity, ground, nil, 1000)
	if res.Stress != 0 {
		t.Fatalf("expected unloaded structure, got %+v", res)
	}

	expl := &Explosion{Epicenter: mgl64.Vec3{5, 0, 0.5}, Pressure: 100, R: 1, RMin: 0.5}
	res = l.CheckStructure(testDt, zeroGravity, ground, expl, 1000)
	if res.Stress <= 0 {
		t.Errorf("expected explosion to load the shared face, got %+v", res)
	}
}

type fakeFinder struct {
	solid *geom.Solid
	found bool
	calls int
}

func (f *fakeFinder) FindCrack(tri [3]mgl64.Vec3, material int) (geom.CrackMatch, bool) {
	f.calls++
	if !f.found {
		return geom.CrackMatch{}, false
	}
	return geom.CrackMatch{Solid: f.solid, Transform: math.Identity()}, true
}

type fakeCarver struct {
	err   error
	calls int
}

func (c *fakeCarver) Subtract(crack *geom.Solid, xf math.Transform) error {
	c.calls++
	return c.err
}

func TestCrackPropagation(t *testing.T) {
	l := mustLattice(t, twoTets())
	l.tets[1].Pext = mgl64.Vec3{0, 0, 10}

	sphere, err := geom.NewSphere(0.1)
	if err != nil {
		t.Fatal(err)
	}
	finder := &fakeFinder{solid: sphere, found: true}
	carver := &fakeCarver{}
	l.Attach(carver, finder, 0)

	res := l.CheckStructure(testDt, zeroGravity, ground, nil, 1000)
	if res.Cracks != 1 {
		t.Fatalf("expected 1 crack, got %+v", res)
	}
	if carver.calls != 1 {
		t.Errorf("expected 1 subtract, got %d", carver.calls)
	}
	f := res.Face
	if l.tets[0].Frac[f] != 0 || l.tets[1].Frac[l.faceByBuddy(1, 0)] != 0 {
		t.Errorf("expected cracked face to lose all strength, got %v / %v", l.tets[0].Frac, l.tets[1].Frac)
	}

	res = l.CheckStructure(testDt, zeroGravity, ground, nil, 1000)
	if res.Fractured {
		t.Errorf("cracked face still carries load: %+v", res)
	}
}

func TestFailedCrackStrengthensFace(t *testing.T) {
	tests := []struct {
		name   string
		finder *fakeFinder
		carver *fakeCarver
	}{
		{"no pattern", &fakeFinder{found: false}, &fakeCarver{}},
		{"subtract rejected", &fakeFinder{found: true}, &fakeCarver{err: geom.ErrSubtractRejected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := mustLattice(t, twoTets())
			l.tets[1].Pext = mgl64.Vec3{0, 0, 10}
			f1 := l.faceByBuddy(1, 0)
			f0 := l.faceByBuddy(0, 1)
			l.tets[0].Frac[f0] = 0.5
			l.tets[1].Frac[f1] = 0.5
			l.Attach(tt.carver, tt.finder, 0)

			res := l.CheckStructure(testDt, zeroGravity, ground, nil, 1000)
			if !res.Fractured || res.Cracks != 0 {
				t.Fatalf("expected fracture without cracks, got %+v", res)
			}
			if l.tets[0].Frac[f0] != 0.75 || l.tets[1].Frac[f1] != 0.75 {
				t.Errorf("expected strength 0.75, got %v / %v", l.tets[0].Frac[f0], l.tets[1].Frac[f1])
			}
			if tt.finder.calls != 1 {
				t.Errorf("expected one attempt, got %d", tt.finder.calls)
			}
		})
	}
}

func TestCrackAttemptsCapped(t *testing.T) {
	l := mustLattice(t, cubeMesh(2, 2))
	for i := range l.tets {
		if l.center(int32(i))[2] > 1 {
			l.tets[i].Pext = mgl64.Vec3{0, 0, 50}
		}
	}
	finder := &fakeFinder{found: false}
	l.Attach(&fakeCarver{}, finder, 0)

	p := DefaultParams()
	p.MaxCracks = 3
	l.SetParams(p)

	res := l.CheckStructure(testDt, zeroGravity, []math.Plane{math.GroundPlane(0.5)}, nil, 100000)
	if !res.Fractured {
		t.Fatalf("expected fracture, got %+v", res)
	}
	if finder.calls > 3 {
		t.Errorf("expected at most 3 attempts, got %d", finder.calls)
	}
}

// opposedCube returns a free 3x3x3 cube whose top layer is pulled up and
// bottom layer pulled down, so both inner horizontal planes fail.
func opposedCube(t *testing.T, maxCracks int) (*Lattice, *fakeFinder) {
	t.Helper()
	l := mustLattice(t, cubeMesh(3, 3))
	for i := range l.tets {
		switch z := l.center(int32(i))[2]; {
		case z > 2:
			l.tets[i].Pext = mgl64.Vec3{0, 0, 50}
		case z < 1:
			l.tets[i].Pext = mgl64.Vec3{0, 0, -50}
		}
	}
	sphere, err := geom.NewSphere(0.1)
	if err != nil {
		t.Fatal(err)
	}
	finder := &fakeFinder{solid: sphere, found: true}
	l.Attach(&fakeCarver{}, finder, 0)

	p := DefaultParams()
	p.MaxCracks = maxCracks
	l.SetParams(p)
	return l, finder
}

func TestFinTracingWeakensCoplanarFaces(t *testing.T) {
	l, finder := opposedCube(t, 1)
	res := l.CheckStructure(testDt, zeroGravity, nil, nil, 100000)
	if res.Cracks != 1 || finder.calls != 1 {
		t.Fatalf("expected a single crack, got %+v after %d attempts", res, finder.calls)
	}

	weaken := l.Params().CrackWeaken
	weakened := 0
	for i := range l.tets {
		for j, b := range l.tets[i].Buddy {
			if b <= int32(i) || l.tets[i].Frac[j] != weaken {
				continue
			}
			if other := l.tets[b].Frac[l.faceByBuddy(b, int32(i))]; other != weaken {
				t.Errorf("tet %d face %d weakened to %v but its buddy kept %v", i, j, weaken, other)
			}
			n := l.faceNormal(int32(i), j)
			if gomath.Abs(n[2]) < 0.75*n.Len() {
				t.Errorf("weakened face %d/%d is not coplanar with the crack: normal %v", i, j, n)
			}
			weakened++
		}
	}
	if weakened == 0 {
		t.Error("expected a coplanar neighbour of the crack to be weakened")
	}
}

func TestFinTracingQueuesOverstressedFaces(t *testing.T) {
	l, finder := opposedCube(t, 4)
	res := l.CheckStructure(testDt, zeroGravity, nil, nil, 100000)
	if finder.calls < 2 {
		t.Errorf("expected a queued neighbour to be attempted, got %d attempts", finder.calls)
	}
	if res.Cracks < 2 || res.Cracks > 4 {
		t.Errorf("expected between 2 and 4 cracks, got %d", res.Cracks)
	}
}

func TestZeroLimitReportsInfiniteStress(t *testing.T) {
	l := mustLattice(t, twoTets())
	p := DefaultParams()
	p.MaxForcePull = 0
	l.SetParams(p)
	l.tets[1].Pext = mgl64.Vec3{0, 0, 10}

	res := l.CheckStructure(testDt, zeroGravity, ground, nil, 1000)
	if !res.Fractured || res.Mode != Pull {
		t.Fatalf("expected pull fracture, got %+v", res)
	}
	if !gomath.IsInf(res.Stress, 1) {
		t.Errorf("expected infinite stress, got %v", res.Stress)
	}
}

func TestCrackQueueBounded(t *testing.T) {
	var q crackQueue
	q.reset(2)
	if !q.push(queuedFace{1, 0}) || !q.push(queuedFace{2, 1}) {
		t.Fatal("expected pushes within capacity to succeed")
	}
	if q.push(queuedFace{3, 2}) {
		t.Error("expected push beyond capacity to be dropped")
	}
	f, ok := q.pop()
	if !ok || f.tet != 1 {
		t.Errorf("expected FIFO order, got %+v", f)
	}
	if !q.push(queuedFace{4, 3}) {
		t.Error("expected push after pop to succeed")
	}
	for _, want := range []int32{2, 4} {
		f, ok := q.pop()
		if !ok || f.tet != want {
			t.Errorf("expected tet %d, got %+v (%v)", want, f, ok)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestFailureModeString(t *testing.T) {
	for mode, want := range map[FailureMode]string{
		ModeNone: "none", Pull: "pull", Push: "push", Shear: "shear", Twist: "twist", Bend: "bend",
	} {
		if mode.String() != want {
			t.Errorf("expected %q, got %q", want, mode.String())
		}
	}
}
