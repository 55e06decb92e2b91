package world

import (
	"context"
	"errors"
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/internal/lattice"
	"github.com/Faultbox/shatter/pkg/math"
)

var (
	earth = mgl64.Vec3{0, 0, -9.81}
	env   = Environment{Ground: []math.Plane{math.GroundPlane(-0.5)}}
)

// twoTets returns two tetrahedra sharing the triangle at z=0. The lower one
// reaches below the ground plane in env.
func twoTets(t *testing.T) *lattice.Lattice {
	t.Helper()
	c := mgl64.Vec3{0.5, gomath.Sqrt(3) / 6, 0}
	pts := []mgl64.Vec3{
		{0, 0, 0},
		{1, 0, 0},
		{0.5, gomath.Sqrt(3) / 2, 0},
		c.Add(mgl64.Vec3{0, 0, -1}),
		c.Add(mgl64.Vec3{0, 0, 1}),
	}
	l, err := lattice.New(pts, [][4]int32{{0, 1, 2, 3}, {0, 1, 2, 4}}, lattice.DefaultParams())
	if err != nil {
		t.Fatalf("lattice.New: %v", err)
	}
	return l
}

func isolatedTet(t *testing.T) *lattice.Lattice {
	t.Helper()
	l, err := lattice.New([]mgl64.Vec3{{5, 0, 0}, {6, 0, 0}, {5, 1, 0}, {5, 0, 1}}, [][4]int32{{0, 1, 2, 3}}, lattice.DefaultParams())
	if err != nil {
		t.Fatalf("lattice.New: %v", err)
	}
	return l
}

func newWorld() *World {
	return New(geom.NewManager(geom.DefaultMatchConfig()), Options{Workers: 2, Budget: 1000, Gravity: earth})
}

func TestStepReportsFracturedBodies(t *testing.T) {
	w := newWorld()
	quiet := w.AddBody(isolatedTet(t), nil, 0)
	loaded := w.AddBody(twoTets(t), nil, 0)

	check, err := w.ApplyImpulse(loaded, mgl64.Vec3{0.5, 0.29, 0.3}, mgl64.Vec3{0, 0, 10}, 0)
	if err != nil {
		t.Fatalf("ApplyImpulse: %v", err)
	}
	if !check {
		t.Error("strong impulse should request a check")
	}

	events, err := w.Step(context.Background(), env, 0.01)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Body != loaded {
		t.Errorf("event for %s, want %s (quiet body %s)", events[0].Body, loaded, quiet)
	}
	if events[0].Result.Mode != lattice.Pull || events[0].Result.Tension < 1 {
		t.Errorf("result = %+v, want pull with tension >= 1", events[0].Result)
	}
}

func TestStepHonoursCancellation(t *testing.T) {
	w := newWorld()
	w.AddBody(twoTets(t), nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Step(ctx, env, 0.01); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestUnknownBody(t *testing.T) {
	w := newWorld()
	id := uuid.New()
	if _, err := w.ApplyImpulse(id, mgl64.Vec3{}, mgl64.Vec3{}, 0); !errors.Is(err, ErrUnknownBody) {
		t.Errorf("ApplyImpulse err = %v", err)
	}
	if _, err := w.SplitBody(id, nil); !errors.Is(err, ErrUnknownBody) {
		t.Errorf("SplitBody err = %v", err)
	}
	if err := w.RemoveBody(id); !errors.Is(err, ErrUnknownBody) {
		t.Errorf("RemoveBody err = %v", err)
	}
}

func TestSplitBody(t *testing.T) {
	w := newWorld()
	whole, err := geom.NewBox(mgl64.Vec3{4, 4, 4})
	if err != nil {
		t.Fatal(err)
	}
	parent := w.AddBody(twoTets(t), geom.NewSurface(whole), 3)

	upper, err := geom.NewBox(mgl64.Vec3{2, 2, 1})
	if err != nil {
		t.Fatal(err)
	}
	upper = upper.Place(math.Translation(mgl64.Vec3{0.5, 0.29, 0.5}))

	ids, err := w.SplitBody(parent, []geom.Geometry{upper})
	if err != nil {
		t.Fatalf("SplitBody: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d children, want 1", len(ids))
	}
	child, ok := w.Body(ids[0])
	if !ok {
		t.Fatal("child body not registered")
	}
	if child.Material != 3 || child.Surface == nil {
		t.Errorf("child = %+v, want material 3 with a surface", child)
	}
	if got := child.Lattice.Stats().Tets; got != 1 {
		t.Errorf("child has %d tets, want 1", got)
	}
	if child.Surface.Contains(mgl64.Vec3{0.5, 0.29, -1}) {
		t.Error("child surface should be clipped to its chunk")
	}
	if w.Len() != 2 || w.Geometry().Len() != 2 {
		t.Errorf("bodies = %d, registered surfaces = %d, want 2 and 2", w.Len(), w.Geometry().Len())
	}

	if err := w.RemoveBody(parent); err != nil {
		t.Fatalf("RemoveBody: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Geometry().Close(); err != nil {
		t.Errorf("manager still holds geometry: %v", err)
	}
}
