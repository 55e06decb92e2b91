// Package world schedules structural checks over the fracturable bodies of a
// scene.
package world

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/internal/lattice"
	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/pkg/math"
)

// ErrUnknownBody is returned for body ids the world does not hold.
var ErrUnknownBody = errors.New("world: unknown body")

// Environment is the per-step physical context.
type Environment struct {
	Gravity   mgl64.Vec3
	Ground    []math.Plane
	Explosion *lattice.Explosion
}

// Body is one fracturable object.
type Body struct {
	ID       uuid.UUID
	Lattice  *lattice.Lattice
	Surface  *geom.Surface // nil for bodies that only detect failure
	Material int

	handle geom.Handle // surface registration
}

// Event reports a body that fractured during a step.
type Event struct {
	Body   uuid.UUID
	Result lattice.Result
}

// Options configures a World.
type Options struct {
	Workers int        // concurrent checks, 0 means GOMAXPROCS
	Budget  int        // solver face updates per body and step
	Gravity mgl64.Vec3 // reference gravity for impulse triage
}

// World holds bodies sharing one geometry manager.
type World struct {
	mu     sync.RWMutex
	geoms  *geom.Manager
	bodies []*Body
	index  map[uuid.UUID]int
	opts   Options
}

// New creates an empty world.
func New(geoms *geom.Manager, opts Options) *World {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &World{
		geoms: geoms,
		index: make(map[uuid.UUID]int),
		opts:  opts,
	}
}

// Geometry returns the shared geometry manager.
func (w *World) Geometry() *geom.Manager {
	return w.geoms
}

// AddBody adds a lattice and wires its surface and the crack registry into
// it. A nil surface leaves the lattice detecting failure only.
func (w *World) AddBody(l *lattice.Lattice, s *geom.Surface, material int) uuid.UUID {
	b := &Body{ID: uuid.New(), Lattice: l, Surface: s, Material: material}
	if s != nil {
		l.Attach(s, w.geoms, material)
		b.handle = w.geoms.Register(s)
	}

	w.mu.Lock()
	w.index[b.ID] = len(w.bodies)
	w.bodies = append(w.bodies, b)
	w.mu.Unlock()
	return b.ID
}

// Body returns the body with the given id.
func (w *World) Body(id uuid.UUID) (*Body, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i, ok := w.index[id]
	if !ok {
		return nil, false
	}
	return w.bodies[i], true
}

// Bodies returns a snapshot of all bodies in insertion order.
func (w *World) Bodies() []*Body {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Body, len(w.bodies))
	copy(out, w.bodies)
	return out
}

// Len returns the number of bodies.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bodies)
}

// RemoveBody drops a body and releases its surface.
func (w *World) RemoveBody(id uuid.UUID) error {
	w.mu.Lock()
	i, ok := w.index[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	b := w.bodies[i]
	w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
	delete(w.index, id)
	for j := i; j < len(w.bodies); j++ {
		w.index[w.bodies[j].ID] = j
	}
	w.mu.Unlock()

	return w.release(b)
}

func (w *World) release(b *Body) error {
	if b.Surface == nil {
		return nil
	}
	return w.geoms.Release(b.handle)
}

// Step checks every body once. Bodies run in parallel, up to the worker
// limit; each lattice serializes on its own lock. Cancellation is honoured
// between bodies, never inside a check. Events come back in body order.
func (w *World) Step(ctx context.Context, env Environment, dt float64) ([]Event, error) {
	bodies := w.Bodies()
	results := make([]lattice.Result, len(bodies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Workers)
	for i, b := range bodies {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.Lattice.CheckStructure(dt, env.Gravity, env.Ground, env.Explosion, w.opts.Budget)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []Event
	for i, r := range results {
		if r.Fractured {
			events = append(events, Event{Body: bodies[i].ID, Result: r})
		}
	}
	logger.Named("world").Debug("step",
		zap.Int("bodies", len(bodies)),
		zap.Int("fractured", len(events)))
	return events, nil
}

// SplitBody moves the parts of a body inside each chunk into new bodies. The
// children inherit the parent's material and a copy of its surface clipped
// to their chunk. It returns one id per chunk that received tetrahedra.
func (w *World) SplitBody(id uuid.UUID, chunks []geom.Geometry) ([]uuid.UUID, error) {
	parent, ok := w.Body(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}

	var ids []uuid.UUID
	for i, child := range parent.Lattice.Split(chunks) {
		if child == nil {
			continue
		}
		var surface *geom.Surface
		if parent.Surface != nil {
			if solid, ok := chunks[i].(*geom.Solid); ok {
				surface = parent.Surface.Intersect(solid)
			} else {
				surface = parent.Surface.Clone().(*geom.Surface)
			}
		}
		ids = append(ids, w.AddBody(child, surface, parent.Material))
	}

	logger.Named("world").Info("body split",
		zap.Stringer("body", id),
		zap.Int("children", len(ids)))
	return ids, nil
}

// ApplyImpulse adds an impulse to a body at pt. It reports whether the body
// should be checked this step.
func (w *World) ApplyImpulse(id uuid.UUID, pt, impulse mgl64.Vec3, time float64) (bool, error) {
	b, ok := w.Body(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	return b.Lattice.AddImpulse(pt, impulse, mgl64.Vec3{}, w.opts.Gravity, time), nil
}

// Close removes every body and releases their surfaces.
func (w *World) Close() error {
	w.mu.Lock()
	bodies := w.bodies
	w.bodies = nil
	w.index = make(map[uuid.UUID]int)
	w.mu.Unlock()

	var err error
	for _, b := range bodies {
		err = multierr.Append(err, w.release(b))
	}
	return err
}
