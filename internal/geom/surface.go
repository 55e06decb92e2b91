package geom

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/shatter/pkg/math"
)

// Surface is the carvable visual solid owned by one fractured object.
type Surface struct {
	mu    sync.RWMutex
	solid *Solid
	cuts  int
}

var _ Geometry = (*Surface)(nil)

// NewSurface starts a surface from a solid.
func NewSurface(s *Solid) *Surface {
	return &Surface{solid: s}
}

// Subtract carves crack, placed by xf, out of the surface.
func (s *Surface) Subtract(crack *Solid, xf math.Transform) error {
	if crack == nil {
		return fmt.Errorf("%w: nil crack", ErrSubtractRejected)
	}
	placed := crack.Place(xf)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.solid.Bounds().Overlaps(placed.Bounds()) {
		return fmt.Errorf("%w: crack misses surface bounds", ErrSubtractRejected)
	}
	if !s.solid.Contains(placed.Center()) {
		return fmt.Errorf("%w: crack centre outside surface", ErrSubtractRejected)
	}

	s.solid = s.solid.Difference(placed)
	s.cuts++
	return nil
}

// Intersect returns a new surface clipped to g.
func (s *Surface) Intersect(g *Solid) *Surface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Surface{solid: s.solid.Intersect(g), cuts: s.cuts}
}

// Clone returns an independent copy. Solids are immutable and are shared.
func (s *Surface) Clone() Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Surface{solid: s.solid, cuts: s.cuts}
}

// Solid returns the current shape.
func (s *Surface) Solid() *Solid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.solid
}

// Cuts returns the number of successful subtracts.
func (s *Surface) Cuts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cuts
}

func (s *Surface) Bounds() math.OBB {
	return s.Solid().Bounds()
}

func (s *Surface) Contains(p mgl64.Vec3) bool {
	return s.Solid().Contains(p)
}

func (s *Surface) Volume() float64 {
	return s.Solid().Volume()
}

func (s *Surface) Center() mgl64.Vec3 {
	return s.Solid().Center()
}
