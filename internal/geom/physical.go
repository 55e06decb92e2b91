package geom

import (
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/pkg/math"
)

// PhysGeometry is the mass model of a registered geometry.
type PhysGeometry struct {
	ID         uuid.UUID
	Geometry   Handle
	MaterialID int
	Density    float64
	Mass       float64
	Volume     float64
	Center     mgl64.Vec3
	Inertia    [3]float64 // principal moments
	Frame      mgl64.Mat3 // principal axes as columns

	refs atomic.Int32
}

// physRes is the sampling resolution for inertia tensors.
const physRes = 20

// RegisterPhysical computes the mass model of the geometry at h and registers
// it with a reference count of one.
func (m *Manager) RegisterPhysical(h Handle, density float64, mat int) (*PhysGeometry, error) {
	if density <= 0 {
		return nil, fmt.Errorf("density must be positive, got %g", density)
	}
	g, err := m.Get(h)
	if err != nil {
		return nil, err
	}

	mo := sampleMoments(g, physRes)
	vals, vecs, ok := math.SymEigen(mo.inertia.Mul(density))
	if !ok {
		return nil, fmt.Errorf("inertia decomposition failed for %s", h)
	}
	if err := m.AddRef(h); err != nil {
		return nil, err
	}

	p := &PhysGeometry{
		ID:         uuid.New(),
		Geometry:   h,
		MaterialID: mat,
		Density:    density,
		Mass:       mo.volume * density,
		Volume:     mo.volume,
		Center:     mo.center,
		Inertia:    vals,
		Frame:      vecs,
	}
	p.refs.Store(1)

	m.mu.Lock()
	m.phys[p.ID] = p
	m.mu.Unlock()

	logger.Named("geom").Debug("physical geometry registered",
		zap.Stringer("id", p.ID),
		zap.Float64("mass", p.Mass))
	return p, nil
}

// Physical returns the record with the given id.
func (m *Manager) Physical(id uuid.UUID) (*PhysGeometry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.phys[id]
	return p, ok
}

// AddPhysicalRef takes another reference on a physical record.
func (m *Manager) AddPhysicalRef(id uuid.UUID) error {
	p, ok := m.Physical(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhysical, id)
	}
	p.refs.Add(1)
	return nil
}

// ReleasePhysical drops a reference and, on the last one, removes the record
// and releases its geometry.
func (m *Manager) ReleasePhysical(id uuid.UUID) error {
	p, ok := m.Physical(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhysical, id)
	}
	if p.refs.Add(-1) > 0 {
		return nil
	}

	m.mu.Lock()
	delete(m.phys, id)
	m.mu.Unlock()
	return m.Release(p.Geometry)
}
