package geom

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/logger"
)

// Handle addresses a registered geometry. A handle goes stale once its slot
// is freed and reused.
type Handle struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether h was never assigned.
func (h Handle) IsZero() bool {
	return h.Gen == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.Index, h.Gen)
}

type slot struct {
	geom Geometry
	gen  uint32
	refs atomic.Int32
}

// cloner is implemented by geometries with mutable state.
type cloner interface {
	Clone() Geometry
}

// Manager owns geometry shared between lattices: plain geometry slots, crack
// patterns and physical geometry records. Structural changes take the coarse
// lock; reference counting is atomic.
type Manager struct {
	mu    sync.RWMutex
	slots []*slot
	free  []uint32

	cracks    []*crackEntry
	crackFree []int
	match     MatchConfig

	phys map[uuid.UUID]*PhysGeometry
}

// NewManager returns an empty manager using cfg for crack lookups.
func NewManager(cfg MatchConfig) *Manager {
	return &Manager{
		match: cfg,
		phys:  make(map[uuid.UUID]*PhysGeometry),
	}
}

// Register adds g with a reference count of one.
func (m *Manager) Register(g Geometry) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		idx = uint32(len(m.slots))
		m.slots = append(m.slots, &slot{})
	}
	s := m.slots[idx]
	s.gen++
	s.geom = g
	s.refs.Store(1)
	return Handle{Index: idx, Gen: s.gen}
}

// lookup returns the live slot for h. Caller holds mu.
func (m *Manager) lookup(h Handle) (*slot, error) {
	if int(h.Index) >= len(m.slots) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	s := m.slots[h.Index]
	if s.gen != h.Gen || s.geom == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return s, nil
}

// Get returns the geometry behind h.
func (m *Manager) Get(h Handle) (Geometry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	return s.geom, nil
}

// AddRef takes another reference on h.
func (m *Manager) AddRef(h Handle) error {
	m.mu.RLock()
	s, err := m.lookup(h)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if s.refs.Add(1) <= 1 {
		// raced with the final release
		s.refs.Add(-1)
		return fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return nil
}

// Release drops a reference and frees the slot on the last one.
func (m *Manager) Release(h Handle) error {
	m.mu.RLock()
	s, err := m.lookup(h)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	n := s.refs.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		s.refs.Add(1)
		return fmt.Errorf("%w: %s over-released", ErrInvalidHandle, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.gen != h.Gen || s.refs.Load() != 0 {
		return nil
	}
	s.geom = nil
	m.free = append(m.free, h.Index)
	logger.Named("geom").Debug("geometry freed", zap.Stringer("handle", h))
	return nil
}

// Unregister drops the registration reference of h.
func (m *Manager) Unregister(h Handle) error {
	return m.Release(h)
}

// Refs returns the current reference count of h, or zero if stale.
func (m *Manager) Refs(h Handle) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, err := m.lookup(h)
	if err != nil {
		return 0
	}
	return int(s.refs.Load())
}

// Clone registers a copy of h. Immutable geometry is shared.
func (m *Manager) Clone(h Handle) (Handle, error) {
	g, err := m.Get(h)
	if err != nil {
		return Handle{}, err
	}
	if c, ok := g.(cloner); ok {
		g = c.Clone()
	}
	return m.Register(g), nil
}

// Len returns the number of live geometry slots.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots) - len(m.free)
}

// Close reports every geometry still referenced.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for i, s := range m.slots {
		if s.geom == nil {
			continue
		}
		err = multierr.Append(err, fmt.Errorf("geometry %d#%d leaked with %d references",
			i, s.gen, s.refs.Load()))
	}
	for id, p := range m.phys {
		err = multierr.Append(err, fmt.Errorf("physical geometry %s leaked with %d references",
			id, p.refs.Load()))
	}
	return err
}
