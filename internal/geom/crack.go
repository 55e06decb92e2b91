package geom

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/pkg/math"
)

// MatchConfig tunes the crack-pattern lookup metric.
type MatchConfig struct {
	PosWeight   float64 `yaml:"pos_weight"`
	ScaleWeight float64 `yaml:"scale_weight"`
	MaxDistance float64 `yaml:"max_distance"`
}

// DefaultMatchConfig returns the default lookup weights.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		PosWeight:   1,
		ScaleWeight: 0.25,
		MaxDistance: 1,
	}
}

// CrackMatch is the best registered crack for a query triangle.
type CrackMatch struct {
	ID        int
	Geometry  Handle
	Solid     *Solid
	Transform math.Transform // registered triangle to query triangle
	Distance  float64
}

// frame is the canonical frame of a triangle.
type frame struct {
	p0    mgl64.Vec3
	axes  mgl64.Mat3 // columns X, Y, Z
	scale float64    // longest edge length
	shape math.Vec2  // third vertex in edge units
}

type crackEntry struct {
	geom     Handle
	solid    *Solid
	material int
	frame    frame
}

// canonicalFrame places a triangle on its longest edge. p0 is the edge
// endpoint nearer the third vertex, which fixes the normal sign independently
// of winding.
func canonicalFrame(tri [3]mgl64.Vec3) (frame, bool) {
	best, bestLen := 0, -1.0
	for i := 0; i < 3; i++ {
		l := tri[(i+1)%3].Sub(tri[i]).LenSqr()
		if l > bestLen {
			best, bestLen = i, l
		}
	}
	p0, p1, c := tri[best], tri[(best+1)%3], tri[(best+2)%3]
	if c.Sub(p1).LenSqr() < c.Sub(p0).LenSqr() {
		p0, p1 = p1, p0
	}

	edge := p1.Sub(p0)
	l := edge.Len()
	if l < 1e-12 {
		return frame{}, false
	}
	x := edge.Mul(1 / l)
	n := edge.Cross(c.Sub(p0))
	nl := n.Len()
	if nl < 1e-12*l*l {
		return frame{}, false
	}
	z := n.Mul(1 / nl)
	y := z.Cross(x)

	d := c.Sub(p0)
	return frame{
		p0:    p0,
		axes:  mgl64.Mat3FromCols(x, y, z),
		scale: l,
		shape: math.Vec2{X: d.Dot(x) / l, Y: d.Dot(y) / l},
	}, true
}

func (c MatchConfig) distance(q, e frame) float64 {
	du := q.shape.Sub(e.shape).LengthSq()
	ds := 1 - q.scale/e.scale
	return c.PosWeight*du + c.ScaleWeight*ds*ds
}

// mapping returns the transform taking frame e onto frame q.
func mapping(e, q frame) math.Transform {
	r := q.axes.Mul3(e.axes.Transpose())
	s := q.scale / e.scale
	return math.Transform{
		R:      r,
		Scale:  s,
		Offset: q.p0.Sub(r.Mul3x1(e.p0).Mul(s)),
	}
}

// RegisterCrack records the solid at h as a crack pattern for triangles shaped
// like tri in material mat. It takes a reference on h.
func (m *Manager) RegisterCrack(h Handle, tri [3]mgl64.Vec3, mat int) (int, error) {
	g, err := m.Get(h)
	if err != nil {
		return -1, err
	}
	solid, ok := g.(*Solid)
	if !ok {
		return -1, ErrNotSolid
	}
	f, ok := canonicalFrame(tri)
	if !ok {
		return -1, ErrNoCrackMatch
	}
	if err := m.AddRef(h); err != nil {
		return -1, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := &crackEntry{geom: h, solid: solid, material: mat, frame: f}
	var id int
	if n := len(m.crackFree); n > 0 {
		id = m.crackFree[n-1]
		m.crackFree = m.crackFree[:n-1]
		m.cracks[id] = e
	} else {
		id = len(m.cracks)
		m.cracks = append(m.cracks, e)
	}
	return id, nil
}

// UnregisterCrack removes a crack pattern and releases its geometry.
func (m *Manager) UnregisterCrack(id int) error {
	m.mu.Lock()
	if id < 0 || id >= len(m.cracks) || m.cracks[id] == nil {
		m.mu.Unlock()
		return ErrUnknownCrack
	}
	h := m.cracks[id].geom
	m.cracks[id] = nil
	m.crackFree = append(m.crackFree, id)
	m.mu.Unlock()

	return m.Release(h)
}

// Cracks returns the number of registered crack patterns.
func (m *Manager) Cracks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cracks) - len(m.crackFree)
}

// FindCrack returns the registered crack closest to tri in shape and size,
// restricted to material mat.
func (m *Manager) FindCrack(tri [3]mgl64.Vec3, mat int) (CrackMatch, bool) {
	q, ok := canonicalFrame(tri)
	if !ok {
		return CrackMatch{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	best, bestDist := -1, gomath.Inf(1)
	for id, e := range m.cracks {
		if e == nil || e.material != mat {
			continue
		}
		if d := m.match.distance(q, e.frame); d < bestDist {
			best, bestDist = id, d
		}
	}
	if best < 0 || bestDist > m.match.MaxDistance {
		return CrackMatch{}, false
	}

	e := m.cracks[best]
	logger.Named("geom").Debug("crack matched",
		zap.Int("crack", best),
		zap.Int("material", mat),
		zap.Float64("distance", bestDist))
	return CrackMatch{
		ID:        best,
		Geometry:  e.geom,
		Solid:     e.solid,
		Transform: mapping(e.frame, q),
		Distance:  bestDist,
	}, true
}
