// Package lattice implements the tetrahedral structural lattice used to decide
// when and where a solid breaks. A lattice owns its vertices, tetrahedra, face
// adjacency and a CSR spatial grid; a conjugate-gradient solve over the face
// constraints yields per-face impulses that are compared against material
// limits, and overstressed faces are cracked through the attached surface.
package lattice

import (
	"errors"
	"fmt"
	gomath "math"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/pkg/math"
)

// Builder errors.
var (
	ErrEmptyMesh      = errors.New("lattice needs at least one tetrahedron")
	ErrVertexIndex    = errors.New("tetrahedron vertex index out of range")
	ErrDegenerateTet  = errors.New("tetrahedron has zero volume")
	ErrInvalidDensity = errors.New("density must be positive")
)

// Flags mark vertices and tetrahedra.
type Flags uint8

const (
	Removed        Flags = 1 << iota // no longer part of the structure
	RemovedPending                   // removed once the current pass ends
	Visited                          // transient mark inside one operation
)

var flagNames = []string{"removed", "removed-pending", "visited"}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Vertex is a lattice node.
type Vertex struct {
	Pos   mgl64.Vec3
	Flags Flags
}

// Tet is one tetrahedral element. Face j is opposite vertex j and is made of
// vertices j+1, j+2, j+3 (mod 4).
type Tet struct {
	Verts [4]int32
	Buddy [4]int32   // neighbour across face j, -1 on the boundary
	Frac  [4]float64 // remaining strength fraction of face j
	Area  [4]float64 // area of face j

	M    float64
	Minv float64
	Vinv float64
	Iinv mgl64.Mat3

	Pext mgl64.Vec3 // accumulated external impulse
	Lext mgl64.Vec3 // accumulated external angular impulse

	Flags Flags
}

// MeanArea returns the average face area.
func (t *Tet) MeanArea() float64 {
	return (t.Area[0] + t.Area[1] + t.Area[2] + t.Area[3]) * 0.25
}

// Carver removes crack-shaped volume from the visual surface.
type Carver interface {
	Subtract(crack *geom.Solid, xf math.Transform) error
}

// CrackFinder looks up the crack pattern that best fits a face.
type CrackFinder interface {
	FindCrack(tri [3]mgl64.Vec3, material int) (geom.CrackMatch, bool)
}

// Lattice is a tetrahedral structural lattice. All methods are safe for
// concurrent use; mutators serialize on the lattice lock.
type Lattice struct {
	mu sync.RWMutex

	verts   []Vertex
	tets    []Tet
	grid    *Grid
	params  Params
	removed int

	impulseTime    float64
	impulseTimeSet bool

	surface  Carver
	cracks   CrackFinder
	material int

	sc scratch
}

// New builds a lattice over the given points and tetrahedra. The spatial grid
// is axis aligned around the points.
func New(points []mgl64.Vec3, tets [][4]int32, p Params) (*Lattice, error) {
	if len(points) == 0 {
		return nil, ErrEmptyMesh
	}
	return NewWithBounds(points, tets, p, math.BoundPoints(points))
}

// NewWithBounds builds a lattice whose grid spans bounds in its orientation.
// Vertices outside bounds widen the grid to cover them.
func NewWithBounds(points []mgl64.Vec3, tets [][4]int32, p Params, bounds math.OBB) (*Lattice, error) {
	if len(tets) == 0 || len(points) == 0 {
		return nil, ErrEmptyMesh
	}
	if p.Density <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidDensity, p.Density)
	}

	l := &Lattice{
		verts:  make([]Vertex, len(points)),
		tets:   make([]Tet, len(tets)),
		params: p,
	}
	for i, pt := range points {
		l.verts[i].Pos = pt
	}

	for i, src := range tets {
		for j, v := range src {
			if v < 0 || int(v) >= len(points) {
				return nil, fmt.Errorf("%w: tet %d vertex %d is %d", ErrVertexIndex, i, j, v)
			}
		}
		if err := l.initTet(&l.tets[i], src); err != nil {
			return nil, fmt.Errorf("tet %d: %w", i, err)
		}
	}

	l.findBuddies()
	l.grid = buildGrid(l.verts, l.tets, bounds)
	return l, nil
}

// initTet fills in the mass properties of one element.
func (l *Lattice) initTet(t *Tet, src [4]int32) error {
	t.Verts = src
	v := l.tetVerts(t)
	if v[1].Sub(v[0]).Cross(v[2].Sub(v[0])).Dot(v[3].Sub(v[0])) > 0 {
		t.Verts[0], t.Verts[1] = t.Verts[1], t.Verts[0]
		v[0], v[1] = v[1], v[0]
	}

	c := v[0].Add(v[1]).Add(v[2]).Add(v[3]).Mul(0.25)
	for j := range v {
		v[j] = v[j].Sub(c)
	}

	vol := v[1].Sub(v[0]).Dot(v[3].Sub(v[0]).Cross(v[2].Sub(v[0]))) / 6
	if vol < 1e-18 {
		return ErrDegenerateTet
	}
	t.M = vol * l.params.Density
	t.Minv = 1 / t.M
	t.Vinv = 1 / vol

	var inertia mgl64.Mat3
	for _, r := range v {
		inertia = inertia.Add(mgl64.Ident3().Mul(r.LenSqr()).Sub(math.Outer(r, r)))
	}
	t.Iinv = inertia.Mul(t.M / 20).Inv()

	for j := 0; j < 4; j++ {
		a, b, d := v[(j+1)&3], v[(j+2)&3], v[(j+3)&3]
		t.Area[j] = b.Sub(a).Cross(d.Sub(a)).Len() * 0.5
		t.Frac[j] = 1
		t.Buddy[j] = -1
	}
	return nil
}

// findBuddies links faces shared by exactly two tetrahedra.
func (l *Lattice) findBuddies() {
	// incident tetrahedra per vertex, sorted by construction
	start := make([]int32, len(l.verts)+1)
	for i := range l.tets {
		for _, v := range l.tets[i].Verts {
			start[v+1]++
		}
	}
	for i := 1; i < len(start); i++ {
		start[i] += start[i-1]
	}
	inc := make([]int32, start[len(start)-1])
	fill := make([]int32, len(l.verts))
	copy(fill, start)
	for i := range l.tets {
		for _, v := range l.tets[i].Verts {
			inc[fill[v]] = int32(i)
			fill[v]++
		}
	}
	list := func(v int32) []int32 { return inc[start[v]:start[v+1]] }

	var edge, face []int32
	for i := range l.tets {
		t := &l.tets[i]
		for j := 0; j < 4; j++ {
			edge = intersectSorted(edge[:0], list(t.Verts[(j+1)&3]), list(t.Verts[(j+2)&3]))
			face = intersectSorted(face[:0], edge, list(t.Verts[(j+3)&3]))
			t.Buddy[j] = -1
			if len(face) == 2 {
				if face[0] == int32(i) {
					t.Buddy[j] = face[1]
				} else {
					t.Buddy[j] = face[0]
				}
			}
		}
	}
}

func intersectSorted(dst, a, b []int32) []int32 {
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			dst = append(dst, a[i])
			i++
			j++
		}
	}
	return dst
}

func (l *Lattice) tetVerts(t *Tet) [4]mgl64.Vec3 {
	return [4]mgl64.Vec3{
		l.verts[t.Verts[0]].Pos,
		l.verts[t.Verts[1]].Pos,
		l.verts[t.Verts[2]].Pos,
		l.verts[t.Verts[3]].Pos,
	}
}

func (l *Lattice) center(i int32) mgl64.Vec3 {
	v := l.tetVerts(&l.tets[i])
	return v[0].Add(v[1]).Add(v[2]).Add(v[3]).Mul(0.25)
}

// faceTri returns the vertex positions of face j in tet order.
func (l *Lattice) faceTri(i int32, j int) [3]mgl64.Vec3 {
	t := &l.tets[i]
	return [3]mgl64.Vec3{
		l.verts[t.Verts[(j+1)&3]].Pos,
		l.verts[t.Verts[(j+2)&3]].Pos,
		l.verts[t.Verts[(j+3)&3]].Pos,
	}
}

// faceNormal returns the outward normal of face j, with length twice the
// face area.
func (l *Lattice) faceNormal(i int32, j int) mgl64.Vec3 {
	tri := l.faceTri(i, j)
	n := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))
	if j&1 == 0 {
		return n.Mul(-1)
	}
	return n
}

// faceByBuddy returns the face of tet i shared with tet b, or -1.
func (l *Lattice) faceByBuddy(i, b int32) int {
	for j, n := range l.tets[i].Buddy {
		if n == b {
			return j
		}
	}
	return -1
}

// sever cuts the adjacency of tet i across face j on both sides.
func (l *Lattice) sever(i int32, j int) {
	b := l.tets[i].Buddy[j]
	if b < 0 {
		return
	}
	if k := l.faceByBuddy(b, i); k >= 0 {
		l.tets[b].Buddy[k] = -1
	}
	l.tets[i].Buddy[j] = -1
}

// scaleFrac multiplies the strength of face j on both sides.
func (l *Lattice) scaleFrac(i int32, j int, s float64) {
	t := &l.tets[i]
	t.Frac[j] = gomath.Min(1, t.Frac[j]*s)
	if b := t.Buddy[j]; b >= 0 {
		if k := l.faceByBuddy(b, i); k >= 0 {
			l.tets[b].Frac[k] = gomath.Min(1, l.tets[b].Frac[k]*s)
		}
	}
}

func (l *Lattice) live(i int32) bool {
	return i >= 0 && l.tets[i].Flags&Removed == 0
}

// Attach connects the crack collaborators. Without them CheckStructure only
// detects failure.
func (l *Lattice) Attach(surface Carver, cracks CrackFinder, material int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.surface = surface
	l.cracks = cracks
	l.material = material
}
