// Package breakable generates jittered 2D triangle grids inside a polygon and
// breaks them into chunks around an impact point.
package breakable

import "fmt"

// State is the lifecycle state of a grid triangle.
type State uint8

const (
	// Available triangles can be claimed by a patch.
	Available State = iota
	// Fixed triangles lie outside the polygon or on the grid border and
	// never break.
	Fixed
	// Stable triangles lie outside the current break radius.
	Stable
	// Empty triangles have already broken away.
	Empty
	// Patch triangles belong to the chunk named by their owner id.
	Patch
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Fixed:
		return "fixed"
	case Stable:
		return "stable"
	case Empty:
		return "empty"
	case Patch:
		return "patch"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// EdgeKind classifies a chunk boundary edge by what lies across it.
type EdgeKind uint8

const (
	// EdgeInner joins two triangles of the same chunk.
	EdgeInner EdgeKind = iota
	// EdgeOpen faces a hole.
	EdgeOpen
	// EdgeFixed faces the static border.
	EdgeFixed
	// EdgeNeighbor faces another chunk or the remains.
	EdgeNeighbor
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeInner:
		return "inner"
	case EdgeOpen:
		return "open"
	case EdgeFixed:
		return "fixed"
	case EdgeNeighbor:
		return "neighbor"
	default:
		return fmt.Sprintf("EdgeKind(%d)", k)
	}
}

// tri is one grid triangle. nb[i] is the triangle across edge
// (v[i], v[i+1]), or -1 past the grid.
type tri struct {
	v         [3]int32
	nb        [3]int32
	state     State
	patch     int32
	processed bool
}

// Tri is an emitted triangle. Edges[i] classifies edge (V[i], V[(i+1)%3]).
type Tri struct {
	V     [3]int
	Edges [3]EdgeKind
}

// Loop is a closed boundary of a chunk, counter-clockwise for outer loops.
// Edges[i] classifies the edge leaving Vertices[i].
type Loop struct {
	Vertices []int
	Edges    []EdgeKind
}

// Chunk is a connected set of triangles that broke off together.
type Chunk struct {
	Triangles []Tri
	Loops     []Loop
	Island    bool // stable region cut off from the fixed border
}

// Breakage is the result of one BreakIntoChunks call.
type Breakage struct {
	Chunks       []Chunk
	Remains      Chunk
	GrownPatches int
}
