package lattice

import (
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/geom"
	"github.com/Faultbox/shatter/internal/logger"
)

// Split moves the tetrahedra whose centroids lie inside each chunk into a new
// lattice. The result has one entry per chunk, nil when nothing moved.
// Adjacency between moved and remaining tetrahedra is cut on both sides.
func (l *Lattice) Split(chunks []geom.Geometry) []*Lattice {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Lattice, len(chunks))
	tetMap := make([]int32, len(l.tets))
	vertMap := make([]int32, len(l.verts))
	for i := range tetMap {
		tetMap[i] = -1
	}
	for i := range vertMap {
		vertMap[i] = -1
	}

	for ci, chunk := range chunks {
		bounds := chunk.Bounds()
		lo, hi := l.grid.CellRange(bounds)

		var moved, seen, newVerts []int32
		l.grid.ForEachInRange(lo, hi, func(t int32) bool {
			tet := &l.tets[t]
			if tet.Flags&(Removed|Visited) != 0 {
				return true
			}
			tet.Flags |= Visited
			seen = append(seen, t)

			c := l.center(t)
			if !bounds.Contains(c) || !chunk.Contains(c) {
				return true
			}
			tetMap[t] = int32(len(moved))
			moved = append(moved, t)
			for _, v := range tet.Verts {
				if vertMap[v] < 0 {
					vertMap[v] = int32(len(newVerts))
					newVerts = append(newVerts, v)
				}
			}
			return true
		})

		if len(moved) > 0 {
			out[ci] = l.extract(moved, newVerts, tetMap, vertMap, lo, hi)
			for _, t := range moved {
				l.tets[t].Flags |= Removed
			}
			l.removed += len(moved)
			logger.Named("lattice").Debug("chunk split off",
				zap.Int("chunk", ci),
				zap.Int("tets", len(moved)),
				zap.Int("verts", len(newVerts)))
		}

		for _, t := range seen {
			l.tets[t].Flags &^= Visited
			tetMap[t] = -1
		}
		for _, v := range newVerts {
			vertMap[v] = -1
		}
	}

	l.defragment()
	return out
}

// extract builds the child lattice for one chunk.
func (l *Lattice) extract(moved, newVerts, tetMap, vertMap []int32, lo, hi [3]int) *Lattice {
	child := &Lattice{
		verts:  make([]Vertex, len(newVerts)),
		tets:   make([]Tet, len(moved)),
		params: l.params,
	}
	for i, v := range newVerts {
		child.verts[i] = Vertex{Pos: l.verts[v].Pos, Flags: l.verts[v].Flags &^ Visited}
	}

	for i, t := range moved {
		src := &l.tets[t]
		dst := &child.tets[i]
		dst.M, dst.Minv, dst.Vinv, dst.Iinv = src.M, src.Minv, src.Vinv, src.Iinv
		dst.Frac = src.Frac
		dst.Area = src.Area
		for j := 0; j < 4; j++ {
			dst.Verts[j] = vertMap[src.Verts[j]]
			dst.Buddy[j] = -1
			b := src.Buddy[j]
			if b < 0 {
				continue
			}
			if tetMap[b] >= 0 {
				dst.Buddy[j] = tetMap[b]
			} else {
				l.sever(t, j)
			}
		}
	}

	child.grid = l.grid.subset(lo, hi, tetMap)
	return child
}

// Defragment compacts the tetrahedra once more than 70% of them are removed.
// Vertices are never compacted. It reports whether anything moved.
func (l *Lattice) Defragment() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.defragment()
}

func (l *Lattice) defragment() bool {
	if l.removed*10 <= len(l.tets)*7 {
		return false
	}

	remap := make([]int32, len(l.tets))
	n := int32(0)
	for i := range l.tets {
		if l.tets[i].Flags&Removed != 0 {
			remap[i] = -1
			continue
		}
		remap[i] = n
		n++
	}

	l.grid.compact(remap)
	for i := range l.tets {
		t := &l.tets[i]
		for j, b := range t.Buddy {
			if b >= 0 {
				t.Buddy[j] = remap[b]
			}
		}
		if remap[i] >= 0 {
			l.tets[remap[i]] = *t
		}
	}
	before := len(l.tets)
	l.tets = l.tets[:n]
	l.removed = 0
	l.sc.clear()

	logger.Named("lattice").Debug("lattice defragmented",
		zap.Int("before", before),
		zap.Int("after", int(n)))
	return true
}
