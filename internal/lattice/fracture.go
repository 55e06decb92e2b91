package lattice

import (
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/pkg/math"
)

type queuedFace struct {
	tet  int32
	face int
}

// crackQueue is a bounded FIFO of faces waiting to crack. Pushes beyond the
// capacity are dropped.
type crackQueue struct {
	buf        []queuedFace
	head, size int
}

func (q *crackQueue) reset(capacity int) {
	if cap(q.buf) < capacity {
		q.buf = make([]queuedFace, capacity)
	}
	q.buf = q.buf[:capacity]
	q.head, q.size = 0, 0
}

func (q *crackQueue) push(f queuedFace) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.size)%len(q.buf)] = f
	q.size++
	return true
}

func (q *crackQueue) pop() (queuedFace, bool) {
	if q.size == 0 {
		return queuedFace{}, false
	}
	f := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return f, true
}

// propagate cracks the failed face and walks outwards along coplanar
// neighbours, queueing those that become overstressed once weakened. It
// returns the number of successful subtractions.
func (l *Lattice) propagate(tet int32, face int, dt float64) int {
	sc := &l.sc
	p := &l.params
	log := logger.Named("lattice")
	t2 := dt * dt

	sc.queue.reset(max(1, p.CrackQueue))
	if k := sc.faceOf[tet][face]; k >= 0 {
		sc.faces[k].processed = true
	}
	sc.queue.push(queuedFace{tet, face})

	cracks := 0
	for attempts := 0; attempts < p.MaxCracks; attempts++ {
		qf, ok := sc.queue.pop()
		if !ok {
			break
		}
		t0, f0 := qf.tet, qf.face
		if l.tets[t0].Buddy[f0] < 0 {
			continue
		}

		tri := l.faceTri(t0, f0)
		match, found := l.cracks.FindCrack(tri, l.material)
		if !found {
			l.scaleFrac(t0, f0, p.Strengthen)
			log.Debug("no crack pattern for face", zap.Int32("tet", t0), zap.Int("face", f0))
			continue
		}
		if err := l.surface.Subtract(match.Solid, match.Transform); err != nil {
			l.scaleFrac(t0, f0, p.Strengthen)
			log.Debug("crack subtract failed",
				zap.Int32("tet", t0),
				zap.Int("face", f0),
				zap.Error(err))
			continue
		}

		l.scaleFrac(t0, f0, 0)
		cracks++
		stress := 0.0
		mode := ModeNone
		if k := sc.faceOf[t0][f0]; k >= 0 {
			q, m, _ := l.faceStress(&sc.faces[k], t2)
			stress, mode = q.Float(), m
		}
		log.Info("crack",
			zap.Int32("tet", t0),
			zap.Int("face", f0),
			zap.Stringer("mode", mode),
			zap.Float64("stress", stress),
			zap.Int("pattern", match.ID))

		l.traceFins(t0, f0, t2)
	}
	return cracks
}

// traceFins walks the tetrahedra around each edge of the cracked face and
// weakens faces roughly coplanar with it.
func (l *Lattice) traceFins(t0 int32, f0 int, t2 float64) {
	sc := &l.sc
	p := &l.params
	n0 := l.faceNormal(t0, f0)
	cosSq := p.CoplanarCos * p.CoplanarCos

	for j := 0; j < 3; j++ {
		// face of t0 opposite the vertex that is not on this edge
		start := (f0 + 1 + j) & 3
		var edge [2]int32
		k := 0
		for m := 1; m <= 3; m++ {
			if v := (f0 + m) & 3; v != start {
				edge[k] = l.tets[t0].Verts[v]
				k++
			}
		}

		itet, iface := t0, start
		for steps := 0; steps < len(l.tets); steps++ {
			prevTet, prevFace := itet, iface
			next := l.tets[itet].Buddy[iface]
			if !l.live(next) {
				break
			}
			nf := l.faceByBuddy(next, prevTet)
			if nf < 0 {
				break
			}
			fi := sc.faceOf[next][nf]
			if fi < 0 || sc.faces[fi].processed {
				break
			}
			sc.faces[fi].processed = true

			n := l.faceNormal(next, nf)
			if math.SqrSigned(n.Dot(n0)) > cosSq*n.LenSqr()*n0.LenSqr() {
				l.tets[next].Frac[nf] *= p.CrackWeaken
				l.tets[prevTet].Frac[prevFace] *= p.CrackWeaken
				if q, _, _ := l.faceStress(&sc.faces[fi], t2); q.GreaterEq(math.Q(1, 1)) {
					sc.queue.push(queuedFace{next, nf})
					break
				}
			}

			// continue through the face opposite the far vertex of this one
			d := int32(-1)
			for m := 1; m <= 3; m++ {
				if v := l.tets[next].Verts[(nf+m)&3]; v != edge[0] && v != edge[1] {
					d = v
				}
			}
			iface = -1
			for m, v := range l.tets[next].Verts {
				if v == d {
					iface = m
				}
			}
			if iface < 0 {
				break
			}
			itet = next
		}
	}
}
