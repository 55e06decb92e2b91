package lattice

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/Faultbox/shatter/internal/logger"
	"github.com/Faultbox/shatter/pkg/math"
)

// FailureMode names the load component that broke a face.
type FailureMode uint8

const (
	ModeNone FailureMode = iota
	Pull
	Push
	Shear
	Twist
	Bend
)

func (m FailureMode) String() string {
	switch m {
	case Pull:
		return "pull"
	case Push:
		return "push"
	case Shear:
		return "shear"
	case Twist:
		return "twist"
	case Bend:
		return "bend"
	default:
		return "none"
	}
}

// Explosion is an impulsive pressure source.
type Explosion struct {
	Epicenter mgl64.Vec3
	Pressure  float64 // impulsive pressure at radius R
	R         float64
	RMin      float64 // falloff is flat inside RMin
}

// Result reports the most stressed face of one structural check.
type Result struct {
	Fractured bool
	Tet       int // -1 when no face was evaluated
	Face      int
	Mode      FailureMode
	Tension   float64 // signed load of the failing mode relative to its limit
	Stress    float64 // worst load ratio, >= 1 means failure
	Cracks    int     // successful crack subtractions
}

// minTolerance keeps the convergence test meaningful without gravity.
const minTolerance = 1e-9

// Per-call solver state.
type solverTet struct {
	minv   float64
	iinv   mgl64.Mat3
	dP, dL mgl64.Vec3
}

type faceConstraint struct {
	tet    [2]int32 // lattice tetrahedra, tet[0] < tet[1]
	face   int      // face index in tet[0]
	s      [2]int32 // solver indices
	r0, r1 mgl64.Vec3

	vKinv, wKinv mgl64.Mat3

	rv, rw mgl64.Vec3 // residual linear and angular velocity
	dP, dL mgl64.Vec3 // search direction
	dv, dw mgl64.Vec3
	P, L   mgl64.Vec3 // accumulated impulse

	processed bool
}

type scratch struct {
	tets     []solverTet
	faces    []faceConstraint
	solverOf []int32    // lattice tet to solver index, -1 when removed
	faceOf   [][4]int32 // lattice tet face to constraint index, -1 when none
	queue    crackQueue
}

func (s *scratch) reset(n int) {
	s.tets = s.tets[:0]
	s.faces = s.faces[:0]
	if cap(s.solverOf) < n {
		s.solverOf = make([]int32, n)
		s.faceOf = make([][4]int32, n)
	}
	s.solverOf = s.solverOf[:n]
	s.faceOf = s.faceOf[:n]
	for i := range s.solverOf {
		s.solverOf[i] = -1
		s.faceOf[i] = [4]int32{-1, -1, -1, -1}
	}
}

func (s *scratch) clear() {
	s.tets = s.tets[:0]
	s.faces = s.faces[:0]
	s.solverOf = s.solverOf[:0]
	s.faceOf = s.faceOf[:0]
}

// CheckStructure solves for the impulses holding the structure together over
// one step of length dt, reports the most stressed face and, when crack
// collaborators are attached and the face fails, propagates cracks.
//
// A tetrahedron with a vertex below any ground plane is pinned. budget caps the
// total number of face updates spent by the solver.
func (l *Lattice) CheckStructure(dt float64, gravity mgl64.Vec3, ground []math.Plane, expl *Explosion, budget int) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := l.solve(dt, gravity, ground, expl, budget)
	if !res.Fractured {
		return res
	}
	logger.Named("lattice").Debug("face overstressed",
		zap.Int("tet", res.Tet),
		zap.Int("face", res.Face),
		zap.Stringer("mode", res.Mode),
		zap.Float64("stress", res.Stress))
	if l.surface != nil && l.cracks != nil {
		res.Cracks = l.propagate(int32(res.Tet), res.Face, dt)
	}
	return res
}

func (l *Lattice) solve(dt float64, gravity mgl64.Vec3, ground []math.Plane, expl *Explosion, budget int) Result {
	sc := &l.sc
	sc.reset(len(l.tets))

	g := gravity.Len()
	e := g * 0.05

	for i := range l.tets {
		t := &l.tets[i]
		if t.Flags&Removed != 0 {
			continue
		}
		vmax := e
		for _, v := range t.Verts {
			for _, pl := range ground {
				vmax = gomath.Min(vmax, pl.Distance(l.verts[v].Pos))
			}
		}

		st := solverTet{}
		if vmax >= 0 {
			st.minv = t.Minv
			st.iinv = t.Iinv
			st.dP = gravity.Mul(dt).Add(t.Pext.Mul(t.Minv))
			st.dL = t.Iinv.Mul3x1(t.Lext)
			if expl != nil {
				n := l.center(int32(i)).Sub(expl.Epicenter)
				d := n.Len()
				k := expl.Pressure * expl.R * expl.R /
					(gomath.Max(1e-5, d) * sqr(gomath.Max(expl.RMin, d)))
				st.dP = st.dP.Add(n.Mul(k * t.MeanArea() * 0.3))
			}
		}
		sc.solverOf[i] = int32(len(sc.tets))
		sc.tets = append(sc.tets, st)
	}

	var r2, vmax float64
	for i := range l.tets {
		t := &l.tets[i]
		if t.Flags&Removed != 0 {
			continue
		}
		for j := 0; j < 4; j++ {
			b := t.Buddy[j]
			if b <= int32(i) || !l.live(b) || t.Frac[j] <= 0 {
				continue
			}
			s0, s1 := sc.solverOf[i], sc.solverOf[b]
			t0, t1 := &sc.tets[s0], &sc.tets[s1]
			if gomath.Max(t0.minv, t1.minv) <= 0 {
				continue
			}

			tri := l.faceTri(int32(i), j)
			pt := tri[0].Add(tri[1]).Add(tri[2]).Mul(1.0 / 3)
			f := faceConstraint{
				tet:  [2]int32{int32(i), b},
				face: j,
				s:    [2]int32{s0, s1},
				r0:   pt.Sub(l.center(int32(i))),
				r1:   pt.Sub(l.center(b)),
			}
			c0, c1 := math.CrossMatrix(f.r0), math.CrossMatrix(f.r1)
			vK := mgl64.Ident3().Mul(t0.minv + t1.minv).
				Sub(c0.Mul3(t0.iinv).Mul3(c0)).
				Sub(c1.Mul3(t1.iinv).Mul3(c1))
			f.vKinv = vK.Inv()
			f.wKinv = t0.iinv.Add(t1.iinv).Inv()

			f.rv = t1.dP.Add(t1.dL.Cross(f.r1)).Sub(t0.dP).Sub(t0.dL.Cross(f.r0))
			f.rw = t1.dL.Sub(t0.dL)
			f.dP = f.vKinv.Mul3x1(f.rv)
			f.dL = f.wKinv.Mul3x1(f.rw)
			r2 += f.dP.Dot(f.rv) + f.dL.Dot(f.rw)
			vmax = gomath.Max(vmax, gomath.Max(f.rv.LenSqr(), f.rw.LenSqr()*f.r0.LenSqr()))

			k := int32(len(sc.faces))
			sc.faceOf[i][j] = k
			sc.faceOf[b][l.faceByBuddy(b, int32(i))] = k
			sc.faces = append(sc.faces, f)
		}
	}

	nf := len(sc.faces)
	iters := min(budget/max(1, nf), 6*nf)
	tol := gomath.Max(e*dt, minTolerance)
	tol *= tol

	iter := 0
	for ; iter < iters && vmax > tol && r2 > 0; iter++ {
		for i := range sc.tets {
			sc.tets[i].dP = mgl64.Vec3{}
			sc.tets[i].dL = mgl64.Vec3{}
		}
		for i := range sc.faces {
			f := &sc.faces[i]
			t0, t1 := &sc.tets[f.s[0]], &sc.tets[f.s[1]]
			t0.dP = t0.dP.Add(f.dP)
			t0.dL = t0.dL.Add(f.r0.Cross(f.dP)).Add(f.dL)
			t1.dP = t1.dP.Sub(f.dP)
			t1.dL = t1.dL.Sub(f.r1.Cross(f.dP)).Sub(f.dL)
		}

		var pAp float64
		for i := range sc.faces {
			f := &sc.faces[i]
			t0, t1 := &sc.tets[f.s[0]], &sc.tets[f.s[1]]
			dw0 := t0.iinv.Mul3x1(t0.dL)
			dw1 := t1.iinv.Mul3x1(t1.dL)
			f.dw = dw0.Sub(dw1)
			f.dv = t0.dP.Mul(t0.minv).Add(dw0.Cross(f.r0)).
				Sub(t1.dP.Mul(t1.minv).Add(dw1.Cross(f.r1)))
			pAp += f.dw.Dot(f.dL) + f.dv.Dot(f.dP)
		}

		a := gomath.Min(50, r2/gomath.Max(1e-10, pAp))
		var r2new float64
		for i := range sc.faces {
			f := &sc.faces[i]
			f.rv = f.rv.Sub(f.dv.Mul(a))
			f.rw = f.rw.Sub(f.dw.Mul(a))
			f.dv = f.vKinv.Mul3x1(f.rv)
			f.dw = f.wKinv.Mul3x1(f.rw)
			r2new += f.dv.Dot(f.rv) + f.dw.Dot(f.rw)
			f.P = f.P.Add(f.dP.Mul(a))
			f.L = f.L.Add(f.dL.Mul(a))
		}

		b := r2new / r2
		r2 = r2new
		vmax = 0
		for i := range sc.faces {
			f := &sc.faces[i]
			f.dP = f.dP.Mul(b).Add(f.dv)
			f.dL = f.dL.Mul(b).Add(f.dw)
			vmax = gomath.Max(vmax, gomath.Max(f.rv.LenSqr(), f.rw.LenSqr()*f.r0.LenSqr()))
		}
	}

	res := Result{Tet: -1, Face: -1}
	worst := math.Q(0, 1)
	t2 := dt * dt
	for i := range sc.faces {
		q, mode, tension := l.faceStress(&sc.faces[i], t2)
		if q.Greater(worst) {
			worst = q
			res.Tet = int(sc.faces[i].tet[0])
			res.Face = sc.faces[i].face
			res.Mode = mode
			res.Tension = tension
		}
	}
	if res.Tet >= 0 {
		res.Stress = gomath.Sqrt(gomath.Max(0, worst.Float()))
		if worst.Den == 0 {
			// a zero limit or step fails any load
			res.Stress = gomath.Inf(1)
		}
		res.Fractured = worst.GreaterEq(math.Q(1, 1))
	}

	logger.Named("lattice").Debug("structure checked",
		zap.Int("tets", len(sc.tets)),
		zap.Int("faces", nf),
		zap.Int("iterations", iter),
		zap.Float64("stress", res.Stress))
	return res
}

// faceStress evaluates the five load quotients of a solved face and returns
// the largest one, its mode and the signed load relative to the limit.
//
// The face normal n has length twice the face area; the effective bonded
// area is Frac*|n|.
func (l *Lattice) faceStress(f *faceConstraint, t2 float64) (math.Quotient, FailureMode, float64) {
	p := &l.params
	n := l.faceNormal(f.tet[0], f.face)
	nl2 := n.LenSqr()
	frac := l.tets[f.tet[0]].Frac[f.face]
	area2 := frac * frac * nl2 * nl2 * t2

	pn := f.P.Dot(n)
	ln := f.L.Dot(n)
	shear := f.P.Mul(nl2).Sub(n.Mul(pn))
	bend := f.L.Mul(nl2).Sub(n.Mul(ln))

	qs := [...]struct {
		q    math.Quotient
		mode FailureMode
	}{
		{math.Q(math.SqrSigned(pn), area2*sqr(p.MaxForcePull)), Pull},
		{math.Q(math.SqrSigned(-pn), area2*sqr(p.MaxForcePush)), Push},
		{math.Q(shear.LenSqr(), area2*nl2*sqr(p.MaxForceShift)), Shear},
		{math.Q(ln*ln, area2*sqr(p.MaxTorqueTwist)), Twist},
		{math.Q(bend.LenSqr(), area2*nl2*sqr(p.MaxTorqueBend)), Bend},
	}
	best := 0
	for i := 1; i < len(qs); i++ {
		if qs[i].q.Greater(qs[best].q) {
			best = i
		}
	}

	a := gomath.Sqrt(area2)
	var tension float64
	switch qs[best].mode {
	case Pull:
		tension = pn / (a * p.MaxForcePull)
	case Push:
		tension = -pn / (a * p.MaxForcePush)
	case Shear:
		tension = shear.Len() / (a * gomath.Sqrt(nl2) * p.MaxForceShift)
	case Twist:
		tension = ln / (a * p.MaxTorqueTwist)
	case Bend:
		tension = bend.Len() / (a * gomath.Sqrt(nl2) * p.MaxTorqueBend)
	}
	return qs[best].q, qs[best].mode, tension
}

// SolverState returns the inverse mass a tetrahedron had in the last check.
// Pinned tetrahedra report zero.
func (l *Lattice) SolverState(tet int) (minv float64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if tet < 0 || tet >= len(l.sc.solverOf) {
		return 0, false
	}
	s := l.sc.solverOf[tet]
	if s < 0 {
		return 0, false
	}
	return l.sc.tets[s].minv, true
}

func sqr(x float64) float64 {
	return x * x
}
