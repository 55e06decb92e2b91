package math

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// SymEigen decomposes the symmetric matrix m. Eigenvalues are returned in
// ascending order and the matching unit eigenvectors as the columns of vecs.
func SymEigen(m mgl64.Mat3) (vals [3]float64, vecs mgl64.Mat3, ok bool) {
	data := make([]float64, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			data[r*3+c] = 0.5 * (m.At(r, c) + m.At(c, r))
		}
	}
	var es mat.EigenSym
	if !es.Factorize(mat.NewSymDense(3, data), true) {
		return vals, mgl64.Ident3(), false
	}
	copy(vals[:], es.Values(nil))

	var ev mat.Dense
	es.VectorsTo(&ev)
	for c := 0; c < 3; c++ {
		vecs.SetCol(c, mgl64.Vec3{ev.At(0, c), ev.At(1, c), ev.At(2, c)})
	}
	return vals, vecs, true
}
