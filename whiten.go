package sesame

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// whitenTol is the relative eigenvalue threshold below which noise covariance directions are dropped
const whitenTol = 1e-12

// whitener returns the inverse square root C^(-1/2) of noise covariance cov.
// Eigen directions whose eigenvalues are smaller than whitenTol times the largest one are zeroed.
func whitener(cov mat.Symmetric) (*mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, fmt.Errorf("noise covariance eigen decomposition failed")
	}

	vals := eig.Values(nil)
	max := floats.Max(vals)
	if max <= 0 {
		return nil, fmt.Errorf("noise covariance is not positive")
	}

	scale := make([]float64, len(vals))
	for i, v := range vals {
		if v > whitenTol*max {
			scale[i] = 1 / math.Sqrt(v)
		}
	}

	vecs := new(mat.Dense)
	eig.VectorsTo(vecs)

	w := new(mat.Dense)
	w.Mul(vecs, mat.NewDiagDense(len(scale), scale))
	w.Mul(w, vecs.T())

	return w, nil
}
