package noise

import "gonum.org/v1/gonum/mat"

// Noise is sensor measurement noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// SampleN returns n noise samples stored in matrix columns
	SampleN(n int) *mat.Dense
}
