package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Moment is an estimate of dipole moments at a single time sample:
// the stacked moments of all dipoles and their covariance
type Moment struct {
	// val stores stacked dipole moments
	val *mat.VecDense
	// cov is moment covariance
	cov *mat.SymDense
	// comps is the number of moment components per dipole
	comps int
}

// NewMoment returns moment estimate given stacked dipole moments val, their covariance
// and the number of components per dipole.
// It returns error if the dimensions of val and cov do not match or val does not split into comps sized blocks.
func NewMoment(val mat.Vector, cov mat.Symmetric, comps int) (*Moment, error) {
	n := val.Len()
	if comps <= 0 || n%comps != 0 {
		return nil, fmt.Errorf("invalid moment components %d for %d values", comps, n)
	}

	if cov.SymmetricDim() != n {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", n, cov.SymmetricDim(), cov.SymmetricDim())
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(n, nil)
	c.CopySym(cov)

	return &Moment{
		val:   v,
		cov:   c,
		comps: comps,
	}, nil
}

// Len returns the number of dipoles
func (m *Moment) Len() int {
	return m.val.Len() / m.comps
}

// Val returns stacked dipole moments
func (m *Moment) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(m.val)

	return v
}

// Cov returns moment covariance
func (m *Moment) Cov() mat.Symmetric {
	cov := mat.NewSymDense(m.cov.SymmetricDim(), nil)
	cov.CopySym(m.cov)

	return cov
}

// Dipole returns moment of the i-th dipole.
// It panics if i is out of range.
func (m *Moment) Dipole(i int) mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(m.val.SliceVec(i*m.comps, (i+1)*m.comps))

	return v
}

// Amplitude returns the norm of the i-th dipole moment.
func (m *Moment) Amplitude(i int) float64 {
	return mat.Norm(m.val.SliceVec(i*m.comps, (i+1)*m.comps), 2)
}

// Std returns standard deviations of the stacked moments
func (m *Moment) Std() []float64 {
	std := make([]float64, m.val.Len())
	for i := range std {
		std[i] = math.Sqrt(m.cov.At(i, i))
	}

	return std
}
