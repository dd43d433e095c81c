package particle

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-sesame/matrix"
	"gonum.org/v1/gonum/mat"
)

// Model is a linear forward model of sensor measurements with Gaussian
// sensor noise and Gaussian dipole moments. The dipole moments are
// marginalised analytically so the likelihood depends only on dipole
// locations and the dipole moment standard deviation.
type Model struct {
	// lf is lead field matrix: sensors x (sources*comps)
	lf *mat.Dense
	// comps is number of lead field columns per source point
	comps int
	// gty stores lead field projection of data: G^T * Y
	gty *mat.Dense
	// y2 is squared Frobenius norm of data
	y2 float64
	// data is measured data: sensors x times
	data *mat.Dense
	// noiseStd is standard deviation of sensor noise
	noiseStd float64
}

// NewModel creates new model from lead field lf, measured data and noise standard deviation and returns it.
// comps is the number of lead field columns per source point: 3 for free and 1 for fixed orientation.
// It returns error if the dimensions of lf and data do not match or if noiseStd is not positive.
func NewModel(lf, data mat.Matrix, comps int, noiseStd float64) (*Model, error) {
	if comps <= 0 {
		return nil, fmt.Errorf("invalid number of source components: %d", comps)
	}

	if noiseStd <= 0 {
		return nil, fmt.Errorf("invalid noise std: %f", noiseStd)
	}

	ns, nc := lf.Dims()
	nd, nt := data.Dims()
	if ns != nd {
		return nil, fmt.Errorf("lead field sensors %d do not match data sensors %d", ns, nd)
	}

	if nc == 0 || nc%comps != 0 {
		return nil, fmt.Errorf("invalid lead field columns %d for %d components", nc, comps)
	}

	if nt == 0 {
		return nil, fmt.Errorf("empty data")
	}

	l := mat.DenseCopyOf(lf)
	y := mat.DenseCopyOf(data)

	gty := new(mat.Dense)
	gty.Mul(l.T(), y)

	return &Model{
		lf:       l,
		comps:    comps,
		gty:      gty,
		y2:       matrix.Frob2(y),
		data:     y,
		noiseStd: noiseStd,
	}, nil
}

// Verts returns the number of source points
func (m *Model) Verts() int {
	_, c := m.lf.Dims()
	return c / m.comps
}

// Comps returns the number of lead field columns per source point
func (m *Model) Comps() int {
	return m.comps
}

// Dims returns number of sensors and time samples of the modelled data
func (m *Model) Dims() (sensors, times int) {
	return m.data.Dims()
}

// NoiseStd returns sensor noise standard deviation
func (m *Model) NoiseStd() float64 {
	return m.noiseStd
}

// DataNorm2 returns squared Frobenius norm of the data
func (m *Model) DataNorm2() float64 {
	return m.y2
}

// LeadField returns lead field columns of sources at locs
func (m *Model) LeadField(locs []int) *mat.Dense {
	return matrix.ColBlocks(m.lf, locs, m.comps)
}

// Gram returns G^T * G where G contains lead field columns of sources at locs
func (m *Model) Gram(locs []int) *mat.SymDense {
	g := m.LeadField(locs)
	_, c := g.Dims()

	gram := mat.NewSymDense(c, nil)
	gram.SymOuterK(1, g.T())

	return gram
}

// LogLik returns marginal log-likelihood of dipoles placed at locs whose
// moments are drawn from zero mean Gaussian with standard deviation qStd.
// Constant terms not depending on locs and qStd are dropped.
// It returns error if qStd is not positive or the likelihood can not be computed.
func (m *Model) LogLik(locs []int, qStd float64) (float64, error) {
	ns, nt := m.data.Dims()
	se2 := m.noiseStd * m.noiseStd

	// no dipoles: data is pure noise
	base := -float64(nt)*float64(ns)*math.Log(m.noiseStd) - m.y2/(2*se2)
	if len(locs) == 0 {
		return base, nil
	}

	if qStd <= 0 {
		return 0, fmt.Errorf("invalid dipole moment std: %f", qStd)
	}

	c := qStd * qStd / se2

	// A = I + c * G^T G
	a := m.Gram(locs)
	a.ScaleSym(c, a)
	for i := 0; i < a.SymmetricDim(); i++ {
		a.SetSym(i, i, a.At(i, i)+1)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return 0, fmt.Errorf("likelihood matrix is not positive definite for locations %v", locs)
	}

	b := matrix.RowBlocks(m.gty, locs, m.comps)
	x := new(mat.Dense)
	if err := chol.SolveTo(x, b); err != nil {
		return 0, fmt.Errorf("failed to solve likelihood system: %w", err)
	}

	// trace(B^T * A^-1 * B)
	x.MulElem(x, b)
	quad := mat.Sum(x)

	return base - float64(nt)/2*chol.LogDet() + c*quad/(2*se2), nil
}

// Moments returns posterior mean of dipole moments of dipoles placed at locs
// and their posterior covariance, given the dipole moment std qStd.
// The mean is stored in a (len(locs)*comps) x times matrix.
// It returns error if locs is empty, qStd is not positive or the moments can not be computed.
func (m *Model) Moments(locs []int, qStd float64) (*mat.Dense, *mat.SymDense, error) {
	if len(locs) == 0 {
		return nil, nil, fmt.Errorf("no dipole locations given")
	}

	if qStd <= 0 {
		return nil, nil, fmt.Errorf("invalid dipole moment std: %f", qStd)
	}

	se2 := m.noiseStd * m.noiseStd
	reg := se2 / (qStd * qStd)

	// M = G^T G + (se^2/sq^2) I
	a := m.Gram(locs)
	for i := 0; i < a.SymmetricDim(); i++ {
		a.SetSym(i, i, a.At(i, i)+reg)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, nil, fmt.Errorf("moment matrix is not positive definite for locations %v", locs)
	}

	b := matrix.RowBlocks(m.gty, locs, m.comps)
	q := new(mat.Dense)
	if err := chol.SolveTo(q, b); err != nil {
		return nil, nil, fmt.Errorf("failed to solve moment system: %w", err)
	}

	cov := new(mat.SymDense)
	if err := chol.InverseTo(cov); err != nil {
		return nil, nil, fmt.Errorf("failed to invert moment matrix: %w", err)
	}
	cov.ScaleSym(se2, cov)

	return q, cov, nil
}

// Residual returns squared Frobenius norm of data not explained by dipoles placed at locs with moments q.
func (m *Model) Residual(locs []int, q mat.Matrix) (float64, error) {
	if len(locs) == 0 {
		return m.y2, nil
	}

	g := m.LeadField(locs)
	_, gc := g.Dims()
	qr, _ := q.Dims()
	if gc != qr {
		return 0, fmt.Errorf("moments rows %d do not match lead field columns %d", qr, gc)
	}

	res := new(mat.Dense)
	res.Mul(g, q)
	res.Sub(m.data, res)

	return matrix.Frob2(res), nil
}
