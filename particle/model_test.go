package particle

import (
	"math"
	"os"
	"testing"

	"github.com/milosgajdos/go-sesame/matrix"
	"github.com/milosgajdos/go-sesame/rand"
	"github.com/milosgajdos/go-sesame/source"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	lf     *mat.Dense
	data   *mat.Dense
	points *mat.Dense
	model  *Model
	prior  *Prior
	neigh  *source.Neighbours
	comps  int
)

func setup() {
	comps = 3
	sensors, verts, times := 8, 10, 4

	rng := rand.New(17)

	// source points on a line 1 unit apart
	points = mat.NewDense(verts, 3, nil)
	for i := 0; i < verts; i++ {
		points.Set(i, 0, float64(i))
	}

	lf = mat.NewDense(sensors, verts*comps, nil)
	for r := 0; r < sensors; r++ {
		for c := 0; c < verts*comps; c++ {
			lf.Set(r, c, rng.NormFloat64())
		}
	}

	data = mat.NewDense(sensors, times, nil)
	for r := 0; r < sensors; r++ {
		for c := 0; c < times; c++ {
			data.Set(r, c, rng.NormFloat64())
		}
	}

	model, _ = NewModel(lf, data, comps, 0.5)
	prior, _ = NewPrior(0.25, 3, verts, 1.0, true)
	neigh, _ = source.NewNeighbours(points, 1.5)
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

// directLogLik evaluates the marginal log-likelihood using the full sensor covariance
func directLogLik(locs []int, noiseStd, qStd float64) float64 {
	ns, nt := data.Dims()
	sigma := mat.NewSymDense(ns, nil)
	if len(locs) > 0 {
		g := matrix.ColBlocks(lf, locs, comps)
		sigma.SymOuterK(qStd*qStd, g)
	}
	for i := 0; i < ns; i++ {
		sigma.SetSym(i, i, sigma.At(i, i)+noiseStd*noiseStd)
	}

	var chol mat.Cholesky
	chol.Factorize(sigma)
	x := new(mat.Dense)
	_ = chol.SolveTo(x, data)
	x.MulElem(x, data)

	return -float64(nt)/2*chol.LogDet() - mat.Sum(x)/2
}

func TestNewModel(t *testing.T) {
	assert := assert.New(t)

	m, err := NewModel(lf, data, 0, 1.0)
	assert.Nil(m)
	assert.Error(err)

	m, err = NewModel(lf, data, comps, 0)
	assert.Nil(m)
	assert.Error(err)

	m, err = NewModel(lf, mat.NewDense(3, 2, nil), comps, 1.0)
	assert.Nil(m)
	assert.Error(err)

	m, err = NewModel(lf, data, 4, 1.0)
	assert.Nil(m)
	assert.Error(err)

	m, err = NewModel(lf, data, comps, 1.0)
	assert.NotNil(m)
	assert.NoError(err)
	assert.Equal(10, m.Verts())
	assert.Equal(comps, m.Comps())
	ns, nt := m.Dims()
	assert.Equal(8, ns)
	assert.Equal(4, nt)
	assert.InDelta(matrix.Frob2(data), m.DataNorm2(), 1e-9)
}

func TestLogLik(t *testing.T) {
	assert := assert.New(t)

	for _, locs := range [][]int{nil, {0}, {3, 7}, {1, 2, 9}} {
		ll, err := model.LogLik(locs, 0.8)
		assert.NoError(err)
		assert.InDelta(directLogLik(locs, 0.5, 0.8), ll, 1e-8, "locations %v", locs)
	}

	_, err := model.LogLik([]int{1}, 0)
	assert.Error(err)

	// dipole order does not matter
	a, _ := model.LogLik([]int{3, 7}, 0.8)
	b, _ := model.LogLik([]int{7, 3}, 0.8)
	assert.InDelta(a, b, 1e-9)
}

func TestMoments(t *testing.T) {
	assert := assert.New(t)

	q, cov, err := model.Moments(nil, 1.0)
	assert.Nil(q)
	assert.Nil(cov)
	assert.Error(err)

	_, _, err = model.Moments([]int{1}, -1.0)
	assert.Error(err)

	q, cov, err = model.Moments([]int{2, 5}, 1.0)
	assert.NoError(err)
	r, c := q.Dims()
	assert.Equal(2*comps, r)
	assert.Equal(4, c)
	assert.Equal(2*comps, cov.SymmetricDim())

	// posterior mean reduces the residual below the data norm
	res, err := model.Residual([]int{2, 5}, q)
	assert.NoError(err)
	assert.True(res < model.DataNorm2())

	res, err = model.Residual(nil, nil)
	assert.NoError(err)
	assert.Equal(model.DataNorm2(), res)

	_, err = model.Residual([]int{2}, q)
	assert.Error(err)
}

func TestMomentsRecovery(t *testing.T) {
	assert := assert.New(t)

	// noiseless data generated by a single dipole
	truth := mat.NewDense(comps, 4, []float64{
		1, 2, 3, 4,
		0, -1, 0, 1,
		2, 2, 2, 2,
	})
	y := new(mat.Dense)
	y.Mul(matrix.ColBlocks(lf, []int{6}, comps), truth)

	m, err := NewModel(lf, y, comps, 1e-6)
	assert.NoError(err)

	q, _, err := m.Moments([]int{6}, 10.0)
	assert.NoError(err)
	for r := 0; r < comps; r++ {
		for c := 0; c < 4; c++ {
			assert.InDelta(truth.At(r, c), q.At(r, c), 1e-6)
		}
	}

	// true location is more likely than any other single location
	best, _ := m.LogLik([]int{6}, 10.0)
	for v := 0; v < m.Verts(); v++ {
		if v == 6 {
			continue
		}
		ll, _ := m.LogLik([]int{v}, 10.0)
		assert.True(ll < best)
	}
	assert.False(math.IsNaN(best))
}
