package sim

import (
	"math"
	"os"
	"testing"

	"github.com/milosgajdos/go-sesame/noise"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	src, sens *mat.Dense
)

func setup() {
	var err error
	src, err = Grid(0.05, 0.025)
	if err != nil {
		panic(err)
	}

	sens, err = Sensors(16, 0.1)
	if err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestGrid(t *testing.T) {
	assert := assert.New(t)

	// lattice points within two spacings: 1 + 6 + 12 + 8 + 6
	rows, cols := src.Dims()
	assert.Equal(3, cols)
	assert.Equal(33, rows)

	for i := 0; i < rows; i++ {
		assert.LessOrEqual(floats.Norm(src.RawRowView(i), 2), 0.05+1e-12)
	}

	g, err := Grid(-1, 0.1)
	assert.Nil(g)
	assert.Error(err)

	g, err = Grid(0.1, 1)
	assert.Nil(g)
	assert.Error(err)
}

func TestSensors(t *testing.T) {
	assert := assert.New(t)

	rows, cols := sens.Dims()
	assert.Equal(16, rows)
	assert.Equal(3, cols)

	for i := 0; i < rows; i++ {
		assert.InDelta(0.1, floats.Norm(sens.RawRowView(i), 2), 1e-12)
	}

	s, err := Sensors(1, 0.1)
	assert.Nil(s)
	assert.Error(err)

	s, err = Sensors(10, 0)
	assert.Nil(s)
	assert.Error(err)
}

func TestLeadField(t *testing.T) {
	assert := assert.New(t)

	nv, _ := src.Dims()
	ns, _ := sens.Dims()

	lf, err := LeadField(src, sens, 3)
	assert.NoError(err)
	r, c := lf.Dims()
	assert.Equal(ns, r)
	assert.Equal(3*nv, c)

	// potential of a dipole at the origin pointing along x
	s := sens.RawRowView(0)
	d := floats.Norm(s, 2)
	want := s[0] / (4 * math.Pi * Conductivity * d * d * d)
	origin := -1
	for i := 0; i < nv; i++ {
		if floats.Norm(src.RawRowView(i), 2) == 0 {
			origin = i
		}
	}
	assert.NotEqual(-1, origin)
	assert.InDelta(want, lf.At(0, 3*origin), 1e-9)

	// radial lead field is a projection of the free one
	lf1, err := LeadField(src, sens, 1)
	assert.NoError(err)
	for v := 0; v < nv; v++ {
		dir := radial(src.RawRowView(v))
		for s := 0; s < ns; s++ {
			exp := 0.0
			for k := 0; k < 3; k++ {
				exp += dir[k] * lf.At(s, 3*v+k)
			}
			assert.InDelta(exp, lf1.At(s, v), 1e-9)
		}
	}

	lf, err = LeadField(src, sens, 2)
	assert.Nil(lf)
	assert.Error(err)

	lf, err = LeadField(src, src, 3)
	assert.Nil(lf)
	assert.Error(err)
}

func TestSimulate(t *testing.T) {
	assert := assert.New(t)

	fwd, err := NewForward(src, sens, 3)
	assert.NoError(err)
	assert.Equal(3, fwd.Components())

	times := Times(-0.1, 100, 30)
	assert.Len(times, 30)
	assert.InDelta(-0.1, times[0], 1e-12)
	assert.InDelta(0.19, times[29], 1e-12)

	sources := []Source{
		{Loc: 3, Moment: []float64{1e-8, 0, 0}, Latency: 0.05, Width: 0.02},
	}

	ev, err := Simulate(fwd, sources, times, nil)
	assert.NoError(err)
	assert.Equal(times, ev.Times())

	// noiseless data is the lead field column scaled by the time course
	ns, _ := sens.Dims()
	for s := 0; s < ns; s++ {
		for i, tm := range times {
			exp := fwd.LeadField().At(s, 9) * 1e-8 * sources[0].Amplitude(tm)
			assert.InDelta(exp, ev.Data().At(s, i), 1e-15)
		}
	}

	n, err := noise.NewWhite(ns, 1e-9, 42)
	assert.NoError(err)
	noisy, err := Simulate(fwd, sources, times, n)
	assert.NoError(err)
	assert.False(mat.Equal(ev.Data(), noisy.Data()))

	_, err = Simulate(fwd, []Source{{Loc: 1000, Moment: []float64{1, 0, 0}}}, times, nil)
	assert.Error(err)

	_, err = Simulate(fwd, []Source{{Loc: 0, Moment: []float64{1}}}, times, nil)
	assert.Error(err)

	small, err := noise.NewWhite(2, 1, 42)
	assert.NoError(err)
	_, err = Simulate(fwd, sources, times, small)
	assert.Error(err)

	_, err = Simulate(fwd, sources, nil, nil)
	assert.Error(err)
}

func TestSourceAmplitude(t *testing.T) {
	assert := assert.New(t)

	s := Source{Latency: 0.1, Width: 0.02}
	assert.Equal(1.0, s.Amplitude(0.1))
	assert.InDelta(math.Exp(-0.5), s.Amplitude(0.12), 1e-12)

	// constant envelope
	assert.Equal(1.0, Source{}.Amplitude(3))

	osc := Source{Latency: 0.1, Freq: 10}
	assert.InDelta(1.0, osc.Amplitude(0.1), 1e-12)
	assert.InDelta(-1.0, osc.Amplitude(0.15), 1e-12)
	assert.InDelta(0.0, osc.Amplitude(0.125), 1e-12)
}

func TestNewEvoked(t *testing.T) {
	assert := assert.New(t)

	ev, err := NewEvoked(mat.NewDense(2, 2, nil), []float64{0, 1, 2})
	assert.Nil(ev)
	assert.Error(err)
}

func TestBaselineCov(t *testing.T) {
	assert := assert.New(t)

	n, err := noise.NewWhite(3, 2, 7)
	assert.NoError(err)

	cov, err := BaselineCov(n, 20000)
	assert.NoError(err)
	assert.Equal(3, cov.SymmetricDim())
	for i := 0; i < 3; i++ {
		assert.InDelta(4, cov.At(i, i), 0.2)
	}

	cov, err = BaselineCov(n, 1)
	assert.Nil(cov)
	assert.Error(err)
}
