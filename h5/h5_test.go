package h5

import (
	"os"
	"path/filepath"
	"testing"

	sesame "github.com/milosgajdos/go-sesame"
	"github.com/milosgajdos/go-sesame/posterior"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var res *sesame.Result

func setup() {
	src := mat.NewDense(4, 3, []float64{
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})

	res = &sesame.Result{
		ID: "3b241101-e2bb-4255-8caf-4136c566a962",
		Meta: sesame.Meta{
			Subject:  "sample",
			DataPath: "sample-ave.fif",
			FwdPath:  "sample-fwd.fif",
		},
		Particles:      100,
		Lambda:         0.25,
		MaxDipoles:     2,
		HyperQ:         true,
		Radius:         1,
		NoiseStd:       0.1,
		DipMomStdPrior: 2,
		DipMomStd:      1.5,
		Components:     1,
		SMin:           3,
		SMax:           5,
		Subsample:      1,
		Times:          []float64{0.01, 0.02, 0.03},
		Fourier:        true,
		Freqs:          []float64{0, 50},
		Sources:        src,
		NumDipoles:     1,
		Dipoles:        []sesame.Dipole{{Loc: 2, Pos: []float64{0, 1, 0}}},
		Moments:        mat.NewDense(1, 3, []float64{1, 2, 3}),
		MomentsCov:     mat.NewSymDense(1, []float64{0.01}),
		PosteriorMap:   []float64{0, 0.1, 0.8, 0.1},
		ModelSel:       []float64{0.1, 0.8, 0.1},
		History: []posterior.Snapshot{
			{Exponent: 0.1, ESS: 80, ModelSel: []float64{0.7, 0.2, 0.1}, NumDipoles: 0, Locations: []int{}, DipMomStd: 2, LogPost: -120.5},
			{Exponent: 1, ESS: 50, Resampled: true, ModelSel: []float64{0.1, 0.8, 0.1}, NumDipoles: 1, Locations: []int{2}, DipMomStd: 1.5, LogPost: -42.25},
		},
		GOF:              0.93,
		SourceDispersion: 0.4,
		Converged:        true,
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

func TestWriteRead(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "result.h5")
	assert.NoError(Write(path, res))

	got, err := Read(path)
	assert.NoError(err)

	assert.Equal(res.ID, got.ID)
	assert.Equal(res.Meta, got.Meta)
	assert.Equal(res.Particles, got.Particles)
	assert.Equal(res.MaxDipoles, got.MaxDipoles)
	assert.Equal(res.HyperQ, got.HyperQ)
	assert.Equal(res.Components, got.Components)
	assert.Equal(res.SMin, got.SMin)
	assert.Equal(res.SMax, got.SMax)
	assert.Equal(res.Subsample, got.Subsample)
	assert.Equal(res.Converged, got.Converged)

	assert.Equal(res.NoiseStd, got.NoiseStd)
	assert.Equal(res.DipMomStdPrior, got.DipMomStdPrior)
	assert.Equal(res.DipMomStd, got.DipMomStd)
	assert.Equal(res.Lambda, got.Lambda)
	assert.Equal(res.Radius, got.Radius)
	assert.Equal(res.GOF, got.GOF)
	assert.Equal(res.SourceDispersion, got.SourceDispersion)

	assert.Equal(res.Times, got.Times)
	assert.Equal(res.Fourier, got.Fourier)
	assert.Equal(res.Freqs, got.Freqs)
	assert.Equal(res.PosteriorMap, got.PosteriorMap)
	assert.Equal(res.ModelSel, got.ModelSel)
	assert.True(mat.Equal(res.Sources, got.Sources))
	assert.True(mat.Equal(res.Moments, got.Moments))
	assert.True(mat.Equal(res.MomentsCov, got.MomentsCov))

	assert.Equal(res.NumDipoles, got.NumDipoles)
	assert.Equal(res.Dipoles, got.Dipoles)

	assert.Len(got.History, len(res.History))
	for i := range res.History {
		assert.Equal(res.History[i], got.History[i])
	}
}

func TestWriteReadNoDipoles(t *testing.T) {
	assert := assert.New(t)

	empty := *res
	empty.NumDipoles = 0
	empty.Dipoles = nil
	empty.Moments = nil
	empty.MomentsCov = nil

	path := filepath.Join(t.TempDir(), "empty.h5")
	assert.NoError(Write(path, &empty))

	got, err := Read(path)
	assert.NoError(err)
	assert.Equal(0, got.NumDipoles)
	assert.Empty(got.Dipoles)
	assert.Nil(got.Moments)
	assert.Nil(got.MomentsCov)
}

func TestWriteInvalid(t *testing.T) {
	assert := assert.New(t)

	bad := *res
	bad.History = []posterior.Snapshot{{ModelSel: []float64{1}}}

	err := Write(filepath.Join(t.TempDir(), "bad.h5"), &bad)
	assert.Error(err)
}

func TestReadMissing(t *testing.T) {
	assert := assert.New(t)

	got, err := Read(filepath.Join(t.TempDir(), "missing.h5"))
	assert.Nil(got)
	assert.Error(err)
}
