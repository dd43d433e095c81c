package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNoiseStd(t *testing.T) {
	assert := assert.New(t)

	std, err := NoiseStd(mat.NewDense(2, 2, nil))
	assert.Error(err)
	assert.Equal(0.0, std)

	data := mat.NewDense(2, 2, []float64{1.0, -5.0, 2.0, 3.0})
	std, err = NoiseStd(data)
	assert.NoError(err)
	assert.InDelta(1.0, std, 1e-12)
}

func TestDipMomStd(t *testing.T) {
	assert := assert.New(t)

	data := mat.NewDense(2, 2, []float64{1.0, -5.0, 2.0, 3.0})
	lf := mat.NewDense(2, 3, []float64{0.1, 0.2, -0.5, 0.3, 0.0, 0.1})

	std, err := DipMomStd(mat.NewDense(2, 2, nil), lf)
	assert.Error(err)
	assert.Equal(0.0, std)

	std, err = DipMomStd(data, mat.NewDense(2, 3, nil))
	assert.Error(err)
	assert.Equal(0.0, std)

	std, err = DipMomStd(data, lf)
	assert.NoError(err)
	assert.InDelta(150.0, std, 1e-9)
}
