package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewAmplitudePlot(t *testing.T) {
	assert := assert.New(t)

	times := []float64{0, 0.1, 0.2}
	amps := mat.NewDense(2, 3, []float64{1, 2, 1, 0, 3, 0})

	plt, err := NewAmplitudePlot(times, amps)
	assert.NotNil(plt)
	assert.NoError(err)

	plt, err = NewAmplitudePlot(times, nil)
	assert.Nil(plt)
	assert.Error(err)

	plt, err = NewAmplitudePlot(times[:2], amps)
	assert.Nil(plt)
	assert.Error(err)
}

func TestNewDataPlot(t *testing.T) {
	assert := assert.New(t)

	ev, err := NewEvoked(mat.NewDense(2, 3, []float64{1, 2, 1, -1, -2, -1}), []float64{0, 0.1, 0.2})
	assert.NoError(err)

	plt, err := NewDataPlot(ev)
	assert.NotNil(plt)
	assert.NoError(err)

	plt, err = NewDataPlot(&Evoked{data: &mat.Dense{}, times: nil})
	assert.Nil(plt)
	assert.Error(err)
}
