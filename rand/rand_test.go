package rand

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSplit(t *testing.T) {
	assert := assert.New(t)

	a, b := New(42), New(42)
	assert.Equal(a.Uint64(), b.Uint64())

	rngs := Split(New(7), 3)
	assert.Len(rngs, 3)
	assert.NotEqual(rngs[0].Uint64(), rngs[1].Uint64())

	assert.NotNil(New(0))
}

func TestRouletteDrawN(t *testing.T) {
	assert := assert.New(t)

	rng := New(1)

	// p can't be nil or empty
	indices, err := RouletteDrawN(nil, 10, rng)
	assert.Error(err)
	assert.Nil(indices)

	p := []float64{0.1, 0.7, 0.3, 0.4}
	n := 10
	indices, err = RouletteDrawN(p, n, rng)
	assert.NoError(err)
	assert.NotNil(indices)
	assert.Equal(n, len(indices))
	for _, i := range indices {
		assert.True(i >= 0 && i < len(p))
	}

	// zero weight is never drawn
	indices, err = RouletteDrawN([]float64{0, 1, 0}, 50, rng)
	assert.NoError(err)
	for _, i := range indices {
		assert.Equal(1, i)
	}
}

func TestSystematicDrawN(t *testing.T) {
	assert := assert.New(t)

	rng := New(3)

	indices, err := SystematicDrawN(nil, 10, rng)
	assert.Error(err)
	assert.Nil(indices)

	indices, err = SystematicDrawN([]float64{0.5, 0.5}, 0, rng)
	assert.Error(err)
	assert.Nil(indices)

	p := []float64{0.13, 0.42, 0.07, 0.38}
	n := 20
	for trial := 0; trial < 10; trial++ {
		indices, err = SystematicDrawN(p, n, rng)
		assert.NoError(err)
		assert.Len(indices, n)

		counts := make([]int, len(p))
		for _, i := range indices {
			counts[i]++
		}
		for i := range p {
			exp := float64(n) * p[i]
			assert.True(float64(counts[i]) >= math.Floor(exp)-1e-9, "index %d drawn %d times", i, counts[i])
			assert.True(float64(counts[i]) <= math.Ceil(exp)+1e-9, "index %d drawn %d times", i, counts[i])
		}
	}
}

func TestPoissonTrunc(t *testing.T) {
	assert := assert.New(t)

	rng := New(5)

	_, err := PoissonTrunc(-1, 10, rng)
	assert.Error(err)

	_, err = PoissonTrunc(1, -1, rng)
	assert.Error(err)

	for i := 0; i < 100; i++ {
		k, err := PoissonTrunc(3.0, 2, rng)
		assert.NoError(err)
		assert.True(k >= 0 && k <= 2)
	}

	sum := 0.0
	for k := 0; k <= 4; k++ {
		sum += math.Exp(LogPoissonTrunc(k, 0.25, 4))
	}
	assert.InDelta(1.0, sum, 1e-9)
	assert.True(math.IsInf(LogPoissonTrunc(5, 0.25, 4), -1))
	assert.True(math.IsInf(LogPoissonTrunc(-1, 0.25, 4), -1))
}
