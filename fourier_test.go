package sesame

import (
	"errors"
	"math"
	"testing"

	"github.com/milosgajdos/go-sesame/matrix"
	"github.com/milosgajdos/go-sesame/rand"
	"github.com/milosgajdos/go-sesame/sim"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestSampleFreq(t *testing.T) {
	assert := assert.New(t)

	fs, err := sampleFreq(sim.Times(0.1, 250, 10))
	assert.NoError(err)
	assert.InDelta(250.0, fs, 1e-9)

	fs, err = sampleFreq([]float64{0.3})
	assert.NoError(err)
	assert.Equal(0.0, fs)

	_, err = sampleFreq([]float64{0.2, 0.1})
	assert.True(errors.Is(err, ErrEmptyWindow))
}

func TestSpectrum(t *testing.T) {
	assert := assert.New(t)

	// the full spectrum is an orthonormal transform
	rng := rand.New(3)
	for _, n := range []int{7, 8} {
		data := mat.NewDense(3, n, nil)
		for r := 0; r < 3; r++ {
			for c := 0; c < n; c++ {
				data.Set(r, c, rng.NormFloat64())
			}
		}
		spec, freqs, err := spectrum(data, 8, nil, nil)
		assert.NoError(err)
		rows, cols := spec.Dims()
		assert.Equal(3, rows)
		assert.Equal(n, cols)
		assert.Len(freqs, n/2+1)
		assert.InDelta(matrix.Frob2(data), matrix.Frob2(spec), 1e-9)
	}

	// cosine at 2 Hz sampled at 8 Hz lives in the real part of a single bin
	n, amp := 8, 3.0
	data := mat.NewDense(2, n, nil)
	for c := 0; c < n; c++ {
		data.Set(0, c, amp*math.Cos(2*math.Pi*2*float64(c)/8))
	}
	spec, freqs, err := spectrum(data, 8, nil, nil)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{0, 1, 2, 3, 4}, freqs, 1e-12)
	for c := 0; c < n; c++ {
		want := 0.0
		if c == 2 {
			want = amp * math.Sqrt(float64(n)/2)
		}
		assert.InDelta(want, spec.At(0, c), 1e-9, "column %d", c)
		assert.InDelta(0.0, spec.At(1, c), 1e-12)
	}

	// band limited spectrum keeps the real and imaginary part of the 2 Hz bin
	lo, hi := 1.5, 2.5
	spec, freqs, err = spectrum(data, 8, &lo, &hi)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{2}, freqs, 1e-12)
	_, cols := spec.Dims()
	assert.Equal(2, cols)
	assert.InDelta(amp*2, spec.At(0, 0), 1e-9)
	assert.InDelta(0.0, spec.At(0, 1), 1e-9)

	lo, hi = 2.2, 2.4
	_, _, err = spectrum(data, 8, &lo, &hi)
	assert.True(errors.Is(err, ErrEmptyWindow))

	// single sample is its own DC coefficient
	one := mat.NewDense(2, 1, []float64{1.5, -2})
	spec, freqs, err = spectrum(one, 0, nil, nil)
	assert.NoError(err)
	assert.Equal([]float64{0}, freqs)
	assert.True(mat.EqualApprox(one, spec, 1e-12))
}
