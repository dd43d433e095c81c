package sesame

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// sampleFreq returns sampling frequency of uniformly spaced sample times.
// It returns 0 for fewer than two samples.
func sampleFreq(times []float64) (float64, error) {
	n := len(times)
	if n < 2 {
		return 0, nil
	}

	span := times[n-1] - times[0]
	if span <= 0 {
		return 0, fmt.Errorf("%w: sample times are not increasing", ErrEmptyWindow)
	}

	return float64(n-1) / span, nil
}

// spectrum transforms rows of data sampled with frequency fs into the frequency domain
// and keeps the bins whose frequency lies in [fMin, fMax]; nil bounds keep all bins.
// The returned matrix stores real parts of the kept bins followed by imaginary parts
// of the kept bins other than DC and Nyquist. Coefficients are scaled so the transform
// is orthonormal: white noise keeps its std.
// It returns the transformed data along with the frequencies of the kept bins.
func spectrum(data mat.Matrix, fs float64, fMin, fMax *float64) (*mat.Dense, []float64, error) {
	rows, n := data.Dims()

	var fft *fourier.FFT
	if n > 1 {
		fft = fourier.NewFFT(n)
	}

	var bins []int
	var freqs []float64
	for i := 0; i <= n/2; i++ {
		f := 0.0
		if fft != nil {
			f = fft.Freq(i) * fs
		}
		if (fMin != nil && f < *fMin) || (fMax != nil && f > *fMax) {
			continue
		}
		bins = append(bins, i)
		freqs = append(freqs, f)
	}

	if len(bins) == 0 {
		return nil, nil, fmt.Errorf("%w: no frequency bins in the band", ErrEmptyWindow)
	}

	// DC and Nyquist coefficients of real data are real
	hasImag := func(i int) bool { return i != 0 && !(n%2 == 0 && 2*i == n) }

	cols := len(bins)
	for _, i := range bins {
		if hasImag(i) {
			cols++
		}
	}

	out := mat.NewDense(rows, cols, nil)
	row := make([]float64, n)
	coeffs := make([]complex128, n/2+1)
	for r := 0; r < rows; r++ {
		mat.Row(row, r, data)
		if fft != nil {
			coeffs = fft.Coefficients(coeffs, row)
		} else {
			coeffs[0] = complex(row[0], 0)
		}

		c := len(bins)
		for b, i := range bins {
			if !hasImag(i) {
				out.Set(r, b, real(coeffs[i])/math.Sqrt(float64(n)))
				continue
			}
			scale := math.Sqrt(2 / float64(n))
			out.Set(r, b, real(coeffs[i])*scale)
			out.Set(r, c, imag(coeffs[i])*scale)
			c++
		}
	}

	return out, freqs, nil
}
