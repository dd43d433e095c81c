package estimate

import (
	"fmt"

	"github.com/milosgajdos/go-sesame/matrix"
	"gonum.org/v1/gonum/mat"
)

const (
	// noiseStdScale scales the data peak into the noise standard deviation
	noiseStdScale = 0.2
	// dipMomStdScale scales the ratio of data and lead field peaks into the dipole moment standard deviation
	dipMomStdScale = 15.0
)

// NoiseStd estimates standard deviation of the sensor noise from data.
// It returns error if data contains only zeros.
func NoiseStd(data mat.Matrix) (float64, error) {
	max := matrix.MaxAbs(data)
	if max == 0 {
		return 0, fmt.Errorf("can not estimate noise std from zero data")
	}

	return noiseStdScale * max, nil
}

// DipMomStd estimates prior standard deviation of dipole moments from data and lead field lf.
// It returns error if either data or lf contains only zeros.
func DipMomStd(data, lf mat.Matrix) (float64, error) {
	maxData := matrix.MaxAbs(data)
	if maxData == 0 {
		return 0, fmt.Errorf("can not estimate dipole moment std from zero data")
	}

	maxLF := matrix.MaxAbs(lf)
	if maxLF == 0 {
		return 0, fmt.Errorf("can not estimate dipole moment std from zero lead field")
	}

	return dipMomStdScale * maxData / maxLF, nil
}
