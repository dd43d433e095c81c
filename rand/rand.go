package rand

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	xrand "golang.org/x/exp/rand"
)

// New returns a new random number generator seeded with seed.
// If seed is 0, the generator is seeded with the current time.
func New(seed uint64) *xrand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return xrand.New(xrand.NewSource(seed))
}

// Split derives n independent generators from rng and returns them.
func Split(rng *xrand.Rand, n int) []*xrand.Rand {
	rngs := make([]*xrand.Rand, n)
	for i := range rngs {
		rngs[i] = xrand.New(xrand.NewSource(rng.Uint64()))
	}

	return rngs
}

// RouletteDrawN draws n numbers randomly from a probability mass function (PMF) defined by weights in p.
// RouletteDrawN implements the Roulette Wheel Draw a.k.a. Fitness Proportionate Selection:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// - http://www.keithschwarz.com/darts-dice-coins/
// It returns a slice of n indices into the vector p.
// It fails with error if p is empty or nil.
func RouletteDrawN(p []float64, n int, rng *xrand.Rand) ([]int, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	// Initialization: create the discrete CDF
	// We know that cdf is sorted in ascending order
	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)

	// Generation:
	// 1. Generate a uniformly-random value x in the range [0,1)
	// 2. Using a binary search, find the index of the smallest element in cdf larger than x
	unit := distuv.Uniform{Min: 0, Max: 1, Src: rng}
	var val float64
	indices := make([]int, n)
	for i := range indices {
		// multiply the sample with the largest CDF value; easier than normalizing to [0,1)
		val = unit.Rand() * cdf[len(cdf)-1]
		// Search returns the smallest index i such that cdf[i] > val
		indices[i] = sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
	}

	return indices, nil
}

// SystematicDrawN draws n indices into p using systematic resampling:
// a single uniform offset u in [0, 1/n) is drawn and the points u + i/n
// are located in the cumulative distribution of p.
// Every index i is drawn either floor(n*p[i]) or ceil(n*p[i]) times.
// It fails with error if p is empty or nil or if n is not positive.
func SystematicDrawN(p []float64, n int, rng *xrand.Rand) ([]int, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	if n <= 0 {
		return nil, fmt.Errorf("invalid number of draws: %d", n)
	}

	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)
	total := cdf[len(cdf)-1]

	step := total / float64(n)
	u := rng.Float64() * step

	indices := make([]int, n)
	j := 0
	for i := range indices {
		val := u + float64(i)*step
		for j < len(cdf)-1 && cdf[j] <= val {
			j++
		}
		indices[i] = j
	}

	return indices, nil
}

// PoissonTrunc draws a number from Poisson distribution with mean lambda truncated to [0, max].
// It fails with error if lambda is not positive or max is negative.
func PoissonTrunc(lambda float64, max int, rng *xrand.Rand) (int, error) {
	if lambda <= 0 {
		return 0, fmt.Errorf("invalid poisson mean: %f", lambda)
	}

	if max < 0 {
		return 0, fmt.Errorf("invalid truncation bound: %d", max)
	}

	pmf := make([]float64, max+1)
	dist := distuv.Poisson{Lambda: lambda}
	for k := range pmf {
		pmf[k] = dist.Prob(float64(k))
	}

	idx, err := RouletteDrawN(pmf, 1, rng)
	if err != nil {
		return 0, err
	}

	return idx[0], nil
}

// LogPoissonTrunc returns the log probability of k under Poisson distribution
// with mean lambda truncated to [0, max]. It returns -Inf for k outside [0, max].
func LogPoissonTrunc(k int, lambda float64, max int) float64 {
	if k < 0 || k > max {
		return math.Inf(-1)
	}

	dist := distuv.Poisson{Lambda: lambda}
	norm := 0.0
	for i := 0; i <= max; i++ {
		norm += dist.Prob(float64(i))
	}

	return dist.LogProb(float64(k)) - math.Log(norm)
}
