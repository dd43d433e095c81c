package particle

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-sesame/rand"
)

// DipMomStdRange bounds the dipole moment std hyper-prior: the std lives in [q0/DipMomStdRange, q0*DipMomStdRange]
const DipMomStdRange = 35.0

// Prior is the prior distribution over dipole sets:
// the number of dipoles follows truncated Poisson distribution,
// dipole locations are uniform over sets of distinct source points and
// the dipole moment std is either fixed or log-uniform.
type Prior struct {
	// lambda is Poisson mean of the number of dipoles
	lambda float64
	// maxDips is the maximum number of dipoles
	maxDips int
	// verts is the number of source points
	verts int
	// q0 is reference dipole moment std
	q0 float64
	// hyperQ enables dipole moment std hyper-prior
	hyperQ bool
	// logNum stores log prior probability of k dipoles at a given set of locations, k = 0..maxDips
	logNum []float64
}

// NewPrior creates new prior and returns it.
// maxDips is capped at the number of source points verts.
// It returns error if any of the parameters is invalid.
func NewPrior(lambda float64, maxDips, verts int, q0 float64, hyperQ bool) (*Prior, error) {
	if lambda <= 0 {
		return nil, fmt.Errorf("invalid poisson mean: %f", lambda)
	}

	if maxDips < 1 {
		return nil, fmt.Errorf("invalid maximum number of dipoles: %d", maxDips)
	}

	if verts < 1 {
		return nil, fmt.Errorf("invalid number of source points: %d", verts)
	}

	if q0 <= 0 {
		return nil, fmt.Errorf("invalid dipole moment std: %f", q0)
	}

	if maxDips > verts {
		maxDips = verts
	}

	logNum := make([]float64, maxDips+1)
	for k := range logNum {
		logNum[k] = rand.LogPoissonTrunc(k, lambda, maxDips) - logBinom(verts, k)
	}

	return &Prior{
		lambda:  lambda,
		maxDips: maxDips,
		verts:   verts,
		q0:      q0,
		hyperQ:  hyperQ,
		logNum:  logNum,
	}, nil
}

// Lambda returns Poisson mean of the number of dipoles
func (p *Prior) Lambda() float64 { return p.lambda }

// MaxDips returns maximum number of dipoles
func (p *Prior) MaxDips() int { return p.maxDips }

// Verts returns number of source points
func (p *Prior) Verts() int { return p.verts }

// DipMomStd returns reference dipole moment std
func (p *Prior) DipMomStd() float64 { return p.q0 }

// HyperQ returns true if dipole moment std is a hyper-parameter
func (p *Prior) HyperQ() bool { return p.hyperQ }

// DipMomStdBounds returns the support of dipole moment std
func (p *Prior) DipMomStdBounds() (float64, float64) {
	if !p.hyperQ {
		return p.q0, p.q0
	}

	return p.q0 / DipMomStdRange, p.q0 * DipMomStdRange
}

// LogProb returns log prior probability of k dipoles at distinct locations with dipole moment std qStd.
func (p *Prior) LogProb(k int, qStd float64) float64 {
	if k < 0 || k > p.maxDips {
		return math.Inf(-1)
	}
	lp := p.logNum[k]

	if !p.hyperQ {
		return lp
	}

	lo, hi := p.DipMomStdBounds()
	if qStd < lo || qStd > hi {
		return math.Inf(-1)
	}

	return lp - math.Log(qStd) - math.Log(math.Log(hi/lo))
}

func logBinom(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))

	return a - b - c
}
