package posterior

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/milosgajdos/go-sesame/particle"
	"github.com/milosgajdos/go-sesame/rand"
	"github.com/milosgajdos/go-sesame/source"
	xrand "golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Method is particle resampling method
type Method string

const (
	// Systematic is systematic resampling
	Systematic Method = "systematic"
	// Multinomial is multinomial a.k.a. roulette wheel resampling
	Multinomial Method = "multinomial"
)

// bisectIters is the number of bisection steps used when searching for the next exponent
const bisectIters = 60

// EmpPdf is an empirical probability density function represented by
// a population of weighted particles. It implements an adaptive
// Sequential Monte Carlo sampler which moves the population from the prior
// to the posterior through a sequence of tempered distributions
// prior * likelihood^exponent with exponent growing from 0 to 1.
type EmpPdf struct {
	// kernel is MCMC kernel used to evolve the particles
	kernel *particle.Kernel
	// parts stores population particles
	parts []*particle.Particle
	// logw stores normalized particle log-weights
	logw []float64
	// exponent is current likelihood exponent
	exponent float64
	// ess is effective sample size
	ess float64
	// rng drives resampling
	rng *xrand.Rand
	// rngs stores one generator per particle slot
	rngs []*xrand.Rand
	// workers is the number of goroutines evolving particles
	workers int
}

// New creates new empirical pdf with n particles drawn from the prior of kernel k and returns it.
// seed seeds the random number generators; workers limits the number of goroutines
// evolving the particles, runtime.GOMAXPROCS(0) is used if workers is not positive.
// It returns error if n is not positive or if the particles fail to be sampled.
func New(n int, k *particle.Kernel, seed uint64, workers int) (*EmpPdf, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", n)
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rng := rand.New(seed)
	rngs := rand.Split(rng, n)

	parts := make([]*particle.Particle, n)
	logw := make([]float64, n)
	for i := range parts {
		p, err := k.Sample(rngs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to sample particle %d: %w", i, err)
		}
		parts[i] = p
		logw[i] = -math.Log(float64(n))
	}

	return &EmpPdf{
		kernel:   k,
		parts:    parts,
		logw:     logw,
		exponent: 0,
		ess:      float64(n),
		rng:      rng,
		rngs:     rngs,
		workers:  workers,
	}, nil
}

// Len returns the number of particles
func (e *EmpPdf) Len() int {
	return len(e.parts)
}

// Particle returns i-th particle
func (e *EmpPdf) Particle(i int) *particle.Particle {
	return e.parts[i].Clone()
}

// Weights returns normalized particle weights
func (e *EmpPdf) Weights() []float64 {
	w := make([]float64, len(e.logw))
	for i, lw := range e.logw {
		w[i] = math.Exp(lw)
	}

	return w
}

// Exponent returns current likelihood exponent
func (e *EmpPdf) Exponent() float64 {
	return e.exponent
}

// ESS returns effective sample size of the population
func (e *EmpPdf) ESS() float64 {
	return e.ess
}

// NeedsResampling returns true if ESS dropped below threshold fraction of the particle count
func (e *EmpPdf) NeedsResampling(threshold float64) bool {
	return e.ess < threshold*float64(len(e.parts))
}

// Sample evolves every particle with MCMC kernel targeting prior * likelihood^exponent.
// Particles are evolved concurrently. It returns error if ctx is done or if any particle fails to evolve.
func (e *EmpPdf) Sample(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range e.parts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.kernel.Evolve(e.parts[i], e.exponent, e.rngs[i]); err != nil {
				return fmt.Errorf("failed to evolve particle %d: %w", i, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// ComputeExponent increases the likelihood exponent and reweights the particles.
// The new exponent is chosen so that the ratio of new and current ESS equals gamma;
// the exponent increment is clamped to [deltaMin, deltaMax] and the exponent never exceeds 1.
// It returns the new exponent or error if the parameters are invalid or the exponent already reached 1.
func (e *EmpPdf) ComputeExponent(gamma, deltaMin, deltaMax float64) (float64, error) {
	if gamma <= 0 || gamma >= 1 {
		return 0, fmt.Errorf("invalid ESS ratio: %f", gamma)
	}

	if deltaMin <= 0 || deltaMax < deltaMin {
		return 0, fmt.Errorf("invalid exponent increment bounds: [%f, %f]", deltaMin, deltaMax)
	}

	if e.exponent >= 1 {
		return 0, fmt.Errorf("exponent already reached 1")
	}

	ll := make([]float64, len(e.parts))
	for i, p := range e.parts {
		ll[i] = p.LogLik()
	}

	room := 1 - e.exponent
	delta := room
	if e.essRatio(ll, room) < gamma {
		lo, hi := 0.0, room
		for i := 0; i < bisectIters; i++ {
			mid := (lo + hi) / 2
			if e.essRatio(ll, mid) < gamma {
				hi = mid
			} else {
				lo = mid
			}
		}
		delta = lo
	}

	delta = math.Max(delta, deltaMin)
	delta = math.Min(delta, deltaMax)

	if delta >= room {
		e.reweight(ll, room)
		e.exponent = 1
	} else {
		e.reweight(ll, delta)
		e.exponent += delta
	}

	return e.exponent, nil
}

// ForceExponent reweights the particles so that the likelihood exponent equals 1.
func (e *EmpPdf) ForceExponent() {
	if e.exponent >= 1 {
		return
	}

	ll := make([]float64, len(e.parts))
	for i, p := range e.parts {
		ll[i] = p.LogLik()
	}

	e.reweight(ll, 1-e.exponent)
	e.exponent = 1
}

// essRatio returns ratio of ESS after incrementing exponent by delta and the current ESS
func (e *EmpPdf) essRatio(ll []float64, delta float64) float64 {
	a := make([]float64, len(ll))
	for i := range ll {
		a[i] = e.logw[i] + delta*ll[i]
	}

	return essFromLog(a) / e.ess
}

// reweight multiplies particle weights by likelihood^delta and normalizes them
func (e *EmpPdf) reweight(ll []float64, delta float64) {
	for i := range e.logw {
		e.logw[i] += delta * ll[i]
	}

	norm := floats.LogSumExp(e.logw)
	for i := range e.logw {
		e.logw[i] -= norm
	}

	e.ess = essFromLog(e.logw)
}

// Resample draws a new population from the current one using method m and resets weights to uniform.
// It returns error if the method is unknown or if the particles fail to be drawn.
func (e *EmpPdf) Resample(m Method) error {
	n := len(e.parts)
	w := e.Weights()

	var (
		idx []int
		err error
	)

	switch m {
	case Systematic:
		idx, err = rand.SystematicDrawN(w, n, e.rng)
	case Multinomial:
		idx, err = rand.RouletteDrawN(w, n, e.rng)
	default:
		return fmt.Errorf("unknown resampling method: %q", m)
	}
	if err != nil {
		return fmt.Errorf("failed to resample particles: %w", err)
	}

	parts := make([]*particle.Particle, n)
	for i, j := range idx {
		parts[i] = e.parts[j].Clone()
	}
	e.parts = parts

	for i := range e.logw {
		e.logw[i] = -math.Log(float64(n))
	}
	e.ess = float64(n)

	return nil
}

// ModelSelection returns posterior probabilities of the number of dipoles:
// the k-th element is the probability of k dipoles, k = 0..maxDips.
func (e *EmpPdf) ModelSelection(maxDips int) []float64 {
	ms := make([]float64, maxDips+1)
	for i, p := range e.parts {
		if k := p.NumDips(); k <= maxDips {
			ms[k] += math.Exp(e.logw[i])
		}
	}

	return ms
}

// PosteriorMap returns the posterior probability of every source point hosting a dipole
// conditioned on the number of dipoles being k. The map sums up to k.
// It returns a zero map if no particle has k dipoles.
func (e *EmpPdf) PosteriorMap(k, verts int) []float64 {
	pmap := make([]float64, verts)
	norm := 0.0
	for i, p := range e.parts {
		if p.NumDips() != k {
			continue
		}
		w := math.Exp(e.logw[i])
		norm += w
		for _, loc := range p.Locs() {
			pmap[loc] += w
		}
	}

	if norm > 0 {
		floats.Scale(1/norm, pmap)
	}

	return pmap
}

// DipMomStd returns posterior mean of dipole moment std
func (e *EmpPdf) DipMomStd() float64 {
	mean := 0.0
	for i, p := range e.parts {
		mean += math.Exp(e.logw[i]) * p.DipMomStd()
	}

	return mean
}

// LogPost returns posterior mean of particle log-likelihood plus log prior
func (e *EmpPdf) LogPost() float64 {
	mean := 0.0
	for i, p := range e.parts {
		mean += math.Exp(e.logw[i]) * (p.LogLik() + p.LogPrior())
	}

	return mean
}

// PointEstimate returns the maximum a posteriori number of dipoles k, their estimated locations
// and the posterior map conditioned on k. Locations are the peaks of the posterior map:
// after a peak is picked its neighbours in neigh are excluded from the search for the next one.
func (e *EmpPdf) PointEstimate(maxDips int, neigh *source.Neighbours) (int, []int, []float64) {
	ms := e.ModelSelection(maxDips)
	k := floats.MaxIdx(ms)

	pmap := e.PosteriorMap(k, neigh.Len())

	work := make([]float64, len(pmap))
	copy(work, pmap)

	locs := make([]int, 0, k)
	for len(locs) < k {
		v := floats.MaxIdx(work)
		if work[v] <= 0 {
			break
		}
		locs = append(locs, v)
		work[v] = 0
		for _, nb := range neigh.Of(v) {
			work[nb] = 0
		}
	}

	return k, locs, pmap
}

// Snapshot returns a summary of the current population state
func (e *EmpPdf) Snapshot(maxDips int, neigh *source.Neighbours, resampled bool) Snapshot {
	k, locs, _ := e.PointEstimate(maxDips, neigh)

	return Snapshot{
		Exponent:   e.exponent,
		ESS:        e.ess,
		Resampled:  resampled,
		ModelSel:   e.ModelSelection(maxDips),
		NumDipoles: k,
		Locations:  locs,
		DipMomStd:  e.DipMomStd(),
		LogPost:    e.LogPost(),
	}
}

// essFromLog returns effective sample size of unnormalized log-weights a
func essFromLog(a []float64) float64 {
	a2 := make([]float64, len(a))
	for i := range a {
		a2[i] = 2 * a[i]
	}

	return math.Exp(2*floats.LogSumExp(a) - floats.LogSumExp(a2))
}
