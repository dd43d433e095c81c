package particle

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-sesame/rand"
	"github.com/milosgajdos/go-sesame/source"
	xrand "golang.org/x/exp/rand"
)

// Kernel is a Markov Chain Monte Carlo kernel which moves particles
// while leaving the tempered posterior prior * likelihood^exponent invariant.
// Every evolution step runs the following moves:
// - birth or death of a dipole (reversible jump)
// - neighbour move of every dipole
// - random walk of log dipole moment std, if the std is a hyper-parameter
type Kernel struct {
	// model evaluates particle likelihood
	model *Model
	// prior is particle prior
	prior *Prior
	// neigh is source points neighbour graph
	neigh *source.Neighbours
	// pBirth is dipole birth proposal probability
	pBirth float64
	// pDeath is dipole death proposal probability
	pDeath float64
	// qStep is std of log dipole moment std random walk
	qStep float64
}

// NewKernel creates new MCMC kernel and returns it.
// It returns error if the model, prior and neighbour graph sizes do not match
// or if the proposal probabilities are invalid.
func NewKernel(m *Model, pr *Prior, neigh *source.Neighbours, pBirth, pDeath, qStep float64) (*Kernel, error) {
	if m.Verts() != pr.Verts() || m.Verts() != neigh.Len() {
		return nil, fmt.Errorf("source points mismatch: model %d, prior %d, neighbours %d", m.Verts(), pr.Verts(), neigh.Len())
	}

	if pBirth <= 0 || pDeath <= 0 || pBirth+pDeath > 1 {
		return nil, fmt.Errorf("invalid birth %f and death %f probabilities", pBirth, pDeath)
	}

	if pr.HyperQ() && qStep <= 0 {
		return nil, fmt.Errorf("invalid dipole moment std step: %f", qStep)
	}

	return &Kernel{
		model:  m,
		prior:  pr,
		neigh:  neigh,
		pBirth: pBirth,
		pDeath: pDeath,
		qStep:  qStep,
	}, nil
}

// Model returns kernel model
func (k *Kernel) Model() *Model { return k.model }

// Prior returns kernel prior
func (k *Kernel) Prior() *Prior { return k.prior }

// Neighbours returns kernel neighbour graph
func (k *Kernel) Neighbours() *source.Neighbours { return k.neigh }

// Sample draws a new particle from the prior and returns it.
// It returns error if the particle likelihood can not be computed.
func (k *Kernel) Sample(rng *xrand.Rand) (*Particle, error) {
	n, err := rand.PoissonTrunc(k.prior.Lambda(), k.prior.MaxDips(), rng)
	if err != nil {
		return nil, fmt.Errorf("failed to draw number of dipoles: %w", err)
	}

	qStd := k.prior.DipMomStd()
	if k.prior.HyperQ() {
		lo, hi := k.prior.DipMomStdBounds()
		qStd = math.Exp(math.Log(lo) + rng.Float64()*math.Log(hi/lo))
	}

	p := &Particle{qStd: qStd}
	for i := 0; i < n; i++ {
		if err := p.AddDipole(k.freeLoc(p, rng)); err != nil {
			return nil, err
		}
	}

	if err := p.Eval(k.model, k.prior); err != nil {
		return nil, err
	}

	return p, nil
}

// Evolve moves particle p in place targeting prior * likelihood^exponent.
// It returns error if any of the proposed states can not be evaluated.
func (k *Kernel) Evolve(p *Particle, exponent float64, rng *xrand.Rand) error {
	if err := k.evolNumDips(p, exponent, rng); err != nil {
		return err
	}

	if err := k.evolLocs(p, exponent, rng); err != nil {
		return err
	}

	if k.prior.HyperQ() {
		if err := k.evolDipMomStd(p, exponent, rng); err != nil {
			return err
		}
	}

	return nil
}

func (k *Kernel) birthProb(n int) float64 {
	if n >= k.prior.MaxDips() {
		return 0
	}

	return k.pBirth
}

func (k *Kernel) deathProb(n int) float64 {
	if n <= 0 {
		return 0
	}

	return k.pDeath
}

// evolNumDips proposes either a birth or a death of a dipole
func (k *Kernel) evolNumDips(p *Particle, exponent float64, rng *xrand.Rand) error {
	n := p.NumDips()
	pb, pd := k.birthProb(n), k.deathProb(n)
	lambda := k.prior.Lambda()

	u := rng.Float64()
	switch {
	case u < pb:
		cand := p.Clone()
		if err := cand.AddDipole(k.freeLoc(p, rng)); err != nil {
			return err
		}
		if err := cand.Eval(k.model, k.prior); err != nil {
			return err
		}
		logA := math.Log(lambda/float64(n+1)) + exponent*(cand.logLik-p.logLik) +
			math.Log(k.deathProb(n+1)/pb)
		k.accept(p, cand, logA, rng)
	case u < pb+pd:
		cand := p.Clone()
		if err := cand.RemoveDipole(rng.Intn(n)); err != nil {
			return err
		}
		if err := cand.Eval(k.model, k.prior); err != nil {
			return err
		}
		logA := math.Log(float64(n)/lambda) + exponent*(cand.logLik-p.logLik) +
			math.Log(k.birthProb(n-1)/pd)
		k.accept(p, cand, logA, rng)
	}

	return nil
}

// evolLocs proposes a neighbour move of every dipole; dipoles at points without neighbours stay
func (k *Kernel) evolLocs(p *Particle, exponent float64, rng *xrand.Rand) error {
	for i := 0; i < p.NumDips(); i++ {
		from := p.dips[i].Loc
		to := k.neigh.Draw(from, rng.Float64())
		if to < 0 || p.Has(to) {
			continue
		}

		cand := p.Clone()
		cand.dips[i].Loc = to
		if err := cand.Eval(k.model, k.prior); err != nil {
			return err
		}

		logA := exponent*(cand.logLik-p.logLik) +
			math.Log(k.neigh.Prob(to, from)) - math.Log(k.neigh.Prob(from, to))
		k.accept(p, cand, logA, rng)
	}

	return nil
}

// evolDipMomStd proposes a random walk move of log dipole moment std
func (k *Kernel) evolDipMomStd(p *Particle, exponent float64, rng *xrand.Rand) error {
	lo, hi := k.prior.DipMomStdBounds()
	qStd := p.qStd * math.Exp(k.qStep*rng.NormFloat64())
	if qStd < lo || qStd > hi {
		return nil
	}

	cand := p.Clone()
	cand.qStd = qStd
	if err := cand.Eval(k.model, k.prior); err != nil {
		return err
	}

	// log-uniform prior is uniform in log space where the walk is symmetric
	k.accept(p, cand, exponent*(cand.logLik-p.logLik), rng)

	return nil
}

// accept replaces p with cand with probability min(1, exp(logA))
func (k *Kernel) accept(p, cand *Particle, logA float64, rng *xrand.Rand) {
	if logA >= 0 || math.Log(rng.Float64()) < logA {
		*p = *cand
	}
}

// freeLoc draws a source point not occupied by any of p dipoles
func (k *Kernel) freeLoc(p *Particle, rng *xrand.Rand) int {
	for {
		loc := rng.Intn(k.prior.Verts())
		if !p.Has(loc) {
			return loc
		}
	}
}
