package particle

import "fmt"

// Dipole is a current dipole hypothesis placed at a source point.
// Dipole moments are marginalised by Model, so a dipole is fully
// described by the index of the source point hosting it.
type Dipole struct {
	// Loc is index of the source point
	Loc int
}

// Particle is a weighted hypothesis of the SMC sampler:
// a set of dipoles at distinct locations along with dipole moment std.
type Particle struct {
	// dips stores particle dipoles
	dips []Dipole
	// qStd is dipole moment std
	qStd float64
	// logLik is untempered marginal log-likelihood
	logLik float64
	// logPrior is log prior probability
	logPrior float64
}

// New creates new particle with dipoles placed at locs and dipole moment std qStd and returns it.
// It returns error if locs contains duplicates or negative indices or if qStd is not positive.
func New(locs []int, qStd float64) (*Particle, error) {
	if qStd <= 0 {
		return nil, fmt.Errorf("invalid dipole moment std: %f", qStd)
	}

	p := &Particle{
		dips: make([]Dipole, 0, len(locs)),
		qStd: qStd,
	}

	for _, loc := range locs {
		if err := p.AddDipole(loc); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// NumDips returns number of particle dipoles
func (p *Particle) NumDips() int {
	return len(p.dips)
}

// Dipoles returns particle dipoles
func (p *Particle) Dipoles() []Dipole {
	dips := make([]Dipole, len(p.dips))
	copy(dips, p.dips)

	return dips
}

// Locs returns locations of particle dipoles
func (p *Particle) Locs() []int {
	locs := make([]int, len(p.dips))
	for i, d := range p.dips {
		locs[i] = d.Loc
	}

	return locs
}

// Has returns true if the particle has a dipole at loc
func (p *Particle) Has(loc int) bool {
	for _, d := range p.dips {
		if d.Loc == loc {
			return true
		}
	}

	return false
}

// AddDipole adds a new dipole at loc.
// It returns error if loc is negative or already occupied.
func (p *Particle) AddDipole(loc int) error {
	if loc < 0 {
		return fmt.Errorf("invalid dipole location: %d", loc)
	}

	if p.Has(loc) {
		return fmt.Errorf("location %d already hosts a dipole", loc)
	}

	p.dips = append(p.dips, Dipole{Loc: loc})

	return nil
}

// RemoveDipole removes i-th dipole.
// It returns error if i is out of range.
func (p *Particle) RemoveDipole(i int) error {
	if i < 0 || i >= len(p.dips) {
		return fmt.Errorf("invalid dipole index: %d", i)
	}

	p.dips = append(p.dips[:i], p.dips[i+1:]...)

	return nil
}

// DipMomStd returns dipole moment std
func (p *Particle) DipMomStd() float64 {
	return p.qStd
}

// LogLik returns untempered marginal log-likelihood of the particle
func (p *Particle) LogLik() float64 {
	return p.logLik
}

// LogPrior returns log prior probability of the particle
func (p *Particle) LogPrior() float64 {
	return p.logPrior
}

// Clone returns a deep copy of the particle
func (p *Particle) Clone() *Particle {
	return &Particle{
		dips:     p.Dipoles(),
		qStd:     p.qStd,
		logLik:   p.logLik,
		logPrior: p.logPrior,
	}
}

// Eval evaluates particle log-likelihood and log prior using the model m and prior pr.
// It returns error if the likelihood can not be computed.
func (p *Particle) Eval(m *Model, pr *Prior) error {
	ll, err := m.LogLik(p.Locs(), p.qStd)
	if err != nil {
		return err
	}

	p.logLik = ll
	p.logPrior = pr.LogProb(len(p.dips), p.qStd)

	return nil
}
