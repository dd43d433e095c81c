package sesame

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/milosgajdos/go-sesame/estimate"
	"github.com/milosgajdos/go-sesame/matrix"
	"github.com/milosgajdos/go-sesame/particle"
	"github.com/milosgajdos/go-sesame/posterior"
	"github.com/milosgajdos/go-sesame/source"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Forward is a discretised forward model of sensor measurements
type Forward interface {
	// LeadField returns sensors x (sources*components) lead field matrix
	LeadField() mat.Matrix
	// Sources returns source point positions stored in matrix rows
	Sources() mat.Matrix
	// Components returns the number of lead field columns per source point
	Components() int
}

// Evoked is measured sensor data
type Evoked interface {
	// Data returns sensors x times data matrix
	Data() mat.Matrix
	// Times returns sample times in seconds
	Times() []float64
}

// Sesame is SESAME (SEquential Semi-Analytic Montecarlo Estimator) of multiple current dipoles.
// It approximates the posterior distribution of the number of dipoles, their locations and
// the dipole moment std with an adaptive Sequential Monte Carlo sampler.
type Sesame struct {
	// cfg is estimator configuration
	cfg Config
	// logger logs estimator progress
	logger *zap.Logger
	// data is analysed data: windowed, sub-sampled, possibly Fourier transformed and whitened
	data *mat.Dense
	// lf is possibly whitened lead field
	lf *mat.Dense
	// src stores source point positions
	src *mat.Dense
	// comps is the number of lead field columns per source point
	comps int
	// times stores times of the analysed samples
	times []float64
	// freqs stores frequencies of the analysed Fourier bins
	freqs []float64
	// sMin and sMax are the first and the last analysed sample indices
	sMin, sMax int
	// noiseStd is sensor noise std
	noiseStd float64
	// dipMomStd is reference dipole moment std
	dipMomStd float64
	// radius is neighbourhood radius
	radius float64
	// neigh is source space neighbour graph
	neigh *source.Neighbours
	// model evaluates particle likelihood
	model *particle.Model
	// kernel evolves particles
	kernel *particle.Kernel
	// pdf is the particle population
	pdf *posterior.EmpPdf
	// history stores population snapshots
	history []posterior.Snapshot
	// result is the estimation result
	result *Result
}

// New creates new SESAME estimator for evoked data ev given forward model fwd and returns it.
// If cfg is nil, DefaultConfig is used.
// With cfg.Fourier set, the windowed data is replaced by the real and imaginary parts
// of its Fourier coefficients in the band [cfg.FreqMin, cfg.FreqMax].
// A source space with a single point is supported: its dipole can only be born or die.
// It returns error if the configuration is invalid or the forward model does not match the data.
func New(fwd Forward, ev Evoked, cfg *Config, opts ...Option) (*Sesame, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := Options{Logger: zap.NewNop()}
	for _, apply := range opts {
		apply(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	comps := fwd.Components()
	if comps <= 0 {
		return nil, fmt.Errorf("%w: invalid number of source components %d", ErrDimensionMismatch, comps)
	}

	lf := mat.DenseCopyOf(fwd.LeadField())
	src := mat.DenseCopyOf(fwd.Sources())
	ns, nc := lf.Dims()
	nv, _ := src.Dims()
	if nc != nv*comps {
		return nil, fmt.Errorf("%w: lead field columns %d do not match %d sources with %d components",
			ErrDimensionMismatch, nc, nv, comps)
	}

	nd, nt := ev.Data().Dims()
	if nd != ns {
		return nil, fmt.Errorf("%w: lead field sensors %d do not match data sensors %d", ErrDimensionMismatch, ns, nd)
	}

	times := ev.Times()
	if len(times) != nt {
		return nil, fmt.Errorf("%w: %d sample times for %d samples", ErrDimensionMismatch, len(times), nt)
	}

	sMin, sMax, err := window(times, cfg.TimeMin, cfg.TimeMax)
	if err != nil {
		return nil, err
	}

	data := matrix.ColsFrom(ev.Data(), sMin, sMax+1, cfg.Subsample)
	_, nw := data.Dims()
	wtimes := make([]float64, 0, nw)
	for i := sMin; i <= sMax; i += cfg.Subsample {
		wtimes = append(wtimes, times[i])
	}

	var freqs []float64
	if cfg.Fourier {
		fs, err := sampleFreq(wtimes)
		if err != nil {
			return nil, err
		}
		if data, freqs, err = spectrum(data, fs, cfg.FreqMin, cfg.FreqMax); err != nil {
			return nil, err
		}
	}

	if o.NoiseCov != nil {
		if o.NoiseCov.SymmetricDim() != ns {
			return nil, fmt.Errorf("%w: noise covariance size %d does not match %d sensors",
				ErrDimensionMismatch, o.NoiseCov.SymmetricDim(), ns)
		}
		w, err := whitener(o.NoiseCov)
		if err != nil {
			return nil, fmt.Errorf("failed to whiten data: %w", err)
		}
		wd, wl := new(mat.Dense), new(mat.Dense)
		wd.Mul(w, data)
		wl.Mul(w, lf)
		data, lf = wd, wl
	}

	noiseStd := cfg.NoiseStd
	if noiseStd == 0 {
		if noiseStd, err = estimate.NoiseStd(data); err != nil {
			return nil, err
		}
	}

	dipMomStd := cfg.DipMomStd
	if dipMomStd == 0 {
		if dipMomStd, err = estimate.DipMomStd(data, lf); err != nil {
			return nil, err
		}
	}

	radius := cfg.Radius
	if radius == 0 {
		radius = source.InitRadius(src)
	}

	neigh, err := source.NewNeighbours(src, radius)
	if err != nil {
		return nil, fmt.Errorf("failed to compute neighbours: %w", err)
	}

	model, err := particle.NewModel(lf, data, comps, noiseStd)
	if err != nil {
		return nil, fmt.Errorf("failed to create likelihood model: %w", err)
	}

	prior, err := particle.NewPrior(cfg.Lambda, cfg.MaxDipoles, nv, dipMomStd, cfg.HyperQ)
	if err != nil {
		return nil, fmt.Errorf("failed to create prior: %w", err)
	}

	kernel, err := particle.NewKernel(model, prior, neigh, cfg.ProbBirth, cfg.ProbDeath, cfg.DipMomStdStep)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCMC kernel: %w", err)
	}

	return &Sesame{
		cfg:       *cfg,
		logger:    o.Logger,
		data:      data,
		lf:        lf,
		src:       src,
		comps:     comps,
		times:     wtimes,
		freqs:     freqs,
		sMin:      sMin,
		sMax:      sMax,
		noiseStd:  noiseStd,
		dipMomStd: dipMomStd,
		radius:    radius,
		neigh:     neigh,
		model:     model,
		kernel:    kernel,
	}, nil
}

// window returns the indices of the first and the last sample of the time window [tMin, tMax].
// Window bounds are mapped to the nearest samples; nil bounds map to the data boundaries.
func window(times []float64, tMin, tMax *float64) (int, int, error) {
	if len(times) == 0 {
		return 0, 0, ErrEmptyWindow
	}

	sMin, sMax := 0, len(times)-1
	if tMin != nil {
		sMin = nearest(times, *tMin)
	}
	if tMax != nil {
		sMax = nearest(times, *tMax)
	}

	if sMin > sMax {
		return 0, 0, fmt.Errorf("%w: samples [%d, %d]", ErrEmptyWindow, sMin, sMax)
	}

	return sMin, sMax, nil
}

func nearest(times []float64, t float64) int {
	idx, best := 0, math.Inf(1)
	for i, v := range times {
		if d := math.Abs(v - t); d < best {
			idx, best = i, d
		}
	}

	return idx
}

// NoiseStd returns sensor noise std used by the estimator
func (s *Sesame) NoiseStd() float64 { return s.noiseStd }

// DipMomStd returns reference dipole moment std used by the estimator
func (s *Sesame) DipMomStd() float64 { return s.dipMomStd }

// Radius returns source space neighbourhood radius
func (s *Sesame) Radius() float64 { return s.radius }

// Window returns the indices of the first and the last analysed sample
func (s *Sesame) Window() (int, int) { return s.sMin, s.sMax }

// Times returns times of the analysed samples
func (s *Sesame) Times() []float64 {
	return append([]float64(nil), s.times...)
}

// Freqs returns frequencies of the analysed Fourier bins; nil unless the estimator runs in Fourier mode
func (s *Sesame) Freqs() []float64 {
	return append([]float64(nil), s.freqs...)
}

// Apply runs the estimator and returns the estimation result.
// It returns error if ctx is done before the estimation finishes or if the particles fail to evolve.
func (s *Sesame) Apply(ctx context.Context) (*Result, error) {
	s.logger.Info("starting estimation",
		zap.Int("particles", s.cfg.Particles),
		zap.Int("sources", s.neigh.Len()),
		zap.Int("samples", len(s.times)),
		zap.Bool("fourier", s.cfg.Fourier),
		zap.Int("bins", len(s.freqs)),
		zap.Float64("noise_std", s.noiseStd),
		zap.Float64("dip_mom_std", s.dipMomStd),
		zap.Float64("radius", s.radius),
		zap.Bool("hyper_q", s.cfg.HyperQ))

	pdf, err := posterior.New(s.cfg.Particles, s.kernel, s.cfg.Seed, s.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize particles: %w", err)
	}
	s.pdf = pdf
	s.history = nil

	maxDips := s.kernel.Prior().MaxDips()
	converged := true

	for iter := 0; pdf.Exponent() < 1; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if iter >= s.cfg.MaxIter {
			s.logger.Warn("exponent did not reach 1 within iteration limit",
				zap.Int("max_iter", s.cfg.MaxIter),
				zap.Float64("exponent", pdf.Exponent()))
			pdf.ForceExponent()
			converged = false
		} else if _, err := pdf.ComputeExponent(s.cfg.Gamma, s.cfg.DeltaMin, s.cfg.DeltaMax); err != nil {
			return nil, fmt.Errorf("failed to compute exponent: %w", err)
		}

		resampled := false
		if pdf.NeedsResampling(s.cfg.ESSThreshold) {
			if err := pdf.Resample(s.cfg.Resampling); err != nil {
				return nil, err
			}
			resampled = true
		}

		if err := pdf.Sample(ctx); err != nil {
			return nil, err
		}

		snap := pdf.Snapshot(maxDips, s.neigh, resampled)
		s.history = append(s.history, snap)

		s.logger.Debug("iteration",
			zap.Int("iter", iter),
			zap.Float64("exponent", snap.Exponent),
			zap.Float64("ess", snap.ESS),
			zap.Bool("resampled", resampled),
			zap.Int("est_n_dips", snap.NumDipoles),
			zap.Float64("log_post", snap.LogPost))
	}

	res, err := s.finalize(converged)
	if err != nil {
		return nil, err
	}
	s.result = res

	s.logger.Info("estimation complete",
		zap.String("id", res.ID),
		zap.Int("iterations", len(s.history)),
		zap.Int("est_n_dips", res.NumDipoles),
		zap.Ints("est_locs", res.Locations()),
		zap.Float64("gof", res.GOF),
		zap.Bool("converged", converged))

	return res, nil
}

// finalize computes point estimates from the final particle population
func (s *Sesame) finalize(converged bool) (*Result, error) {
	maxDips := s.kernel.Prior().MaxDips()
	k, locs, pmap := s.pdf.PointEstimate(maxDips, s.neigh)
	qStd := s.pdf.DipMomStd()

	dips := make([]Dipole, len(locs))
	for i, loc := range locs {
		dips[i] = Dipole{Loc: loc, Pos: mat.Row(nil, loc, s.src)}
	}

	res := &Result{
		ID:             uuid.NewString(),
		Particles:      s.cfg.Particles,
		Lambda:         s.cfg.Lambda,
		MaxDipoles:     maxDips,
		HyperQ:         s.cfg.HyperQ,
		Radius:         s.radius,
		NoiseStd:       s.noiseStd,
		DipMomStdPrior: s.dipMomStd,
		DipMomStd:      qStd,
		Components:     s.comps,
		SMin:           s.sMin,
		SMax:           s.sMax,
		Subsample:      s.cfg.Subsample,
		Times:          s.Times(),
		Fourier:        s.cfg.Fourier,
		Freqs:          s.Freqs(),
		Sources:        mat.DenseCopyOf(s.src),
		NumDipoles:     len(locs),
		Dipoles:        dips,
		PosteriorMap:   pmap,
		ModelSel:       s.pdf.ModelSelection(maxDips),
		History:        append([]posterior.Snapshot(nil), s.history...),
		Converged:      converged,
	}

	if len(locs) < k {
		s.logger.Warn("fewer posterior peaks than estimated dipoles",
			zap.Int("est_n_dips", k),
			zap.Int("peaks", len(locs)))
	}

	if len(locs) > 0 {
		q, cov, err := s.model.Moments(locs, qStd)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate dipole moments: %w", err)
		}
		res.Moments = q
		res.MomentsCov = cov
	}

	gof, err := s.goodnessOfFit(locs, res.Moments)
	if err != nil {
		return nil, err
	}
	res.GOF = gof
	res.SourceDispersion = sourceDispersion(s.src, pmap, locs)

	return res, nil
}

func (s *Sesame) goodnessOfFit(locs []int, q mat.Matrix) (float64, error) {
	y2 := s.model.DataNorm2()
	if y2 == 0 {
		return 0, nil
	}

	res, err := s.model.Residual(locs, q)
	if err != nil {
		return 0, fmt.Errorf("failed to compute residual: %w", err)
	}

	return 1 - res/y2, nil
}

// Result returns the result of the last estimation.
// It returns ErrNotApplied if the estimator has not been applied yet.
func (s *Sesame) Result() (*Result, error) {
	if s.result == nil {
		return nil, ErrNotApplied
	}

	return s.result, nil
}

// GoodnessOfFit returns the fraction of the analysed data explained by the estimated dipoles.
// It returns ErrNotApplied if the estimator has not been applied yet.
func (s *Sesame) GoodnessOfFit() (float64, error) {
	if s.result == nil {
		return 0, ErrNotApplied
	}

	return s.goodnessOfFit(s.result.Locations(), s.result.Moments)
}

// SourceDispersion returns posterior weighted root mean square distance between
// source points and their nearest estimated dipole, in source space units.
// It returns ErrNotApplied if the estimator has not been applied yet.
func (s *Sesame) SourceDispersion() (float64, error) {
	if s.result == nil {
		return 0, ErrNotApplied
	}

	return sourceDispersion(s.src, s.result.PosteriorMap, s.result.Locations()), nil
}

// EmpPdf returns the particle population of the last estimation, or nil if the estimator has not been applied
func (s *Sesame) EmpPdf() *posterior.EmpPdf {
	return s.pdf
}
