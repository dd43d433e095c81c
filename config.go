package sesame

import (
	"fmt"
	"os"

	"github.com/milosgajdos/go-sesame/posterior"
	"gopkg.in/yaml.v3"
)

// Config configures SESAME estimator.
type Config struct {
	// Particles is the number of SMC particles.
	Particles int `yaml:"particles"`

	// NoiseStd is standard deviation of sensor noise.
	// It is estimated from data if zero.
	NoiseStd float64 `yaml:"noise_std"`

	// DipMomStd is (prior) standard deviation of dipole moments.
	// It is estimated from data and lead field if zero.
	DipMomStd float64 `yaml:"dip_mom_std"`

	// HyperQ makes dipole moment std a hyper-parameter with log-uniform prior.
	HyperQ bool `yaml:"hyper_q"`

	// Lambda is Poisson prior mean of the number of dipoles.
	Lambda float64 `yaml:"lambda"`

	// MaxDipoles is the maximum number of dipoles.
	MaxDipoles int `yaml:"max_dipoles"`

	// Radius is the source space neighbourhood radius.
	// It is derived from the source space extent if zero.
	Radius float64 `yaml:"radius"`

	// TimeMin is the first analysed time point in seconds.
	// Analysis starts at the first sample if nil.
	TimeMin *float64 `yaml:"time_min,omitempty"`

	// TimeMax is the last analysed time point in seconds.
	// Analysis ends at the last sample if nil.
	TimeMax *float64 `yaml:"time_max,omitempty"`

	// Subsample keeps every Subsample-th sample of the analysed window.
	Subsample int `yaml:"subsample"`

	// Fourier runs the estimation on Fourier coefficients of the analysed window
	// instead of its time samples.
	Fourier bool `yaml:"fourier"`

	// FreqMin is the lowest analysed frequency in Hz when Fourier is set.
	// Analysis starts at DC if nil.
	FreqMin *float64 `yaml:"freq_min,omitempty"`

	// FreqMax is the highest analysed frequency in Hz when Fourier is set.
	// Analysis ends at the Nyquist frequency if nil.
	FreqMax *float64 `yaml:"freq_max,omitempty"`

	// ProbBirth is the probability of proposing a dipole birth.
	ProbBirth float64 `yaml:"prob_birth"`

	// ProbDeath is the probability of proposing a dipole death.
	ProbDeath float64 `yaml:"prob_death"`

	// DipMomStdStep is std of the random walk on log dipole moment std.
	DipMomStdStep float64 `yaml:"dip_mom_std_step"`

	// Gamma is the target ratio of consecutive effective sample sizes.
	Gamma float64 `yaml:"gamma"`

	// DeltaMin is the minimum likelihood exponent increment.
	DeltaMin float64 `yaml:"delta_min"`

	// DeltaMax is the maximum likelihood exponent increment.
	DeltaMax float64 `yaml:"delta_max"`

	// ESSThreshold triggers resampling when ESS drops below ESSThreshold*Particles.
	ESSThreshold float64 `yaml:"ess_threshold"`

	// Resampling is the resampling method: "systematic" or "multinomial".
	Resampling posterior.Method `yaml:"resampling"`

	// MaxIter is the maximum number of SMC iterations.
	MaxIter int `yaml:"max_iter"`

	// Workers limits the number of goroutines evolving particles; GOMAXPROCS if zero.
	Workers int `yaml:"workers"`

	// Seed seeds the random number generators; time based if zero.
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns Config with default values
func DefaultConfig() *Config {
	return &Config{
		Particles:     100,
		HyperQ:        true,
		Lambda:        0.25,
		MaxDipoles:    10,
		Subsample:     1,
		ProbBirth:     1.0 / 3,
		ProbDeath:     1.0 / 20,
		DipMomStdStep: 0.1,
		Gamma:         0.99,
		DeltaMin:      1e-5,
		DeltaMax:      0.1,
		ESSThreshold:  0.5,
		Resampling:    posterior.Systematic,
		MaxIter:       5000,
	}
}

// LoadConfig loads configuration from a YAML file.
// Options missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Particles <= 0 {
		return fmt.Errorf("%w: particles must be positive, got %d", ErrInvalidConfig, c.Particles)
	}

	if c.NoiseStd < 0 {
		return fmt.Errorf("%w: noise_std must be non-negative, got %f", ErrInvalidConfig, c.NoiseStd)
	}

	if c.DipMomStd < 0 {
		return fmt.Errorf("%w: dip_mom_std must be non-negative, got %f", ErrInvalidConfig, c.DipMomStd)
	}

	if c.Lambda <= 0 {
		return fmt.Errorf("%w: lambda must be positive, got %f", ErrInvalidConfig, c.Lambda)
	}

	if c.MaxDipoles < 1 {
		return fmt.Errorf("%w: max_dipoles must be at least 1, got %d", ErrInvalidConfig, c.MaxDipoles)
	}

	if c.Radius < 0 {
		return fmt.Errorf("%w: radius must be non-negative, got %f", ErrInvalidConfig, c.Radius)
	}

	if c.TimeMin != nil && c.TimeMax != nil && *c.TimeMin > *c.TimeMax {
		return fmt.Errorf("%w: time_min %f is after time_max %f", ErrInvalidConfig, *c.TimeMin, *c.TimeMax)
	}

	if c.Subsample < 1 {
		return fmt.Errorf("%w: subsample must be at least 1, got %d", ErrInvalidConfig, c.Subsample)
	}

	if (c.FreqMin != nil && *c.FreqMin < 0) || (c.FreqMax != nil && *c.FreqMax < 0) {
		return fmt.Errorf("%w: frequency bounds must be non-negative", ErrInvalidConfig)
	}

	if c.FreqMin != nil && c.FreqMax != nil && *c.FreqMin > *c.FreqMax {
		return fmt.Errorf("%w: freq_min %f is above freq_max %f", ErrInvalidConfig, *c.FreqMin, *c.FreqMax)
	}

	if c.ProbBirth <= 0 || c.ProbDeath <= 0 || c.ProbBirth+c.ProbDeath > 1 {
		return fmt.Errorf("%w: invalid birth %f and death %f probabilities", ErrInvalidConfig, c.ProbBirth, c.ProbDeath)
	}

	if c.HyperQ && c.DipMomStdStep <= 0 {
		return fmt.Errorf("%w: dip_mom_std_step must be positive, got %f", ErrInvalidConfig, c.DipMomStdStep)
	}

	if c.Gamma <= 0 || c.Gamma >= 1 {
		return fmt.Errorf("%w: gamma must be between 0 and 1, got %f", ErrInvalidConfig, c.Gamma)
	}

	if c.DeltaMin <= 0 || c.DeltaMax < c.DeltaMin {
		return fmt.Errorf("%w: invalid exponent increment bounds [%f, %f]", ErrInvalidConfig, c.DeltaMin, c.DeltaMax)
	}

	if c.ESSThreshold <= 0 || c.ESSThreshold > 1 {
		return fmt.Errorf("%w: ess_threshold must be in (0, 1], got %f", ErrInvalidConfig, c.ESSThreshold)
	}

	switch c.Resampling {
	case posterior.Systematic, posterior.Multinomial:
	default:
		return fmt.Errorf("%w: unknown resampling method %q", ErrInvalidConfig, c.Resampling)
	}

	if c.MaxIter < 1 {
		return fmt.Errorf("%w: max_iter must be at least 1, got %d", ErrInvalidConfig, c.MaxIter)
	}

	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidConfig, c.Workers)
	}

	return nil
}
