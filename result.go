package sesame

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-sesame/estimate"
	"github.com/milosgajdos/go-sesame/posterior"
	"github.com/milosgajdos/go-sesame/source"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dipole is an estimated current dipole
type Dipole struct {
	// Loc is index of the source point hosting the dipole
	Loc int
	// Pos is source point position
	Pos []float64
}

// Meta stores result provenance
type Meta struct {
	// Subject is the name of the subject
	Subject string
	// DataPath is the path to the analysed data
	DataPath string
	// FwdPath is the path to the forward solution
	FwdPath string
}

// Result is SESAME estimation result
type Result struct {
	// ID uniquely identifies the estimation run
	ID string
	// Meta stores result provenance
	Meta Meta

	// Particles is the number of SMC particles
	Particles int
	// Lambda is Poisson prior mean of the number of dipoles
	Lambda float64
	// MaxDipoles is the maximum number of dipoles
	MaxDipoles int
	// HyperQ is true if dipole moment std was a hyper-parameter
	HyperQ bool
	// Radius is neighbourhood radius
	Radius float64
	// NoiseStd is sensor noise std
	NoiseStd float64
	// DipMomStdPrior is reference prior dipole moment std
	DipMomStdPrior float64
	// DipMomStd is estimated dipole moment std
	DipMomStd float64
	// Components is the number of moment components per dipole
	Components int
	// SMin is index of the first analysed sample
	SMin int
	// SMax is index of the last analysed sample
	SMax int
	// Subsample is the sub-sampling step of the analysed window
	Subsample int
	// Times stores times of the analysed samples
	Times []float64
	// Fourier is true if the estimation ran on Fourier coefficients of the analysed window
	Fourier bool
	// Freqs stores frequencies of the analysed Fourier bins in Hz
	Freqs []float64
	// Sources stores source point positions in rows
	Sources *mat.Dense

	// NumDipoles is estimated number of dipoles
	NumDipoles int
	// Dipoles stores estimated dipoles
	Dipoles []Dipole
	// Moments stores dipole moment time courses: (NumDipoles*Components) x times.
	// In Fourier mode columns hold real parts of the analysed bins followed by
	// imaginary parts of the bins other than DC and Nyquist.
	Moments *mat.Dense
	// MomentsCov is posterior covariance of dipole moments
	MomentsCov *mat.SymDense
	// PosteriorMap stores posterior probability of every source point hosting a dipole
	PosteriorMap []float64
	// ModelSel stores posterior probabilities of the number of dipoles
	ModelSel []float64
	// History stores per-iteration population summaries
	History []posterior.Snapshot
	// GOF is goodness of fit of the analysed data
	GOF float64
	// SourceDispersion is posterior dispersion around estimated locations
	SourceDispersion float64
	// Converged is true if the likelihood exponent reached 1 within the iteration limit
	Converged bool
}

// Locations returns estimated dipole locations
func (r *Result) Locations() []int {
	locs := make([]int, len(r.Dipoles))
	for i, d := range r.Dipoles {
		locs[i] = d.Loc
	}

	return locs
}

// NumDipolesHistory returns estimated number of dipoles after every iteration
func (r *Result) NumDipolesHistory() []int {
	out := make([]int, len(r.History))
	for i, s := range r.History {
		out[i] = s.NumDipoles
	}

	return out
}

// LocationsHistory returns estimated dipole locations after every iteration
func (r *Result) LocationsHistory() [][]int {
	out := make([][]int, len(r.History))
	for i, s := range r.History {
		out[i] = append([]int(nil), s.Locations...)
	}

	return out
}

// Amplitudes returns dipole amplitude time courses: the norms of dipole moments
// stored in a NumDipoles x times matrix. It returns nil if no dipole was estimated.
func (r *Result) Amplitudes() *mat.Dense {
	if r.NumDipoles == 0 || r.Moments == nil {
		return nil
	}

	_, nt := r.Moments.Dims()
	amps := mat.NewDense(len(r.Dipoles), nt, nil)
	for d := range r.Dipoles {
		for t := 0; t < nt; t++ {
			sum := 0.0
			for c := 0; c < r.Components; c++ {
				v := r.Moments.At(d*r.Components+c, t)
				sum += v * v
			}
			amps.Set(d, t, math.Sqrt(sum))
		}
	}

	return amps
}

// MomentEstimate returns estimate of dipole moments at the t-th analysed sample
// along with their posterior covariance.
// It returns error if no dipole was estimated or t is out of range.
func (r *Result) MomentEstimate(t int) (*estimate.Moment, error) {
	if r.Moments == nil {
		return nil, fmt.Errorf("no dipole moments estimated")
	}

	_, nt := r.Moments.Dims()
	if t < 0 || t >= nt {
		return nil, fmt.Errorf("invalid sample index: %d", t)
	}

	return estimate.NewMoment(r.Moments.ColView(t), r.MomentsCov, r.Components)
}

// sourceDispersion returns posterior weighted root mean square distance
// between source points and their nearest estimated dipole
func sourceDispersion(src mat.Matrix, pmap []float64, locs []int) float64 {
	if len(locs) == 0 {
		return 0
	}

	norm := floats.Sum(pmap)
	if norm == 0 {
		return 0
	}

	sum := 0.0
	for v, p := range pmap {
		if p == 0 {
			continue
		}
		best := math.Inf(1)
		for _, loc := range locs {
			if d := source.Dist2(src, v, loc); d < best {
				best = d
			}
		}
		sum += p * best
	}

	return math.Sqrt(sum / norm)
}
