package sim

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-sesame/noise"
	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Conductivity is the conductivity of the infinite homogeneous medium in S/m
const Conductivity = 0.33

// Grid returns points of a cubic lattice with the given spacing which lie inside
// the sphere of the given radius centred at the origin. Points are stored in matrix rows.
// It returns error if radius or spacing is not positive or if spacing exceeds radius.
func Grid(radius, spacing float64) (*mat.Dense, error) {
	if radius <= 0 || spacing <= 0 {
		return nil, fmt.Errorf("invalid grid radius %f or spacing %f", radius, spacing)
	}

	if spacing > radius {
		return nil, fmt.Errorf("grid spacing %f exceeds radius %f", spacing, radius)
	}

	n := int(math.Floor(radius / spacing))
	r2 := radius * radius

	var data []float64
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			for k := -n; k <= n; k++ {
				x, y, z := float64(i)*spacing, float64(j)*spacing, float64(k)*spacing
				if x*x+y*y+z*z <= r2 {
					data = append(data, x, y, z)
				}
			}
		}
	}

	return mat.NewDense(len(data)/3, 3, data), nil
}

// Sensors returns n sensor positions evenly spread over the sphere of the given radius.
// Positions are stored in matrix rows.
// It returns error if n is smaller than 2 or radius is not positive.
func Sensors(n int, radius float64) (*mat.Dense, error) {
	if n < 2 {
		return nil, fmt.Errorf("invalid number of sensors: %d", n)
	}

	if radius <= 0 {
		return nil, fmt.Errorf("invalid sensor radius: %f", radius)
	}

	golden := math.Pi * (3 - math.Sqrt(5))
	sens := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		z := 1 - 2*(float64(i)+0.5)/float64(n)
		rho := math.Sqrt(1 - z*z)
		phi := golden * float64(i)
		sens.SetRow(i, []float64{
			radius * rho * math.Cos(phi),
			radius * rho * math.Sin(phi),
			radius * z,
		})
	}

	return sens, nil
}

// LeadField computes lead field of source points src measured at sensors sens
// using the potential of a current dipole in an infinite homogeneous medium.
// comps is either 3 for freely oriented dipoles or 1 for dipoles oriented radially.
// The returned matrix has sensors x (sources*comps) dimensions.
// It returns error if comps is invalid or a sensor coincides with a source point.
func LeadField(src, sens mat.Matrix, comps int) (*mat.Dense, error) {
	if comps != 1 && comps != 3 {
		return nil, fmt.Errorf("invalid number of source components: %d", comps)
	}

	nv, sc := src.Dims()
	ns, ec := sens.Dims()
	if sc != 3 || ec != 3 {
		return nil, fmt.Errorf("invalid position dimensions: sources %d, sensors %d", sc, ec)
	}

	lf := mat.NewDense(ns, nv*comps, nil)
	p := make([]float64, 3)
	r := make([]float64, 3)
	d := make([]float64, 3)
	for v := 0; v < nv; v++ {
		mat.Row(p, v, src)
		dir := radial(p)
		for s := 0; s < ns; s++ {
			mat.Row(r, s, sens)
			floats.SubTo(d, r, p)
			dist := floats.Norm(d, 2)
			if dist == 0 {
				return nil, fmt.Errorf("sensor %d coincides with source %d", s, v)
			}
			scale := 1 / (4 * math.Pi * Conductivity * dist * dist * dist)
			if comps == 1 {
				lf.Set(s, v, scale*floats.Dot(dir, d))
				continue
			}
			for c := 0; c < 3; c++ {
				lf.Set(s, v*3+c, scale*d[c])
			}
		}
	}

	return lf, nil
}

// radial returns unit vector pointing from the origin to p; z axis for the origin itself
func radial(p []float64) []float64 {
	n := floats.Norm(p, 2)
	if n == 0 {
		return []float64{0, 0, 1}
	}

	dir := make([]float64, len(p))
	floats.ScaleTo(dir, 1/n, p)

	return dir
}

// Forward is a simulated forward model
type Forward struct {
	lf    *mat.Dense
	src   *mat.Dense
	sens  *mat.Dense
	comps int
}

// NewForward creates new forward model of source points src measured at sensors sens and returns it.
// It returns error if the lead field fails to be computed.
func NewForward(src, sens mat.Matrix, comps int) (*Forward, error) {
	lf, err := LeadField(src, sens, comps)
	if err != nil {
		return nil, err
	}

	return &Forward{
		lf:    lf,
		src:   mat.DenseCopyOf(src),
		sens:  mat.DenseCopyOf(sens),
		comps: comps,
	}, nil
}

// LeadField returns forward model lead field
func (f *Forward) LeadField() mat.Matrix { return f.lf }

// Sources returns source point positions
func (f *Forward) Sources() mat.Matrix { return f.src }

// Sensors returns sensor positions
func (f *Forward) Sensors() mat.Matrix { return f.sens }

// Components returns the number of lead field columns per source point
func (f *Forward) Components() int { return f.comps }

// Evoked is simulated sensor data
type Evoked struct {
	data  *mat.Dense
	times []float64
}

// NewEvoked creates new evoked data from sensors x times data matrix and sample times and returns it.
// It returns error if the number of data columns does not match the number of times.
func NewEvoked(data mat.Matrix, times []float64) (*Evoked, error) {
	_, nt := data.Dims()
	if nt != len(times) {
		return nil, fmt.Errorf("data samples %d do not match %d times", nt, len(times))
	}

	return &Evoked{
		data:  mat.DenseCopyOf(data),
		times: append([]float64(nil), times...),
	}, nil
}

// Data returns sensors x times data matrix
func (e *Evoked) Data() mat.Matrix { return e.data }

// Times returns sample times
func (e *Evoked) Times() []float64 { return e.times }

// Times returns n sample times starting at start with sampling frequency sfreq
func Times(start, sfreq float64, n int) []float64 {
	times := make([]float64, n)
	for i := range times {
		times[i] = start + float64(i)/sfreq
	}

	return times
}

// Source is a simulated current dipole whose moment follows a Gaussian time course,
// optionally modulated by an oscillation
type Source struct {
	// Loc is index of the source point hosting the dipole
	Loc int
	// Moment is peak dipole moment: one value per source component
	Moment []float64
	// Latency is the time of the moment peak
	Latency float64
	// Width is the standard deviation of the time course; constant envelope if not positive
	Width float64
	// Freq is the oscillation frequency in Hz; no oscillation if zero
	Freq float64
}

// Amplitude returns time course scaling of the source at time t
func (s Source) Amplitude(t float64) float64 {
	dt := t - s.Latency

	a := 1.0
	if s.Width > 0 {
		a = math.Exp(-dt * dt / (2 * s.Width * s.Width))
	}

	if s.Freq != 0 {
		a *= math.Cos(2 * math.Pi * s.Freq * dt)
	}

	return a
}

// Simulate generates evoked data of sources placed in forward model fwd at the given times.
// If n is not nil, noise samples are added to the data.
// It returns error if times is empty, any source is invalid or noise dimension does not match the number of sensors.
func Simulate(fwd *Forward, sources []Source, times []float64, n noise.Noise) (*Evoked, error) {
	ns, nc := fwd.lf.Dims()
	nv := nc / fwd.comps
	nt := len(times)
	if nt == 0 {
		return nil, fmt.Errorf("no sample times given")
	}

	data := mat.NewDense(ns, nt, nil)
	for i, s := range sources {
		if s.Loc < 0 || s.Loc >= nv {
			return nil, fmt.Errorf("source %d: invalid location %d", i, s.Loc)
		}
		if len(s.Moment) != fwd.comps {
			return nil, fmt.Errorf("source %d: moment size %d does not match %d components", i, len(s.Moment), fwd.comps)
		}

		g := fwd.lf.Slice(0, ns, s.Loc*fwd.comps, (s.Loc+1)*fwd.comps)
		q := mat.NewDense(fwd.comps, nt, nil)
		for t, tm := range times {
			a := s.Amplitude(tm)
			for c, m := range s.Moment {
				q.Set(c, t, a*m)
			}
		}

		y := new(mat.Dense)
		y.Mul(g, q)
		data.Add(data, y)
	}

	if n != nil {
		if len(n.Mean()) != ns {
			return nil, fmt.Errorf("noise dimension %d does not match %d sensors", len(n.Mean()), ns)
		}
		data.Add(data, n.SampleN(nt))
	}

	return NewEvoked(data, times)
}

// BaselineCov estimates noise covariance from the given number of noise samples.
// It returns error if the covariance fails to be estimated.
func BaselineCov(n noise.Noise, samples int) (*mat.SymDense, error) {
	if samples < 2 {
		return nil, fmt.Errorf("invalid number of baseline samples: %d", samples)
	}

	return matrix.Cov(n.SampleN(samples), "cols")
}
