// Package h5 stores SESAME results in HDF5 files.
package h5

import (
	"fmt"

	sesame "github.com/milosgajdos/go-sesame"
	"github.com/milosgajdos/go-sesame/posterior"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/hdf5"
)

const (
	// infoDataset is the name of the scalar dataset carrying result attributes
	infoDataset = "info"
	// paramsLen is the number of values stored in params dataset
	paramsLen = 7
)

// Write stores result res in a new HDF5 file at path, truncating the file if it exists.
// It returns error if the file or any of its datasets fails to be written.
func Write(path string, res *sesame.Result) (err error) {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file %s: %w", path, cerr)
		}
	}()

	w := &writer{f: f}

	hist := res.History
	iters := len(hist)
	exps := make([]float64, iters)
	ess := make([]float64, iters)
	qstd := make([]float64, iters)
	logPost := make([]float64, iters)
	resampled := make([]uint8, iters)
	nDips := make([]int64, iters)
	offsets := make([]int64, iters+1)
	var locs []int64
	var modelSel []float64
	for i, s := range hist {
		exps[i] = s.Exponent
		ess[i] = s.ESS
		qstd[i] = s.DipMomStd
		logPost[i] = s.LogPost
		if s.Resampled {
			resampled[i] = 1
		}
		nDips[i] = int64(s.NumDipoles)
		for _, l := range s.Locations {
			locs = append(locs, int64(l))
		}
		offsets[i+1] = int64(len(locs))
		if len(s.ModelSel) != res.MaxDipoles+1 {
			return fmt.Errorf("snapshot %d: model selection size %d does not match %d", i, len(s.ModelSel), res.MaxDipoles+1)
		}
		modelSel = append(modelSel, s.ModelSel...)
	}

	w.floats("exponents", []uint{uint(iters)}, exps)
	w.floats("ess", []uint{uint(iters)}, ess)
	w.floats("est_dip_mom_std", []uint{uint(iters)}, qstd)
	w.floats("log_post", []uint{uint(iters)}, logPost)
	w.uint8s("resampled", []uint{uint(iters)}, resampled)
	w.int64s("est_n_dips", []uint{uint(iters)}, nDips)
	w.int64s("est_locs", []uint{uint(len(locs))}, locs)
	w.int64s("est_locs_offsets", []uint{uint(len(offsets))}, offsets)
	w.floats("model_sel", []uint{uint(iters), uint(res.MaxDipoles + 1)}, modelSel)

	dips := make([]int64, len(res.Dipoles))
	for i, d := range res.Dipoles {
		dips[i] = int64(d.Loc)
	}
	w.int64s("dipoles", []uint{uint(len(dips))}, dips)
	w.floats("final_model_sel", []uint{uint(len(res.ModelSel))}, res.ModelSel)
	w.floats("pmap", []uint{uint(len(res.PosteriorMap))}, res.PosteriorMap)
	w.floats("times", []uint{uint(len(res.Times))}, res.Times)
	w.floats("freqs", []uint{uint(len(res.Freqs))}, res.Freqs)
	w.dense("src", res.Sources)
	w.dense("est_q", res.Moments)
	if res.MomentsCov != nil {
		w.dense("est_q_cov", mat.DenseCopyOf(res.MomentsCov))
	}

	w.floats("params", []uint{paramsLen}, []float64{
		res.NoiseStd,
		res.DipMomStdPrior,
		res.DipMomStd,
		res.Lambda,
		res.Radius,
		res.GOF,
		res.SourceDispersion,
	})

	w.info(res)

	return w.err
}

// writer writes datasets to HDF5 file; it stops at the first error
type writer struct {
	f   *hdf5.File
	err error
}

func (w *writer) write(name string, dtype *hdf5.Datatype, dims []uint, n int, data interface{}) {
	if w.err != nil || n == 0 {
		return
	}

	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		w.err = fmt.Errorf("failed to create dataspace of %s: %w", name, err)
		return
	}
	defer space.Close()

	dset, err := w.f.CreateDataset(name, dtype, space)
	if err != nil {
		w.err = fmt.Errorf("failed to create dataset %s: %w", name, err)
		return
	}
	defer dset.Close()

	if err := dset.Write(data); err != nil {
		w.err = fmt.Errorf("failed to write dataset %s: %w", name, err)
	}
}

func (w *writer) floats(name string, dims []uint, data []float64) {
	w.write(name, hdf5.T_NATIVE_DOUBLE, dims, len(data), &data)
}

func (w *writer) int64s(name string, dims []uint, data []int64) {
	w.write(name, hdf5.T_NATIVE_INT64, dims, len(data), &data)
}

func (w *writer) uint8s(name string, dims []uint, data []uint8) {
	w.write(name, hdf5.T_NATIVE_UINT8, dims, len(data), &data)
}

func (w *writer) dense(name string, m *mat.Dense) {
	if m == nil || m.IsEmpty() {
		return
	}

	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}

	w.floats(name, []uint{uint(r), uint(c)}, data)
}

// info writes a scalar dataset carrying string and integer result attributes
func (w *writer) info(res *sesame.Result) {
	if w.err != nil {
		return
	}

	scalar, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		w.err = fmt.Errorf("failed to create scalar dataspace: %w", err)
		return
	}
	defer scalar.Close()

	dset, err := w.f.CreateDataset(infoDataset, hdf5.T_NATIVE_INT64, scalar)
	if err != nil {
		w.err = fmt.Errorf("failed to create dataset %s: %w", infoDataset, err)
		return
	}
	defer dset.Close()

	version := int64(1)
	if err := dset.Write(&version); err != nil {
		w.err = fmt.Errorf("failed to write dataset %s: %w", infoDataset, err)
		return
	}

	for _, a := range stringAttrs(res) {
		if err := writeAttr(dset, scalar, a.name, hdf5.T_GO_STRING, a.val); err != nil {
			w.err = err
			return
		}
	}

	for _, a := range intAttrs(res) {
		if err := writeAttr(dset, scalar, a.name, hdf5.T_NATIVE_INT64, a.val); err != nil {
			w.err = err
			return
		}
	}
}

func writeAttr(dset *hdf5.Dataset, space *hdf5.Dataspace, name string, dtype *hdf5.Datatype, val interface{}) error {
	attr, err := dset.CreateAttribute(name, dtype, space)
	if err != nil {
		return fmt.Errorf("failed to create attribute %s: %w", name, err)
	}
	defer attr.Close()

	if err := attr.Write(val, dtype); err != nil {
		return fmt.Errorf("failed to write attribute %s: %w", name, err)
	}

	return nil
}

type stringAttr struct {
	name string
	val  *string
}

// stringAttrs returns pointers to result string attributes
func stringAttrs(res *sesame.Result) []stringAttr {
	return []stringAttr{
		{"id", &res.ID},
		{"subject", &res.Meta.Subject},
		{"data_path", &res.Meta.DataPath},
		{"fwd_path", &res.Meta.FwdPath},
	}
}

type intAttr struct {
	name string
	val  *int64
}

func intAttrs(res *sesame.Result) []intAttr {
	return []intAttr{
		{"particles", ptr(int64(res.Particles))},
		{"max_dips", ptr(int64(res.MaxDipoles))},
		{"hyper_q", ptr(boolInt(res.HyperQ))},
		{"components", ptr(int64(res.Components))},
		{"s_min", ptr(int64(res.SMin))},
		{"s_max", ptr(int64(res.SMax))},
		{"subsample", ptr(int64(res.Subsample))},
		{"converged", ptr(boolInt(res.Converged))},
		{"fourier", ptr(boolInt(res.Fourier))},
	}
}

func ptr(v int64) *int64 { return &v }

func boolInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

// Read loads result from HDF5 file at path.
// It returns error if the file can not be opened or a required dataset is missing or malformed.
func Read(path string) (*sesame.Result, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	r := &reader{f: f}
	res := &sesame.Result{}

	if err := r.info(res); err != nil {
		return nil, err
	}

	params := r.floats("params", true)
	src := r.dense("src", true)
	res.Times = r.floats("times", true)
	res.Freqs = r.floats("freqs", false)
	res.PosteriorMap = r.floats("pmap", true)
	res.ModelSel = r.floats("final_model_sel", false)
	dips := r.int64s("dipoles", false)
	q := r.dense("est_q", false)
	qCov := r.dense("est_q_cov", false)

	exps := r.floats("exponents", false)
	ess := r.floats("ess", false)
	qstd := r.floats("est_dip_mom_std", false)
	logPost := r.floats("log_post", false)
	resampled := r.uint8s("resampled", false)
	nDips := r.int64s("est_n_dips", false)
	locs := r.int64s("est_locs", false)
	offsets := r.int64s("est_locs_offsets", false)
	modelSel := r.floats("model_sel", false)
	if r.err != nil {
		return nil, r.err
	}

	if len(params) != paramsLen {
		return nil, fmt.Errorf("dataset params: invalid size %d", len(params))
	}
	res.NoiseStd = params[0]
	res.DipMomStdPrior = params[1]
	res.DipMomStd = params[2]
	res.Lambda = params[3]
	res.Radius = params[4]
	res.GOF = params[5]
	res.SourceDispersion = params[6]

	res.Sources = src
	nv, _ := src.Dims()
	if len(res.PosteriorMap) != nv {
		return nil, fmt.Errorf("dataset pmap: size %d does not match %d sources", len(res.PosteriorMap), nv)
	}

	res.Dipoles = make([]sesame.Dipole, len(dips))
	for i, d := range dips {
		if d < 0 || int(d) >= nv {
			return nil, fmt.Errorf("dataset dipoles: invalid location %d", d)
		}
		res.Dipoles[i] = sesame.Dipole{Loc: int(d), Pos: mat.Row(nil, int(d), src)}
	}
	res.NumDipoles = len(res.Dipoles)

	res.Moments = q
	if qCov != nil {
		n, _ := qCov.Dims()
		res.MomentsCov = mat.NewSymDense(n, qCov.RawMatrix().Data)
	}

	iters := len(exps)
	ms := res.MaxDipoles + 1
	if len(ess) != iters || len(qstd) != iters || len(resampled) != iters || len(nDips) != iters ||
		len(logPost) != iters || len(modelSel) != iters*ms || (iters > 0 && len(offsets) != iters+1) {
		return nil, fmt.Errorf("history datasets: inconsistent sizes for %d iterations", iters)
	}

	if iters > 0 {
		res.History = make([]posterior.Snapshot, iters)
	}
	for i := 0; i < iters; i++ {
		lo, hi := offsets[i], offsets[i+1]
		if lo < 0 || hi < lo || int(hi) > len(locs) {
			return nil, fmt.Errorf("dataset est_locs_offsets: invalid range [%d, %d]", lo, hi)
		}
		sl := make([]int, 0, hi-lo)
		for _, l := range locs[lo:hi] {
			sl = append(sl, int(l))
		}
		res.History[i] = posterior.Snapshot{
			Exponent:   exps[i],
			ESS:        ess[i],
			Resampled:  resampled[i] == 1,
			ModelSel:   append([]float64(nil), modelSel[i*ms:(i+1)*ms]...),
			NumDipoles: int(nDips[i]),
			Locations:  sl,
			DipMomStd:  qstd[i],
			LogPost:    logPost[i],
		}
	}

	return res, nil
}

// reader reads datasets from HDF5 file; it stops at the first error
type reader struct {
	f   *hdf5.File
	err error
}

// open opens dataset name and returns it along with its dimensions.
// It returns nil dataset if an optional dataset does not exist.
func (r *reader) open(name string, required bool) (*hdf5.Dataset, []uint) {
	if r.err != nil {
		return nil, nil
	}

	if !r.f.LinkExists(name) {
		if required {
			r.err = fmt.Errorf("missing dataset %s", name)
		}
		return nil, nil
	}

	dset, err := r.f.OpenDataset(name)
	if err != nil {
		r.err = fmt.Errorf("failed to open dataset %s: %w", name, err)
		return nil, nil
	}

	space := dset.Space()
	defer space.Close()

	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		dset.Close()
		r.err = fmt.Errorf("failed to read dimensions of %s: %w", name, err)
		return nil, nil
	}

	return dset, dims
}

func size(dims []uint) int {
	n := 1
	for _, d := range dims {
		n *= int(d)
	}

	return n
}

func (r *reader) read(name string, dset *hdf5.Dataset, data interface{}) {
	defer dset.Close()

	if err := dset.Read(data); err != nil {
		r.err = fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
}

func (r *reader) floats(name string, required bool) []float64 {
	dset, dims := r.open(name, required)
	if dset == nil {
		return nil
	}

	data := make([]float64, size(dims))
	r.read(name, dset, &data)

	return data
}

func (r *reader) int64s(name string, required bool) []int64 {
	dset, dims := r.open(name, required)
	if dset == nil {
		return nil
	}

	data := make([]int64, size(dims))
	r.read(name, dset, &data)

	return data
}

func (r *reader) uint8s(name string, required bool) []uint8 {
	dset, dims := r.open(name, required)
	if dset == nil {
		return nil
	}

	data := make([]uint8, size(dims))
	r.read(name, dset, &data)

	return data
}

func (r *reader) dense(name string, required bool) *mat.Dense {
	dset, dims := r.open(name, required)
	if dset == nil {
		return nil
	}

	if len(dims) != 2 {
		dset.Close()
		r.err = fmt.Errorf("dataset %s: expected 2 dimensions, got %d", name, len(dims))
		return nil
	}

	data := make([]float64, size(dims))
	r.read(name, dset, &data)

	return mat.NewDense(int(dims[0]), int(dims[1]), data)
}

// info reads result attributes from the info dataset
func (r *reader) info(res *sesame.Result) error {
	if !r.f.LinkExists(infoDataset) {
		return fmt.Errorf("missing dataset %s", infoDataset)
	}

	dset, err := r.f.OpenDataset(infoDataset)
	if err != nil {
		return fmt.Errorf("failed to open dataset %s: %w", infoDataset, err)
	}
	defer dset.Close()

	for _, a := range stringAttrs(res) {
		if err := readAttr(dset, a.name, hdf5.T_GO_STRING, a.val); err != nil {
			return err
		}
	}

	vals := make(map[string]int64)
	for _, a := range intAttrs(res) {
		var v int64
		if err := readAttr(dset, a.name, hdf5.T_NATIVE_INT64, &v); err != nil {
			return err
		}
		vals[a.name] = v
	}

	res.Particles = int(vals["particles"])
	res.MaxDipoles = int(vals["max_dips"])
	res.HyperQ = vals["hyper_q"] == 1
	res.Components = int(vals["components"])
	res.SMin = int(vals["s_min"])
	res.SMax = int(vals["s_max"])
	res.Subsample = int(vals["subsample"])
	res.Converged = vals["converged"] == 1
	res.Fourier = vals["fourier"] == 1

	return nil
}

func readAttr(dset *hdf5.Dataset, name string, dtype *hdf5.Datatype, val interface{}) error {
	attr, err := dset.OpenAttribute(name)
	if err != nil {
		return fmt.Errorf("failed to open attribute %s: %w", name, err)
	}
	defer attr.Close()

	if err := attr.Read(val, dtype); err != nil {
		return fmt.Errorf("failed to read attribute %s: %w", name, err)
	}

	return nil
}
