// Package snapshot implements a compact binary format of SESAME results.
//
// A snapshot starts with a header: magic bytes "SSMS", format version byte
// and 32-byte BLAKE3 digest of the payload. The payload is a zstd compressed
// deterministic CBOR encoding of the result.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	sesame "github.com/milosgajdos/go-sesame"
	"github.com/milosgajdos/go-sesame/posterior"
	"github.com/zeebo/blake3"
	"gonum.org/v1/gonum/mat"
)

const (
	// Version is the current format version
	Version byte = 1
	// digestSize is the size of payload digest
	digestSize = 32
	// maxPayload limits the size of decompressed payload
	maxPayload = 1 << 30
)

var magic = [4]byte{'S', 'S', 'M', 'S'}

var (
	// ErrInvalidMagic is returned when the data is not a snapshot
	ErrInvalidMagic = errors.New("invalid snapshot magic")
	// ErrVersion is returned when the snapshot format version is not supported
	ErrVersion = errors.New("unsupported snapshot version")
	// ErrDigest is returned when the payload digest does not match
	ErrDigest = errors.New("snapshot digest mismatch")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{MaxArrayElements: 1 << 27}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayload))
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

type dense struct {
	Rows int       `cbor:"r"`
	Cols int       `cbor:"c"`
	Data []float64 `cbor:"d"`
}

type iteration struct {
	Exponent   float64   `cbor:"exp"`
	ESS        float64   `cbor:"ess"`
	Resampled  bool      `cbor:"res"`
	ModelSel   []float64 `cbor:"ms"`
	NumDipoles int       `cbor:"k"`
	Locations  []int     `cbor:"locs"`
	DipMomStd  float64   `cbor:"q"`
	LogPost    float64   `cbor:"lp"`
}

// result is the wire representation of sesame.Result
type result struct {
	ID               string      `cbor:"id"`
	Subject          string      `cbor:"subject"`
	DataPath         string      `cbor:"data_path"`
	FwdPath          string      `cbor:"fwd_path"`
	Particles        int         `cbor:"particles"`
	Lambda           float64     `cbor:"lambda"`
	MaxDipoles       int         `cbor:"max_dips"`
	HyperQ           bool        `cbor:"hyper_q"`
	Radius           float64     `cbor:"radius"`
	NoiseStd         float64     `cbor:"noise_std"`
	DipMomStdPrior   float64     `cbor:"q_prior"`
	DipMomStd        float64     `cbor:"q_est"`
	Components       int         `cbor:"comps"`
	SMin             int         `cbor:"s_min"`
	SMax             int         `cbor:"s_max"`
	Subsample        int         `cbor:"subsample"`
	Times            []float64   `cbor:"times"`
	Fourier          bool        `cbor:"fourier"`
	Freqs            []float64   `cbor:"freqs,omitempty"`
	Sources          *dense      `cbor:"src"`
	Dipoles          []int       `cbor:"dips"`
	Moments          *dense      `cbor:"q,omitempty"`
	MomentsCov       *dense      `cbor:"q_cov,omitempty"`
	PosteriorMap     []float64   `cbor:"pmap"`
	ModelSel         []float64   `cbor:"ms"`
	History          []iteration `cbor:"hist"`
	GOF              float64     `cbor:"gof"`
	SourceDispersion float64     `cbor:"sd"`
	Converged        bool        `cbor:"converged"`
}

func toDense(m mat.Matrix) *dense {
	if m == nil {
		return nil
	}

	r, c := m.Dims()
	d := &dense{Rows: r, Cols: c, Data: make([]float64, 0, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.Data = append(d.Data, m.At(i, j))
		}
	}

	return d
}

func (d *dense) mat() (*mat.Dense, error) {
	if d.Rows <= 0 || d.Cols <= 0 || len(d.Data) != d.Rows*d.Cols {
		return nil, fmt.Errorf("invalid matrix: %dx%d with %d values", d.Rows, d.Cols, len(d.Data))
	}

	return mat.NewDense(d.Rows, d.Cols, d.Data), nil
}

func toWire(res *sesame.Result) *result {
	w := &result{
		ID:               res.ID,
		Subject:          res.Meta.Subject,
		DataPath:         res.Meta.DataPath,
		FwdPath:          res.Meta.FwdPath,
		Particles:        res.Particles,
		Lambda:           res.Lambda,
		MaxDipoles:       res.MaxDipoles,
		HyperQ:           res.HyperQ,
		Radius:           res.Radius,
		NoiseStd:         res.NoiseStd,
		DipMomStdPrior:   res.DipMomStdPrior,
		DipMomStd:        res.DipMomStd,
		Components:       res.Components,
		SMin:             res.SMin,
		SMax:             res.SMax,
		Subsample:        res.Subsample,
		Times:            res.Times,
		Fourier:          res.Fourier,
		Freqs:            res.Freqs,
		Dipoles:          res.Locations(),
		PosteriorMap:     res.PosteriorMap,
		ModelSel:         res.ModelSel,
		GOF:              res.GOF,
		SourceDispersion: res.SourceDispersion,
		Converged:        res.Converged,
	}

	if res.Sources != nil {
		w.Sources = toDense(res.Sources)
	}
	if res.Moments != nil {
		w.Moments = toDense(res.Moments)
	}
	if res.MomentsCov != nil {
		w.MomentsCov = toDense(res.MomentsCov)
	}

	w.History = make([]iteration, len(res.History))
	for i, s := range res.History {
		w.History[i] = iteration(s)
	}

	return w
}

func fromWire(w *result) (*sesame.Result, error) {
	res := &sesame.Result{
		ID: w.ID,
		Meta: sesame.Meta{
			Subject:  w.Subject,
			DataPath: w.DataPath,
			FwdPath:  w.FwdPath,
		},
		Particles:        w.Particles,
		Lambda:           w.Lambda,
		MaxDipoles:       w.MaxDipoles,
		HyperQ:           w.HyperQ,
		Radius:           w.Radius,
		NoiseStd:         w.NoiseStd,
		DipMomStdPrior:   w.DipMomStdPrior,
		DipMomStd:        w.DipMomStd,
		Components:       w.Components,
		SMin:             w.SMin,
		SMax:             w.SMax,
		Subsample:        w.Subsample,
		Times:            w.Times,
		Fourier:          w.Fourier,
		Freqs:            w.Freqs,
		PosteriorMap:     w.PosteriorMap,
		ModelSel:         w.ModelSel,
		GOF:              w.GOF,
		SourceDispersion: w.SourceDispersion,
		Converged:        w.Converged,
	}

	if w.Sources == nil {
		return nil, fmt.Errorf("missing source points")
	}
	src, err := w.Sources.mat()
	if err != nil {
		return nil, fmt.Errorf("source points: %w", err)
	}
	res.Sources = src
	nv, _ := src.Dims()

	res.Dipoles = make([]sesame.Dipole, len(w.Dipoles))
	for i, loc := range w.Dipoles {
		if loc < 0 || loc >= nv {
			return nil, fmt.Errorf("invalid dipole location: %d", loc)
		}
		res.Dipoles[i] = sesame.Dipole{Loc: loc, Pos: mat.Row(nil, loc, src)}
	}
	res.NumDipoles = len(res.Dipoles)

	if w.Moments != nil {
		if res.Moments, err = w.Moments.mat(); err != nil {
			return nil, fmt.Errorf("dipole moments: %w", err)
		}
	}

	if w.MomentsCov != nil {
		if w.MomentsCov.Rows != w.MomentsCov.Cols {
			return nil, fmt.Errorf("dipole moment covariance is not square: %dx%d", w.MomentsCov.Rows, w.MomentsCov.Cols)
		}
		cov, err := w.MomentsCov.mat()
		if err != nil {
			return nil, fmt.Errorf("dipole moment covariance: %w", err)
		}
		res.MomentsCov = mat.NewSymDense(w.MomentsCov.Rows, cov.RawMatrix().Data)
	}

	if len(w.History) > 0 {
		res.History = make([]posterior.Snapshot, len(w.History))
		for i, s := range w.History {
			res.History[i] = posterior.Snapshot(s)
		}
	}

	return res, nil
}

// Write encodes result res and writes it to w.
// It returns error if the result fails to be encoded or written.
func Write(w io.Writer, res *sesame.Result) error {
	payload, err := encMode.Marshal(toWire(res))
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	compressed := zstdEncoder.EncodeAll(payload, nil)
	digest := blake3.Sum256(compressed)

	var hdr bytes.Buffer
	hdr.Write(magic[:])
	hdr.WriteByte(Version)
	hdr.Write(digest[:])

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	return nil
}

// Read reads and decodes result from r.
// It returns error if the data is not a valid snapshot or its digest does not match.
func Read(r io.Reader) (*sesame.Result, error) {
	var hdr [len(magic) + 1 + digestSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if !bytes.Equal(hdr[:len(magic)], magic[:]) {
		return nil, ErrInvalidMagic
	}

	if v := hdr[len(magic)]; v != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}

	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	digest := blake3.Sum256(compressed)
	if !bytes.Equal(digest[:], hdr[len(magic)+1:]) {
		return nil, ErrDigest
	}

	payload, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}

	var w result
	if err := decMode.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	return fromWire(&w)
}
