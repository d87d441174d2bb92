// Package photom measures per-source flux on every frame of a set.
// Three interchangeable extraction models share one record contract,
// so downstream light-curve code never cares which one ran:
//
//   - simple:  plain circular aperture sum
//   - annulus: circular aperture minus a robust annulus background
//   - toolkit: delegated to an external batch photometry engine
//
// Rows come out frames-outer, sources-inner, in input order.
package photom

import(
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"

	"github.com/obskit/ccdred/pkg/ccd"
)

// Flag is the shared quality vocabulary across all models.
type Flag string

const (
	FlagOK           Flag = "ok"
	FlagOutsideFrame Flag = "source-outside-frame"
	FlagNegativeFlux Flag = "negative-flux"
	FlagSaturated    Flag = "saturated"
)

// DefaultZMag is the photometric zero point applied to magnitudes.
const DefaultZMag = 25.0

// A Model picks the extraction strategy. The set is closed: each
// implementation carries its own parameter shape, and dispatch goes
// through the measurers table below.
type Model interface {
	ModelName() string
	Validate() error
}

type ModelSimple struct {
	Radius float64
}

func (m ModelSimple)ModelName() string { return "simple" }
func (m ModelSimple)Validate() error {
	if m.Radius <= 0 {
		return fmt.Errorf("photometry model simple: radius must be positive, got %g", m.Radius)
	}
	return nil
}

type ModelAnnulus struct {
	Radius     float64
	AnnulusIn  float64
	AnnulusOut float64
}

func (m ModelAnnulus)ModelName() string { return "annulus" }
func (m ModelAnnulus)Validate() error {
	if m.Radius <= 0 || m.AnnulusIn <= m.Radius || m.AnnulusOut <= m.AnnulusIn {
		return fmt.Errorf("photometry model annulus: need 0 < radius < in < out, got %g/%g/%g",
			m.Radius, m.AnnulusIn, m.AnnulusOut)
	}
	return nil
}

type ModelToolkit struct {
	Aperture float64
	Annulus  float64
	DAnnulus float64
	Engine   Engine // nil selects the built-in engine
}

func (m ModelToolkit)ModelName() string { return "toolkit" }
func (m ModelToolkit)Validate() error {
	if m.Aperture <= 0 || m.Annulus < m.Aperture || m.DAnnulus <= 0 {
		return fmt.Errorf("photometry model toolkit: need 0 < aperture <= annulus and dannulus > 0, got %g/%g/%g",
			m.Aperture, m.Annulus, m.DAnnulus)
	}
	return nil
}

type Options struct {
	ExtractHeaders  []string // header keys copied verbatim into each record
	ZMag            float64  // magnitude zero point; 0 means DefaultZMag
	SaturationLevel float64  // 0 disables the saturation flag
	Gain            float64  // e-/ADU for Poisson error; 0 means 1
	ReadNoise       float64  // ADU rms per pixel
}

// A Record is one (frame, source) measurement. Flux is NaN exactly
// when Flag says the source fell outside the frame; the flag, not the
// NaN, is the contract.
type Record struct {
	FrameIndex  int
	SourceIndex int
	Frame       string
	X, Y        float64
	Flux        float64
	FluxErr     float64
	Mag         float64
	MagErr      float64
	Flag        Flag
	Headers     []string // aligned with Table.HeaderKeys, ccd.Absent when missing
}

type Table struct {
	Model      string
	HeaderKeys []string
	Records    []Record
}

// Measure runs the model over every (frame, source) pair.
func Measure(frames ccd.FrameSet, sources []ccd.Source, model Model, opts Options) (*Table, error) {
	if err := frames.CheckNonEmpty("photometry"); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, &ccd.NoSourcesError{Op: "photometry"}
	}
	if model == nil {
		return nil, &ccd.UnsupportedMethodError{Op: "photometry", Method: "<nil>"}
	}
	measure, exists := measurers[model.ModelName()]
	if !exists {
		return nil, &ccd.UnsupportedMethodError{Op: "photometry", Method: model.ModelName()}
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if opts.ZMag == 0 {
		opts.ZMag = DefaultZMag
	}

	table := &Table{Model: model.ModelName(), HeaderKeys: opts.ExtractHeaders}

	for fi,frame := range frames {
		extracted := ccd.GroupValues(frame, opts.ExtractHeaders)
		exptime, _ := frame.ExposureTime()

		rows, err := measure(frame, sources, model, opts)
		if err != nil {
			return nil, fmt.Errorf("photometry on frame %d (%s): %w", fi, frame.ID(), err)
		}

		for si,row := range rows {
			rec := Record{
				FrameIndex:  fi,
				SourceIndex: si,
				Frame:       frame.ID(),
				X:           sources[si].X,
				Y:           sources[si].Y,
				Flux:        row.flux,
				FluxErr:     row.ferr,
				Flag:        row.flag,
				// each record owns its header values
				Headers: append([]string(nil), extracted...),
			}
			rec.Mag, rec.MagErr = toMag(row.flux, row.ferr, exptime, opts.ZMag, row.flag)
			table.Records = append(table.Records, rec)
		}
	}

	log.Printf("photometry: %s model, %d frames x %d sources = %d records\n",
		table.Model, len(frames), len(sources), len(table.Records))
	return table, nil
}

// one measured (flux, error, flag) triple before magnitude conversion
type measurement struct {
	flux, ferr float64
	flag       Flag
}

type measureFunc func(*ccd.Frame, []ccd.Source, Model, Options) ([]measurement, error)

// Closed model set; new backends register here.
var measurers = map[string]measureFunc{
	"simple":  measureSimple,
	"annulus": measureAnnulus,
	"toolkit": measureToolkit,
}

func outside(f *ccd.Frame, s ccd.Source) bool {
	return s.X < 0 || s.Y < 0 || s.X >= float64(f.Dx()) || s.Y >= float64(f.Dy())
}

func absentMeasurement() measurement {
	return measurement{flux: math.NaN(), ferr: math.NaN(), flag: FlagOutsideFrame}
}

func classify(flux, peak float64, opts Options) Flag {
	if opts.SaturationLevel > 0 && peak >= opts.SaturationLevel {
		return FlagSaturated
	}
	if flux < 0 {
		return FlagNegativeFlux
	}
	return FlagOK
}

func measureSimple(f *ccd.Frame, sources []ccd.Source, model Model, opts Options) ([]measurement, error) {
	m, ok := model.(ModelSimple)
	if !ok {
		return nil, fmt.Errorf("model '%s' is not a ModelSimple", model.ModelName())
	}
	out := make([]measurement, len(sources))
	for i,s := range sources {
		if outside(f, s) {
			out[i] = absentMeasurement()
			continue
		}
		flux, area, _ := SumCircle(f, s.X, s.Y, m.Radius)
		out[i] = measurement{
			flux: flux,
			ferr: fluxError(flux, area, 0, opts.Gain, opts.ReadNoise),
			flag: classify(flux, MaxInCircle(f, s.X, s.Y, m.Radius), opts),
		}
	}
	return out, nil
}

func measureAnnulus(f *ccd.Frame, sources []ccd.Source, model Model, opts Options) ([]measurement, error) {
	m, ok := model.(ModelAnnulus)
	if !ok {
		return nil, fmt.Errorf("model '%s' is not a ModelAnnulus", model.ModelName())
	}
	out := make([]measurement, len(sources))
	for i,s := range sources {
		if outside(f, s) {
			out[i] = absentMeasurement()
			continue
		}
		raw, area, _ := SumCircle(f, s.X, s.Y, m.Radius)

		ring := SumAnnulus(f, s.X, s.Y, m.AnnulusIn, m.AnnulusOut)
		sky, skyVar := 0.0, 0.0
		if len(ring) > 0 {
			sky = ccd.Median(ring) // robust center, star spill resistant
			mad := ccd.MAD(ring, sky)
			skyVar = mad * mad
		}

		flux := raw - sky*area
		out[i] = measurement{
			flux: flux,
			ferr: fluxError(flux, area, skyVar, opts.Gain, opts.ReadNoise),
			flag: classify(flux, MaxInCircle(f, s.X, s.Y, m.Radius), opts),
		}
	}
	return out, nil
}

func measureToolkit(f *ccd.Frame, sources []ccd.Source, model Model, opts Options) ([]measurement, error) {
	m, ok := model.(ModelToolkit)
	if !ok {
		return nil, fmt.Errorf("model '%s' is not a ModelToolkit", model.ModelName())
	}
	engine := m.Engine
	if engine == nil {
		engine = builtinEngine{}
	}

	raw, err := engine.MeasureBatch(f, sources, ToolkitParams{
		Aperture: m.Aperture, Annulus: m.Annulus, DAnnulus: m.DAnnulus,
		Gain: opts.Gain, ReadNoise: opts.ReadNoise,
	})
	if err != nil {
		return nil, fmt.Errorf("toolkit engine: %v", err)
	}
	if len(raw) != len(sources) {
		return nil, fmt.Errorf("toolkit engine returned %d records for %d sources", len(raw), len(sources))
	}

	// Normalize the engine's records into the shared shape.
	out := make([]measurement, len(sources))
	for i,s := range sources {
		if outside(f, s) || !raw[i].OK {
			out[i] = absentMeasurement()
			continue
		}
		out[i] = measurement{
			flux: raw[i].Flux,
			ferr: raw[i].FluxErr,
			flag: classify(raw[i].Flux, MaxInCircle(f, s.X, s.Y, m.Aperture), opts),
		}
	}
	return out, nil
}

// toMag converts flux to a magnitude on the run's zero point,
// exposure-time corrected when the frame records one.
func toMag(flux, ferr, exptime, zmag float64, flag Flag) (float64, float64) {
	if flag != FlagOK || flux <= 0 {
		return math.NaN(), math.NaN()
	}
	mag := zmag - 2.5*math.Log10(flux)
	if exptime > 0 {
		mag += 2.5 * math.Log10(exptime)
	}
	merr := 1.0857 * ferr / flux // d(mag) = 2.5/ln(10) * dF/F
	return mag, merr
}

// WriteCSV emits the table deterministically: fixed columns, then the
// extracted header keys in request order.
func (t *Table)WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cols := []string{"frame", "source", "x", "y", "flux", "fluxerr", "mag", "magerr", "flag"}
	cols = append(cols, t.HeaderKeys...)
	if err := cw.Write(cols); err != nil {
		return err
	}

	for _,r := range t.Records {
		row := []string{
			r.Frame,
			strconv.Itoa(r.SourceIndex),
			fmtF(r.X), fmtF(r.Y),
			fmtF(r.Flux), fmtF(r.FluxErr),
			fmtF(r.Mag), fmtF(r.MagErr),
			string(r.Flag),
		}
		row = append(row, r.Headers...)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtF(v float64) string {
	if math.IsNaN(v) {
		return ccd.Absent
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
