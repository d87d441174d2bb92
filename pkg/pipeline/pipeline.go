// Package pipeline strings the reduction stages together: master
// frame combination, science calibration, registration, source
// detection and photometric extraction, driven by one YAML config.
// Each stage is the corresponding package's public API; this package
// only decides order, grouping and where the outputs land.
package pipeline

import(
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/soniakeys/unit"

	"github.com/obskit/ccdred/pkg/astrotime"
	"github.com/obskit/ccdred/pkg/calib"
	"github.com/obskit/ccdred/pkg/ccd"
	"github.com/obskit/ccdred/pkg/combine"
	"github.com/obskit/ccdred/pkg/detect"
	"github.com/obskit/ccdred/pkg/fitsio"
	"github.com/obskit/ccdred/pkg/photom"
	"github.com/obskit/ccdred/pkg/register"
	"github.com/obskit/ccdred/pkg/render"
)

// Inputs are the four frame classes of a reduction run. Any of the
// calibration classes may be empty; that correction is skipped (or
// fails, when the config says it is required).
type Inputs struct {
	Zero  ccd.FrameSet
	Dark  ccd.FrameSet
	Flat  ccd.FrameSet
	Light ccd.FrameSet
}

// Results carries everything a run produced, whether or not it also
// landed on disk.
type Results struct {
	MasterZero  *ccd.Frame
	MasterDarks []*ccd.Frame
	MasterFlats []*ccd.Frame
	Calibrated  ccd.FrameSet
	Aligned     ccd.FrameSet
	Skipped     []register.SkipReport
	Sources     []ccd.Source
	Table       *photom.Table
}

// Run executes the full reduction. The config must have been
// finalized (LoadConfig does this; hand-built configs call Finalize
// themselves).
func Run(cfg Config, in Inputs) (*Results, error) {
	if err := in.Light.CheckNonEmpty("pipeline"); err != nil {
		return nil, err
	}
	res := &Results{}

	if err := buildMasters(cfg, in, res); err != nil {
		return nil, err
	}

	calCfg := cfg.calibConfig(res.MasterZero,
		pool(cfg.Calibrate.GroupDarksBy, res.MasterDarks),
		pool(cfg.Calibrate.GroupFlatsBy, res.MasterFlats))
	calibrated, err := calib.Calibrate(in.Light, calCfg)
	if err != nil {
		return nil, err
	}
	res.Calibrated = calibrated
	log.Printf("pipeline: calibrated %d light frames\n", len(calibrated))

	if cfg.Time.Enabled {
		if err := deriveTimeKeys(cfg.Time, calibrated); err != nil {
			return nil, err
		}
	}

	work := calibrated
	if cfg.Register.Enabled {
		ref := calibrated[0]
		aligned, err := register.Align(calibrated, ref, cfg.registerOptions())
		if err != nil {
			return nil, err
		}
		res.Aligned = aligned.Frames
		res.Skipped = aligned.Skipped
		work = aligned.Frames
		log.Printf("pipeline: registered %d/%d frames onto %s\n",
			len(aligned.Frames), len(calibrated), ref.ID())
	}

	res.Sources = detect.Find(work[0], cfg.Detect)
	log.Printf("pipeline: %d sources on %s\n", len(res.Sources), work[0].ID())

	table, err := photom.Measure(work, res.Sources, cfg.Photometry.model, cfg.photometryOptions())
	if err != nil {
		return nil, err
	}
	res.Table = table

	if cfg.Output.Dir != "" {
		if err := writeOutputs(cfg, res, work); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func buildMasters(cfg Config, in Inputs, res *Results) error {
	opts := cfg.combineOptions()

	if len(in.Zero) > 0 {
		zero, err := combine.ZeroCombine(in.Zero, opts)
		if err != nil {
			return err
		}
		res.MasterZero = zero
	}

	// Darks combine per exposure time, flats per filter, so the pool
	// can hand each science frame the master that matches it.
	for _,g := range in.Dark.GroupBy(cfg.Calibrate.GroupDarksBy...) {
		dark, err := combine.DarkCombine(g.Frames, opts)
		if err != nil {
			return fmt.Errorf("dark group %s: %w", ccd.GroupKey(g.Values), err)
		}
		res.MasterDarks = append(res.MasterDarks, dark)
	}
	for _,g := range in.Flat.GroupBy(cfg.Calibrate.GroupFlatsBy...) {
		flat, err := combine.FlatCombine(g.Frames, opts, cfg.Combine.norm)
		if err != nil {
			return fmt.Errorf("flat group %s: %w", ccd.GroupKey(g.Values), err)
		}
		res.MasterFlats = append(res.MasterFlats, flat)
	}
	return nil
}

// deriveTimeKeys writes JD (and optionally HJD/AIRMASS) headers onto
// the science frames, so ExtractHeaders can carry them into the
// photometry table.
func deriveTimeKeys(tc TimeOptions, fs ccd.FrameSet) error {
	key := tc.DateObsKey
	if key == "" {
		key = "DATE-OBS"
	}
	if err := astrotime.AddJD(fs, key, "JD"); err != nil {
		return err
	}

	target := astrotime.EquatorialCoord{
		RA:  unit.RAFromDeg(tc.TargetRA),
		Dec: unit.AngleFromDeg(tc.TargetDec),
	}
	if tc.AddHJD {
		if err := astrotime.AddHJD(fs, key, "HJD", target); err != nil {
			return err
		}
	}
	if tc.AddAirmass {
		site := astrotime.GeoCoord{
			Lat: unit.AngleFromDeg(tc.SiteLat),
			Lon: unit.AngleFromDeg(tc.SiteLon),
		}
		if err := astrotime.AddAirmass(fs, key, "AIRMASS", site, target); err != nil {
			return err
		}
	}
	return nil
}

func pool(keys []string, masters []*ccd.Frame) *calib.MasterPool {
	if len(masters) == 0 {
		return nil
	}
	p := calib.NewMasterPool(keys, masters...)
	if len(masters) == 1 {
		p.Fallback = masters[0]
	}
	return p
}

func writeOutputs(cfg Config, res *Results, work ccd.FrameSet) error {
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("mkdir '%s': %v", cfg.Output.Dir, err)
	}

	for _,m := range append(append([]*ccd.Frame{res.MasterZero}, res.MasterDarks...), res.MasterFlats...) {
		if m == nil {
			continue
		}
		path := filepath.Join(cfg.Output.Dir, m.Name+".fits")
		if err := fitsio.WriteFrame(path, m, true); err != nil {
			return err
		}
	}

	if cfg.Output.SaveCalibrated {
		for i,f := range work {
			path := filepath.Join(cfg.Output.Dir, fmt.Sprintf("cal-%03d.fits", i))
			if err := fitsio.WriteFrame(path, f, true); err != nil {
				return err
			}
		}
	}

	tableName := cfg.Output.TableFilename
	if tableName == "" {
		tableName = "photometry.csv"
	}
	tablePath := filepath.Join(cfg.Output.Dir, tableName)
	tf, err := os.Create(tablePath)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", tablePath, err)
	}
	defer tf.Close()
	if err := res.Table.WriteCSV(tf); err != nil {
		return err
	}
	log.Printf("pipeline: wrote %d records to %s\n", len(res.Table.Records), tablePath)

	if cfg.Output.Previews {
		preview := filepath.Join(cfg.Output.Dir, "preview.png")
		if err := render.WriteOverlayPNG(work[0], res.Sources, preview, render.StretchOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// LoadFrames reads a set of FITS files in path order.
func LoadFrames(paths []string) (ccd.FrameSet, error) {
	fs := ccd.FrameSet{}
	for _,path := range paths {
		f, err := fitsio.ReadFrame(path)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	return fs, nil
}
