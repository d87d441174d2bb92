// Package calib applies master calibration frames to science frames:
//
//	result = (science - zero - dark*scale) / flat
//
// Masters are read-only here; every result is a new frame and the
// science inputs are untouched.
package calib

import(
	"fmt"
	"log"

	"github.com/obskit/ccdred/pkg/ccd"
)

// A MasterPool holds masters of one kind for different sub-groups
// (say darks per exposure time, flats per filter). Selection matches
// the science frame's observed values for GroupKeys against each
// master's; the Fallback, when set, serves any frame with no match.
type MasterPool struct {
	GroupKeys []string
	Masters   []*ccd.Frame
	Fallback  *ccd.Frame
}

func NewMasterPool(groupKeys []string, masters ...*ccd.Frame) *MasterPool {
	return &MasterPool{GroupKeys: groupKeys, Masters: masters}
}

func (p *MasterPool)selectFor(science *ccd.Frame, kind string) (*ccd.Frame, error) {
	want := ccd.GroupValues(science, p.GroupKeys)
	for _,m := range p.Masters {
		got := ccd.GroupValues(m, p.GroupKeys)
		if ccd.GroupKey(got) == ccd.GroupKey(want) {
			return m, nil
		}
	}
	if p.Fallback != nil {
		return p.Fallback, nil
	}
	return nil, &ccd.NoMatchingMasterError{Kind: kind, Frame: science.ID(), Key: ccd.GroupKey(want)}
}

// Config selects which corrections run. A nil master skips that step
// (skipped, not treated as zero). Pools take precedence over the
// single master of the same kind. Require* makes a wholly-absent
// correction an error instead of a skip.
type Config struct {
	Zero *ccd.Frame
	Dark *ccd.Frame
	Flat *ccd.Frame

	Darks *MasterPool
	Flats *MasterPool

	RequireZero bool
	RequireDark bool
	RequireFlat bool
}

func (c Config)hasDark() bool { return c.Dark != nil || (c.Darks != nil && (len(c.Darks.Masters) > 0 || c.Darks.Fallback != nil)) }
func (c Config)hasFlat() bool { return c.Flat != nil || (c.Flats != nil && (len(c.Flats.Masters) > 0 || c.Flats.Fallback != nil)) }

// Calibrate corrects every frame of the set, returning new frames in
// the same order. With no masters configured at all it degenerates to
// an identity copy.
func Calibrate(science ccd.FrameSet, cfg Config) (ccd.FrameSet, error) {
	if err := science.CheckNonEmpty("calibrate"); err != nil {
		return nil, err
	}

	if cfg.RequireZero && cfg.Zero == nil {
		return nil, &ccd.MissingMasterError{Kind: "zero"}
	}
	if cfg.RequireDark && !cfg.hasDark() {
		return nil, &ccd.MissingMasterError{Kind: "dark"}
	}
	if cfg.RequireFlat && !cfg.hasFlat() {
		return nil, &ccd.MissingMasterError{Kind: "flat"}
	}

	out := make(ccd.FrameSet, 0, len(science))
	for _,f := range science {
		cal, err := calibrateOne(f, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, cal)
	}

	log.Printf("calibrate: corrected %d frames (zero=%v dark=%v flat=%v)\n",
		len(out), cfg.Zero != nil, cfg.hasDark(), cfg.hasFlat())
	return out, nil
}

// CalibrateFrame corrects a single frame.
func CalibrateFrame(science *ccd.Frame, cfg Config) (*ccd.Frame, error) {
	set, err := Calibrate(ccd.FrameSet{science}, cfg)
	if err != nil {
		return nil, err
	}
	return set[0], nil
}

func calibrateOne(science *ccd.Frame, cfg Config) (*ccd.Frame, error) {
	out := science.Clone()

	if cfg.Zero != nil {
		if err := checkMaster(science, cfg.Zero, "zero"); err != nil {
			return nil, err
		}
		subtract(out, cfg.Zero, 1.0)
		out.Header.SetWithComment("ZEROCOR", cfg.Zero.ID(), "master zero applied")
	}

	dark := cfg.Dark
	if cfg.Darks != nil {
		var err error
		if dark,err = cfg.Darks.selectFor(science, "dark"); err != nil {
			return nil, err
		}
	}
	if dark != nil {
		if err := checkMaster(science, dark, "dark"); err != nil {
			return nil, err
		}
		scale := darkScale(science, dark)
		subtract(out, dark, scale)
		out.Header.SetWithComment("DARKCOR", dark.ID(), "master dark applied")
		out.Header.SetWithComment("DARKSCAL", scale, "dark exposure scale factor")
	}

	flat := cfg.Flat
	if cfg.Flats != nil {
		var err error
		if flat,err = cfg.Flats.selectFor(science, "flat"); err != nil {
			return nil, err
		}
	}
	if flat != nil {
		if err := checkMaster(science, flat, "flat"); err != nil {
			return nil, err
		}
		divide(out, flat)
		out.Header.SetWithComment("FLATCOR", flat.ID(), "master flat applied")
	}

	return out, nil
}

func checkMaster(science, master *ccd.Frame, kind string) error {
	if !science.SameShape(master) {
		return &ccd.ShapeMismatchError{
			Op: "calibrate", Subject: fmt.Sprintf("master %s (%s)", kind, master.ID()),
			GotW: master.Dx(), GotH: master.Dy(),
			WantW: science.Dx(), WantH: science.Dy(),
		}
	}
	return nil
}

// darkScale is science exposure over dark exposure, when both frames
// record one. Absent exposure metadata means the dark is applied
// as-is.
func darkScale(science, dark *ccd.Frame) float64 {
	sciExp, ok1 := science.ExposureTime()
	darkExp, ok2 := dark.ExposureTime()
	if !ok1 || !ok2 || darkExp == 0 {
		return 1.0
	}
	return sciExp / darkExp
}

func subtract(out, master *ccd.Frame, scale float64) {
	pix, mpix := out.Pix(), master.Pix()
	for i := range pix {
		pix[i] -= mpix[i] * scale
	}
}

// divide assumes the flat is normalized to sit near 1 (flatcombine
// did that), so mean brightness is preserved. Zero flat pixels pass
// the value through unchanged rather than blowing up.
func divide(out, flat *ccd.Frame) {
	pix, fpix := out.Pix(), flat.Pix()
	for i := range pix {
		if fpix[i] != 0 {
			pix[i] /= fpix[i]
		}
	}
}
