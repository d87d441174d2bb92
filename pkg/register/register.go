// Package register aligns every frame of a set onto a reference
// frame's pixel grid: star matching gives control points, a
// least-squares similarity fit gives the transform, and the frame is
// resampled through the inverse transform with bilinear
// interpolation.
//
// A frame that will not register (too few matched stars, degenerate
// fit, excessive residual) is excluded with a recorded reason; the
// batch only fails when nothing at all survives.
package register

import(
	"fmt"
	"log"
	"math"

	"github.com/obskit/ccdred/pkg/ccd"
	"github.com/obskit/ccdred/pkg/detect"
)

type Options struct {
	Detect      detect.Params
	MaxStars    int     // control-point stars per frame
	MatchTol    float64 // triangle side-ratio tolerance
	MaxResidual float64 // reject fits with RMS residual beyond this (pixels)
	Parallelism int
}

func DefaultOptions() Options {
	return Options{
		Detect:      detect.DefaultParams(),
		MaxStars:    12,
		MatchTol:    0.02,
		MaxResidual: 1.0,
	}
}

// A SkipReport names a frame that could not be registered, and why.
type SkipReport struct {
	Index  int
	Frame  string
	Reason string
}

type Result struct {
	Frames  ccd.FrameSet // survivors, input order preserved
	Skipped []SkipReport
}

// Align registers frames onto reference's grid. When reference is a
// member of the set it passes through unchanged, exactly once, at its
// input position.
func Align(frames ccd.FrameSet, reference *ccd.Frame, opts Options) (Result, error) {
	if err := frames.CheckNonEmpty("align"); err != nil {
		return Result{}, err
	}
	if err := frames.CheckShapes("align"); err != nil {
		return Result{}, err
	}
	if !reference.SameShape(frames[0]) {
		return Result{}, &ccd.ShapeMismatchError{
			Op: "align", Subject: fmt.Sprintf("reference (%s)", reference.ID()),
			GotW: reference.Dx(), GotH: reference.Dy(),
			WantW: frames[0].Dx(), WantH: frames[0].Dy(),
		}
	}
	if opts.MaxStars < 3 {
		opts.MaxStars = 12
	}
	if opts.MatchTol <= 0 {
		opts.MatchTol = 0.02
	}
	if opts.MaxResidual <= 0 {
		opts.MaxResidual = 1.0
	}

	refStars := detect.Find(reference, opts.Detect)

	// Workers write disjoint indices, so no locking is needed.
	aligned := make([]*ccd.Frame, len(frames))
	skips := make([]*SkipReport, len(frames))

	nWorkers := opts.Parallelism
	if nWorkers < 1 {
		nWorkers = 1
	}
	sem := make(chan bool, nWorkers)
	for i,f := range frames {
		sem <- true
		go func(i int, f *ccd.Frame) {
			defer func() { <-sem }()
			if f == reference {
				aligned[i] = f // identity, byte for byte
				return
			}
			out, err := alignOne(f, reference, refStars, opts)
			if err != nil {
				skips[i] = &SkipReport{Index: i, Frame: f.ID(), Reason: err.Error()}
				return
			}
			aligned[i] = out
		}(i, f)
	}
	for i := 0; i < cap(sem); i++ {
		sem <- true
	}

	res := Result{}
	for i := range frames {
		if aligned[i] != nil {
			res.Frames = append(res.Frames, aligned[i])
		} else if skips[i] != nil {
			res.Skipped = append(res.Skipped, *skips[i])
			log.Printf("align: skipping frame %d (%s): %s\n", skips[i].Index, skips[i].Frame, skips[i].Reason)
		}
	}

	if len(res.Frames) == 0 {
		return Result{}, &ccd.AlignmentFailedError{Attempted: len(frames)}
	}
	return res, nil
}

func alignOne(f, reference *ccd.Frame, refStars []ccd.Source, opts Options) (*ccd.Frame, error) {
	stars := detect.Find(f, opts.Detect)

	src, dst := matchStars(stars, refStars, opts.MaxStars, opts.MatchTol)
	if len(src) < 3 {
		return nil, fmt.Errorf("only %d matched control points, need 3", len(src))
	}

	xform, err := FitSimilarity(src, dst)
	if err != nil {
		return nil, err
	}
	if rms := xform.RMSResidual(src, dst); rms > opts.MaxResidual {
		return nil, fmt.Errorf("fit residual %.2fpx exceeds %.2fpx", rms, opts.MaxResidual)
	}

	out, err := Resample(f, reference, xform)
	if err != nil {
		return nil, err
	}
	log.Printf("align: %s -> %s via %s over %d points\n", f.ID(), reference.ID(), xform, len(src))
	return out, nil
}

// Resample maps f onto reference's grid under xform (which takes f
// coordinates to reference coordinates). The survivor keeps its own
// header identity; only the pixels are new. Pixels with no source
// footprint come out zero.
func Resample(f, reference *ccd.Frame, xform Aff3) (*ccd.Frame, error) {
	inv, err := xform.Invert()
	if err != nil {
		return nil, err
	}

	out := ccd.NewFrame(reference.Dx(), reference.Dy())
	out.Name = f.Name
	out.Header = f.Header.Clone()

	for y := 0; y < out.Dy(); y++ {
		for x := 0; x < out.Dx(); x++ {
			sx, sy := inv.Apply(float64(x), float64(y))
			out.Set(x, y, bilinear(f, sx, sy))
		}
	}

	out.Header.SetWithComment("REGREF", reference.ID(), "registration reference frame")
	out.Header.SetWithComment("REGDX", xform[2], "registration x shift component")
	out.Header.SetWithComment("REGDY", xform[5], "registration y shift component")
	return out, nil
}

func bilinear(f *ccd.Frame, x, y float64) float64 {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	v00 := f.At(x0, y0)
	v10 := f.At(x0+1, y0)
	v01 := f.At(x0, y0+1)
	v11 := f.At(x0+1, y0+1)
	if math.IsNaN(v00) || math.IsNaN(v10) || math.IsNaN(v01) || math.IsNaN(v11) {
		return 0
	}

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy
}
