// Package combine reduces a stack of same-shape frames to one master
// frame: per-pixel median/average/sum across the stack, with optional
// sigma rejection of outliers first.
package combine

import(
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/obskit/ccdred/pkg/ccd"
)

type Method string

const (
	Median  Method = "median"
	Average Method = "average"
	Sum     Method = "sum"
)

// The set of supported methods is closed; dispatch goes through this
// table so unknown names fail up front, not per pixel.
var reducers = map[Method]func([]float64) float64{
	Median:  ccd.Median,
	Average: func(vals []float64) float64 {
		tot := 0.0
		for _,v := range vals { tot += v }
		return tot / float64(len(vals))
	},
	Sum: func(vals []float64) float64 {
		tot := 0.0
		for _,v := range vals { tot += v }
		return tot
	},
}

// Rejection excludes per-pixel outliers before the reduction. The
// center is the stack median; the scale is the MAD (stddev-calibrated),
// falling back to the plain stddev when the MAD collapses to zero.
type Rejection struct {
	Enabled bool
	KSigma  float64 // reject beyond this many robust sigmas
	MinKeep int     // never leave fewer than this many contributors
}

// DefaultRejection is what zerocombine/darkcombine use: 3-sigma
// clipping keeping at least one contributor per pixel.
func DefaultRejection() Rejection {
	return Rejection{Enabled: true, KSigma: 3.0, MinKeep: 1}
}

type Options struct {
	Method      Method
	Rejection   Rejection
	Parallelism int // concurrent rows; <=1 means serial
}

// Combine reduces the stack to one frame. The output header is
// synthesized, never copied wholesale from an input: it records the
// method, rejection parameters and contributors, plus the small set
// of metadata keys on which every input agrees.
func Combine(frames ccd.FrameSet, opts Options) (*ccd.Frame, error) {
	if err := frames.CheckShapes("combine"); err != nil {
		return nil, err
	}
	reduce, exists := reducers[opts.Method]
	if !exists {
		return nil, &ccd.UnsupportedMethodError{Op: "combine", Method: string(opts.Method)}
	}
	if opts.Rejection.Enabled && opts.Rejection.MinKeep < 1 {
		opts.Rejection.MinKeep = 1
	}

	w, h := frames[0].Dx(), frames[0].Dy()
	out := ccd.NewFrame(w, h)

	nWorkers := opts.Parallelism
	if nWorkers < 1 {
		nWorkers = 1
	}
	sem := make(chan bool, nWorkers)
	for y := 0; y < h; y++ {
		sem <- true
		go func(y int) {
			defer func() { <-sem }()
			stack := make([]float64, len(frames))
			for x := 0; x < w; x++ {
				for i,f := range frames {
					stack[i] = f.Get(x, y)
				}
				vals := stack
				if opts.Rejection.Enabled {
					vals = reject(stack, opts.Rejection)
				}
				out.Set(x, y, reduce(vals))
			}
		}(y)
	}
	for i := 0; i < cap(sem); i++ { // wait for the rows to finish
		sem <- true
	}

	synthesizeHeader(out, frames, opts)
	return out, nil
}

// reject drops values beyond KSigma robust sigmas of the stack
// median. If that would leave fewer than MinKeep contributors, the
// MinKeep values closest to the median survive instead - in
// particular a pixel never ends up with zero contributors, so no NaN
// can leak into the master.
func reject(stack []float64, rej Rejection) []float64 {
	center := ccd.Median(stack)
	scale := ccd.MAD(stack, center)
	if scale == 0 {
		scale = stddev(stack)
	}
	if scale == 0 {
		return stack // flat stack, nothing is an outlier
	}

	byDist := make([]int, len(stack))
	for i := range byDist {
		byDist[i] = i
	}
	sort.Slice(byDist, func(a, b int) bool {
		return math.Abs(stack[byDist[a]]-center) < math.Abs(stack[byDist[b]]-center)
	})

	kept := []float64{}
	for _,i := range byDist {
		if math.Abs(stack[i]-center) <= rej.KSigma*scale || len(kept) < rej.MinKeep {
			kept = append(kept, stack[i])
		}
	}
	return kept
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := 0.0
	for _,v := range vals { mean += v }
	mean /= float64(len(vals))
	ss := 0.0
	for _,v := range vals { ss += (v - mean) * (v - mean) }
	return math.Sqrt(ss / float64(len(vals)-1))
}

// Metadata keys worth carrying onto a master, but only when all the
// inputs agree on the value. Disagreement leaves the key absent
// rather than guessing.
var consensusKeys = []string{"FILTER", "EXPTIME", "IMAGETYP", "OBJECT", "INSTRUME"}

func synthesizeHeader(out *ccd.Frame, frames ccd.FrameSet, opts Options) {
	out.Header.SetWithComment("CMBMETH", string(opts.Method), "stack reduction method")
	out.Header.SetWithComment("NCOMBINE", float64(len(frames)), "number of input frames")
	out.Header.SetWithComment("CMBREJ", opts.Rejection.Enabled, "sigma rejection applied")
	if opts.Rejection.Enabled {
		out.Header.SetWithComment("CMBKSIG", opts.Rejection.KSigma, "rejection threshold in sigmas")
		out.Header.SetWithComment("CMBKEEP", float64(opts.Rejection.MinKeep), "minimum surviving contributors")
	}
	for i,f := range frames {
		out.Header.Set(fmt.Sprintf("CMBIN%d", i+1), f.ID())
	}

	for _,key := range consensusKeys {
		first, ok := frames[0].Header.GetString(key)
		if !ok {
			continue
		}
		agree := true
		for _,f := range frames[1:] {
			if v,ok := f.Header.GetString(key); !ok || v != first {
				agree = false
				break
			}
		}
		if agree {
			v,_ := frames[0].Header.Get(key)
			out.Header.Set(key, v)
		}
	}
}

// The named presets, matching the classic reduction tasks. A zero
// Options means the task's classic behavior: median reduction, and for
// zerocombine/darkcombine the default sigma rejection.

func presetDefaults(opts Options) Options {
	if opts.Method == "" {
		opts.Method = Median
	}
	if (opts.Rejection == Rejection{}) {
		opts.Rejection = DefaultRejection()
	}
	return opts
}

// ZeroCombine builds a master bias.
func ZeroCombine(frames ccd.FrameSet, opts Options) (*ccd.Frame, error) {
	out, err := Combine(frames, presetDefaults(opts))
	if err != nil {
		return nil, fmt.Errorf("zerocombine: %w", err)
	}
	out.Name = "master-zero"
	out.Header.Set("IMAGETYP", "zero")
	return out, nil
}

// DarkCombine builds a master dark.
func DarkCombine(frames ccd.FrameSet, opts Options) (*ccd.Frame, error) {
	out, err := Combine(frames, presetDefaults(opts))
	if err != nil {
		return nil, fmt.Errorf("darkcombine: %w", err)
	}
	out.Name = "master-dark"
	out.Header.Set("IMAGETYP", "dark")
	return out, nil
}

type Normalization string

const (
	NormMedian Normalization = "median"
	NormMean   Normalization = "mean"
)

// FlatCombine builds a master flat, then divides it by its own
// characteristic value so the result sits near 1 and flat division
// preserves mean brightness.
func FlatCombine(frames ccd.FrameSet, opts Options, norm Normalization) (*ccd.Frame, error) {
	if opts.Method == "" {
		opts.Method = Median
	}
	out, err := Combine(frames, opts)
	if err != nil {
		return nil, fmt.Errorf("flatcombine: %w", err)
	}

	if norm == "" {
		norm = NormMedian
	}
	st := out.Stats()
	var div float64
	switch norm {
	case NormMedian:
		div = st.Median
	case NormMean:
		div = st.Mean
	default:
		return nil, &ccd.UnsupportedMethodError{Op: "flatcombine", Method: string(norm)}
	}
	if div == 0 {
		return nil, fmt.Errorf("flatcombine: combined flat has zero %s, cannot normalize", norm)
	}

	pix := out.Pix()
	for i := range pix {
		pix[i] /= div
	}
	log.Printf("flatcombine: normalized %d frames by %s=%.3f\n", len(frames), norm, div)

	out.Name = "master-flat"
	out.Header.Set("IMAGETYP", "flat")
	out.Header.SetWithComment("FLATNORM", div, "value the combined flat was divided by")
	return out, nil
}

// ImSum is the plain unrejected sum of the stack.
func ImSum(frames ccd.FrameSet, parallelism int) (*ccd.Frame, error) {
	out, err := Combine(frames, Options{Method: Sum, Parallelism: parallelism})
	if err != nil {
		return nil, fmt.Errorf("imsum: %w", err)
	}
	out.Name = "imsum"
	return out, nil
}
