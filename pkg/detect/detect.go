// Package detect finds point sources on a frame: sigma-clipped
// background stats, then local maxima above a threshold on the
// background-subtracted image, then a windowed centroid and width
// estimate per peak. The photometer treats the resulting list as
// opaque input.
package detect

import(
	"log"
	"math"
	"sort"

	"github.com/obskit/ccdred/pkg/ccd"
)

type Params struct {
	Sigma      float64 // clipping width for the background stats
	FWHM       float64 // expected source width in pixels
	Threshold  float64 // detect above Threshold * background stddev
	MaxSources int     // 0 means unlimited
	EdgeMargin int     // ignore peaks this close to the frame edge
}

func DefaultParams() Params {
	return Params{Sigma: 3, FWHM: 3, Threshold: 5, EdgeMargin: 2}
}

// Find returns sources ordered brightest first. Finding nothing is
// not an error; the caller decides whether an empty sky matters.
func Find(frame *ccd.Frame, p Params) []ccd.Source {
	if p.Sigma <= 0 { p.Sigma = 3 }
	if p.FWHM <= 0 { p.FWHM = 3 }
	if p.Threshold <= 0 { p.Threshold = 5 }

	_, median, stddev := ccd.SigmaClippedStats(frame.Pix(), p.Sigma)
	floor := p.Threshold * stddev
	if floor <= 0 {
		// A perfectly flat background; anything nonzero is a peak.
		floor = 1e-12
	}

	margin := p.EdgeMargin
	if margin < 1 { margin = 1 }
	w, h := frame.Dx(), frame.Dy()
	minSep := p.FWHM
	if minSep < 2 { minSep = 2 }

	sources := []ccd.Source{}
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			v := frame.Get(x, y) - median
			if v < floor {
				continue
			}
			if !isLocalMax(frame, x, y) {
				continue
			}

			cx, cy, fwhm := centroid(frame, median, x, y, int(math.Ceil(p.FWHM)))
			if tooClose(sources, cx, cy, minSep) {
				continue
			}
			sources = append(sources, ccd.Source{X: cx, Y: cy, FWHM: fwhm, Peak: v})
		}
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Peak > sources[j].Peak })
	if p.MaxSources > 0 && len(sources) > p.MaxSources {
		sources = sources[:p.MaxSources]
	}

	log.Printf("detect: %d sources on %s (bg median=%.2f stddev=%.2f)\n",
		len(sources), frame.ID(), median, stddev)
	return sources
}

func isLocalMax(f *ccd.Frame, x, y int) bool {
	v := f.Get(x, y)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nv := f.At(x+dx, y+dy)
			if !math.IsNaN(nv) && nv > v {
				return false
			}
		}
	}
	return true
}

// centroid takes the intensity-weighted mean position over a window
// around the peak, and a second-moment width estimate converted to
// FWHM assuming a roughly Gaussian profile.
func centroid(f *ccd.Frame, background float64, px, py, r int) (float64, float64, float64) {
	if r < 2 { r = 2 }
	var sum, sx, sy float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			v := f.At(px+dx, py+dy)
			if math.IsNaN(v) {
				continue
			}
			v -= background
			if v <= 0 {
				continue
			}
			sum += v
			sx += v * float64(px+dx)
			sy += v * float64(py+dy)
		}
	}
	if sum <= 0 {
		return float64(px), float64(py), 0
	}
	cx, cy := sx/sum, sy/sum

	var s2 float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			v := f.At(px+dx, py+dy)
			if math.IsNaN(v) {
				continue
			}
			v -= background
			if v <= 0 {
				continue
			}
			ddx := float64(px+dx) - cx
			ddy := float64(py+dy) - cy
			s2 += v * (ddx*ddx + ddy*ddy)
		}
	}
	sigma := math.Sqrt(s2 / (2.0 * sum))
	return cx, cy, 2.3548 * sigma // FWHM = 2*sqrt(2 ln 2) * sigma
}

func tooClose(sources []ccd.Source, x, y, minSep float64) bool {
	for _,s := range sources {
		dx, dy := s.X-x, s.Y-y
		if dx*dx+dy*dy < minSep*minSep {
			return true
		}
	}
	return false
}
