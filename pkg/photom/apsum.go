package photom

// The low-level aperture summation primitives. These are the
// collaborator contract the extraction models sit on: given an array,
// a coordinate and radii, return summed flux and effective pixel
// count. Boundary pixels are weighted by approximate coverage, so an
// aperture edge does not alias badly as sources move by subpixel
// amounts.

import(
	"math"

	"github.com/obskit/ccdred/pkg/ccd"
)

// coverage approximates how much of the pixel centered at distance d
// from the aperture center lies inside radius r. Linear ramp across
// the boundary pixel; exact enough for aperture work at r >= 2.
func coverage(d, r float64) float64 {
	w := r - d + 0.5
	if w <= 0 {
		return 0
	}
	if w >= 1 {
		return 1
	}
	return w
}

// SumCircle sums pixel values inside a circle. Returns the weighted
// flux, the effective pixel count, and whether any in-frame pixel
// contributed.
func SumCircle(f *ccd.Frame, cx, cy, r float64) (flux, area float64, ok bool) {
	x0, x1 := int(math.Floor(cx-r-1)), int(math.Ceil(cx+r+1))
	y0, y1 := int(math.Floor(cy-r-1)), int(math.Ceil(cy+r+1))

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !f.In(x, y) {
				continue
			}
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			w := coverage(d, r)
			if w == 0 {
				continue
			}
			flux += w * f.Get(x, y)
			area += w
			ok = true
		}
	}
	return
}

// SumAnnulus collects the pixel values in the ring rIn..rOut
// (unweighted membership by pixel center), for background estimates.
func SumAnnulus(f *ccd.Frame, cx, cy, rIn, rOut float64) []float64 {
	x0, x1 := int(math.Floor(cx-rOut-1)), int(math.Ceil(cx+rOut+1))
	y0, y1 := int(math.Floor(cy-rOut-1)), int(math.Ceil(cy+rOut+1))

	vals := []float64{}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !f.In(x, y) {
				continue
			}
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if d >= rIn && d <= rOut {
				vals = append(vals, f.Get(x, y))
			}
		}
	}
	return vals
}

// MaxInCircle is used for saturation checks.
func MaxInCircle(f *ccd.Frame, cx, cy, r float64) float64 {
	x0, x1 := int(math.Floor(cx-r-1)), int(math.Ceil(cx+r+1))
	y0, y1 := int(math.Floor(cy-r-1)), int(math.Ceil(cy+r+1))

	max := math.Inf(-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !f.In(x, y) {
				continue
			}
			if d := math.Hypot(float64(x)-cx, float64(y)-cy); d <= r {
				if v := f.Get(x, y); v > max {
					max = v
				}
			}
		}
	}
	return max
}

// fluxError propagates Poisson noise on the source counts plus sky
// variance and read noise over the aperture area. Gain 0 is treated
// as 1.
func fluxError(flux, area, skyVar, gain, readNoise float64) float64 {
	if gain <= 0 {
		gain = 1
	}
	src := flux / gain
	if src < 0 {
		src = 0
	}
	return math.Sqrt(src + area*(skyVar+readNoise*readNoise))
}
