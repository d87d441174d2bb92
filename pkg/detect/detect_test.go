package detect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obskit/ccdred/pkg/ccd"
)

// addStar injects a Gaussian profile; sub-pixel centers are fine.
func addStar(f *ccd.Frame, cx, cy, peak, sigma float64) {
	r := int(math.Ceil(4 * sigma))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			x, y := int(cx)+dx, int(cy)+dy
			if !f.In(x, y) {
				continue
			}
			ddx, ddy := float64(x)-cx, float64(y)-cy
			v := peak * math.Exp(-(ddx*ddx+ddy*ddy)/(2*sigma*sigma))
			f.Set(x, y, f.Get(x, y)+v)
		}
	}
}

func skyFrame(w, h int, background float64) *ccd.Frame {
	f := ccd.NewFrame(w, h)
	f.Fill(background)
	// Low-amplitude deterministic ripple so the clipped stddev is
	// nonzero, as on real sky.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, f.Get(x, y)+0.5*math.Sin(float64(x*7+y*13)))
		}
	}
	return f
}

func TestFindLocatesStars(t *testing.T) {
	t.Parallel()
	f := skyFrame(64, 64, 100)
	addStar(f, 20, 30, 500, 1.5)
	addStar(f, 45.5, 12.5, 900, 1.5)

	sources := Find(f, DefaultParams())
	require.Len(t, sources, 2)

	// Brightest first
	assert.InDelta(t, 45.5, sources[0].X, 0.3)
	assert.InDelta(t, 12.5, sources[0].Y, 0.3)
	assert.InDelta(t, 20.0, sources[1].X, 0.3)
	assert.InDelta(t, 30.0, sources[1].Y, 0.3)
	assert.Greater(t, sources[0].Peak, sources[1].Peak)
}

func TestFindFWHMEstimate(t *testing.T) {
	t.Parallel()
	f := skyFrame(64, 64, 100)
	sigma := 1.8
	addStar(f, 32, 32, 1000, sigma)

	sources := Find(f, DefaultParams())
	require.NotEmpty(t, sources)
	assert.InDelta(t, 2.3548*sigma, sources[0].FWHM, 1.5)
}

func TestFindEmptySky(t *testing.T) {
	t.Parallel()
	f := skyFrame(32, 32, 100)
	sources := Find(f, Params{Sigma: 3, FWHM: 3, Threshold: 10})
	assert.Empty(t, sources, "ripple alone must not trigger at 10 sigma")
}

func TestFindRespectsEdgeMargin(t *testing.T) {
	t.Parallel()
	f := skyFrame(32, 32, 100)
	addStar(f, 1, 1, 1000, 1.0) // hugging the corner

	sources := Find(f, Params{Sigma: 3, FWHM: 2, Threshold: 5, EdgeMargin: 4})
	assert.Empty(t, sources)
}

func TestFindMaxSources(t *testing.T) {
	t.Parallel()
	f := skyFrame(64, 64, 100)
	addStar(f, 10, 10, 400, 1.2)
	addStar(f, 30, 30, 600, 1.2)
	addStar(f, 50, 50, 800, 1.2)

	sources := Find(f, Params{Sigma: 3, FWHM: 3, Threshold: 5, MaxSources: 2})
	require.Len(t, sources, 2)
	assert.InDelta(t, 50.0, sources[0].X, 0.3, "the cap keeps the brightest")
}
