// Package render turns float frames into things a human can look at:
// stretched grayscale PNGs, false-color maps, source overlays, and
// Radiance HDR dumps that keep the full dynamic range.
package render

import(
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"sort"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/obskit/ccdred/pkg/ccd"
)

// StretchOptions maps pixel values onto display range. Percentile
// clipping beats min/max scaling on CCD data, where a handful of hot
// pixels would otherwise crush everything else to black.
type StretchOptions struct {
	LowPercentile  float64 // 0 means 0.5
	HighPercentile float64 // 0 means 99.5
	Gamma          float64 // 0 means 2.2
}

func (o StretchOptions)finalize() StretchOptions {
	if o.LowPercentile == 0 {
		o.LowPercentile = 0.5
	}
	if o.HighPercentile == 0 {
		o.HighPercentile = 99.5
	}
	if o.Gamma == 0 {
		o.Gamma = 2.2
	}
	return o
}

// stretch returns a mapping from pixel value to [0,1] display
// luminance under opts.
func stretch(f *ccd.Frame, opts StretchOptions) func(v float64) float64 {
	opts = opts.finalize()

	vals := append([]float64{}, f.Pix()...)
	sort.Float64s(vals)
	lo := percentileSorted(vals, opts.LowPercentile)
	hi := percentileSorted(vals, opts.HighPercentile)
	if hi <= lo {
		hi = lo + 1
	}

	return func(v float64) float64 {
		t := (v - lo) / (hi - lo)
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		return math.Pow(t, 1/opts.Gamma)
	}
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	i := int(p / 100 * float64(len(sorted)-1))
	return sorted[i]
}

func toGray(f *ccd.Frame, opts StretchOptions) *image.RGBA64 {
	lum := stretch(f, opts)
	img := image.NewRGBA64(image.Rectangle{Max: image.Point{f.Dx(), f.Dy()}})
	for y := 0; y < f.Dy(); y++ {
		for x := 0; x < f.Dx(); x++ {
			g := uint16(lum(f.Get(x, y)) * 65535.0)
			img.Set(x, y, color.RGBA64{g, g, g, 0xFFFF})
		}
	}
	return img
}

// WritePNG writes a percentile-stretched grayscale rendering.
func WritePNG(f *ccd.Frame, filename string, opts StretchOptions) error {
	return writePNG(toGray(f, opts), filename)
}

// WriteFalseColorPNG renders intensity on a blue-to-red hue ramp,
// which makes faint background structure far easier to spot than
// grayscale does.
func WriteFalseColorPNG(f *ccd.Frame, filename string, opts StretchOptions) error {
	lum := stretch(f, opts)
	img := image.NewRGBA64(image.Rectangle{Max: image.Point{f.Dx(), f.Dy()}})
	for y := 0; y < f.Dy(); y++ {
		for x := 0; x < f.Dx(); x++ {
			t := lum(f.Get(x, y))
			c := colorful.Hsv(240*(1-t), 1.0, t) // blue (cold) through red (hot)
			r, g, b := c.RGB255()
			img.Set(x, y, color.RGBA64{uint16(r) * 257, uint16(g) * 257, uint16(b) * 257, 0xFFFF})
		}
	}
	return writePNG(img, filename)
}

// WriteOverlayPNG writes the grayscale rendering with a marker circle
// around each source, for eyeballing detection and aperture placement.
func WriteOverlayPNG(f *ccd.Frame, sources []ccd.Source, filename string, opts StretchOptions) error {
	dc := gg.NewContextForImage(toGray(f, opts))
	dc.SetRGB(0, 1, 0)
	dc.SetLineWidth(1.5)
	for i,s := range sources {
		r := 2 * s.FWHM
		if r < 6 {
			r = 6
		}
		dc.DrawCircle(s.X, s.Y, r)
		dc.Stroke()
		dc.DrawString(fmt.Sprintf("%d", i), s.X+r+2, s.Y)
	}
	return dc.SavePNG(filename)
}

func writePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}
