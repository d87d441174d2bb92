package render

import(
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/obskit/ccdred/pkg/ccd"
)

// frameImage adapts a float frame to hdr.Image, so the full dynamic
// range survives export; no stretch, no clipping.
type frameImage struct {
	f *ccd.Frame
}

// Implement golang's image.Image interface
func (fi frameImage)ColorModel() color.Model { return hdrcolor.RGBModel }
func (fi frameImage)Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{fi.f.Dx(), fi.f.Dy()}}
}
func (fi frameImage)At(x, y int) color.Color { return fi.HDRAt(x, y) }

// Implement hdr.Image interface
func (fi frameImage)HDRAt(x, y int) hdrcolor.Color {
	v := fi.f.Get(x, y)
	return hdrcolor.RGB{R: v, G: v, B: v}
}
func (fi frameImage)Size() int { return fi.f.Npix() }

// WriteHDR writes the frame as Radiance RGBE, pixel values untouched.
func WriteHDR(f *ccd.Frame, filename string) error {
	var img hdr.Image = frameImage{f}
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return rgbe.Encode(writer, img)
	}
}
