package ccd

import "fmt"

// A Source is one detected point of interest, in pixel coordinates.
// Sources are immutable once produced by the detector and are reused
// across every Frame of a set in a photometry run; the engine never
// re-detects per frame.
type Source struct {
	X, Y float64
	FWHM float64 // estimated PSF width in pixels, 0 when unknown
	Peak float64 // background-subtracted peak value at detection time
}

func (s Source)String() string {
	return fmt.Sprintf("Source(%.2f, %.2f)", s.X, s.Y)
}
