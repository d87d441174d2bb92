// Package astrotime derives time-series header keys from observation
// timestamps: Julian date, heliocentric Julian date, and airmass. The
// derived keys are plain header values, so the photometry extractor
// picks them up like any other key.
package astrotime

import(
	"fmt"
	"log"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"

	"github.com/obskit/ccdred/pkg/ccd"
)

// EquatorialCoord locates a target on the sky (J2000-ish; no proper
// motion or precession handling here).
type EquatorialCoord struct {
	RA  unit.RA
	Dec unit.Angle
}

// GeoCoord locates the observing site. Lon is positive east.
type GeoCoord struct {
	Lat unit.Angle
	Lon unit.Angle
}

// lightTimeDay is the one-way light travel time for 1 AU, in days.
const lightTimeDay = 499.004784 / 86400.0

// The timestamp layouts we accept, most specific first. FITS DATE-OBS
// is the first two; the rest show up in amateur data.
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseObsTime parses a DATE-OBS style timestamp, read as UTC.
func ParseObsTime(s string) (time.Time, error) {
	for _,layout := range timeLayouts {
		if t,err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable observation time '%s'", s)
}

// JD returns the Julian date of t.
func JD(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// HJD applies the heliocentric light-travel correction for the given
// target: the instant is referred to the sun rather than the earth, so
// timings taken months apart stay comparable.
func HJD(jd float64, target EquatorialCoord) float64 {
	sunRA, sunDec := solar.ApparentEquatorial(jd)
	r := solar.Radius(base.J2000Century(jd))

	cosTheta := math.Sin(target.Dec.Rad())*math.Sin(sunDec.Rad()) +
		math.Cos(target.Dec.Rad())*math.Cos(sunDec.Rad())*math.Cos(target.RA.Rad()-sunRA.Rad())
	return jd - r*lightTimeDay*cosTheta
}

// Airmass computes sec(z) with the Hardie polynomial refinement for
// the target as seen from site at jd. Returns an error when the target
// is below the horizon.
func Airmass(jd float64, site GeoCoord, target EquatorialCoord) (float64, error) {
	lst := sidereal.Apparent(jd).Angle() + site.Lon
	ha := lst.Rad() - target.RA.Rad()

	sinAlt := math.Sin(site.Lat.Rad())*math.Sin(target.Dec.Rad()) +
		math.Cos(site.Lat.Rad())*math.Cos(target.Dec.Rad())*math.Cos(ha)
	if sinAlt <= 0 {
		return 0, fmt.Errorf("target below horizon (sin(alt)=%.3f)", sinAlt)
	}

	secz := 1 / sinAlt
	x := secz - 1
	return secz - 0.0018167*x - 0.002875*x*x - 0.0008083*x*x*x, nil
}

// AddJD reads the timestamp under key on every frame and writes its
// Julian date under newKey. Frames missing the timestamp get the
// absent marker rather than failing the batch.
func AddJD(fs ccd.FrameSet, key, newKey string) error {
	return addDerived(fs, key, newKey, "julian date of observation", func(jd float64) (float64, error) {
		return jd, nil
	})
}

// AddHJD is AddJD with the heliocentric correction for target.
func AddHJD(fs ccd.FrameSet, key, newKey string, target EquatorialCoord) error {
	return addDerived(fs, key, newKey, "heliocentric julian date", func(jd float64) (float64, error) {
		return HJD(jd, target), nil
	})
}

// AddAirmass writes the airmass of target as seen from site at each
// frame's timestamp. A below-horizon target marks that frame absent.
func AddAirmass(fs ccd.FrameSet, key, newKey string, site GeoCoord, target EquatorialCoord) error {
	return addDerived(fs, key, newKey, "airmass at observation", func(jd float64) (float64, error) {
		return Airmass(jd, site, target)
	})
}

func addDerived(fs ccd.FrameSet, key, newKey, comment string, derive func(jd float64) (float64, error)) error {
	if err := fs.CheckNonEmpty("derive " + newKey); err != nil {
		return err
	}

	for _,f := range fs {
		ts, ok := f.Header.GetString(key)
		if !ok {
			f.Header.SetWithComment(newKey, ccd.Absent, comment)
			log.Printf("derive %s: %s has no %s key\n", newKey, f.ID(), key)
			continue
		}
		t, err := ParseObsTime(ts)
		if err != nil {
			return fmt.Errorf("frame '%s': %v", f.ID(), err)
		}
		v, err := derive(JD(t))
		if err != nil {
			f.Header.SetWithComment(newKey, ccd.Absent, comment)
			log.Printf("derive %s: %s: %v\n", newKey, f.ID(), err)
			continue
		}
		f.Header.SetWithComment(newKey, v, comment)
	}
	return nil
}
