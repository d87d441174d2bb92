package pipeline

import(
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/obskit/ccdred/pkg/calib"
	"github.com/obskit/ccdred/pkg/ccd"
	"github.com/obskit/ccdred/pkg/combine"
	"github.com/obskit/ccdred/pkg/detect"
	"github.com/obskit/ccdred/pkg/photom"
	"github.com/obskit/ccdred/pkg/register"
)

/* Example config file ...

combine:
  method: median
  reject: true
  ksigma: 3.0

calibrate:
  requirezero: true
  groupdarksby: [EXPTIME]
  groupflatsby: [FILTER]

register:
  enabled: true
  maxstars: 12

photometry:
  model: annulus
  radius: 5
  annulusin: 8
  annulusout: 12
  extractheaders: [FILTER, EXPTIME, JD]

time:
  enabled: true
  addhjd: true
  targetra: 279.23
  targetdec: 38.78

output:
  dir: out
  tablefilename: photometry.csv
  previews: true

*/

type CombineOptions struct {
	// Values from the config file
	Method  string
	Reject  bool
	KSigma  float64
	MinKeep int
	FlatNormalization string

	// Values we derive/compute
	method combine.Method
	norm   combine.Normalization
}

type CalibrateOptions struct {
	RequireZero  bool
	RequireDark  bool
	RequireFlat  bool
	GroupDarksBy []string
	GroupFlatsBy []string
}

type RegisterOptions struct {
	Enabled     bool
	MaxStars    int
	MatchTol    float64
	MaxResidual float64
}

type PhotometryOptions struct {
	Model          string
	Radius         float64
	AnnulusIn      float64
	AnnulusOut     float64
	Aperture       float64
	Annulus        float64
	DAnnulus       float64
	ZMag           float64
	SaturationLevel float64
	Gain           float64
	ReadNoise      float64
	ExtractHeaders []string

	// Values we derive/compute
	model photom.Model
}

// TimeOptions derives JD/HJD/airmass header keys on the science
// frames before extraction. Coordinates are plain degrees in the
// config file; east longitudes positive.
type TimeOptions struct {
	Enabled    bool
	DateObsKey string // default DATE-OBS
	AddHJD     bool
	AddAirmass bool
	TargetRA   float64
	TargetDec  float64
	SiteLat    float64
	SiteLon    float64
}

type OutputOptions struct {
	Dir            string
	TableFilename  string
	Previews       bool
	SaveCalibrated bool
}

type Config struct {
	Combine     CombineOptions
	Calibrate   CalibrateOptions
	Register    RegisterOptions
	Detect      detect.Params
	Photometry  PhotometryOptions
	Time        TimeOptions
	Output      OutputOptions
	Parallelism int
}

func NewConfig() Config {
	c := Config{}
	c.Combine.Method = "median"
	c.Combine.KSigma = 3.0
	c.Combine.MinKeep = 1
	c.Calibrate.GroupDarksBy = []string{"EXPTIME"}
	c.Calibrate.GroupFlatsBy = []string{"FILTER"}
	c.Detect = detect.DefaultParams()
	c.Photometry.Model = "annulus"
	c.Time.DateObsKey = "DATE-OBS"
	c.Output.TableFilename = "photometry.csv"
	return c
}

func LoadConfig(filename string) (Config, error) {
	c := NewConfig()

	if contents,err := ioutil.ReadFile(filename); err != nil {
		return c, fmt.Errorf("read '%s': %v", filename, err)
	} else if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("parse '%s': %v", filename, err)
	}

	return c, c.Finalize()
}

// Finalize does sanity checks and other post-processing; string
// strategy fields resolve to concrete values here, so Run never sees
// an unvetted name.
func (c *Config)Finalize() error {
	switch c.Combine.Method {
	case "", "median": c.Combine.method = combine.Median
	case "average":    c.Combine.method = combine.Average
	case "sum":        c.Combine.method = combine.Sum
	default:
		return &ccd.UnsupportedMethodError{Op: "combine", Method: c.Combine.Method}
	}

	switch c.Combine.FlatNormalization {
	case "", "median": c.Combine.norm = combine.NormMedian
	case "mean":       c.Combine.norm = combine.NormMean
	default:
		return &ccd.UnsupportedMethodError{Op: "flat normalization", Method: c.Combine.FlatNormalization}
	}

	if c.Combine.KSigma <= 0 {
		c.Combine.KSigma = 3.0
	}
	if c.Combine.MinKeep < 1 {
		c.Combine.MinKeep = 1
	}

	p := &c.Photometry
	switch p.Model {
	case "", "simple":
		p.model = photom.ModelSimple{Radius: p.Radius}
	case "annulus":
		p.model = photom.ModelAnnulus{Radius: p.Radius, AnnulusIn: p.AnnulusIn, AnnulusOut: p.AnnulusOut}
	case "toolkit":
		p.model = photom.ModelToolkit{Aperture: p.Aperture, Annulus: p.Annulus, DAnnulus: p.DAnnulus}
	default:
		return &ccd.UnsupportedMethodError{Op: "photometry", Method: p.Model}
	}
	if err := p.model.Validate(); err != nil {
		return err
	}

	return nil
}

func (c *Config)combineOptions() combine.Options {
	return combine.Options{
		Method: c.Combine.method,
		Rejection: combine.Rejection{
			Enabled: c.Combine.Reject,
			KSigma:  c.Combine.KSigma,
			MinKeep: c.Combine.MinKeep,
		},
		Parallelism: c.Parallelism,
	}
}

func (c *Config)registerOptions() register.Options {
	return register.Options{
		Detect:      c.Detect,
		MaxStars:    c.Register.MaxStars,
		MatchTol:    c.Register.MatchTol,
		MaxResidual: c.Register.MaxResidual,
		Parallelism: c.Parallelism,
	}
}

func (c *Config)photometryOptions() photom.Options {
	return photom.Options{
		ExtractHeaders:  c.Photometry.ExtractHeaders,
		ZMag:            c.Photometry.ZMag,
		SaturationLevel: c.Photometry.SaturationLevel,
		Gain:            c.Photometry.Gain,
		ReadNoise:       c.Photometry.ReadNoise,
	}
}

func (c *Config)calibConfig(zero *ccd.Frame, darks, flats *calib.MasterPool) calib.Config {
	return calib.Config{
		Zero:        zero,
		Darks:       darks,
		Flats:       flats,
		RequireZero: c.Calibrate.RequireZero,
		RequireDark: c.Calibrate.RequireDark,
		RequireFlat: c.Calibrate.RequireFlat,
	}
}
