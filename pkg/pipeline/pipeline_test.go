package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obskit/ccdred/pkg/ccd"
	"github.com/obskit/ccdred/pkg/photom"
)

func plain(name string, v float64, hdr map[string]interface{}) *ccd.Frame {
	f := ccd.NewFrame(64, 64)
	f.Name = name
	f.Fill(v)
	for k,val := range hdr {
		f.Header.Set(k, val)
	}
	return f
}

// testInputs builds a synthetic observing night: 1000 ADU lights
// carrying four 9000 ADU sources, 100 ADU bias, 50 ADU dark current,
// a flat of uniform 2 (normalizes to 1).
var testStars = [][2]int{{30, 30}, {12, 45}, {45, 15}, {50, 48}}

func testInputs() Inputs {
	in := Inputs{}
	for i := 0; i < 5; i++ {
		in.Zero = append(in.Zero, plain("bias", 100, map[string]interface{}{"IMAGETYP": "zero"}))
	}
	for i := 0; i < 3; i++ {
		in.Dark = append(in.Dark, plain("dark", 50, map[string]interface{}{
			"IMAGETYP": "dark", "EXPTIME": 30.0,
		}))
		in.Flat = append(in.Flat, plain("flat", 2, map[string]interface{}{
			"IMAGETYP": "flat", "FILTER": "V",
		}))
	}
	for i := 0; i < 2; i++ {
		light := plain("light", 1000, map[string]interface{}{
			"IMAGETYP": "object", "EXPTIME": 30.0, "FILTER": "V",
		})
		for _,p := range testStars {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					light.Set(p[0]+dx, p[1]+dy, light.Get(p[0]+dx, p[1]+dy)+1000)
				}
			}
		}
		in.Light = append(in.Light, light)
	}
	return in
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.Photometry.Radius = 4
	cfg.Photometry.AnnulusIn = 8
	cfg.Photometry.AnnulusOut = 12
	cfg.Photometry.ExtractHeaders = []string{"FILTER"}
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Output.Dir = t.TempDir()
	cfg.Output.SaveCalibrated = true
	require.NoError(t, cfg.Finalize())

	res, err := Run(cfg, testInputs())
	require.NoError(t, err)

	// Masters
	require.NotNil(t, res.MasterZero)
	assert.Equal(t, 100.0, res.MasterZero.Get(5, 5))
	require.Len(t, res.MasterDarks, 1)
	require.Len(t, res.MasterFlats, 1)
	assert.InDelta(t, 1.0, res.MasterFlats[0].Get(5, 5), 1e-9, "flat normalized to unity")

	// Calibration: 1000 - 100 - 50, flat 1 -> 850
	require.Len(t, res.Calibrated, 2)
	assert.InDelta(t, 850.0, res.Calibrated[0].Get(5, 5), 1e-9)

	// Photometry on the injected sources
	require.Len(t, res.Sources, len(testStars))
	require.NotNil(t, res.Table)
	require.Len(t, res.Table.Records, 2*len(testStars))
	for _,rec := range res.Table.Records {
		assert.Equal(t, photom.FlagOK, rec.Flag)
		assert.InDelta(t, 9000.0, rec.Flux, 90)
		assert.Equal(t, []string{"V"}, rec.Headers)
	}

	// Outputs on disk
	for _,name := range []string{"master-zero.fits", "master-dark.fits", "master-flat.fits",
		"cal-000.fits", "cal-001.fits", "photometry.csv"} {
		_, err := os.Stat(filepath.Join(cfg.Output.Dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunDefaultsTableFilename(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Output.Dir = t.TempDir()
	cfg.Output.TableFilename = ""
	require.NoError(t, cfg.Finalize())

	_, err := Run(cfg, testInputs())
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Output.Dir, "photometry.csv"))
	assert.NoError(t, err)
}

func TestRunWithRegistration(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Register.Enabled = true
	require.NoError(t, cfg.Finalize())

	in := testInputs() // identical lights; alignment is the identity
	res, err := Run(cfg, in)
	require.NoError(t, err)
	require.Len(t, res.Aligned, 2)
	assert.Empty(t, res.Skipped)
	assert.InDelta(t, 9000.0, res.Table.Records[0].Flux, 200)
}

func TestRunDerivesTimeKeys(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Time.Enabled = true
	cfg.Time.AddHJD = true
	cfg.Time.TargetRA = 279.23
	cfg.Time.TargetDec = 38.78
	cfg.Photometry.ExtractHeaders = []string{"JD", "HJD"}
	require.NoError(t, cfg.Finalize())

	in := testInputs()
	for _,f := range in.Light {
		f.Header.Set("DATE-OBS", "2023-06-15T04:30:00")
	}

	res, err := Run(cfg, in)
	require.NoError(t, err)

	jd, ok := res.Calibrated[0].Header.GetFloat("JD")
	require.True(t, ok)
	assert.Greater(t, jd, 2460000.0)
	for _,rec := range res.Table.Records {
		assert.NotEqual(t, ccd.Absent, rec.Headers[0], "JD reaches the table")
		assert.NotEqual(t, ccd.Absent, rec.Headers[1], "HJD reaches the table")
	}
}

func TestRunWithoutCalibrationFrames(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	require.NoError(t, cfg.Finalize())

	in := Inputs{Light: testInputs().Light}
	res, err := Run(cfg, in)
	require.NoError(t, err, "no masters means identity calibration, not failure")
	assert.Nil(t, res.MasterZero)
	assert.InDelta(t, 1000.0, res.Calibrated[0].Get(5, 5), 1e-9)
}

func TestRunRequiresLights(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	require.NoError(t, cfg.Finalize())

	_, err := Run(cfg, Inputs{})
	var ee *ccd.EmptyInputError
	require.ErrorAs(t, err, &ee)
}

func TestFinalizeRejectsUnknownStrategies(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Combine.Method = "mode"
	var um *ccd.UnsupportedMethodError
	require.ErrorAs(t, cfg.Finalize(), &um)

	cfg = NewConfig()
	cfg.Photometry.Model = "psf"
	require.ErrorAs(t, cfg.Finalize(), &um)

	cfg = NewConfig()
	cfg.Combine.FlatNormalization = "max"
	require.ErrorAs(t, cfg.Finalize(), &um)
}

func TestFinalizeValidatesModelParams(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	cfg.Photometry.Model = "simple"
	cfg.Photometry.Radius = -2
	require.Error(t, cfg.Finalize())
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yamlText := `
combine:
  method: average
  reject: true
  ksigma: 2.5

calibrate:
  requirezero: true

photometry:
  model: simple
  radius: 6
  extractheaders: [FILTER, JD]

parallelism: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yamlText), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "average", cfg.Combine.Method)
	assert.Equal(t, 2.5, cfg.Combine.KSigma)
	assert.True(t, cfg.Calibrate.RequireZero)
	assert.Equal(t, photom.ModelSimple{Radius: 6}, cfg.Photometry.model)
	assert.Equal(t, []string{"FILTER", "JD"}, cfg.Photometry.ExtractHeaders)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, []string{"EXPTIME"}, cfg.Calibrate.GroupDarksBy, "defaults survive a partial file")
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
