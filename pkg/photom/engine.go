package photom

// The toolkit model hands whole frames to an external batch
// photometry engine - the contract the classic reduction toolkits
// expose: aperture/annulus/dannulus parameters and a coordinate list
// in, one flux record per coordinate out. Anything satisfying Engine
// can sit behind ModelToolkit; the built-in engine reproduces the
// centroid-sky behavior of those toolkits so runs work out of the
// box.

import(
	"github.com/obskit/ccdred/pkg/ccd"
	"gonum.org/v1/gonum/stat"
)

type ToolkitParams struct {
	Aperture  float64
	Annulus   float64 // sky ring inner radius
	DAnnulus  float64 // sky ring width
	Gain      float64
	ReadNoise float64
}

// One record per coordinate per frame. OK false means the engine
// could not measure that coordinate at all.
type EngineRecord struct {
	Flux    float64
	FluxErr float64
	Sky     float64
	OK      bool
}

type Engine interface {
	MeasureBatch(frame *ccd.Frame, sources []ccd.Source, params ToolkitParams) ([]EngineRecord, error)
}

// builtinEngine measures sky as the clipped mean of the annulus ring
// and subtracts it over the aperture area.
type builtinEngine struct{}

func (builtinEngine)MeasureBatch(frame *ccd.Frame, sources []ccd.Source, p ToolkitParams) ([]EngineRecord, error) {
	out := make([]EngineRecord, len(sources))

	for i,s := range sources {
		raw, area, ok := SumCircle(frame, s.X, s.Y, p.Aperture)
		if !ok {
			out[i] = EngineRecord{OK: false}
			continue
		}

		ring := SumAnnulus(frame, s.X, s.Y, p.Annulus, p.Annulus+p.DAnnulus)
		sky, skyVar := 0.0, 0.0
		if len(ring) > 0 {
			mean, _, stddev := ccd.SigmaClippedStats(ring, 3)
			sky = mean
			skyVar = stddev * stddev
		} else if n := frame.Npix(); n > 0 {
			// Degenerate geometry; fall back to the global mode-ish level.
			sky = stat.Mean(frame.Pix(), nil)
		}

		flux := raw - sky*area
		out[i] = EngineRecord{
			Flux:    flux,
			FluxErr: fluxError(flux, area, skyVar, p.Gain, p.ReadNoise),
			Sky:     sky,
			OK:      true,
		}
	}

	return out, nil
}
