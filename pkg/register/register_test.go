package register

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obskit/ccdred/pkg/ccd"
)

func addStar(f *ccd.Frame, cx, cy, peak, sigma float64) {
	r := int(math.Ceil(4 * sigma))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			x, y := int(cx)+dx, int(cy)+dy
			if !f.In(x, y) {
				continue
			}
			ddx, ddy := float64(x)-cx, float64(y)-cy
			f.Set(x, y, f.Get(x, y)+peak*math.Exp(-(ddx*ddx+ddy*ddy)/(2*sigma*sigma)))
		}
	}
}

var starField = [][2]float64{
	{10, 12}, {50, 14}, {22, 44}, {40, 52}, {13, 33}, {58, 38},
}

// fieldFrame renders the shared star field shifted by (dx, dy).
func fieldFrame(name string, dx, dy float64) *ccd.Frame {
	f := ccd.NewFrame(64, 64)
	f.Name = name
	f.Fill(100)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			f.Set(x, y, f.Get(x, y)+0.5*math.Sin(float64(x*7+y*13)))
		}
	}
	for i,p := range starField {
		addStar(f, p[0]+dx, p[1]+dy, 600+40*float64(i), 1.5)
	}
	return f
}

func TestAlignToSelfIsIdentity(t *testing.T) {
	t.Parallel()
	ref := fieldFrame("ref", 0, 0)

	res, err := Align(ccd.FrameSet{ref}, ref, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Frames, 1)
	assert.Same(t, ref, res.Frames[0], "the reference passes through untouched")
	assert.Empty(t, res.Skipped)
}

func TestAlignRecoversShift(t *testing.T) {
	t.Parallel()
	ref := fieldFrame("ref", 0, 0)
	shifted := fieldFrame("shifted", 3, -2)

	res, err := Align(ccd.FrameSet{shifted}, ref, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Frames, 1)
	out := res.Frames[0]

	// After alignment the stars sit at the reference positions.
	for _,p := range starField {
		x, y := int(p[0]), int(p[1])
		assert.InDelta(t, ref.Get(x, y), out.Get(x, y), ref.Get(x, y)*0.1,
			"star at %v should land on the reference grid", p)
	}

	assert.Equal(t, "shifted", out.Name, "survivor keeps its identity")
	regref, _ := out.Header.GetString("REGREF")
	assert.Equal(t, "ref", regref)
	dx, _ := out.Header.GetFloat("REGDX")
	assert.InDelta(t, -3.0, dx, 0.2, "transform carries frame coords onto reference coords")
}

func TestAlignSkipsHopelessFrame(t *testing.T) {
	t.Parallel()
	ref := fieldFrame("ref", 0, 0)
	good := fieldFrame("good", 1, 1)
	blank := ccd.NewFrame(64, 64)
	blank.Name = "blank"
	blank.Fill(100)

	res, err := Align(ccd.FrameSet{good, blank}, ref, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Frames, 1)
	assert.Equal(t, "good", res.Frames[0].Name)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "blank", res.Skipped[0].Frame)
	assert.Equal(t, 1, res.Skipped[0].Index)
	assert.NotEmpty(t, res.Skipped[0].Reason)
}

func TestAlignAllFramesFail(t *testing.T) {
	t.Parallel()
	ref := fieldFrame("ref", 0, 0)
	blank := ccd.NewFrame(64, 64)
	blank.Fill(100)

	_, err := Align(ccd.FrameSet{blank}, ref, DefaultOptions())
	var af *ccd.AlignmentFailedError
	require.ErrorAs(t, err, &af)
	assert.Equal(t, 1, af.Attempted)
}

func TestAlignShapeChecks(t *testing.T) {
	t.Parallel()
	ref := fieldFrame("ref", 0, 0)

	_, err := Align(ccd.FrameSet{}, ref, DefaultOptions())
	var ee *ccd.EmptyInputError
	require.ErrorAs(t, err, &ee)

	small := ccd.NewFrame(32, 32)
	_, err = Align(ccd.FrameSet{small}, ref, DefaultOptions())
	var sm *ccd.ShapeMismatchError
	require.ErrorAs(t, err, &sm)
}

func TestResampleIdentity(t *testing.T) {
	t.Parallel()
	f := fieldFrame("f", 0, 0)

	out, err := Resample(f, f, Identity())
	require.NoError(t, err)
	for y := 0; y < f.Dy(); y++ {
		for x := 0; x < f.Dx(); x++ {
			assert.InDelta(t, f.Get(x, y), out.Get(x, y), 1e-9)
		}
	}
	assert.True(t, out.Header.Has("REGREF"))
}

func TestMatchStarsPairsShiftedField(t *testing.T) {
	t.Parallel()
	a := make([]ccd.Source, len(starField))
	b := make([]ccd.Source, len(starField))
	for i,p := range starField {
		a[i] = ccd.Source{X: p[0] + 5, Y: p[1] - 3, Peak: 100}
		b[i] = ccd.Source{X: p[0], Y: p[1], Peak: 100}
	}

	src, dst := matchStars(a, b, 12, 0.02)
	require.GreaterOrEqual(t, len(src), 3)
	for i := range src {
		assert.InDelta(t, src[i][0]-5, dst[i][0], 1e-9)
		assert.InDelta(t, src[i][1]+3, dst[i][1], 1e-9)
	}
}
