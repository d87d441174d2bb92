package ccd

import(
	"fmt"
	"math"
	"sort"

	"github.com/skypies/util/histogram"
	"gonum.org/v1/gonum/stat"
)

// Stats is the imstat-style summary of one frame's pixel values.
type Stats struct {
	Npix   int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Median float64

	// Hist buckets the pixel values, scaled onto [0,256) over the
	// min..max range, for quick eyeballing of the distribution.
	Hist histogram.Histogram
}

func (st Stats)String() string {
	return fmt.Sprintf("stats[n=%d mean=%.3f stddev=%.3f min=%.3f max=%.3f median=%.3f]",
		st.Npix, st.Mean, st.StdDev, st.Min, st.Max, st.Median)
}

// Stats computes the summary in one pass plus a sort for the median.
func (f *Frame)Stats() Stats {
	pix := f.Pix()
	st := Stats{
		Npix: len(pix),
		Min:  math.MaxFloat64,
		Max:  -math.MaxFloat64,
		Hist: histogram.Histogram{NumBuckets: 256, ValMin: 0, ValMax: 256},
	}

	st.Mean = stat.Mean(pix, nil)
	st.StdDev = stat.StdDev(pix, nil)
	for _,v := range pix {
		if v < st.Min { st.Min = v }
		if v > st.Max { st.Max = v }
	}
	st.Median = Median(pix)

	span := st.Max - st.Min
	if span <= 0 {
		span = 1
	}
	for _,v := range pix {
		st.Hist.Add(histogram.ScalarVal(int((v - st.Min) / span * 255.0)))
	}

	return st
}

// Median of a slice, on a sorted copy; the input is untouched.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	tmp := make([]float64, len(vals))
	copy(tmp, vals)
	sort.Float64s(tmp)
	return medianSorted(tmp)
}

func medianSorted(tmp []float64) float64 {
	n := len(tmp)
	if n%2 == 1 {
		return tmp[n/2]
	}
	return (tmp[n/2-1] + tmp[n/2]) / 2.0
}

// MAD returns the median absolute deviation about the given center,
// scaled by 1.4826 so it estimates a standard deviation for normal
// data.
func MAD(vals []float64, center float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	devs := make([]float64, len(vals))
	for i,v := range vals {
		devs[i] = math.Abs(v - center)
	}
	sort.Float64s(devs)
	return 1.4826 * medianSorted(devs)
}

// SigmaClippedStats iterates mean/stddev, rejecting values beyond
// sigma stddevs of the mean each round. Three rounds is plenty for
// background estimation.
func SigmaClippedStats(vals []float64, sigma float64) (mean, median, stddev float64) {
	kept := make([]float64, len(vals))
	copy(kept, vals)

	for iter := 0; iter < 3; iter++ {
		mean = stat.Mean(kept, nil)
		stddev = stat.StdDev(kept, nil)
		if stddev == 0 || len(kept) < 3 {
			break
		}
		next := kept[:0]
		for _,v := range kept {
			if math.Abs(v-mean) <= sigma*stddev {
				next = append(next, v)
			}
		}
		if len(next) == len(kept) || len(next) == 0 {
			break
		}
		kept = next
	}

	mean = stat.Mean(kept, nil)
	stddev = stat.StdDev(kept, nil)
	median = Median(kept)
	return
}
