// Package bstats turns raw observations into summary statistics.
package bstats

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Summary describes one repeat's latency distribution. When Defined is
// false no successful observation existed and the numeric fields carry no
// meaning; callers must treat "no successful samples" as a distinct state
// from "all samples were fast" and never read the numerics.
type Summary struct {
	CountOK   int
	CountFail int
	P50       float64
	P95       float64
	P99       float64
	Mean      float64
	Stddev    float64
	Defined   bool
}

// Observation is one derived measurement: a duration tagged with whether
// the attempt it came from succeeded.
type Observation struct {
	DurationMS float64
	OK         bool
}

// Summarize folds observations into a Summary. Only ok observations feed
// the distribution: failed attempts count toward CountFail but are kept
// out of percentiles and the mean, so timeout ceilings cannot pollute the
// latency figures.
func Summarize(obs []Observation) Summary {
	var s Summary
	var vals []float64
	for _, o := range obs {
		if o.OK {
			s.CountOK++
			vals = append(vals, o.DurationMS)
		} else {
			s.CountFail++
		}
	}
	if len(vals) == 0 {
		return s
	}
	sort.Float64s(vals)

	s.P50 = Percentile(vals, 50)
	s.P95 = Percentile(vals, 95)
	s.P99 = Percentile(vals, 99)
	// Population stddev: the repeat's samples are the whole population.
	s.Mean, _ = stats.Mean(vals)
	s.Stddev, _ = stats.StandardDeviationPopulation(vals)
	s.Defined = true
	return s
}

// Percentile computes percentile p over sorted values using linear
// interpolation between order statistics: k = (n-1)*p/100, result =
// v[floor(k)] + frac(k)*(v[ceil(k)]-v[floor(k)]). p=0 is the min, p=100
// the max. The input must be sorted ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	k := float64(n-1) * p / 100
	lo := int(math.Floor(k))
	hi := int(math.Ceil(k))
	if hi >= n {
		hi = n - 1
	}
	return sorted[lo] + (k-float64(lo))*(sorted[hi]-sorted[lo])
}

// MeanStd returns mean and population standard deviation over vals,
// ignoring NaNs. With no usable values both results are NaN; a single
// value has stddev 0.
func MeanStd(vals []float64) (mean, std float64) {
	var clean []float64
	for _, v := range vals {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return math.NaN(), math.NaN()
	}
	mean, _ = stats.Mean(clean)
	if len(clean) == 1 {
		return mean, 0
	}
	std, _ = stats.StandardDeviationPopulation(clean)
	return mean, std
}
