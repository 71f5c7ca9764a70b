// Package stats computes sample means and Student-t confidence intervals for
// repeated trial measurements.
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInsufficientSamples is returned when fewer than two samples are
	// available. The sample standard deviation and the t quantile are both
	// undefined below n=2.
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrInvalidLevel is returned for a confidence level outside (0,1).
	ErrInvalidLevel = errors.New("confidence level must be in (0,1)")
)

// Interval holds the summary statistics of one sample set together with the
// confidence half-width for every requested level.
type Interval struct {
	N          int
	Mean       float64
	StdDev     float64 // sample standard deviation (n-1 denominator)
	StdErr     float64
	HalfWidths map[float64]float64
}

// HalfWidth returns the half-width for level and whether it was computed.
func (iv Interval) HalfWidth(level float64) (float64, bool) {
	w, ok := iv.HalfWidths[level]
	return w, ok
}

// Estimate computes the mean of samples and the Student-t half-width for each
// confidence level. The mean and standard error are computed once and shared
// by all levels.
func Estimate(samples []float64, levels ...float64) (Interval, error) {
	n := len(samples)
	if n < 2 {
		return Interval{N: n}, fmt.Errorf("%w: have %d, need at least 2", ErrInsufficientSamples, n)
	}
	for _, level := range levels {
		if err := ValidateLevel(level); err != nil {
			return Interval{N: n}, err
		}
	}

	mean := stat.Mean(samples, nil)
	sd := stat.StdDev(samples, nil)
	se := sd / math.Sqrt(float64(n))

	iv := Interval{
		N:          n,
		Mean:       mean,
		StdDev:     sd,
		StdErr:     se,
		HalfWidths: make(map[float64]float64, len(levels)),
	}
	for _, level := range levels {
		iv.HalfWidths[level] = TQuantile(n-1, level) * se
	}
	return iv, nil
}

// HalfWidth is a single-level shortcut for Estimate.
func HalfWidth(samples []float64, level float64) (float64, error) {
	iv, err := Estimate(samples, level)
	if err != nil {
		return 0, err
	}
	return iv.HalfWidths[level], nil
}

// TQuantile returns the two-sided Student-t critical value for the given
// degrees of freedom and confidence level, i.e. the 1-alpha/2 quantile.
func TQuantile(df int, level float64) float64 {
	alpha := 1 - level
	q := 1 - alpha/2
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return dist.Quantile(q)
}

// ValidateLevel checks that level is a usable confidence level.
func ValidateLevel(level float64) error {
	if math.IsNaN(level) || level <= 0 || level >= 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidLevel, level)
	}
	return nil
}
