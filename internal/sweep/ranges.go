package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxValues bounds the number of values a single range may expand to.
const maxValues = 10000

// RangeSpec defines a parameter range for sweeping. A linear range steps by
// adding Step; a geometric range (Factor > 0) multiplies by Factor, which is
// the natural way to sweep bit-error rates across decades.
type RangeSpec struct {
	Min    float64
	Max    float64
	Step   float64
	Factor float64
}

// ParseRangeSpec parses "min:max:step" or "min:max:xfactor" into a RangeSpec.
// Bounds may carry a time suffix ("1ms:50ms:5ms"), in which case they are
// converted to milliseconds.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	min, err := parseBound(parts[0])
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}
	max, err := parseBound(parts[1])
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	stepText := strings.TrimSpace(parts[2])
	if strings.HasPrefix(stepText, "x") || strings.HasPrefix(stepText, "*") {
		factor, err := strconv.ParseFloat(stepText[1:], 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid factor %q: %w", parts[2], err)
		}
		if factor <= 1 {
			return RangeSpec{}, fmt.Errorf("factor must be greater than 1, got %v", factor)
		}
		if min <= 0 {
			return RangeSpec{}, fmt.Errorf("geometric range needs a positive min, got %v", min)
		}
		return RangeSpec{Min: min, Max: max, Factor: factor}, nil
	}

	step, err := parseBound(stepText)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}
	if step <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %f", step)
	}
	return RangeSpec{Min: min, Max: max, Step: step}, nil
}

func parseBound(s string) (float64, error) {
	v := ParseValue(s)
	if !v.Numeric {
		return 0, fmt.Errorf("not a number")
	}
	return v.Num, nil
}

// Values expands the range.
func (r RangeSpec) Values() []float64 {
	if r.Factor > 0 {
		return GenerateGeometric(r.Min, r.Max, r.Factor)
	}
	return GenerateRange(r.Min, r.Max, r.Step)
}

// GenerateRange generates values from min to max (inclusive) stepping by step.
// Returns nil if min > max or the range would exceed maxValues.
func GenerateRange(min, max, step float64) []float64 {
	if step <= 0 || min > max {
		return nil
	}
	expectedCount := int((max-min)/step) + 1
	if expectedCount > maxValues || expectedCount < 0 {
		return nil
	}

	var result []float64
	for i := 0; i <= expectedCount; i++ {
		// Compute from the index rather than accumulating to avoid drift.
		v := roundSignificant(min + float64(i)*step)
		if v > max+step/1000 {
			break
		}
		result = append(result, v)
	}
	return result
}

// GenerateGeometric generates min, min*factor, ... up to max (inclusive).
func GenerateGeometric(min, max, factor float64) []float64 {
	if min <= 0 || factor <= 1 || min > max {
		return nil
	}
	var result []float64
	for i := 0; len(result) < maxValues; i++ {
		v := roundSignificant(min * math.Pow(factor, float64(i)))
		if v > max*(1+1e-9) {
			break
		}
		result = append(result, v)
	}
	return result
}

// roundSignificant trims floating point noise to 12 significant digits.
func roundSignificant(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 12, 64), 64)
	if err != nil {
		return v
	}
	return r
}
