// Package sweep runs repeated trials over the cartesian product of parameter
// axes and summarises each parameter point with confidence intervals.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/throughput.report/internal/units"
)

// NumericTolerance is the absolute tolerance used when comparing numeric
// parameter values.
const NumericTolerance = 1e-9

// Value is one normalised parameter value. Text is the canonical form used in
// result files and keys; Num is set when the value is numeric. Values with a
// time suffix ("10ms", "0.5us") are converted to milliseconds.
type Value struct {
	Text    string
	Num     float64
	Numeric bool
}

// ParseValue normalises raw parameter text.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return NumberValue(v)
	}
	if ms, err := units.ToMillis(s); err == nil && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
		return NumberValue(ms)
	}
	return Value{Text: s}
}

// NumberValue builds a numeric Value with canonical text.
func NumberValue(v float64) Value {
	return Value{Text: strconv.FormatFloat(v, 'g', -1, 64), Num: v, Numeric: true}
}

// Equal reports whether two values denote the same parameter setting.
func (v Value) Equal(o Value) bool {
	if v.Numeric && o.Numeric {
		return math.Abs(v.Num-o.Num) < NumericTolerance
	}
	return v.Text == o.Text
}

// Less orders numeric values numerically and before text values; text values
// order lexically.
func (v Value) Less(o Value) bool {
	switch {
	case v.Numeric && o.Numeric:
		return v.Num < o.Num && !v.Equal(o)
	case v.Numeric:
		return true
	case o.Numeric:
		return false
	}
	return v.Text < o.Text
}

func (v Value) String() string { return v.Text }

// Coord is one (axis, value) pair of a Point.
type Coord struct {
	Axis  string
	Value Value
}

// Point is an ordered tuple of axis values. Points are never modified after
// generation.
type Point []Coord

// Get returns the value for axis.
func (p Point) Get(axis string) (Value, bool) {
	for _, c := range p {
		if c.Axis == axis {
			return c.Value, true
		}
	}
	return Value{}, false
}

// Key is the canonical composite key of the point, used for duplicate
// detection.
func (p Point) Key() string {
	var b strings.Builder
	for i, c := range p {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(c.Axis)
		b.WriteByte('=')
		b.WriteString(c.Value.Text)
	}
	return b.String()
}

// Equal compares two points axis by axis with numeric tolerance.
func (p Point) Equal(o Point) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i].Axis != o[i].Axis || !p[i].Value.Equal(o[i].Value) {
			return false
		}
	}
	return true
}

// Texts returns the canonical value texts in axis order.
func (p Point) Texts() []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = c.Value.Text
	}
	return out
}

// Map returns the point as axis -> canonical text.
func (p Point) Map() map[string]string {
	out := make(map[string]string, len(p))
	for _, c := range p {
		out[c.Axis] = c.Value.Text
	}
	return out
}

func (p Point) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = fmt.Sprintf("%s=%s", c.Axis, c.Value.Text)
	}
	return strings.Join(parts, " ")
}
