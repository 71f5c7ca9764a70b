package sweep

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/throughput.report/internal/units"
)

// maxCombos bounds the size of the cartesian product of all axes.
const maxCombos = 10000

// ErrTooManyCombinations is returned when the axes would expand past the
// combination limit.
var ErrTooManyCombinations = errors.New("parameter combinations exceed safe limit")

// Axis is one named sweep dimension with its ordered values.
type Axis struct {
	Name   string
	Unit   string // units.MS for delay-like axes, empty otherwise
	Values []Value
}

// NewAxis builds an axis from raw value texts.
func NewAxis(name string, raw ...string) Axis {
	a := Axis{Name: name}
	for _, r := range raw {
		v := ParseValue(r)
		if v.Numeric && a.Unit == "" {
			if _, unit, err := units.SplitQuantity(r); err == nil && unit != "" {
				a.Unit = units.CanonicalTime
			}
		}
		a.Values = append(a.Values, v)
	}
	return a
}

// NumericAxis builds an axis from numbers.
func NumericAxis(name string, vals ...float64) Axis {
	a := Axis{Name: name}
	for _, v := range vals {
		a.Values = append(a.Values, NumberValue(v))
	}
	return a
}

// ParseAxis parses "name=v1,v2,..." or "name=min:max:step" (see
// ParseRangeSpec) into an Axis.
func ParseAxis(s string) (Axis, error) {
	name, spec, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Axis{}, fmt.Errorf("invalid axis %q: expected name=values", s)
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Axis{}, fmt.Errorf("axis %q has no values", name)
	}

	if strings.Contains(spec, ":") {
		r, err := ParseRangeSpec(spec)
		if err != nil {
			return Axis{}, fmt.Errorf("axis %q: %w", name, err)
		}
		vals := r.Values()
		if len(vals) == 0 {
			return Axis{}, fmt.Errorf("axis %q: range %q is empty", name, spec)
		}
		a := NumericAxis(name, vals...)
		if _, unit, err := units.SplitQuantity(strings.Split(spec, ":")[0]); err == nil && unit != "" {
			a.Unit = units.CanonicalTime
		}
		return a, nil
	}

	var raw []string
	for _, part := range strings.Split(spec, ",") {
		if part = strings.TrimSpace(part); part != "" {
			raw = append(raw, part)
		}
	}
	if len(raw) == 0 {
		return Axis{}, fmt.Errorf("axis %q has no values", name)
	}
	return NewAxis(name, raw...), nil
}

// ValidateAxes checks that axes are non-empty, uniquely named and that no
// axis repeats a value.
func ValidateAxes(axes []Axis) error {
	if len(axes) == 0 {
		return errors.New("no axes defined")
	}
	seen := make(map[string]bool, len(axes))
	for _, a := range axes {
		if a.Name == "" {
			return errors.New("axis with empty name")
		}
		if isReservedColumn(a.Name) {
			return fmt.Errorf("axis name %q collides with a statistics column", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate axis %q", a.Name)
		}
		seen[a.Name] = true
		if len(a.Values) == 0 {
			return fmt.Errorf("axis %q has no values", a.Name)
		}
		for i := range a.Values {
			for j := 0; j < i; j++ {
				if a.Values[i].Equal(a.Values[j]) {
					return fmt.Errorf("axis %q repeats value %s", a.Name, a.Values[i].Text)
				}
			}
		}
	}
	return nil
}

// AxisNames returns the axis names in order.
func AxisNames(axes []Axis) []string {
	names := make([]string, len(axes))
	for i, a := range axes {
		names[i] = a.Name
	}
	return names
}

// CountCombinations returns the size of the cartesian product, or
// ErrTooManyCombinations.
func CountCombinations(axes []Axis) (int, error) {
	total := int64(1)
	for _, a := range axes {
		total *= int64(len(a.Values))
		if total > maxCombos {
			return 0, fmt.Errorf("%w of %d", ErrTooManyCombinations, maxCombos)
		}
	}
	return int(total), nil
}

// Points generates the cartesian product of axes in axis order, with the
// first axis varying slowest and the last fastest.
func Points(axes []Axis) ([]Point, error) {
	if err := ValidateAxes(axes); err != nil {
		return nil, err
	}
	total, err := CountCombinations(axes)
	if err != nil {
		return nil, err
	}

	points := make([]Point, total)
	for i := range points {
		points[i] = make(Point, len(axes))
	}

	repeat := 1
	for dim := len(axes) - 1; dim >= 0; dim-- {
		vals := axes[dim].Values
		cycle := len(vals)
		for i := 0; i < total; i++ {
			points[i][dim] = Coord{Axis: axes[dim].Name, Value: vals[(i/repeat)%cycle]}
		}
		repeat *= cycle
	}
	return points, nil
}
