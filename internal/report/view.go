// Package report slices a result table into plottable series: filter rows by
// fixed axis values, group by one axis and order by another.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/throughput.report/internal/monitoring"
	"github.com/banshee-data/throughput.report/internal/sweep"
)

var logf = monitoring.Component("report")

// MissingPolicy decides how a group without a usable row at some x value is
// rendered.
type MissingPolicy int

const (
	// Omit leaves the point out of the series (default).
	Omit MissingPolicy = iota
	// Sentinel inserts a (0, 0) point flagged Missing, as the original bar
	// plots did.
	Sentinel
)

func (p MissingPolicy) String() string {
	if p == Sentinel {
		return "zero"
	}
	return "omit"
}

// ParseMissingPolicy parses "omit" or "zero" (alias "sentinel").
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "omit":
		return Omit, nil
	case "zero", "sentinel":
		return Sentinel, nil
	}
	return Omit, fmt.Errorf("unknown missing policy %q (valid: omit, zero)", s)
}

// SeriesPoint is one plotted point. Width is the interval half-width of the
// selected statistics column, or zero for the mean.
type SeriesPoint struct {
	X       float64 `json:"x"`
	Label   string  `json:"label"`
	Mean    float64 `json:"mean"`
	Width   float64 `json:"width"`
	Missing bool    `json:"missing,omitempty"`
}

// Series is the points of one group, sorted ascending by X.
type Series struct {
	Group  string        `json:"group"`
	Points []SeriesPoint `json:"points"`
}

// GroupOptions configures GroupSeries.
type GroupOptions struct {
	Missing MissingPolicy
}

func normalizeFixed(t *sweep.Table, fixed map[string]string) (map[string]sweep.Value, error) {
	want := make(map[string]sweep.Value, len(fixed))
	for axis, raw := range fixed {
		if !t.HasAxis(axis) {
			return nil, fmt.Errorf("unknown axis %q (have %s)", axis, strings.Join(t.Axes, ", "))
		}
		want[axis] = sweep.ParseValue(raw)
	}
	return want, nil
}

func matches(p sweep.Point, want map[string]sweep.Value) bool {
	for axis, v := range want {
		got, ok := p.Get(axis)
		if !ok || !got.Equal(v) {
			return false
		}
	}
	return true
}

// Filter returns the rows whose values equal fixed on every named axis.
// Values are compared after normalisation: "10ms" matches a stored "10" and
// numbers match within sweep.NumericTolerance.
func Filter(t *sweep.Table, fixed map[string]string) (*sweep.Table, error) {
	want, err := normalizeFixed(t, fixed)
	if err != nil {
		return nil, err
	}
	out := sweep.NewTable(t.Axes, t.Levels)
	for _, r := range t.Rows {
		if matches(r.Point, want) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out, nil
}

// ParseFixed parses "axis=value" assignments.
func ParseFixed(assignments []string) (map[string]string, error) {
	fixed := make(map[string]string, len(assignments))
	for _, a := range assignments {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected axis=value", a)
		}
		fixed[k] = strings.TrimSpace(v)
	}
	return fixed, nil
}

func checkStatColumn(t *sweep.Table, statColumn string) error {
	if statColumn == sweep.MeanColumn {
		return nil
	}
	if _, ok := sweep.ParseLevelColumn(statColumn); !ok || !t.HasColumn(statColumn) {
		return fmt.Errorf("unknown statistics column %q (have %s)", statColumn, strings.Join(t.StatColumns(), ", "))
	}
	return nil
}

// rowValues extracts mean and width for statColumn. ok is false when the
// row has no usable value.
func rowValues(r sweep.Row, statColumn string) (mean, width float64, ok bool) {
	mean, ok = r.Stat(sweep.MeanColumn)
	if !ok {
		return 0, 0, false
	}
	if statColumn == sweep.MeanColumn {
		return mean, 0, true
	}
	width, ok = r.Stat(statColumn)
	return mean, width, ok
}

// GroupSeries partitions t by groupKey and orders each group by xAxis. Groups
// are sorted by value (numerically when numeric, else by name). When xAxis is
// not entirely numeric, points are placed at their ordinal position. The
// union of x values over all groups is the required set; a group with no
// complete row at a required x is handled by opts.Missing. When several rows
// share a (group, x) pair the last one wins.
func GroupSeries(t *sweep.Table, groupKey, xAxis, statColumn string, opts GroupOptions) ([]Series, error) {
	if !t.HasAxis(groupKey) {
		return nil, fmt.Errorf("unknown group axis %q", groupKey)
	}
	if !t.HasAxis(xAxis) {
		return nil, fmt.Errorf("unknown x axis %q", xAxis)
	}
	if groupKey == xAxis {
		return nil, fmt.Errorf("group and x axis must differ, both are %q", xAxis)
	}
	if err := checkStatColumn(t, statColumn); err != nil {
		return nil, err
	}

	var groups, xs []sweep.Value
	type cell struct {
		mean, width float64
		ok          bool
	}
	cells := make(map[string]map[string]cell)

	for _, r := range t.Rows {
		g, _ := r.Point.Get(groupKey)
		x, _ := r.Point.Get(xAxis)
		groups = addUnique(groups, g)
		xs = addUnique(xs, x)

		gk, xk := canonical(groups, g), canonical(xs, x)
		if cells[gk] == nil {
			cells[gk] = make(map[string]cell)
		}
		if prev, dup := cells[gk][xk]; dup && prev.ok {
			logf("duplicate row for %s=%s %s=%s, using the later one", groupKey, g.Text, xAxis, x.Text)
		}
		mean, width, ok := rowValues(r, statColumn)
		cells[gk][xk] = cell{mean: mean, width: width, ok: ok}
	}

	sortValues(groups)
	sortValues(xs)
	numericX := allNumeric(xs)

	series := make([]Series, 0, len(groups))
	for _, g := range groups {
		s := Series{Group: g.Text}
		for i, x := range xs {
			pos := float64(i)
			if numericX {
				pos = x.Num
			}
			c := cells[g.Text][x.Text]
			switch {
			case c.ok:
				s.Points = append(s.Points, SeriesPoint{X: pos, Label: x.Text, Mean: c.mean, Width: c.width})
			case opts.Missing == Sentinel:
				s.Points = append(s.Points, SeriesPoint{X: pos, Label: x.Text, Missing: true})
			}
		}
		series = append(series, s)
	}
	return series, nil
}

// addUnique appends v unless an equal value is present.
func addUnique(vals []sweep.Value, v sweep.Value) []sweep.Value {
	for _, have := range vals {
		if have.Equal(v) {
			return vals
		}
	}
	return append(vals, v)
}

// canonical returns the text of the stored value equal to v, so values that
// differ only within tolerance share one cell.
func canonical(vals []sweep.Value, v sweep.Value) string {
	for _, have := range vals {
		if have.Equal(v) {
			return have.Text
		}
	}
	return v.Text
}

func sortValues(vals []sweep.Value) {
	sort.SliceStable(vals, func(i, j int) bool { return vals[i].Less(vals[j]) })
}

func allNumeric(vals []sweep.Value) bool {
	for _, v := range vals {
		if !v.Numeric {
			return false
		}
	}
	return true
}

// Lookup returns the mean and statColumn width of the row matching key. key
// may name a subset of the axes; the last matching complete row wins.
func Lookup(t *sweep.Table, key map[string]string, statColumn string) (mean, width float64, ok bool) {
	want, err := normalizeFixed(t, key)
	if err != nil || checkStatColumn(t, statColumn) != nil {
		return 0, 0, false
	}
	for i := len(t.Rows) - 1; i >= 0; i-- {
		if matches(t.Rows[i].Point, want) {
			if m, w, ok := rowValues(t.Rows[i], statColumn); ok {
				return m, w, true
			}
		}
	}
	return 0, 0, false
}

// XValues returns the distinct x labels across series, in x order.
func XValues(series []Series) []string {
	type xl struct {
		x     float64
		label string
	}
	seen := make(map[string]bool)
	var all []xl
	for _, s := range series {
		for _, p := range s.Points {
			if !seen[p.Label] {
				seen[p.Label] = true
				all = append(all, xl{p.X, p.Label})
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].x < all[j].x })
	out := make([]string, len(all))
	for i, v := range all {
		out[i] = v.label
	}
	return out
}

// Groups returns the group names of series.
func Groups(series []Series) []string {
	out := make([]string, len(series))
	for i, s := range series {
		out[i] = s.Group
	}
	return out
}
