package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/throughput.report/internal/stats"
)

// MeanColumn is the result column holding the sample mean.
const MeanColumn = "mean"

// levelPrefix prefixes interval half-width columns: off95, off99, ...
const levelPrefix = "off"

// DefaultLevels are the confidence levels reported when none are configured.
var DefaultLevels = []float64{0.99, 0.95}

// LevelColumn returns the column name for a confidence level: 0.95 -> off95,
// 0.999 -> off99.9.
func LevelColumn(level float64) string {
	pct := math.Round(level*1e4) / 1e2
	return levelPrefix + strconv.FormatFloat(pct, 'f', -1, 64)
}

// ParseLevelColumn is the inverse of LevelColumn.
func ParseLevelColumn(col string) (float64, bool) {
	if !strings.HasPrefix(col, levelPrefix) {
		return 0, false
	}
	pct, err := strconv.ParseFloat(col[len(levelPrefix):], 64)
	if err != nil {
		return 0, false
	}
	level := math.Round(pct*100) / 1e4
	if stats.ValidateLevel(level) != nil {
		return 0, false
	}
	return level, true
}

// ValidateLevel checks that level is a usable confidence level that survives
// the trip through its column name, e.g. 0.999 but not 0.99999 (off100) or
// 0.95123 (off95.12).
func ValidateLevel(level float64) error {
	if err := stats.ValidateLevel(level); err != nil {
		return err
	}
	col := LevelColumn(level)
	if back, ok := ParseLevelColumn(col); !ok || math.Abs(back-level) > 1e-12 {
		return fmt.Errorf("%w: %v has more than two decimal places as a percentage (column %s)",
			stats.ErrInvalidLevel, level, col)
	}
	return nil
}

// canonicalLevel snaps level to the value its column name parses back to.
func canonicalLevel(level float64) float64 {
	if back, ok := ParseLevelColumn(LevelColumn(level)); ok {
		return back
	}
	return level
}

// ParseLevels parses a comma-separated list of levels. Entries may be
// fractions (0.95) or percentages (95, 99.9); values in [1, 100) are read as
// percentages.
func ParseLevels(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", part, err)
		}
		if v >= 1 && v < 100 {
			v /= 100
		}
		if err := ValidateLevel(v); err != nil {
			return nil, err
		}
		out = append(out, canonicalLevel(v))
	}
	return out, nil
}

func isReservedColumn(name string) bool {
	if name == MeanColumn {
		return true
	}
	_, ok := ParseLevelColumn(name)
	return ok
}

// Row is the summary of one parameter point. Incomplete rows have NaN Mean
// and no half-widths.
type Row struct {
	Point      Point
	Mean       float64
	HalfWidths map[float64]float64
	Samples    int
	Invalid    int
	Incomplete bool
}

// IncompleteRow builds a row for a point that produced too few samples.
func IncompleteRow(p Point, samples, invalid int) Row {
	return Row{Point: p, Mean: math.NaN(), Samples: samples, Invalid: invalid, Incomplete: true}
}

// Stat returns the value of a statistics column (mean or offNN) for the row.
// ok is false for incomplete rows or an unknown column.
func (r Row) Stat(column string) (float64, bool) {
	if r.Incomplete {
		return 0, false
	}
	if column == MeanColumn {
		return r.Mean, true
	}
	level, ok := ParseLevelColumn(column)
	if !ok {
		return 0, false
	}
	for l, w := range r.HalfWidths {
		if math.Abs(l-level) < 1e-9 {
			return w, true
		}
	}
	return 0, false
}

// Table is an ordered set of summary rows sharing one schema.
type Table struct {
	Axes   []string
	Levels []float64
	Rows   []Row
}

// NewTable creates an empty table. Nil levels select DefaultLevels.
func NewTable(axes []string, levels []float64) *Table {
	if levels == nil {
		levels = DefaultLevels
	}
	return &Table{
		Axes:   append([]string(nil), axes...),
		Levels: append([]float64(nil), levels...),
	}
}

// Columns returns the header: axis names, mean, then one column per level.
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(t.Axes)+1+len(t.Levels))
	cols = append(cols, t.Axes...)
	cols = append(cols, MeanColumn)
	for _, l := range t.Levels {
		cols = append(cols, LevelColumn(l))
	}
	return cols
}

// StatColumns returns the statistics columns only.
func (t *Table) StatColumns() []string {
	return t.Columns()[len(t.Axes):]
}

// HasColumn reports whether column is part of the schema.
func (t *Table) HasColumn(column string) bool {
	for _, c := range t.Columns() {
		if c == column {
			return true
		}
	}
	return false
}

// HasAxis reports whether name is an axis of the table.
func (t *Table) HasAxis(name string) bool {
	for _, a := range t.Axes {
		if a == name {
			return true
		}
	}
	return false
}

// Append adds a row after checking it carries exactly the table's axes.
func (t *Table) Append(r Row) error {
	if len(r.Point) != len(t.Axes) {
		return fmt.Errorf("row has %d axes, table has %d", len(r.Point), len(t.Axes))
	}
	for i, c := range r.Point {
		if c.Axis != t.Axes[i] {
			return fmt.Errorf("row axis %d is %q, table expects %q", i, c.Axis, t.Axes[i])
		}
	}
	t.Rows = append(t.Rows, r)
	return nil
}

// Find returns the index of the first row at p, or -1.
func (t *Table) Find(p Point) int {
	key := p.Key()
	for i, r := range t.Rows {
		if r.Point.Key() == key || r.Point.Equal(p) {
			return i
		}
	}
	return -1
}

// Clone returns a copy of the table that shares no slices with t.
func (t *Table) Clone() *Table {
	c := NewTable(t.Axes, t.Levels)
	c.Rows = append([]Row(nil), t.Rows...)
	return c
}

// SameSchema reports whether o has the same axes and levels as t.
func (t *Table) SameSchema(o *Table) bool {
	a, b := t.Columns(), o.Columns()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
