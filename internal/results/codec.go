package results

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/throughput.report/internal/sweep"
)

// NA marks an undefined statistic (an incomplete row).
const NA = "NA"

// document is a parsed result file. records holds every data record in file
// order, including malformed ones, so that a rewrite preserves them verbatim.
type document struct {
	path     string
	table    *sweep.Table
	records  [][]string
	rowRec   []int // table row index -> records index
	warnings []error
}

// SchemaFromHeader derives the axis names and confidence levels from a
// header record: axis columns, "mean", then one offNN column per level.
func SchemaFromHeader(header []string) (axes []string, levels []float64, err error) {
	meanAt := -1
	for i, col := range header {
		if strings.TrimSpace(col) == sweep.MeanColumn {
			meanAt = i
			break
		}
	}
	if meanAt < 1 {
		return nil, nil, fmt.Errorf("header must have at least one axis column before %q", sweep.MeanColumn)
	}
	for _, col := range header[:meanAt] {
		col = strings.TrimSpace(col)
		if col == "" {
			return nil, nil, errors.New("header has an empty axis column")
		}
		axes = append(axes, col)
	}
	for _, col := range header[meanAt+1:] {
		level, ok := sweep.ParseLevelColumn(strings.TrimSpace(col))
		if !ok {
			return nil, nil, fmt.Errorf("unknown statistics column %q", col)
		}
		levels = append(levels, level)
	}
	return axes, levels, nil
}

// looksLikeHeader reports whether rec is a header record rather than data.
func looksLikeHeader(rec []string) bool {
	_, _, err := SchemaFromHeader(rec)
	return err == nil
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != b[i] {
			return false
		}
	}
	return true
}

// decode parses a result file. An empty input yields a document with a nil
// table. want, when non-nil, is the schema the first header must match.
func decode(path string, data []byte, want *sweep.Table) (*document, error) {
	doc := &document{path: path}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var columns []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				doc.warn(pe.Line, fmt.Sprintf("unparseable record: %v", pe.Err))
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		line, _ := r.FieldPos(0)

		if columns == nil {
			axes, levels, err := SchemaFromHeader(rec)
			if err != nil {
				return nil, &SchemaMismatchError{Path: path, Line: line, Want: wantColumns(want), Got: rec}
			}
			doc.table = sweep.NewTable(axes, levels)
			columns = doc.table.Columns()
			if want != nil && !want.SameSchema(doc.table) {
				return nil, &SchemaMismatchError{Path: path, Line: line, Want: want.Columns(), Got: rec}
			}
			continue
		}

		if looksLikeHeader(rec) {
			if sameFields(rec, columns) {
				doc.warnings = append(doc.warnings, fmt.Errorf("%s:%d: repeated header skipped", path, line))
				continue
			}
			return nil, &SchemaMismatchError{Path: path, Line: line, Want: columns, Got: rec}
		}

		doc.records = append(doc.records, rec)
		row, reason := decodeRow(doc.table, rec)
		if reason != "" {
			doc.warn(line, reason)
			continue
		}
		doc.table.Rows = append(doc.table.Rows, row)
		doc.rowRec = append(doc.rowRec, len(doc.records)-1)
	}
	return doc, nil
}

func wantColumns(t *sweep.Table) []string {
	if t == nil {
		return nil
	}
	return t.Columns()
}

func (d *document) warn(line int, reason string) {
	d.warnings = append(d.warnings, &MalformedRowError{Path: d.path, Line: line, Reason: reason})
}

// decodeRow parses one data record. A non-empty reason means the record is
// malformed.
func decodeRow(t *sweep.Table, rec []string) (sweep.Row, string) {
	ncols := len(t.Axes) + 1 + len(t.Levels)
	if len(rec) != ncols {
		return sweep.Row{}, fmt.Sprintf("expected %d fields, got %d", ncols, len(rec))
	}

	point := make(sweep.Point, len(t.Axes))
	for i, name := range t.Axes {
		text := strings.TrimSpace(rec[i])
		if text == "" {
			return sweep.Row{}, fmt.Sprintf("empty value for axis %q", name)
		}
		point[i] = sweep.Coord{Axis: name, Value: sweep.ParseValue(text)}
	}

	statFields := rec[len(t.Axes):]
	na := 0
	for _, f := range statFields {
		if isNA(f) {
			na++
		}
	}
	switch {
	case na == len(statFields):
		return sweep.IncompleteRow(point, 0, 0), ""
	case na > 0:
		return sweep.Row{}, "partially missing statistics"
	}

	mean, err := parseStat(statFields[0])
	if err != nil {
		return sweep.Row{}, fmt.Sprintf("invalid mean %q", statFields[0])
	}
	row := sweep.Row{Point: point, Mean: mean, HalfWidths: make(map[float64]float64, len(t.Levels))}
	for i, level := range t.Levels {
		w, err := parseStat(statFields[i+1])
		if err != nil || w < 0 {
			return sweep.Row{}, fmt.Sprintf("invalid %s %q", sweep.LevelColumn(level), statFields[i+1])
		}
		row.HalfWidths[level] = w
	}
	return row, ""
}

func isNA(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, NA) || strings.EqualFold(s, "nan")
}

func parseStat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return v, nil
}

// encodeRow renders a row in the table's column order.
func encodeRow(t *sweep.Table, r sweep.Row) []string {
	rec := make([]string, 0, len(t.Axes)+1+len(t.Levels))
	rec = append(rec, r.Point.Texts()...)
	if r.Incomplete || math.IsNaN(r.Mean) {
		for i := 0; i <= len(t.Levels); i++ {
			rec = append(rec, NA)
		}
		return rec
	}
	rec = append(rec, formatStat(r.Mean))
	for _, level := range t.Levels {
		if w, ok := r.Stat(sweep.LevelColumn(level)); ok && !math.IsNaN(w) {
			rec = append(rec, formatStat(w))
		} else {
			rec = append(rec, NA)
		}
	}
	return rec
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// encode renders a header and records as CSV.
func encode(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

