package server

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/throughput.report/internal/chart"
	"github.com/banshee-data/throughput.report/internal/history"
	"github.com/banshee-data/throughput.report/internal/httputil"
	"github.com/banshee-data/throughput.report/internal/report"
	"github.com/banshee-data/throughput.report/internal/sweep"
	"github.com/banshee-data/throughput.report/internal/units"
)

//go:embed index.html
var indexFS embed.FS

var indexTmpl = template.Must(template.ParseFS(indexFS, "index.html"))

// inputInfo describes one served result file.
type inputInfo struct {
	Name    string   `json:"name"`
	Axes    []string `json:"axes,omitempty"`
	Columns []string `json:"stat_columns,omitempty"`
	Rows    int      `json:"rows"`
	Skipped int      `json:"skipped"`
	Error   string   `json:"error,omitempty"`
}

func (s *Server) describeInputs() []inputInfo {
	out := make([]inputInfo, 0, len(s.names))
	for _, name := range s.names {
		info := inputInfo{Name: name}
		ct, err := s.table(s.inputs[name], false)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Axes = ct.table.Axes
			info.Columns = ct.table.StatColumns()
			info.Rows = len(ct.table.Rows)
			info.Skipped = ct.warnings
		}
		out = append(out, info)
	}
	return out
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	data := struct {
		Inputs  []inputInfo
		History bool
	}{s.describeInputs(), s.history != nil}
	httputil.WriteRendered(w, "text/html; charset=utf-8", func(w io.Writer) error {
		return indexTmpl.Execute(w, data)
	})
}

func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.describeInputs())
}

// seriesView is a grouped slice of one result file, as served by
// /api/series and drawn by /chart.
type seriesView struct {
	Input   string            `json:"input"`
	Group   string            `json:"group"`
	X       string            `json:"x"`
	Stat    string            `json:"stat"`
	Fixed   map[string]string `json:"fixed"`
	Missing string            `json:"missing"`
	Series  []report.Series   `json:"series"`
}

// requestError carries the HTTP status a view error should be reported with.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }

func badRequest(err error) error { return &requestError{http.StatusBadRequest, err} }

func writeViewError(w http.ResponseWriter, err error) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		httputil.WriteJSONError(w, re.status, re.Error())
	case errors.Is(err, errUnknownInput), errors.Is(err, fs.ErrNotExist):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

// buildView parses the query of r into a series view. Axes that are neither
// fixed, grouped nor on x are pinned to the value of the first row, so each
// (group, x) pair maps to one row.
func (s *Server) buildView(r *http.Request) (*seriesView, error) {
	q := r.URL.Query()
	name, path, err := s.resolveInput(q.Get("input"))
	if err != nil {
		return nil, err
	}
	reload, _ := strconv.ParseBool(q.Get("reload"))
	ct, err := s.table(path, reload)
	if err != nil {
		return nil, err
	}
	t := ct.table

	fixed, err := report.ParseFixed(httputil.QueryList(r, "fix"))
	if err != nil {
		return nil, badRequest(err)
	}
	missing, err := report.ParseMissingPolicy(q.Get("missing"))
	if err != nil {
		return nil, badRequest(err)
	}
	group, x, err := chooseAxes(t, fixed, q.Get("group"), q.Get("x"))
	if err != nil {
		return nil, badRequest(err)
	}
	stat := q.Get("stat")
	if stat == "" {
		stat = defaultStat(t)
	}
	pinRemaining(t, fixed, group, x)

	filtered, err := report.Filter(t, fixed)
	if err != nil {
		return nil, badRequest(err)
	}
	series, err := report.GroupSeries(filtered, group, x, stat, report.GroupOptions{Missing: missing})
	if err != nil {
		return nil, badRequest(err)
	}
	return &seriesView{
		Input:   name,
		Group:   group,
		X:       x,
		Stat:    stat,
		Fixed:   fixed,
		Missing: missing.String(),
		Series:  series,
	}, nil
}

// chooseAxes fills an empty group or x with the first free axes in table
// order.
func chooseAxes(t *sweep.Table, fixed map[string]string, group, x string) (string, string, error) {
	var free []string
	for _, a := range t.Axes {
		if _, ok := fixed[a]; !ok && a != group && a != x {
			free = append(free, a)
		}
	}
	take := func() (string, error) {
		if len(free) == 0 {
			return "", fmt.Errorf("no free axis left among %s", strings.Join(t.Axes, ", "))
		}
		a := free[0]
		free = free[1:]
		return a, nil
	}
	var err error
	if group == "" {
		if group, err = take(); err != nil {
			return "", "", err
		}
	}
	if x == "" {
		if x, err = take(); err != nil {
			return "", "", err
		}
	}
	return group, x, nil
}

// defaultStat is the narrowest-level interval column, or the mean when the
// table has no levels.
func defaultStat(t *sweep.Table) string {
	if len(t.Levels) == 0 {
		return sweep.MeanColumn
	}
	levels := append([]float64(nil), t.Levels...)
	sort.Float64s(levels)
	return sweep.LevelColumn(levels[0])
}

func pinRemaining(t *sweep.Table, fixed map[string]string, group, x string) {
	if len(t.Rows) == 0 {
		return
	}
	for _, a := range t.Axes {
		if _, ok := fixed[a]; ok || a == group || a == x {
			continue
		}
		if v, ok := t.Rows[0].Point.Get(a); ok {
			fixed[a] = v.Text
		}
	}
}

func (v *seriesView) empty() bool {
	for _, s := range v.Series {
		if len(s.Points) > 0 {
			return false
		}
	}
	return true
}

func (v *seriesView) title() string {
	keys := make([]string, 0, len(v.Fixed))
	for k := range v.Fixed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + v.Fixed[k]
	}
	title := fmt.Sprintf("%s: %s by %s over %s", v.Input, v.Stat, v.Group, v.X)
	if len(parts) > 0 {
		title += " (" + strings.Join(parts, ", ") + ")"
	}
	return title
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	view, err := s.buildView(r)
	if err != nil {
		writeViewError(w, err)
		return
	}
	httputil.WriteJSONOK(w, view)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	kind, err := chart.ParseKind(q.Get("kind"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	format := chart.HTML
	if f := q.Get("format"); f != "" {
		if format, err = chart.ParseFormat(f); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	opts := s.chartOpts
	if u := q.Get("unit"); u != "" {
		if !units.IsValidThroughput(u) {
			httputil.BadRequest(w, fmt.Sprintf("invalid unit %q (valid: %s)", u, units.GetValidThroughputUnitsString()))
			return
		}
		opts.YUnit = u
	}
	if l := q.Get("logx"); l != "" {
		if opts.LogX, err = strconv.ParseBool(l); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid logx %q", l))
			return
		}
	}

	view, err := s.buildView(r)
	if err != nil {
		writeViewError(w, err)
		return
	}
	if view.empty() {
		httputil.NotFound(w, "no rows match "+view.title())
		return
	}
	opts.Title = q.Get("title")
	if opts.Title == "" {
		opts.Title = view.title()
	}
	if opts.XLabel == "" {
		opts.XLabel = view.X
	}

	if format == chart.PNG {
		httputil.WriteRendered(w, "image/png", func(w io.Writer) error {
			return chart.RenderPNG(w, kind, view.Series, opts)
		})
		return
	}
	httputil.WriteRendered(w, "text/html; charset=utf-8", func(w io.Writer) error {
		return chart.RenderHTML(w, kind, view.Series, opts)
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 20)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := s.history.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "no such run")
		return
	}
	run, err := s.history.GetRun(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if run == nil {
		httputil.NotFound(w, fmt.Sprintf("no such run %q", id))
		return
	}
	rows, err := s.history.RunRows(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, struct {
		*history.Run
		Points []history.RowRecord `json:"points"`
	}{run, rows})
}
