// Package chart renders report series as PNG images (gonum/plot) and
// interactive HTML pages (go-echarts).
package chart

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/throughput.report/internal/fsutil"
	"github.com/banshee-data/throughput.report/internal/monitoring"
	"github.com/banshee-data/throughput.report/internal/report"
	"github.com/banshee-data/throughput.report/internal/security"
	"github.com/banshee-data/throughput.report/internal/units"
)

var logf = monitoring.Component("chart")

// Kind selects the chart shape.
type Kind int

const (
	// Bar draws one bar per group at each category, like a comparison of
	// variants across bit-error rates.
	Bar Kind = iota
	// Line draws one line per group over a numeric x axis, like throughput
	// against link delay.
	Line
)

func (k Kind) String() string {
	if k == Line {
		return "line"
	}
	return "bar"
}

// ParseKind parses "bar" or "line".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bar", "":
		return Bar, nil
	case "line":
		return Line, nil
	}
	return Bar, fmt.Errorf("unknown chart kind %q (valid: bar, line)", s)
}

// Format selects the output encoding.
type Format string

const (
	PNG  Format = "png"
	HTML Format = "html"
)

// ParseFormat parses "png" or "html".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case PNG, HTML:
		return f, nil
	case "":
		return PNG, nil
	}
	return "", fmt.Errorf("unknown output format %q (valid: png, html)", s)
}

// Options controls labelling and size.
type Options struct {
	Title  string
	XLabel string
	YLabel string

	// YUnit converts the stored Kbps values for display (bps, kbps, Mbps,
	// Gbps). Empty keeps Kbps.
	YUnit string

	// LogX puts the x axis of line charts on a log scale when every x is
	// positive.
	LogX bool

	// Width and Height of PNG output; zero uses 14x6 inches.
	Width, Height vg.Length

	// AssetsHost overrides the go-echarts script host for HTML output.
	AssetsHost string
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 14 * vg.Inch
	}
	if h <= 0 {
		h = 6 * vg.Inch
	}
	return w, h
}

func (o Options) yUnit() string {
	if o.YUnit == "" || !units.IsValidThroughput(o.YUnit) {
		return units.KBPS
	}
	return o.YUnit
}

func (o Options) yLabel() string {
	if o.YLabel != "" {
		return o.YLabel
	}
	return "Throughput (" + o.yUnit() + ")"
}

// scaled returns the mean and half-width of p in the display unit.
func (o Options) scaled(p report.SeriesPoint) (mean, width float64) {
	u := o.yUnit()
	return units.ConvertThroughput(p.Mean, u), units.ConvertThroughput(p.Width, u)
}

// Write renders series in the given kind and format to dir/name.<format>,
// replacing any previous file atomically. name is sanitised and the final
// path must stay inside dir. A nil fs writes to the OS filesystem.
func Write(fs fsutil.FileSystem, dir, name string, kind Kind, format Format, series []report.Series, o Options) (string, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if len(series) == 0 {
		return "", fmt.Errorf("no series to plot")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path, err := security.OutputPath(dir, name, "."+string(format))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	switch format {
	case HTML:
		err = RenderHTML(&buf, kind, series, o)
	default:
		err = RenderPNG(&buf, kind, series, o)
	}
	if err != nil {
		return "", err
	}
	if err := fs.WriteFileAtomic(path, buf.Bytes(), os.FileMode(0o644)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	logf("wrote %s chart with %d series to %s", kind, len(series), path)
	return path, nil
}
