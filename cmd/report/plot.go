package main

import (
	"errors"
	"flag"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/banshee-data/throughput.report/internal/chart"
	"github.com/banshee-data/throughput.report/internal/fsutil"
	"github.com/banshee-data/throughput.report/internal/report"
	"github.com/banshee-data/throughput.report/internal/results"
	"github.com/banshee-data/throughput.report/internal/sweep"
)

// plotOptions is a parsed "report plot" invocation.
type plotOptions struct {
	input   string
	fix     []string
	group   string
	x       string
	stat    string
	missing string
	kind    string
	format  string
	outDir  string
	name    string
	chart   chart.Options
}

func handlePlot(args []string) {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	var o plotOptions
	var fix stringList
	fs.StringVar(&o.input, "input", "results.csv", "Result file")
	fs.Var(&fix, "fix", "Fixed axis value as axis=value (repeatable)")
	fs.StringVar(&o.group, "group", "", "Axis whose values become separate bars or lines")
	fs.StringVar(&o.x, "x", "", "Axis along the x axis")
	fs.StringVar(&o.stat, "stat", "off95", "Statistics column: mean or offNN")
	fs.StringVar(&o.missing, "missing", "omit", "Missing point policy: omit or zero")
	fs.StringVar(&o.kind, "kind", "bar", "Chart kind: bar or line")
	fs.StringVar(&o.format, "format", "png", "Output format: png or html")
	fs.StringVar(&o.outDir, "out", ".", "Output directory")
	fs.StringVar(&o.name, "name", "", "Output file name without extension (default derived from the view)")
	fs.StringVar(&o.chart.Title, "title", "", "Chart title")
	fs.StringVar(&o.chart.YUnit, "unit", "kbps", "Throughput display unit: bps, kbps, mbps or gbps")
	fs.BoolVar(&o.chart.LogX, "logx", false, "Log-scale x axis for line charts")
	fs.StringVar(&o.chart.AssetsHost, "assets-host", "", "Script host for HTML charts")
	quiet := fs.Bool("quiet", false, "Only log warnings and errors")
	fs.Parse(args)
	rtx.Must(flagx.ArgsFromEnv(fs), "failed to read flags from the environment")
	o.fix = fix

	setupLogging(*quiet)

	path, err := plot(nil, o)
	rtx.Must(err, "plot failed")
	log.Info("Wrote chart", "path", path)
}

// plot loads the result file, slices it as requested and writes the chart.
// A nil fsys uses the OS filesystem.
func plot(fsys fsutil.FileSystem, o plotOptions) (string, error) {
	if o.group == "" || o.x == "" {
		return "", errors.New("-group and -x are required")
	}
	kind, err := chart.ParseKind(o.kind)
	if err != nil {
		return "", err
	}
	format, err := chart.ParseFormat(o.format)
	if err != nil {
		return "", err
	}
	missing, err := report.ParseMissingPolicy(o.missing)
	if err != nil {
		return "", err
	}
	fixed, err := report.ParseFixed(o.fix)
	if err != nil {
		return "", err
	}
	if o.stat == "" {
		o.stat = sweep.MeanColumn
	}

	var opts []results.Option
	if fsys != nil {
		opts = append(opts, results.WithFileSystem(fsys))
	}
	lr, err := results.Load(o.input, opts...)
	if err != nil {
		return "", err
	}
	filtered, err := report.Filter(lr.Table, fixed)
	if err != nil {
		return "", err
	}
	if len(filtered.Rows) == 0 {
		return "", errors.New("no rows match the fixed values")
	}
	series, err := report.GroupSeries(filtered, o.group, o.x, o.stat, report.GroupOptions{Missing: missing})
	if err != nil {
		return "", err
	}

	if o.chart.XLabel == "" {
		o.chart.XLabel = o.x
	}
	name := o.name
	if name == "" {
		name = chartName(fixed, o.group, o.x)
	}
	return chart.Write(fsys, o.outDir, name, kind, format, series, o.chart)
}

// chartName derives a file name such as delay_10ms_tcp_by_ber.
func chartName(fixed map[string]string, group, x string) string {
	keys := make([]string, 0, len(fixed))
	for k := range fixed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+"_"+fixed[k])
	}
	parts = append(parts, group+"_by_"+x)
	return strings.Join(parts, "_")
}
