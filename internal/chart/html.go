package chart

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/throughput.report/internal/report"
)

// emptyValue is the ECharts marker for a hole in a series.
const emptyValue = "-"

func round3(v float64) float64 { return math.Round(v*1e3) / 1e3 }

func intervalLabel(mean, width float64) string {
	if width == 0 {
		return strconv.FormatFloat(round3(mean), 'f', -1, 64)
	}
	return fmt.Sprintf("%g ± %g", round3(mean), round3(width))
}

// globalOpts builds the shared chart options. legend lists the series shown in
// the legend; interval bound lines are left out of it.
func (o Options) globalOpts(legend []string) []charts.GlobalOpts {
	initOpts := opts.Initialization{PageTitle: o.Title, Width: "100%", Height: "600px"}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: o.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom", Data: legend}),
		charts.WithXAxisOpts(opts.XAxis{Name: o.XLabel, Type: "category", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: o.yLabel(), NameLocation: "middle", NameGap: 50}),
	}
}

// RenderHTML writes a standalone go-echarts page showing series as a bar or
// line chart. Interval half-widths are shown in the tooltip of bar charts and
// as dashed bound lines on line charts.
func RenderHTML(w io.Writer, kind Kind, series []report.Series, o Options) error {
	categories := report.XValues(series)
	if len(series) == 0 || len(categories) == 0 {
		return fmt.Errorf("no data to plot")
	}

	var chart components.Charter
	if kind == Line {
		chart = lineChart(series, categories, o)
	} else {
		chart = barChart(series, categories, o)
	}

	page := components.NewPage()
	page.SetPageTitle(o.Title)
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(chart)
	return page.Render(w)
}

func byLabel(s report.Series) map[string]report.SeriesPoint {
	m := make(map[string]report.SeriesPoint, len(s.Points))
	for _, p := range s.Points {
		m[p.Label] = p
	}
	return m
}

func barChart(series []report.Series, categories []string, o Options) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(o.globalOpts(report.Groups(series))...)
	bar.SetXAxis(categories)
	for _, s := range series {
		pts := byLabel(s)
		data := make([]opts.BarData, len(categories))
		for i, c := range categories {
			p, ok := pts[c]
			if !ok {
				data[i] = opts.BarData{Name: c, Value: emptyValue}
				continue
			}
			mean, width := o.scaled(p)
			data[i] = opts.BarData{Name: intervalLabel(mean, width), Value: round3(mean)}
		}
		bar.AddSeries(s.Group, data)
	}
	return bar
}

func lineChart(series []report.Series, categories []string, o Options) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(o.globalOpts(report.Groups(series))...)
	line.SetXAxis(categories)
	for _, s := range series {
		pts := byLabel(s)
		mid := make([]opts.LineData, len(categories))
		lo := make([]opts.LineData, len(categories))
		hi := make([]opts.LineData, len(categories))
		hasWidth := false
		for i, c := range categories {
			p, ok := pts[c]
			if !ok {
				mid[i] = opts.LineData{Value: emptyValue}
				lo[i], hi[i] = mid[i], mid[i]
				continue
			}
			mean, width := o.scaled(p)
			mid[i] = opts.LineData{Name: intervalLabel(mean, width), Value: round3(mean)}
			lo[i] = opts.LineData{Value: round3(mean - width)}
			hi[i] = opts.LineData{Value: round3(mean + width)}
			hasWidth = hasWidth || width > 0
		}
		line.AddSeries(s.Group, mid, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
		if hasWidth {
			bound := charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Opacity: opts.Float(0.4)})
			line.AddSeries(s.Group+" low", lo, bound)
			line.AddSeries(s.Group+" high", hi, bound)
		}
	}
	return line
}
