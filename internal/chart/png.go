package chart

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/throughput.report/internal/report"
)

// errPoints pairs plotted means with symmetric interval half-widths.
type errPoints struct {
	plotter.XYs
	plotter.YErrors
}

func (e *errPoints) add(x, y, halfWidth float64) {
	e.XYs = append(e.XYs, plotter.XY{X: x, Y: y})
	e.YErrors = append(e.YErrors, struct{ Low, High float64 }{halfWidth, halfWidth})
}

// BarPNG writes a grouped bar chart with interval error bars to path.
func BarPNG(series []report.Series, o Options, path string) error {
	p, err := barPlot(series, o)
	if err != nil {
		return err
	}
	w, h := o.size()
	return p.Save(w, h, path)
}

// LinePNG writes a line chart with markers and interval error bars to path.
func LinePNG(series []report.Series, o Options, path string) error {
	p, err := linePlot(series, o)
	if err != nil {
		return err
	}
	w, h := o.size()
	return p.Save(w, h, path)
}

// RenderPNG encodes the chart as PNG into w.
func RenderPNG(w io.Writer, kind Kind, series []report.Series, o Options) error {
	var (
		p   *plot.Plot
		err error
	)
	if kind == Line {
		p, err = linePlot(series, o)
	} else {
		p, err = barPlot(series, o)
	}
	if err != nil {
		return err
	}
	width, height := o.size()
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func newPlot(o Options) *plot.Plot {
	p := plot.New()
	p.Title.Text = o.Title
	p.X.Label.Text = o.XLabel
	p.Y.Label.Text = o.yLabel()
	p.Y.Min = 0
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func barPlot(series []report.Series, o Options) (*plot.Plot, error) {
	categories := report.XValues(series)
	if len(series) == 0 || len(categories) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	p := newPlot(o)
	colors := generateColors(len(series))

	// Bars of one category share a slot 0.8 data units wide. The plot area is
	// roughly 85% of the canvas, which converts that slot into a bar width.
	w, _ := o.size()
	slot := 0.8 / float64(len(series))
	unit := 0.85 * float64(w) / float64(len(categories))
	barWidth := vg.Length(math.Max(2, 0.9*slot*unit))

	for gi, s := range series {
		byLabel := make(map[string]report.SeriesPoint, len(s.Points))
		for _, pt := range s.Points {
			byLabel[pt.Label] = pt
		}

		xmin := (float64(gi) - float64(len(series)-1)/2) * slot
		values := make(plotter.Values, len(categories))
		var errs errPoints
		for ci, cat := range categories {
			pt, ok := byLabel[cat]
			if !ok || pt.Missing {
				continue
			}
			mean, width := o.scaled(pt)
			values[ci] = mean
			if width > 0 {
				errs.add(xmin+float64(ci), mean, width)
			}
		}

		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return nil, fmt.Errorf("bars for %s: %w", s.Group, err)
		}
		bars.XMin = xmin
		bars.Color = colors[gi]
		bars.LineStyle.Width = vg.Length(0)
		p.Add(bars)
		p.Legend.Add(s.Group, bars)

		if len(errs.XYs) > 0 {
			eb, err := plotter.NewYErrorBars(&errs)
			if err != nil {
				return nil, fmt.Errorf("error bars for %s: %w", s.Group, err)
			}
			eb.LineStyle.Width = vg.Points(1)
			p.Add(eb)
		}
	}

	ticks := make([]plot.Tick, len(categories))
	for i, c := range categories {
		ticks[i] = plot.Tick{Value: float64(i), Label: c}
	}
	p.X.Min = -0.5
	p.X.Max = float64(len(categories)) - 0.5
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	return p, nil
}

func linePlot(series []report.Series, o Options) (*plot.Plot, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	p := newPlot(o)
	colors := generateColors(len(series))

	var ticks []plot.Tick
	seen := make(map[string]bool)
	positive := true
	shapes := []draw.GlyphDrawer{draw.CircleGlyph{}, draw.BoxGlyph{}, draw.TriangleGlyph{}, draw.RingGlyph{}}

	for gi, s := range series {
		if len(s.Points) == 0 {
			logf("series %s has no points, skipping", s.Group)
			continue
		}
		var pts errPoints
		for _, pt := range s.Points {
			mean, width := o.scaled(pt)
			pts.add(pt.X, mean, width)
			if !seen[pt.Label] {
				seen[pt.Label] = true
				ticks = append(ticks, plot.Tick{Value: pt.X, Label: pt.Label})
			}
			if pt.X <= 0 {
				positive = false
			}
		}

		line, points, err := plotter.NewLinePoints(pts.XYs)
		if err != nil {
			return nil, fmt.Errorf("line for %s: %w", s.Group, err)
		}
		line.Color = colors[gi]
		line.Width = vg.Points(1.5)
		points.Color = colors[gi]
		points.Shape = shapes[gi%len(shapes)]
		points.Radius = vg.Points(3)
		p.Add(line, points)
		p.Legend.Add(s.Group, line, points)

		eb, err := plotter.NewYErrorBars(&pts)
		if err != nil {
			return nil, fmt.Errorf("error bars for %s: %w", s.Group, err)
		}
		eb.LineStyle.Color = colors[gi]
		eb.LineStyle.Width = vg.Points(1)
		p.Add(eb)
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}

	if o.LogX && positive {
		p.X.Scale = plot.LogScale{}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	return p, nil
}

// generateColors spreads n hues evenly around the colour wheel.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
