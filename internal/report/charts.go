package report

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"covid-pipeline/internal/model"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var (
	barColor       = color.RGBA{R: 0x4c, G: 0x72, B: 0xb0, A: 0xff}
	highlightColor = color.RGBA{R: 0xdd, G: 0x84, B: 0x52, A: 0xff}
	historyColor   = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	meanColor      = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	band80Color    = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0x55}
	band95Color    = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0x28}
)

// series is one country's values over time
type series struct {
	name   string
	points plotter.XYs
}

func timeX(t time.Time) float64 { return float64(t.Unix()) }

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	return p
}

// placeholder is drawn instead of a chart that has no data.
func placeholder(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title + ": no data"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.HideAxes()
	return p
}

// topCountriesChart draws cumulative cases of the top n countries, with the
// highlighted country in a second colour.
func topCountriesChart(totals []model.CountryTotal, n int, highlight string) (*plot.Plot, error) {
	const title = "Confirmed cases by country"
	if n > len(totals) {
		n = len(totals)
	}
	if n == 0 {
		return placeholder(title), nil
	}

	values := make(plotter.Values, n)
	marked := make(plotter.Values, n)
	names := make([]string, n)
	for i, t := range totals[:n] {
		values[i] = float64(t.Cases)
		names[i] = t.Country
		if t.Country == highlight {
			marked[i] = float64(t.Cases)
		}
	}

	p := newPlot(fmt.Sprintf("%s (top %d)", title, n), "", "cases")
	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return nil, err
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)

	hl, err := plotter.NewBarChart(marked, vg.Points(18))
	if err != nil {
		return nil, err
	}
	hl.Color = highlightColor
	hl.LineStyle.Width = 0
	p.Add(hl)

	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = -1
	return p, nil
}

// lineChart draws one line per series against dates. On a log scale,
// non-positive points are dropped.
func lineChart(title, yLabel string, all []series, logScale bool) (*plot.Plot, error) {
	var kept []series
	for _, s := range all {
		pts := s.points
		if logScale {
			pts = positive(pts)
		}
		if len(pts) > 0 {
			kept = append(kept, series{name: s.name, points: pts})
		}
	}
	if len(kept) == 0 {
		return placeholder(title), nil
	}

	p := newPlot(title, "date", yLabel)
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Legend.Top = true
	p.Legend.Left = true

	for i, s := range kept {
		l, err := plotter.NewLine(s.points)
		if err != nil {
			return nil, err
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(s.name, l)
	}

	if logScale {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
		if p.Y.Min == p.Y.Max {
			p.Y.Min, p.Y.Max = p.Y.Min/10, p.Y.Max*10
		}
	}
	return p, nil
}

func positive(pts plotter.XYs) plotter.XYs {
	out := make(plotter.XYs, 0, len(pts))
	for _, pt := range pts {
		if pt.Y > 0 {
			out = append(out, pt)
		}
	}
	return out
}

// monthlyChart draws new cases per calendar month for one country.
func monthlyChart(months []model.CountryMonth, country string) (*plot.Plot, error) {
	title := fmt.Sprintf("Monthly new cases: %s", country)

	var values plotter.Values
	var names []string
	for _, m := range months {
		if m.Country != country {
			continue
		}
		values = append(values, float64(m.NewCases))
		names = append(names, m.MonthKey())
	}
	if len(values) == 0 {
		return placeholder(title), nil
	}

	p := newPlot(title, "", "new cases")
	bars, err := plotter.NewBarChart(values, vg.Points(10))
	if err != nil {
		return nil, err
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = -1
	return p, nil
}

// forecastChart draws the observed history, the point forecast and the
// widest and narrowest prediction bands.
func forecastChart(f *model.ForecastResult) (*plot.Plot, error) {
	const title = "Cumulative cases forecast"
	if f == nil || len(f.Points) == 0 {
		return placeholder(title), nil
	}

	p := newPlot(fmt.Sprintf("%s: %s, %s", title, f.Country, f.Order()), "date", "cases")
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Legend.Top = true
	p.Legend.Left = true

	levels := bandLevels(f)
	fills := []color.Color{band95Color, band80Color}
	for i, level := range levels {
		upper := make(plotter.XYs, 0, 2*len(f.Points))
		lower := make(plotter.XYs, 0, len(f.Points))
		for _, pt := range f.Points {
			iv, ok := pt.Interval(level)
			if !ok {
				continue
			}
			upper = append(upper, plotter.XY{X: timeX(pt.Date), Y: iv.Upper})
			lower = append(lower, plotter.XY{X: timeX(pt.Date), Y: iv.Lower})
		}
		if len(upper) == 0 {
			continue
		}
		ring := upper
		for j := len(lower) - 1; j >= 0; j-- {
			ring = append(ring, lower[j])
		}
		band, err := plotter.NewPolygon(ring)
		if err != nil {
			return nil, err
		}
		band.Color = fills[i%len(fills)]
		band.LineStyle.Width = 0
		p.Add(band)
		p.Legend.Add(fmt.Sprintf("%d%% interval", level), band)
	}

	if len(f.History) > 0 {
		hist := make(plotter.XYs, len(f.History))
		for i, v := range f.History {
			hist[i] = plotter.XY{X: timeX(f.FirstDate.AddDate(0, 0, i)), Y: v}
		}
		l, err := plotter.NewLine(hist)
		if err != nil {
			return nil, err
		}
		l.Color = historyColor
		p.Add(l)
		p.Legend.Add("observed", l)
	}

	mean := make(plotter.XYs, len(f.Points))
	for i, pt := range f.Points {
		mean[i] = plotter.XY{X: timeX(pt.Date), Y: pt.Mean}
	}
	l, err := plotter.NewLine(mean)
	if err != nil {
		return nil, err
	}
	l.Color = meanColor
	l.Width = vg.Points(1.5)
	p.Add(l)
	p.Legend.Add("forecast", l)

	return p, nil
}

// bandLevels returns the widest and narrowest interval levels, widest first.
func bandLevels(f *model.ForecastResult) []int {
	if len(f.Points) == 0 || len(f.Points[0].Intervals) == 0 {
		return nil
	}
	lo, hi := f.Points[0].Intervals[0].Level, f.Points[0].Intervals[0].Level
	for _, iv := range f.Points[0].Intervals {
		if iv.Level < lo {
			lo = iv.Level
		}
		if iv.Level > hi {
			hi = iv.Level
		}
	}
	if lo == hi {
		return []int{hi}
	}
	return []int{hi, lo}
}
