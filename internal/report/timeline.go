package report

import (
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/db"
)

// AssetsHost serves the echarts JavaScript. Override it for offline kiosks.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// decisionLevels orders decisions from most to least restrictive on the
// timeline's y axis.
var decisionLevels = []crossing.Decision{
	crossing.DecisionDanger,
	crossing.DecisionPreparing,
	crossing.DecisionTransition,
	crossing.DecisionSafe,
}

func level(d crossing.Decision) float64 {
	for i, l := range decisionLevels {
		if l == d {
			return float64(i)
		}
	}
	return float64(len(decisionLevels))
}

// TimelineHTML renders an HTML page with a decision step chart and a vehicle
// speed chart.
func TimelineHTML(w io.Writer, title string, records []db.DecisionRecord) error {
	x := make([]string, len(records))
	decisions := make([]opts.LineData, len(records))
	speeds := make([]opts.LineData, len(records))
	for i, r := range records {
		x[i] = r.Timestamp.Format("15:04:05.000")
		decisions[i] = opts.LineData{Value: r.Decision.String()}
		speeds[i] = opts.LineData{Value: r.MaxVehicleSpeed}
	}
	categories := make([]string, len(decisionLevels))
	for i, d := range decisionLevels {
		categories[i] = d.String()
	}

	decisionChart := charts.NewLine()
	decisionChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d frames", len(records))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: categories}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	decisionChart.SetXAxis(x).AddSeries("decision", decisions,
		charts.WithLineChartOpts(opts.LineChart{Step: "end", ShowSymbol: opts.Bool(false)}))

	speedChart := charts.NewLine()
	speedChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "300px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Fastest vehicle"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "px/s"}),
	)
	speedChart.SetXAxis(x).AddSeries("max speed", speeds,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	page := components.NewPage()
	page.SetPageTitle(title)
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(decisionChart, speedChart)
	return page.Render(w)
}

// timelinePlot builds the decision step plot. Time is in seconds from the
// first record.
func timelinePlot(title string, records []db.DecisionRecord) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Decision"

	ticks := make([]plot.Tick, len(decisionLevels))
	for i, d := range decisionLevels {
		ticks[i] = plot.Tick{Value: float64(i), Label: d.String()}
	}
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	p.Y.Min, p.Y.Max = -0.5, float64(len(decisionLevels))-0.5

	if len(records) == 0 {
		return p, nil
	}
	start := records[0].Timestamp
	pts := make(plotter.XYs, len(records))
	for i, r := range records {
		pts[i] = plotter.XY{X: r.Timestamp.Sub(start).Seconds(), Y: level(r.Decision)}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.StepStyle = plotter.PostStep
	line.Width = vg.Points(1.5)
	line.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	p.Add(line)
	return p, nil
}

// TimelinePNG writes the decision timeline as a PNG image.
func TimelinePNG(w io.Writer, title string, records []db.DecisionRecord) error {
	p, err := timelinePlot(title, records)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveTimelinePNG writes the decision timeline to file; the format follows
// the file extension.
func SaveTimelinePNG(file, title string, records []db.DecisionRecord) error {
	p, err := timelinePlot(title, records)
	if err != nil {
		return err
	}
	return p.Save(14*vg.Inch, 6*vg.Inch, file)
}
