package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// ChartOptions tunes RenderChart.
type ChartOptions struct {
	Title    string
	Subtitle string
	// AssetsHost overrides where the echarts scripts are loaded from.
	AssetsHost string
}

// RenderChart writes an HTML page with a line chart of vertical opening,
// mouth width and displacement per frame.
func RenderChart(w io.Writer, records []motion.Record, o ChartOptions) error {
	frames := make([]string, len(records))
	vertical := make([]opts.LineData, len(records))
	horizontal := make([]opts.LineData, len(records))
	displacement := make([]opts.LineData, len(records))
	for i, r := range records {
		frames[i] = strconv.Itoa(r.Frame)
		vertical[i] = opts.LineData{Value: r.Vertical}
		horizontal[i] = opts.LineData{Value: r.Horizontal}
		displacement[i] = opts.LineData{Value: r.Displacement}
	}

	subtitle := o.Subtitle
	if subtitle == "" {
		subtitle = fmt.Sprintf("frames=%d", len(records))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: o.Title, Width: "100%", Height: "560px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "normalized", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(frames).
		AddSeries("vertical", vertical).
		AddSeries("horizontal", horizontal).
		AddSeries("displacement", displacement).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
