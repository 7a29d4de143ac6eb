// Package chart renders the dashboard's temperature and humidity line charts.
package chart

import (
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"furitingoasis/fogger/history"
)

// Sample is one hour of the simulated day.
type Sample struct {
	Hour        int
	Temperature float64
	Humidity    float64
}

// SimulatedDay is the smooth 24-hour curve shown when there is no history
// worth plotting: 25 + 5 sin(pi h/12) degrees and 50 + 10 cos(pi h/12) percent.
func SimulatedDay() []Sample {
	out := make([]Sample, 24)
	for h := 0; h < 24; h++ {
		x := math.Pi * float64(h) / 12
		out[h] = Sample{Hour: h, Temperature: 25 + 5*math.Sin(x), Humidity: 50 + 10*math.Cos(x)}
	}
	return out
}

func newLine(title, subtitle, xName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, PageTitle: title}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Value", Type: "value"}),
	)
	return line
}

// RenderSimulated writes the simulated day as a standalone HTML page.
func RenderSimulated(w io.Writer) error {
	day := SimulatedDay()
	hours := make([]int, len(day))
	temps := make([]opts.LineData, len(day))
	hums := make([]opts.LineData, len(day))
	for i, s := range day {
		hours[i] = s.Hour
		temps[i] = opts.LineData{Value: round(s.Temperature)}
		hums[i] = opts.LineData{Value: round(s.Humidity)}
	}

	line := newLine("Simulated Temperature and Humidity Over 24 Hours", "", "Hour of the Day")
	line.SetXAxis(hours).
		AddSeries("Temperature (°C)", temps).
		AddSeries("Humidity (%)", hums)
	return line.Render(w)
}

// RenderHistory writes stored readings as a standalone HTML page.
func RenderHistory(w io.Writer, points []history.Point) error {
	labels := make([]string, len(points))
	temps := make([]opts.LineData, len(points))
	hums := make([]opts.LineData, len(points))
	for i, p := range points {
		labels[i] = p.Timestamp.Local().Format("02/01 15:04")
		temps[i] = opts.LineData{Value: round(p.Temperature)}
		hums[i] = opts.LineData{Value: round(p.Humidity)}
	}

	subtitle := ""
	if len(points) == 0 {
		subtitle = "No readings stored yet"
	}
	line := newLine("Temperature and Humidity History", subtitle, "Time")
	line.SetXAxis(labels).
		AddSeries("Temperature (°C)", temps).
		AddSeries("Humidity (%)", hums)
	return line.Render(w)
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
