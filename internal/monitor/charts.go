// Package monitor serves debugging-only chart pages for the overlay
// engine: tracking confidence and frame rate over the recent session
// window, rendered with go-echarts. No auth; intended for local tuning.
package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/overlay.studio/internal/engine"
)

// Monitor renders engine history as chart pages.
type Monitor struct {
	engine *engine.Engine
}

// New creates a monitor over the given engine.
func New(eng *engine.Engine) *Monitor {
	return &Monitor{engine: eng}
}

// RegisterRoutes attaches the debug chart endpoints.
func (m *Monitor) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/charts/confidence", m.handleConfidenceChart)
	mux.HandleFunc("GET /debug/charts/fps", m.handleFPSChart)
}

// handleConfidenceChart renders confidence and face count over the
// recent sample window as an HTML line chart.
func (m *Monitor) handleConfidenceChart(w http.ResponseWriter, r *http.Request) {
	samples := m.engine.History()
	if len(samples) == 0 {
		http.Error(w, "no samples recorded yet", http.StatusNotFound)
		return
	}

	labels := make([]string, len(samples))
	confidence := make([]opts.LineData, len(samples))
	faces := make([]opts.LineData, len(samples))
	for i, s := range samples {
		labels[i] = time.UnixMilli(s.TimestampMs).Format("15:04:05")
		confidence[i] = opts.LineData{Value: s.Confidence}
		faces[i] = opts.LineData{Value: s.FaceCount}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracking Confidence", Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Tracking Confidence",
			Subtitle: fmt.Sprintf("session=%s samples=%d", m.engine.SessionID(), len(samples)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "confidence"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("confidence", confidence, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	line.AddSeries("faces", faces)

	renderChart(w, line.Render)
}

// handleFPSChart renders the processed frame rate over the recent
// sample window.
func (m *Monitor) handleFPSChart(w http.ResponseWriter, r *http.Request) {
	samples := m.engine.History()
	if len(samples) == 0 {
		http.Error(w, "no samples recorded yet", http.StatusNotFound)
		return
	}

	labels := make([]string, len(samples))
	fps := make([]opts.LineData, len(samples))
	for i, s := range samples {
		labels[i] = time.UnixMilli(s.TimestampMs).Format("15:04:05")
		fps[i] = opts.LineData{Value: s.FPS}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Frame Rate", Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Processed Frame Rate",
			Subtitle: fmt.Sprintf("session=%s", m.engine.SessionID()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "fps"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("fps", fps, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	renderChart(w, line.Render)
}

func renderChart(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
