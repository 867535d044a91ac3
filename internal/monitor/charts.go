package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/vehicle.gate/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachDebugRoutes mounts the history inspection endpoints. These are
// debugging-only endpoints (no auth), meant for comparing raw vs emitted
// commands without a frontend.
func (h *History) AttachDebugRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/gate/history", h.handleHistoryJSON)
	mux.HandleFunc("/debug/gate/chart", h.handleCommandChart)
}

func (h *History) handleHistoryJSON(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, h.Snapshot())
}

// handleCommandChart renders raw vs filtered steering and acceleration
// over the buffered ticks.
func (h *History) handleCommandChart(w http.ResponseWriter, r *http.Request) {
	ticks := h.Snapshot()
	if len(ticks) == 0 {
		httputil.NotFound(w, "no tick history available")
		return
	}

	maxPoints := 2000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}
	stride := 1
	if len(ticks) > maxPoints {
		stride = (len(ticks) + maxPoints - 1) / maxPoints
	}

	var x []string
	var rawSteer, outSteer, rawAccel, outAccel, speed []opts.LineData
	for i := 0; i < len(ticks); i += stride {
		t := ticks[i]
		x = append(x, strconv.FormatUint(t.Tick, 10))
		rawSteer = append(rawSteer, opts.LineData{Value: t.Raw.SteeringAngle})
		outSteer = append(outSteer, opts.LineData{Value: t.Control.SteeringAngle})
		rawAccel = append(rawAccel, opts.LineData{Value: t.Raw.Acceleration})
		outAccel = append(outAccel, opts.LineData{Value: t.Control.Acceleration})
		speed = append(speed, opts.LineData{Value: t.Speed})
	}

	steer := charts.NewLine()
	steer.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gate Commands", Theme: "dark", Width: "1200px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Steering", Subtitle: fmt.Sprintf("ticks=%d stride=%d", len(x), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	steer.SetXAxis(x).
		AddSeries("raw", rawSteer).
		AddSeries("emitted", outSteer)

	accel := charts.NewLine()
	accel.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Acceleration"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	accel.SetXAxis(x).
		AddSeries("raw", rawAccel).
		AddSeries("emitted", outAccel)

	vel := charts.NewLine()
	vel.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Vehicle Speed"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	vel.SetXAxis(x).AddSeries("speed", speed)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(steer, accel, vel)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
