// Package api exposes the gate's operator surface over HTTP: status
// inspection, engagement and mode control, watchdog reset, and the
// recent command audit trail.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/vehicle.gate/internal/db"
	"github.com/banshee-data/vehicle.gate/internal/gate"
	"github.com/banshee-data/vehicle.gate/internal/httputil"
	"github.com/banshee-data/vehicle.gate/internal/monitoring"
	"github.com/banshee-data/vehicle.gate/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Gate is the controller surface the API drives.
type Gate interface {
	Status() gate.GateStatus
	SetEngaged(bool)
	SetMode(gate.GateMode)
	ResetWatchdog()
}

type Server struct {
	gate  Gate
	db    *db.DB
	runID string
	units string
}

func NewServer(g Gate, db *db.DB, runID, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	return &Server{
		gate:  g,
		db:    db,
		runID: runID,
		units: speedUnits,
	}
}

// recordEvent appends an operator action to the audit trail. Failures are
// logged, not surfaced; the action itself already took effect.
func (s *Server) recordEvent(kind, detail string) {
	if s.db == nil {
		return
	}
	if err := s.db.RecordEvent(s.runID, kind, detail); err != nil {
		monitoring.Logf("failed to record %s event: %v", kind, err)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/commands", s.listCommands)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/engage", s.setEngaged)
	mux.HandleFunc("/api/mode", s.setMode)
	mux.HandleFunc("/api/reset", s.resetWatchdog)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

type statusResponse struct {
	Mode           string  `json:"mode"`
	Engaged        bool    `json:"engaged"`
	MrmState       string  `json:"mrm_state"`
	MrmBehavior    string  `json:"mrm_behavior"`
	MrmReason      string  `json:"mrm_reason,omitempty"`
	HeartbeatAgeMs float64 `json:"heartbeat_age_ms"`
	TickCount      uint64  `json:"tick_count"`
	DeadlineMisses uint64  `json:"deadline_misses"`
	VehicleSpeed   float64 `json:"vehicle_speed"`
	Units          string  `json:"units"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	st := s.gate.Status()
	httputil.WriteJSONOK(w, statusResponse{
		Mode:           st.Mode.String(),
		Engaged:        st.Engaged,
		MrmState:       st.Watchdog.String(),
		MrmBehavior:    st.Behavior.String(),
		MrmReason:      st.WatchdogReason,
		HeartbeatAgeMs: float64(st.HeartbeatAge.Nanoseconds()) / 1e6,
		TickCount:      st.TickCount,
		DeadlineMisses: st.DeadlineMisses,
		VehicleSpeed:   units.ConvertSpeed(st.LastOutput.Speed, s.units),
		Units:          s.units,
	})
}

type commandResponse struct {
	Tick         uint64  `json:"tick"`
	Mode         string  `json:"mode"`
	Engaged      bool    `json:"engaged"`
	Override     bool    `json:"override"`
	MrmState     string  `json:"mrm_state"`
	Steering     float64 `json:"steering_rad"`
	Speed        float64 `json:"speed"`
	Acceleration float64 `json:"acceleration"`
	VehicleSpeed float64 `json:"vehicle_speed"`
	Timestamp    string  `json:"timestamp"`
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	ticks, err := s.db.RecentTicks(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve commands: %v", err))
		return
	}

	out := make([]commandResponse, len(ticks))
	for i, t := range ticks {
		out[i] = commandResponse{
			Tick:         t.Tick,
			Mode:         t.Mode,
			Engaged:      t.Engaged,
			Override:     t.Override,
			MrmState:     t.MrmState,
			Steering:     t.OutSteering,
			Speed:        units.ConvertSpeed(t.OutSpeed, s.units),
			Acceleration: t.OutAccel,
			VehicleSpeed: units.ConvertSpeed(t.VehicleSpeed, s.units),
			Timestamp:    t.Timestamp.UTC().Format(time.RFC3339Nano),
		}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	events, err := s.db.Events(500)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	httputil.WriteJSONOK(w, events)
}

type engageRequest struct {
	Engage bool `json:"engage"`
}

func (s *Server) setEngaged(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req engageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	st := s.gate.Status()
	if req.Engage && st.Watchdog != gate.MrmNormal {
		httputil.Conflict(w, fmt.Sprintf("cannot engage while watchdog is %s", st.Watchdog))
		return
	}

	s.gate.SetEngaged(req.Engage)
	s.recordEvent("engage", fmt.Sprintf("engaged=%v", req.Engage))
	httputil.WriteJSONOK(w, map[string]bool{"engaged": req.Engage})
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	var mode gate.GateMode
	switch strings.ToUpper(req.Mode) {
	case "AUTO":
		mode = gate.ModeAuto
	case "EXTERNAL":
		mode = gate.ModeExternal
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}

	s.gate.SetMode(mode)
	s.recordEvent("mode", mode.String())
	httputil.WriteJSONOK(w, map[string]string{"mode": req.Mode})
}

func (s *Server) resetWatchdog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	s.gate.ResetWatchdog()
	s.recordEvent("watchdog_reset", "")
	httputil.WriteJSONOK(w, map[string]string{"watchdog": "reset"})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
