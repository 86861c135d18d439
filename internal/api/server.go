// Package api serves the UI collaborator surface: tracking status,
// active overlays, and the synchronous overlay command endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/overlay.studio/internal/db"
	"github.com/banshee-data/overlay.studio/internal/engine"
	"github.com/banshee-data/overlay.studio/internal/overlay"
	"github.com/banshee-data/overlay.studio/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Catalog is the overlay config lookup the add endpoint resolves
// against. *db.DB implements it; tests use an in-memory map.
type Catalog interface {
	GetOverlayConfig(id string) (overlay.Config, error)
	ListOverlayConfigs() ([]overlay.Config, error)
}

// EventSink records overlay command events for the session audit
// trail. May be nil.
type EventSink interface {
	InsertOverlayEvent(sessionID, event, overlayID, detail string) error
}

var _ Catalog = (*db.DB)(nil)
var _ EventSink = (*db.DB)(nil)

// Server exposes the engine over HTTP.
type Server struct {
	engine  *engine.Engine
	catalog Catalog
	events  EventSink
}

// NewServer wires the API around an engine and a catalog. events may be
// nil to disable audit recording.
func NewServer(eng *engine.Engine, catalog Catalog, events EventSink) *Server {
	return &Server{engine: eng, catalog: catalog, events: events}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	}
}

// LogRequest wraps a handler with method/path/status/duration logging.
func LogRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler.ServeHTTP(lrw, r)
		log.Printf("%s%s%s %s %s %s(%s)%s",
			colorCyan, r.Method, colorReset,
			r.URL.Path,
			statusCodeColor(lrw.statusCode),
			colorYellow, time.Since(start), colorReset)
	})
}

// RegisterRoutes attaches all API endpoints to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/tracking/reset", s.handleReset)
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/overlays", s.handleListOverlays)
	mux.HandleFunc("GET /api/render", s.handleRender)
	mux.HandleFunc("POST /api/overlays", s.handleAddOverlay)
	mux.HandleFunc("DELETE /api/overlays/{id}", s.handleRemoveOverlay)
	mux.HandleFunc("POST /api/overlays/{id}/toggle", s.handleToggleOverlay)
	mux.HandleFunc("PATCH /api/overlays/{id}/rendering", s.handleUpdateRendering)
	mux.HandleFunc("PATCH /api/overlays/{id}/position", s.handleUpdatePosition)
	mux.HandleFunc("POST /api/overlays/clear", s.handleClear)
	mux.HandleFunc("POST /api/video-context", s.handleVideoContext)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

type apiError struct {
	Error    string                 `json:"error"`
	Conflict *overlay.ConflictError `json:"conflict,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer io.Copy(io.Discard, r.Body)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) recordEvent(event, overlayID, detail string) {
	if s.events == nil {
		return
	}
	if err := s.events.InsertOverlayEvent(s.engine.SessionID(), event, overlayID, detail); err != nil {
		log.Printf("api: record event %s/%s: %v", event, overlayID, err)
	}
}

// statusResponse is the UI-facing status payload.
type statusResponse struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	FaceCount  int     `json:"face_count"`
	IsTracking bool    `json:"is_tracking"`
	Error      string  `json:"error,omitempty"`
	FPS        float64 `json:"fps"`
	Version    string  `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     string(snap.Status),
		Confidence: snap.Confidence,
		FaceCount:  snap.FaceCount,
		IsTracking: snap.IsTracking,
		Error:      snap.Error,
		FPS:        s.engine.FPS(),
		Version:    version.String(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	configs, err := s.catalog.ListOverlayConfigs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleListOverlays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Overlays())
}

// handleRender returns the draw list for the 2D compositor: enabled,
// visible overlays with current position and rendering, z-ordered.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.RenderSnapshot())
}

func (s *Server) handleAddOverlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"config_id"`
	}
	if err := decodeBody(r, &req); err != nil || req.ConfigID == "" {
		writeError(w, http.StatusBadRequest, "config_id required")
		return
	}
	cfg, err := s.catalog.GetOverlayConfig(req.ConfigID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.engine.AddOverlay(cfg); err != nil {
		var cerr *overlay.ConflictError
		if errors.As(err, &cerr) {
			s.recordEvent("conflict", cfg.ID, cerr.Error())
			writeJSON(w, http.StatusConflict, apiError{Error: cerr.Error(), Conflict: cerr})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.recordEvent("add", cfg.ID, string(cfg.Type))
	writeJSON(w, http.StatusCreated, map[string]string{"id": cfg.ID})
}

func (s *Server) handleRemoveOverlay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.engine.RemoveOverlay(id)
	s.recordEvent("remove", id, "")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleToggleOverlay flips the enabled flag, or sets it when the body
// carries an explicit value.
func (s *Server) handleToggleOverlay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed body")
			return
		}
	}
	s.engine.ToggleOverlay(id, req.Enabled)
	s.recordEvent("toggle", id, "")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUpdateRendering(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch overlay.RenderingPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if patch.Opacity != nil && (*patch.Opacity < 0 || *patch.Opacity > 1) {
		writeError(w, http.StatusBadRequest, "opacity must be in [0,1]")
		return
	}
	s.engine.UpdateOverlayRendering(id, patch)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch overlay.PositionPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.engine.UpdateOverlayPosition(id, patch)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearOverlays()
	s.recordEvent("clear", "", "")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleVideoContext lets the canvas/video collaborator report display
// dimensions and the mirroring flag.
func (s *Server) handleVideoContext(w http.ResponseWriter, r *http.Request) {
	var vctx overlay.VideoContext
	if err := decodeBody(r, &vctx); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.engine.SetVideoContext(vctx)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
