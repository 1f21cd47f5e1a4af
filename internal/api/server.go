// Package api serves the crossing assistant's HTTP control surface: session
// start/stop, live status, the decision log, charts and a websocket feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/crosswalk/internal/db"
	"github.com/banshee-data/crosswalk/internal/guidance"
	"github.com/banshee-data/crosswalk/internal/httputil"
	"github.com/banshee-data/crosswalk/internal/monitoring"
	"github.com/banshee-data/crosswalk/internal/report"
	"github.com/banshee-data/crosswalk/internal/security"
	"github.com/banshee-data/crosswalk/internal/stream"
	"github.com/banshee-data/crosswalk/internal/version"
)

const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxSummaryRecords bounds how many decisions a summary or chart reads.
const maxSummaryRecords = 100000

// Controller starts and stops analysis sessions.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Stats() stream.Stats
}

// Guide is the user-feedback side of the assistant.
type Guide interface {
	Pause()
	Resume()
	Snapshot() guidance.Snapshot
	SetSettings(guidance.Settings)
}

// Store is the read side of the decision log.
type Store interface {
	ListSessions(limit int) ([]db.Session, error)
	GetSession(id string) (db.Session, error)
	LatestSession() (db.Session, error)
	ListDecisions(sessionID string, limit int) ([]db.DecisionRecord, error)
}

// Server routes HTTP requests to the session, announcer and decision log.
type Server struct {
	// ctx parents every session started over HTTP; request contexts end
	// with the response.
	ctx     context.Context
	session Controller
	guide   Guide
	store   Store
	hub     *Hub
}

// NewServer returns a server. store and hub may be nil, which disables the
// log routes and the websocket feed.
func NewServer(ctx context.Context, session Controller, guide Guide, store Store, hub *Hub) *Server {
	return &Server{ctx: ctx, session: session, guide: guide, store: store, hub: hub}
}

// Status is the body of GET /api/status.
type Status struct {
	Session  stream.Stats      `json:"session"`
	Guidance guidance.Snapshot `json:"guidance"`
	Clients  int               `json:"ws_clients"`
	Build    version.Info      `json:"build"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController (and the websocket upgrader's hijack)
// reach the underlying writer.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter { return lrw.ResponseWriter }

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

// LoggingMiddleware logs method, path, status and duration.
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

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/start", s.startSession)
	mux.HandleFunc("/api/stop", s.stopSession)
	mux.HandleFunc("/api/pause", s.pause)
	mux.HandleFunc("/api/resume", s.resume)
	mux.HandleFunc("/api/settings", s.settings)
	if s.store != nil {
		mux.HandleFunc("/api/sessions", s.listSessions)
		mux.HandleFunc("/api/sessions/{id}/summary", s.showSummary)
		mux.HandleFunc("/api/decisions", s.listDecisions)
		mux.HandleFunc("/charts/timeline", s.showTimeline)
	}
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return mux
}

func (s *Server) status() Status {
	st := Status{Session: s.session.Stats(), Guidance: s.guide.Snapshot(), Build: version.Get()}
	if s.hub != nil {
		st.Clients = s.hub.Clients()
	}
	return st
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.status())
}

func (s *Server) start(w http.ResponseWriter) bool {
	if err := s.session.Start(s.ctx); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, stream.ErrResourceUnavailable) {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSONError(w, code, err.Error())
		return false
	}
	return true
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.start(w) {
		httputil.WriteJSON(w, http.StatusOK, s.status())
	}
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.session.Stop()
	httputil.WriteJSON(w, http.StatusOK, s.status())
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.session.Stop()
	s.guide.Pause()
	httputil.WriteJSON(w, http.StatusOK, s.status())
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.guide.Resume()
	if s.start(w) {
		httputil.WriteJSON(w, http.StatusOK, s.status())
	}
}

func (s *Server) settings(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodPost) {
		return
	}
	if r.Method != http.MethodGet {
		settings := s.guide.Snapshot().Settings
		if err := decodeJSON(w, r, &settings); err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.guide.SetSettings(settings)
	}
	httputil.WriteJSON(w, http.StatusOK, s.guide.Snapshot().Settings)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	limit, ok := httputil.QueryInt(w, r, "limit", 20, 1, 1000)
	if !ok {
		return
	}
	sessions, err := s.store.ListSessions(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

// resolveSession maps "" or "latest" to the newest session id.
func (s *Server) resolveSession(w http.ResponseWriter, id string) (string, bool) {
	var (
		sess db.Session
		err  error
	)
	if id == "" || id == "latest" {
		sess, err = s.store.LatestSession()
	} else {
		sess, err = s.store.GetSession(id)
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		httputil.WriteJSONError(w, http.StatusNotFound, "session not found")
		return "", false
	case err != nil:
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return "", false
	}
	return sess.ID, true
}

func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	limit, ok := httputil.QueryInt(w, r, "limit", 100, 1, 10000)
	if !ok {
		return
	}
	id, ok := s.resolveSession(w, r.URL.Query().Get("session"))
	if !ok {
		return
	}
	records, err := s.store.ListDecisions(id, limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := s.resolveSession(w, r.PathValue("id"))
	if !ok {
		return
	}
	records, err := s.store.ListDecisions(id, maxSummaryRecords)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report.Summarize(id, records))
}

func (s *Server) showTimeline(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := s.resolveSession(w, r.URL.Query().Get("session"))
	if !ok {
		return
	}
	records, err := s.store.ListDecisions(id, maxSummaryRecords)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	title := "Session " + id
	switch format := r.URL.Query().Get("format"); format {
	case "", "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err = report.TimelineHTML(w, title, records)
	case "png":
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition",
			`inline; filename="`+security.SanitizeFilename("timeline-"+id+".png")+`"`)
		err = report.TimelinePNG(w, title, records)
	default:
		httputil.WriteJSONError(w, http.StatusBadRequest, "invalid format")
		return
	}
	if err != nil {
		monitoring.Logf("api: render timeline %s: %v", id, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
