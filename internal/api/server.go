// Package api exposes the classified segment groups over a JSON HTTP
// API: the grouped table with filters, the confirmed-timer subset, the
// URL review list and run statistics.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/countdown.report/internal/db"
	"github.com/banshee-data/countdown.report/internal/httputil"
	"github.com/banshee-data/countdown.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// defaultPageSize bounds /api/groups responses when no limit is given.
const defaultPageSize = 200

type Server struct {
	db           *db.DB
	modelVersion string
}

func NewServer(database *db.DB, modelVersion string) *Server {
	return &Server{
		db:           database,
		modelVersion: modelVersion,
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
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/groups", s.listGroups)
	mux.HandleFunc("/api/timers", s.listTimers)
	mux.HandleFunc("/api/timers/urls", s.listTimerURLs)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// parseGroupFilter reads the shared query parameters of the group
// listing endpoints: site, model_version, limit, offset.
func (s *Server) parseGroupFilter(r *http.Request) (db.GroupFilter, string) {
	filter := db.GroupFilter{
		SiteURL:      r.URL.Query().Get("site"),
		ModelVersion: r.URL.Query().Get("model_version"),
		Limit:        defaultPageSize,
	}
	if filter.ModelVersion == "" {
		filter.ModelVersion = s.modelVersion
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			return filter, "Invalid 'limit' parameter"
		}
		filter.Limit = n
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			return filter, "Invalid 'offset' parameter"
		}
		filter.Offset = n
	}

	return filter, ""
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	filter, errMsg := s.parseGroupFilter(r)
	if errMsg != "" {
		httputil.BadRequest(w, errMsg)
		return
	}
	if t := r.URL.Query().Get("timers"); t == "1" || t == "true" {
		filter.OnlyTimers = true
	}

	groups, err := s.db.ListGroups(r.Context(), filter)
	if err != nil {
		log.Printf("failed to list groups: %v", err)
		httputil.InternalServerError(w, "Failed to list groups")
		return
	}
	if groups == nil {
		groups = []db.GroupRow{}
	}

	httputil.WriteJSONOK(w, groups)
}

func (s *Server) listTimers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	filter, errMsg := s.parseGroupFilter(r)
	if errMsg != "" {
		httputil.BadRequest(w, errMsg)
		return
	}
	filter.OnlyTimers = true

	timers, err := s.db.ListGroups(r.Context(), filter)
	if err != nil {
		log.Printf("failed to list timers: %v", err)
		httputil.InternalServerError(w, "Failed to list timers")
		return
	}
	if timers == nil {
		timers = []db.GroupRow{}
	}

	httputil.WriteJSONOK(w, timers)
}

func (s *Server) listTimerURLs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	modelVersion := r.URL.Query().Get("model_version")
	if modelVersion == "" {
		modelVersion = s.modelVersion
	}

	urls, err := s.db.TimerURLs(r.Context(), modelVersion)
	if err != nil {
		log.Printf("failed to list timer URLs: %v", err)
		httputil.InternalServerError(w, "Failed to list timer URLs")
		return
	}
	if urls == nil {
		urls = []string{}
	}

	httputil.WriteJSONOK(w, urls)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	modelVersion := r.URL.Query().Get("model_version")
	if modelVersion == "" {
		modelVersion = s.modelVersion
	}

	stats, err := s.db.Stats(r.Context(), modelVersion)
	if err != nil {
		log.Printf("failed to compute stats: %v", err)
		httputil.InternalServerError(w, "Failed to compute stats")
		return
	}

	observations, err := s.db.CountObservations(r.Context())
	if err != nil {
		log.Printf("failed to count observations: %v", err)
		httputil.InternalServerError(w, "Failed to count observations")
		return
	}

	httputil.WriteJSONOK(w, map[string]any{
		"version":      version.Version,
		"observations": observations,
		"groups":       stats,
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}
