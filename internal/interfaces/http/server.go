// Package http exposes engine output over a read-only local dashboard API.
// Handlers never recompute scores; they serve what a scan produced.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/equityrun/equityrun/internal/domain"
	"github.com/equityrun/equityrun/internal/report"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Scanner is what the dashboard needs from the application layer.
type Scanner interface {
	Scan(ctx context.Context, markets []domain.Market) (*report.Document, error)
	Analyze(ctx context.Context, symbol string) (*domain.StockEvaluation, error)
}

// ServerConfig holds the dashboard's listen and timeout settings.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultServerConfig listens on localhost only.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "127.0.0.1",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   120 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 90 * time.Second,
	}
}

// Server is the read-only HTTP dashboard.
type Server struct {
	router  *mux.Router
	server  *http.Server
	scanner Scanner
	metrics *MetricsRegistry
	config  ServerConfig
	log     zerolog.Logger
}

// NewServer wires routes and middleware around the given scanner.
func NewServer(config ServerConfig, scanner Scanner, metrics *MetricsRegistry, log zerolog.Logger) *Server {
	if metrics == nil {
		metrics = NewMetricsRegistry()
	}
	s := &Server{
		router:  mux.NewRouter(),
		scanner: scanner,
		metrics: metrics,
		config:  config,
		log:     log,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/scan", s.handleScan).Methods("GET")
	api.HandleFunc("/analyze/{symbol}", s.handleAnalyze).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("dashboard listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("dashboard shutting down")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Address returns the configured listen address.
func (s *Server) Address() string { return s.server.Addr }

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		duration := time.Since(start)

		route := routeTemplate(r)
		s.metrics.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%d", wrapper.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", duration).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// routeTemplate returns the mux route pattern so metric labels stay bounded.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var markets []domain.Market
	if raw := r.URL.Query().Get("market"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			market := domain.Market(strings.ToUpper(strings.TrimSpace(part)))
			if !market.Valid() {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown market %q", part))
				return
			}
			markets = append(markets, market)
		}
	} else {
		markets = domain.AllMarkets()
	}

	doc, err := s.scanner.Scan(r.Context(), markets)
	if err != nil {
		s.log.Error().Err(err).Msg("scan request failed")
		writeError(w, http.StatusBadGateway, "scan failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	eval, err := s.scanner.Analyze(r.Context(), symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("analyze request failed")
		writeError(w, http.StatusBadGateway, "analyze failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
