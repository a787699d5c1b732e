// Package httpapi exposes the relay over the hardware bridge HTTP API.
//
// All endpoints are GET requests answered with JSON, or CBOR when the
// client sends "Accept: application/cbor". Unknown paths yield a 404 with
// {"status": "not supported"}.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/notnil/canrelay/relay"
)

// Server routes bridge API requests to a Relay.
type Server struct {
	relay    *relay.Relay
	counters *relay.Counters
	logger   *slog.Logger
	now      func() time.Time
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used by the settings endpoints.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer creates a Server for rl.
func NewServer(rl *relay.Relay, opts ...Option) *Server {
	s := &Server{
		relay:    rl,
		counters: rl.Counters(),
		logger:   slog.Default(),
		now:      time.Now,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /statistics", s.handleStatistics)
	s.mux.HandleFunc("GET /settings/datetime", s.handleDatetime)
	s.mux.HandleFunc("GET /settings/timezone", s.handleTimezone)
	s.mux.HandleFunc("GET /automotive/supported_buses", s.handleSupportedBuses)
	s.mux.HandleFunc("GET /automotive/{bus}/cansend", s.handleCansend)
	s.mux.HandleFunc("GET /automotive/{bus}/isotpsend_and_wait", s.handleIsotpSendAndWait)
	s.mux.HandleFunc("/", s.handleNotSupported)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
