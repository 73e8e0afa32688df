// Package server exposes the prediction service over HTTP: JSON text
// predictions, multipart file predictions, a health check, model metadata,
// Prometheus metrics, a websocket stream and the recorded prediction history.
package server

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"cipher-scan/internal/scan"
)

// Options configures the HTTP surface.
type Options struct {
	Addr           string
	AllowedOrigins []string // "*" allows any origin
	RequestTimeout time.Duration
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// StreamIdleTimeout closes a websocket that neither sends a frame nor
	// answers a ping for this long.
	StreamIdleTimeout time.Duration
	// StreamPingInterval must be shorter than StreamIdleTimeout.
	StreamPingInterval time.Duration
	// History serves /predictions; nil disables it.
	History History
}

// Server serves predictions over HTTP.
type Server struct {
	svc      *scan.Service
	opts     Options
	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a server for svc. Nothing is bound until Start.
func New(svc *scan.Service, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.StreamIdleTimeout <= 0 {
		opts.StreamIdleTimeout = 60 * time.Second
	}
	if opts.StreamPingInterval <= 0 || opts.StreamPingInterval >= opts.StreamIdleTimeout {
		opts.StreamPingInterval = opts.StreamIdleTimeout * 9 / 10
	}

	s := &Server{
		svc:  svc,
		opts: opts,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	r := mux.NewRouter()
	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/predict-file", s.handlePredictFile).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/model/info", s.handleModelInfo).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/ws/predict", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/predictions", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/predictions/{id}", s.handlePrediction).Methods(http.MethodGet)
	s.router = r

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	// CORS wraps the router so preflight requests are answered even though
	// no route is registered for OPTIONS.
	return s.cors(s.router)
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting prediction server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) originAllowed(origin string) bool {
	if slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, origin)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.originAllowed(origin)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed := s.originAllowed(origin)
		w.Header().Add("Vary", "Origin")
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		// Preflight
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed {
				writeError(w, http.StatusBadRequest, "Disallowed CORS origin")
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", "Authorization"}, ", "))
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
