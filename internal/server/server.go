// Package server provides the HTTP server for the hand pose detection service.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/handpose/internal/app"
	"github.com/ayusman/handpose/internal/server/api"
	"github.com/ayusman/handpose/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
	Store     *store.Store
}

// Server represents the HTTP server for the detection service.
type Server struct {
	config  Config
	router  *mux.Router
	handler http.Handler
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = corsMiddleware(s.router)
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	// Detection endpoints need the pipeline
	if s.config.App != nil {
		detect := api.NewDetectHandler(s.config.App)
		s.router.HandleFunc("/api/detect", detect.Detect).Methods(http.MethodPost)
		s.router.HandleFunc("/api/model-info", detect.ModelInfo).Methods(http.MethodGet)
		s.router.Handle("/api/ws", NewFrameHandler(s.config.App)).Methods(http.MethodGet)
	}

	// Register history API handler if Store is configured
	if s.config.Store != nil {
		history := api.NewHistoryHandler(s.config.Store)
		s.router.HandleFunc("/api/history", history.List).Methods(http.MethodGet)
		s.router.HandleFunc("/api/history/{id}", history.Get).Methods(http.MethodGet)
		s.router.HandleFunc("/api/history/{id}", history.Delete).Methods(http.MethodDelete)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.router.PathPrefix("/").Handler(fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /health and /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// corsMiddleware allows any origin and answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		headers := r.Header.Get("Access-Control-Request-Headers")
		if headers == "" {
			headers = "Content-Type"
		}
		w.Header().Set("Access-Control-Allow-Headers", headers)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewHTTPServer returns an http.Server for s listening on addr.
// WriteTimeout is left unset so frame WebSockets stay open.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Handler:           s,
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return s.NewHTTPServer(addr).ListenAndServe()
}
