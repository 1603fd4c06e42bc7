// Package server exposes the parser registry over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cisec/eflp/internal/config"
	"github.com/cisec/eflp/internal/parser"
)

const shutdownTimeout = 30 * time.Second

// Server serves parse requests.
type Server struct {
	dispatcher     *parser.Dispatcher
	cfg            config.ServerSettings
	logger         zerolog.Logger
	upgrader       websocket.Upgrader
	apiToken       string
	allowedOrigins map[string]bool
	version        string
}

// New creates a Server over dispatcher.
func New(cfg config.ServerSettings, dispatcher *parser.Dispatcher, logger zerolog.Logger, version string) *Server {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}

	s := &Server{
		dispatcher:     dispatcher,
		cfg:            cfg,
		logger:         logger.With().Str("component", "server").Logger(),
		apiToken:       cfg.APIToken,
		allowedOrigins: origins,
		version:        version,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(RequestID, s.accessLog)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.apiAuthMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/vendors", s.handleVendors).Methods(http.MethodGet)
	api.HandleFunc("/vendors/{vendor}/mapping", s.handleMapping).Methods(http.MethodGet)
	api.HandleFunc("/parse/{vendor}", s.handleParse).Methods(http.MethodPost)
	api.HandleFunc("/stream/{vendor}", s.handleStream).Methods(http.MethodGet)

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	if s.apiToken == "" {
		s.logger.Warn().Msg("No API token configured - API requests will be rejected")
	}

	errCh := make(chan error, 1)
	go func() {
		if s.cfg.TLS.Enabled {
			s.logger.Info().Str("listen", s.cfg.Listen).Msg("Starting HTTPS server")
			errCh <- httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
			return
		}
		s.logger.Warn().Str("listen", s.cfg.Listen).Msg("Starting HTTP server (no TLS) - NOT RECOMMENDED FOR PRODUCTION")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// checkOrigin validates websocket origins. Non-browser clients send no Origin
// and are authenticated by bearer token; browser origins must be listed.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if s.allowedOrigins[origin] {
		return true
	}

	s.logger.Warn().Str("origin", origin).Msg("WebSocket connection rejected: origin not allowed")
	return false
}
