package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server wraps the HTTP server for the API, the websocket and metrics.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// NewServer creates a new server. hub may be nil to disable the websocket.
func NewServer(handler *Handler, hub *WebSocketHub, port int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      Routes(handler, hub, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the full middleware-wrapped handler tree.
func Routes(handler *Handler, hub *WebSocketHub, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	if hub != nil {
		mux.HandleFunc("GET /api/v1/ws", hub.ServeWS)
	}
	return Logging(logger, Cors(WithRequestActor(mux)))
}

// Start begins listening for HTTP requests. Blocks until shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
