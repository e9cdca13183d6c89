// ABOUTME: HTTP server wiring routes, CORS and lifecycle for ticketd
// ABOUTME: Serves over plain TCP or a Tailscale tsnet listener

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsnet"

	"github.com/trelliswork/ticketd/internal/config"
	"github.com/trelliswork/ticketd/internal/llm"
	"github.com/trelliswork/ticketd/internal/store"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Driver   string `json:"driver"`
	ServerID string `json:"serverId"`
	Uptime   string `json:"uptime"`
}

// Server dispatches HTTP requests to the ticket, settings and AI
// prompt handlers.
type Server struct {
	cfg         *config.Config
	store       store.Store
	llm         *llm.Client
	routes      []Route
	logger      *slog.Logger
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	// serverID identifies this ticketd instance
	serverID  string
	startTime time.Time
}

// New creates a Server over the given store. The llm client may be nil;
// the AI prompt endpoint is only registered when it is present.
func New(cfg *config.Config, st store.Store, llmClient *llm.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		store:     st,
		llm:       llmClient,
		logger:    logger.With("component", "server"),
		serverID:  uuid.New().String(),
		startTime: time.Now(),
	}
	s.routes = s.buildRoutes()
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) buildRoutes() []Route {
	routes := []Route{
		{http.MethodGet, "/", s.handleIndex},
		{http.MethodGet, "/api/data", s.handleGetData},
		{http.MethodPut, "/api/data", s.handlePutData},
		{http.MethodGet, "/api/tickets", s.handleListTickets},
		{http.MethodPost, "/api/tickets", s.handleCreateTicket},
		{http.MethodPut, "/api/tickets/:id", s.handleUpdateTicket},
		{http.MethodDelete, "/api/tickets/:id", s.handleDeleteTicket},
		{http.MethodGet, "/api/activity", s.handleListActivity},
		{http.MethodGet, "/api/settings", s.handleGetSettings},
		{http.MethodPut, "/api/settings", s.handlePutSettings},
		{http.MethodGet, "/health", s.handleHealth},
	}
	if s.llm != nil {
		routes = append(routes, Route{http.MethodPost, "/api/ai/prompt", s.handlePrompt})
	}
	return routes
}

// ServeHTTP applies CORS headers to every response, answers preflight
// requests, and dispatches to the matching route.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	route, params := match(s.routes, r.Method, r.URL.EscapedPath())
	if route == nil {
		s.sendJSONError(w, http.StatusNotFound, "Not found")
		return
	}
	route.Handler(w, r, params)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serveErr = <-errCh:
		s.logger.Error("server error", "error", serveErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.tsnetServer != nil {
		if closeErr := s.tsnetServer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.cfg.Tailscale.Enabled {
		return s.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.cfg.Server.Addr, err)
	}
	return ln, nil
}

// setupTailscaleListener creates a tsnet server and returns its listener.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.cfg.Tailscale

	authKey := tsCfg.AuthKey
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       tsCfg.StateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	if _, err := s.tsnetServer.Up(ctx); err != nil {
		return nil, fmt.Errorf("bringing up tailscale: %w", err)
	}

	ln, err := s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale: %w", err)
	}
	s.logger.Info("serving over tailscale", "hostname", tsCfg.Hostname)
	return ln, nil
}

// webDir returns where index.html lives. Defaults to the data directory.
func (s *Server) webDir() string {
	if s.cfg.Server.WebDir != "" {
		return s.cfg.Server.WebDir
	}
	return s.cfg.Storage.DataDir
}

// handleIndex handles GET / requests by serving index.html from the web
// directory.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	page, err := os.ReadFile(filepath.Join(s.webDir(), "index.html"))
	if err != nil {
		s.logger.Error("failed to read index.html", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Driver:   s.cfg.Storage.Driver,
		ServerID: s.serverID,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
