// Package server wires the HTTP surface for the nikola backend.
package server

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/mistakeknot/nikola/internal/chat"
	"github.com/mistakeknot/nikola/internal/config"
	"github.com/mistakeknot/nikola/internal/llm"
	"github.com/mistakeknot/nikola/internal/memory"
)

//go:embed static
var staticFS embed.FS

// Version is the static version string reported by the health probes.
const Version = "0.1.0"

// Engine names the reply engine in chat responses and health probes.
const Engine = "Nikola"

// Server owns the mux, the component instances, and the listener.
type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	matcher *chat.Matcher
	store   *memory.Store
	llm     *llm.Client
	mux     *http.ServeMux
	srv     *http.Server
}

// New assembles the server. All collaborators are passed in; the
// server itself holds no ambient configuration.
func New(cfg config.Config, logger *slog.Logger, matcher *chat.Matcher, store *memory.Store, llmClient *llm.Client) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		matcher: matcher,
		store:   store,
		llm:     llmClient,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/chat/llm", s.handleChatLLM)
	s.mux.HandleFunc("POST /api/evm", s.handleEVM)
	s.mux.HandleFunc("POST /api/boq/total", s.handleBoQTotal)
	s.mux.HandleFunc("POST /api/boq/upload", s.handleBoQUpload)
	s.mux.HandleFunc("POST /api/agent/plan", s.handleAgentPlan)
	s.mux.HandleFunc("POST /api/agent/run", s.handleAgentRun)
	s.mux.HandleFunc("POST /api/memory/put", s.handleMemoryPut)
	s.mux.HandleFunc("GET /api/memory/get", s.handleMemoryGet)
	s.mux.HandleFunc("GET /favicon.ico", s.handleFavicon)
	s.mux.HandleFunc("GET /", s.handleIndex)

	sub, err := fs.Sub(staticFS, "static")
	if err == nil {
		s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(sub)))
	}
}

// Handler returns the full middleware chain for serving or testing.
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.withCORS(s.mux))
}

// ListenAndServe starts the server on the configured address.
func (s *Server) ListenAndServe() error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.logger.Info("nikola listening", "addr", s.cfg.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
