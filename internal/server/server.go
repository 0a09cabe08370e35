// Package server exposes the deobfuscator over HTTP: browser error and log
// reports on /error and /log, and MCP tools on /mcp.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/tracemap/internal/sourcemap"
)

// maxBodyBytes caps error and log report bodies.
const maxBodyBytes = 1 << 20

// Resolver resolves raw stack traces against the loaded source maps.
type Resolver interface {
	Resolve(stack string) []sourcemap.StackFrame
	Keys() []string
}

// Options configures a Server.
type Options struct {
	// HideLogs drops client log messages posted to /log
	HideLogs bool
	// Logger receives report and request logs; defaults to slog.Default
	Logger *slog.Logger
}

// Server is the HTTP front end of the deobfuscator.
type Server struct {
	resolver Resolver
	hideLogs bool
	log      *slog.Logger
	router   *chi.Mux
	mcp      *mcp.Server
}

// New creates a Server with routes and middleware configured.
func New(resolver Resolver, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		resolver: resolver,
		hideLogs: opts.HideLogs,
		log:      logger,
		router:   chi.NewRouter(),
	}
	s.mcp = NewMCPServer(resolver, logger)
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Post("/error", s.handleError)
	s.router.Post("/log", s.handleLog)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/maps", s.handleListMaps)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{Stateless: true})
	s.router.Handle("/mcp", mcpHandler)
}
