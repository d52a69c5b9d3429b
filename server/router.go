// Package server exposes the assistant over HTTP: a streaming chat endpoint
// speaking server-sent events, a JSON chat endpoint and tool diagnostics.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"journalagent/agent"
	loggerv2 "journalagent/logger/v2"
	"journalagent/mcpcache"
)

// ToolRegistry is the merged tool set the diagnostics endpoints report.
type ToolRegistry interface {
	GetTools(ctx context.Context) *mcpcache.ToolSet
	Refresh(ctx context.Context) *mcpcache.ToolSet
}

// Options tune the HTTP layer.
type Options struct {
	CORSOrigins  []string
	StreamBuffer int
	RunTimeout   time.Duration
}

// Server holds the handlers' dependencies.
type Server struct {
	agents   *Agents
	registry ToolRegistry
	logger   loggerv2.Logger
	opts     Options

	runs sync.WaitGroup
}

// New creates a server.
func New(agents *Agents, registry ToolRegistry, opts Options, logger loggerv2.Logger) *Server {
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = 64
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = agent.DefaultRunTimeout
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		agents:   agents,
		registry: registry,
		logger:   logger.With(loggerv2.String("component", "http")),
		opts:     opts,
	}
}

// Handler builds the router with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(exposeRequestID)
	r.Use(chimw.RealIP)
	r.Use(telemetry)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Trace-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/chat", func(r chi.Router) {
			r.Post("/", s.chat)
			r.Post("/stream", s.chatStream)
		})
		r.Route("/tools", func(r chi.Router) {
			r.Get("/", s.listTools)
			r.Post("/refresh", s.refreshTools)
		})
	})

	return r
}

// track keeps count of detached runs until finished is closed.
func (s *Server) track(finished <-chan struct{}) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		<-finished
	}()
}

// Drain waits for detached runs to finish or ctx to end.
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func describeTools(ts *mcpcache.ToolSet) toolsResponse {
	out := toolsResponse{Tools: make([]toolInfo, 0, len(ts.Schemas)), Degraded: ts.Degraded, FetchedAt: ts.FetchedAt}
	for _, sc := range ts.Schemas {
		h, _ := ts.Lookup(sc.Name)
		out.Tools = append(out.Tools, toolInfo{Name: sc.Name, Description: sc.Description, Source: h.Kind.String()})
	}
	return out
}
