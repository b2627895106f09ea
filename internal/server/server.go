// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chatrelay/chatrelay/internal/catalog"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/session"
	"github.com/chatrelay/chatrelay/internal/store"
)

// Server holds the HTTP router and the dependencies handlers need. All of
// them are passed in explicitly — no package-level provider clients or
// registries, so tests can wire fakes without touching globals.
type Server struct {
	router   chi.Router
	provider provider.Provider
	registry *session.Registry
	catalog  *catalog.Catalog
	store    store.MessageStore

	// fragmentTimeout is the bounded wait for each upstream fragment,
	// applied around the provider's chunk channel. 0 disables it.
	fragmentTimeout time.Duration
}

// New creates a Server with routes and middleware wired, ready to use as an
// http.Handler.
func New(p provider.Provider, reg *session.Registry, cat *catalog.Catalog, st store.MessageStore, fragmentTimeout time.Duration) *Server {
	s := &Server{
		provider:        p,
		registry:        reg,
		catalog:         cat,
		store:           st,
		fragmentTimeout: fragmentTimeout,
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions,
// gathered in one method so the routing table is easy to scan.
func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/chat/stream", s.handleChatStream)

	s.router = r
}

// ServeHTTP makes Server satisfy http.Handler by delegating to chi.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
