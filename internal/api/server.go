// Package api exposes the annotation service over HTTP: document CRUD,
// annotation CRUD, the rendered document with markers painted in, Markdown
// export, and a WebSocket feed of annotation events.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/serroba/doc-annotations/internal/acl"
	"github.com/serroba/doc-annotations/internal/session"
	"github.com/serroba/doc-annotations/internal/storage"
	"github.com/serroba/doc-annotations/internal/ws"
)

// Server handles HTTP requests for the annotation API.
type Server struct {
	manager   *session.Manager
	store     storage.Store
	permStore acl.Store
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// ServerConfig holds configuration for creating a server.
type ServerConfig struct {
	Manager   *session.Manager
	Store     storage.Store
	PermStore acl.Store
	Hub       *ws.Hub
	Logger    *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		manager:   cfg.Manager,
		store:     cfg.Store,
		permStore: cfg.PermStore,
		hub:       cfg.Hub,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true // Allow all origins for demo
			},
		},
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.authMiddleware)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", s.handleCreateDocument)

		r.Route("/{docID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Delete("/", s.handleDeleteDocument)
			r.Put("/content", s.handleReplaceContent)
			r.Get("/rendered", s.handleRenderedDocument)
			r.Get("/export", s.handleExportDocument)

			r.Route("/annotations", func(r chi.Router) {
				r.Get("/", s.handleListAnnotations)
				r.Post("/", s.handleCreateAnnotation)
			})
		})
	})

	r.Route("/annotations/{annotationID}", func(r chi.Router) {
		r.Patch("/", s.handleUpdateAnnotation)
		r.Delete("/", s.handleDeleteAnnotation)
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}
