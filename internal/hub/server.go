// Package hub is the HTTP/WebSocket glue layer that makes the module
// runnable rather than a library: a thin chi API in front of
// internal/catalog, internal/registry, internal/learning, internal/sender,
// internal/pairing and internal/broadcast, modeled on the teacher's
// internal/dashboard/server.go.
package hub

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/broadcast"
	"github.com/irhub/irhub/internal/catalog"
	"github.com/irhub/irhub/internal/cipher"
	"github.com/irhub/irhub/internal/learning"
	"github.com/irhub/irhub/internal/logs"
	"github.com/irhub/irhub/internal/pairing"
	"github.com/irhub/irhub/internal/registry"
)

// Server is the irhub-hub API server.
type Server struct {
	store       *catalog.Store
	registry    *registry.Registry
	learning    *learning.Service
	broadcaster *broadcast.Broadcaster
	pairing     *pairing.HubManager
	logs        *logs.HubSink
	aead        *cipher.AEAD

	apiTokenHash string
	log          zerolog.Logger

	router     *chi.Mux
	wsUpgrader *websocket.Upgrader
	httpServer *http.Server
}

// New builds a Server and wires its router. aead may be nil when no
// settings master key is configured; none of the routes wired here read it.
func New(
	store *catalog.Store,
	reg *registry.Registry,
	learningSvc *learning.Service,
	b *broadcast.Broadcaster,
	pairingMgr *pairing.HubManager,
	logSink *logs.HubSink,
	aead *cipher.AEAD,
	apiTokenHash string,
	log zerolog.Logger,
) *Server {
	s := &Server{
		store:        store,
		registry:     reg,
		learning:     learningSvc,
		broadcaster:  b,
		pairing:      pairingMgr,
		logs:         logSink,
		aead:         aead,
		apiTokenHash: apiTokenHash,
		log:          log.With().Str("component", "hub").Logger(),
		wsUpgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIToken)

		r.Route("/api", func(r chi.Router) {
			r.Post("/remotes", s.handleCreateRemote)
			r.Get("/remotes", s.handleListRemotes)
			r.Post("/remotes/{id}/buttons", s.handleCreateButton)
			r.Get("/remotes/{id}/buttons", s.handleListButtons)

			r.Post("/learn/start", s.handleLearnStart)
			r.Post("/learn/capture", s.handleLearnCapture)
			r.Post("/learn/stop", s.handleLearnStop)

			r.Post("/buttons/{id}/send", s.handleSendButton)

			r.Post("/pairing/open", s.handlePairingOpen)
			r.Post("/pairing/{id}/accept", s.handlePairingAccept)
			r.Delete("/agents/{id}", s.handleDeleteAgent)
		})

		r.Get("/ws/status", s.handleWSStatus)
		r.Get("/ws/logs/{agentID}", s.handleWSLogs)
	})

	s.router = r
}

// Router exposes the chi mux, mainly for tests.
func (s *Server) Router() *chi.Mux { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the HTTP server and blocks until it exits. It always returns
// a non-nil error, matching http.Server.ListenAndServe.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	s.log.Info().Str("addr", addr).Msg("hub listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
