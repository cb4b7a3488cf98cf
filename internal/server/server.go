package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hongminglow/userhub/internal/auth"
	"github.com/hongminglow/userhub/internal/config"
	"github.com/hongminglow/userhub/internal/http/handlers"
	"github.com/hongminglow/userhub/internal/logging"
	"github.com/hongminglow/userhub/internal/middleware"
	"github.com/hongminglow/userhub/internal/users"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Users  users.Repository
	Tokens *auth.TokenManager
	DB     handlers.Pinger
	Log    logging.Logger
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
	log   logging.Logger
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), deps.DB).Register(mux)
	handlers.NewMetaHandler(cfg).Register(mux)
	handlers.NewAuthHandler(deps.Users, deps.Tokens, log.With("component", "auth")).Register(mux)
	handlers.NewUsersHandler(deps.Users, deps.Tokens, log.With("component", "users_http")).Register(mux)

	handler := middleware.Chain(mux,
		middleware.CORS(cfg.CORSOrigins),
		middleware.Logging(log.With("component", "http")),
	)

	return &Server{
		inner: &http.Server{
			Addr:              cfg.HTTPAddress(),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
}

// Handler exposes the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.inner.Handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "http server listening", "addr", s.inner.Addr)
	return s.inner.ListenAndServe()
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	return s.inner.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
