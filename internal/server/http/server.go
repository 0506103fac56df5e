// Package httpserver exposes the vault JSON API over HTTP.
package httpserver

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	vault   service.VaultService
	log     *zap.Logger
	origins []string
}

// New constructs an HTTP server with injected services. origins lists the
// browser origins allowed by CORS; empty allows any origin.
func New(auth service.AuthService, vault service.VaultService, log *zap.Logger, origins []string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, vault: vault, log: log.Named("http"), origins: origins}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(LimitBody(MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(s.auth))
			r.Get("/verify", s.handleVerify)
			r.Post("/change-password", s.handleChangePassword)
			r.Delete("/account", s.handleDeleteAccount)
		})
	})

	r.Route("/api/passwords", func(r chi.Router) {
		r.Use(RequireAuth(s.auth))
		r.Get("/", s.handleListEntries)
		r.Post("/", s.handleCreateEntry)
		r.Get("/count", s.handleCountEntries)
		r.Post("/search", s.handleSearchEntries)
		r.Get("/{id}", s.handleGetEntry)
		r.Put("/{id}", s.handleUpdateEntry)
		r.Delete("/{id}", s.handleDeleteEntry)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// mustUser returns the authenticated user id. RequireAuth guarantees it is present.
func mustUser(r *http.Request) uuid.UUID {
	sess, _ := SessionFromCtx(r.Context())
	return sess.UserID
}

// entryID parses the {id} path segment. A malformed id is reported as not found.
func entryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}
	return id, true
}
