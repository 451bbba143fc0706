/*
Package api
File: router.go
Description:
    Builds the chi router and wires sign-out to session teardown.
*/

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/everforgeworks/idle-tycoon/internal/auth"
	"github.com/everforgeworks/idle-tycoon/internal/config"
	"github.com/everforgeworks/idle-tycoon/internal/metrics"
	"github.com/everforgeworks/idle-tycoon/internal/session"
)

// Server holds the collaborators behind the HTTP routes.
type Server struct {
	sessions *session.Manager
	auth     *auth.Provider
	hub      *Hub
	limiter  *RateLimiter
	metrics  *metrics.Economy
	metricsH http.Handler
	logger   *zap.Logger
	cfg      config.ServerConfig

	unsubscribe func()
}

// NewServer wires the API. Signing out closes the user's game session.
func NewServer(cfg config.ServerConfig, sessions *session.Manager, provider *auth.Provider, hub *Hub, m *metrics.Economy, logger *zap.Logger) *Server {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sessions: sessions,
		auth:     provider,
		hub:      hub,
		limiter:  NewRateLimiter(cfg.ClickRate, cfg.ClickBurst),
		metrics:  m,
		metricsH: promhttp.Handler(),
		logger:   logger,
		cfg:      cfg,
	}
	hub.HandleIntents(s.applyIntent)
	s.unsubscribe = provider.Subscribe(func(uid string, u *auth.User) {
		if u == nil {
			sessions.Close(context.Background(), uid)
		}
	})
	return s
}

// Close detaches the server from the auth provider.
func (s *Server) Close() {
	s.unsubscribe()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors(s.cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metricsH)

	r.Route("/api", func(r chi.Router) {
		// Identity
		r.Post("/auth/signin", s.HandleSignIn)
		r.Post("/auth/signup", s.HandleSignUp)
		r.Post("/auth/signout", s.HandleSignOut)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/auth/me", s.HandleMe)
			r.Get("/state", s.HandleGetState)

			// Persistence
			r.Post("/load", s.HandleLoad)
			r.Post("/save", s.HandleSave)
			r.Post("/autosave", s.HandleAutoSave)
			r.Post("/reset", s.HandleReset)

			// Intents
			r.Group(func(r chi.Router) {
				r.Use(s.limitIntents)
				r.Post("/click", s.HandleClick)
				r.Post("/businesses/buy", s.HandleBuyBusiness)
				r.Post("/upgrades/buy", s.HandleBuyUpgrade)
			})
		})
	})

	// Real-time
	r.With(s.requireUser).Get("/ws", s.HandleWs)

	return r
}
