package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"discussion-room/internal/app"
	"discussion-room/internal/ws"
	"discussion-room/pkg/auth"
	"discussion-room/pkg/metrics"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DB is everything the HTTP layer needs from storage. *store.Postgres satisfies it.
type DB interface {
	UserStore
	TopicStore
	Pinger
}

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, db DB) http.Handler {
	j := auth.New(cfg.JWTSecret)
	mw := NewMiddleware(cfg, j)
	topics := &TopicsAPI{DB: db}
	authAPI := &AuthAPI{DB: db, JWT: j, TokenTTL: cfg.TokenTTL}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.Warn("readyz.db", "err", err)
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		rooms, members := hub.Stats()
		writeJSON(w, map[string]int{"rooms": rooms, "members": members})
	})

	// WebSocket endpoint
	mux.HandleFunc("GET /ws/chat/{room}", hub.ServeWS)

	// Auth endpoints
	mux.HandleFunc("POST /api/auth/register", authAPI.Register)
	mux.HandleFunc("POST /api/auth/login", authAPI.Login)
	mux.HandleFunc("POST /api/auth/logout", authAPI.Logout)
	mux.Handle("GET /api/auth/me", mw.Auth(http.HandlerFunc(authAPI.Me)))

	// Topics: reads are public, writes need a JWT
	mux.HandleFunc("GET /api/topics", topics.List)
	mux.Handle("POST /api/topics", mw.Auth(http.HandlerFunc(topics.Create)))
	mux.HandleFunc("GET /api/topics/{id}", topics.Get)
	mux.Handle("POST /api/topics/{id}/toggle_commenting", mw.Auth(http.HandlerFunc(topics.ToggleCommenting)))
	mux.HandleFunc("GET /api/topics/{id}/messages", topics.Messages)

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
