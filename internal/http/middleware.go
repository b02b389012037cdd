package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"discussion-room/internal/app"
	"discussion-room/pkg/auth"
	"discussion-room/pkg/ratelimit"
)

// Middleware holds the cross-cutting handlers shared by every route.
type Middleware struct {
	cors     *cors.Cors
	verifier *auth.JWT
	perIP    *ratelimit.Limiter
}

// NewMiddleware allows the configured frontend origins and limits each
// client IP to cfg.HTTPRatePerMin requests a minute.
func NewMiddleware(cfg app.Config, verifier *auth.JWT) *Middleware {
	return &Middleware{
		cors: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllow,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}),
		verifier: verifier,
		perIP:    ratelimit.New(cfg.HTTPRatePerMin, time.Minute),
	}
}

// Wrap puts CORS in front of the per-IP limit so preflights are answered
// before they count against it.
func (m *Middleware) Wrap(h http.Handler) http.Handler {
	return m.cors.Handler(m.perIP.Middleware(h))
}

// Auth rejects requests without a valid bearer token. Handlers behind it read
// the caller with auth.FromContext.
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearer(r)
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}
		claims, err := m.verifier.Verify(tok)
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), claims)))
	})
}

func bearer(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="discussion-room"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
