package auth

import (
	"log/slog"
	"net/http"

	"github.com/kodisha/payments/internal/transport"
)

type Middleware struct {
	*transport.BaseHandler
	service ServiceAPI
	logger  *slog.Logger
}

func NewMiddleware(baseHandler *transport.BaseHandler, service ServiceAPI, logger *slog.Logger) *Middleware {
	return &Middleware{
		BaseHandler: baseHandler,
		service:     service,
		logger:      logger,
	}
}

// Authenticate validates the bearer token and attaches the resolved user to
// the request context. The webhook route never passes through here; the
// provider does not authenticate.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractTokenFromHeader(r)
		if token == "" {
			m.logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			m.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := m.service.ValidateAccessToken(token)
		if err != nil {
			m.logger.Warn("auth middleware: token validation failed", "error", err)
			m.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := m.service.GetUser(claims.UserID)
		if err != nil {
			m.logger.Warn("auth middleware: failed to resolve user", "error", err, "user_id", claims.UserID)
			m.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}
