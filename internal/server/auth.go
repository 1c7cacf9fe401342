package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docq-ai/docq-go/internal/logging"
)

// ownerKey is the context key under which the authenticated user ID is stored.
type ownerKey struct{}

// authMiddleware returns an HTTP middleware that enforces JWT bearer
// authentication. Protected routes must supply:
//
//	Authorization: Bearer <token>
//
// Requests missing or presenting an invalid token receive 401 Unauthorized
// with a WWW-Authenticate: Bearer challenge. The token value is never
// logged — only its presence/absence is recorded.
// On success the authenticated user ID is stored in the request context and
// retrievable via [ownerFromContext].
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docq"`)
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		userID, err := s.deps.Tokens.VerifyToken(token)
		if err != nil {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docq" error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ownerKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerFromContext returns the authenticated user ID stored by authMiddleware.
// Returns an empty string if the request did not pass through the middleware.
func ownerFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ownerKey{}).(string); ok {
		return id
	}
	return ""
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
