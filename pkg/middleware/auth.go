package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/auth"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/httputil"
)

// Auth verifies the bearer token of each request and stores the resulting
// identity in the request context. Browsers cannot set headers on websocket
// upgrades, so the token may also come from the "token" query parameter.
func Auth(verifier auth.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := verifier.VerifyToken(bearerToken(r))
			if err != nil {
				logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), *id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
