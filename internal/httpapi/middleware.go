package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/niktheblak/web-common/pkg/auth"

	"github.com/tao-j/helvetic/internal/utils"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// NewAuthenticator allows every request when tokens is empty.
func NewAuthenticator(tokens []string) auth.Authenticator {
	if len(tokens) == 0 {
		return auth.AlwaysAllow()
	}
	return auth.Static(tokens...)
}

// RequireBearer answers 401 when the Authorization header carries no bearer
// token and 403 when the token is rejected.
func RequireBearer(next http.Handler, authenticator auth.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if err := authenticator.Authenticate(r.Context(), token); err != nil {
			if !ok || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="helvetic"`)
				utils.WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			utils.WriteError(w, http.StatusForbidden, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
