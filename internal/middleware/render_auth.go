package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog"
)

// RenderAuthMiddleware authenticates callbacks from the video-render
// worker via a shared header secret. This is intentionally a different
// scheme from the Stripe webhook's signed payloads.
func RenderAuthMiddleware(secret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				logger.Error().Msg("Render callback secret is not configured; rejecting callback")
				http.Error(w, "callback auth not configured", http.StatusInternalServerError)
				return
			}
			got := r.Header.Get("X-Render-Secret")
			if got == "" {
				http.Error(w, "missing callback secret", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logger.Warn().Msg("Render callback with bad secret rejected")
				http.Error(w, "invalid callback secret", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
