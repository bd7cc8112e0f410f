package ratelimit

import (
	"net/http"

	"github.com/af-corp/quorum-engine/internal/auth"
	"github.com/af-corp/quorum-engine/internal/httputil"
)

// Middleware returns a chi middleware that enforces the authenticated key's
// RPM limit. Keys without a limit pass through.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.AuthFromContext(r.Context())
			if !ok || info.RPMLimit == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(r.Context(), info.KeyID, *info.RPMLimit) {
				httputil.WriteRateLimitError(w, w.Header().Get("X-Request-ID"),
					"Request rate limit exceeded for this API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
