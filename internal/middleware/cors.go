package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS builds the cross-origin middleware for the configured allowlist.
//
// Origins are matched exactly and echoed back — the wildcard is never used
// because AllowCredentials is true, and the two are mutually exclusive per
// the fetch spec. Origins outside the allowlist get no CORS headers; the
// browser blocks the cross-origin read on its side, while same-origin and
// non-browser clients are unaffected. Preflight OPTIONS requests are
// answered by the middleware and never reach the handlers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Accept"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}
