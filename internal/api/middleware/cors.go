package middleware

import (
	"net/http"

	"nft-marketplace/pkg/logger"
)

const allowedHeaders = "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, X-Principal"

// CORS wraps the mux-based services. Preflight requests are answered here
// and never reach the router.
func CORS(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				log.Debug("Handling CORS preflight", "path", r.URL.Path, "origin", r.Header.Get("Origin"))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
