package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the allowed origin policy. Credentials are allowed so the
// session cookie survives cross-origin storefront requests.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", SessionIDHeader, "X-Requested-With"},
		ExposedHeaders:   []string{SessionIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
