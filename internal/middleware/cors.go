package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSMiddleware returns CORS configuration for web and mobile clients
func CORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,

		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},

		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			"X-Request-ID",
		},

		ExposedHeaders: []string{
			"X-Request-ID",
		},

		// Credentials cannot be combined with a wildcard origin
		AllowCredentials: !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*"),

		// Cache preflight requests for 5 minutes
		MaxAge: 300,
	})
}
