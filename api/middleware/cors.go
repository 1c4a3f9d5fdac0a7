package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/procurement-backend/api/responses"
)

var defaultCORSOrigins = []string{"http://localhost:3000"}

// CORS allows browser clients from the configured origins. The API only
// exposes GET and POST routes.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", ActorHeader, IdempotencyHeader, RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, ReplayedHeader, responses.ErrorCodeHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}
