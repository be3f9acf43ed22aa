package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopauth/shopauth/app"
	"github.com/shopauth/shopauth/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware. Credentials must be allowed because the session
	// travels in cookies shared across shop subdomains.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// Session endpoints
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", handlers.SignupHandler(deps))
		r.Post("/signin", handlers.SigninHandler(deps))
		r.Post("/refresh", handlers.RefreshHandler(deps))
		r.Post("/logout", handlers.LogoutHandler(deps))
	})

	// Authenticated user endpoints
	r.Route("/user", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Get("/profile", handlers.GetProfileHandler(deps))
		r.Get("/shops", handlers.ListShopsHandler(deps))
		r.Get("/shop/{name}", handlers.GetShopHandler(deps))
		r.Get("/verify-shop/{name}", handlers.VerifyShopHandler(deps))
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
