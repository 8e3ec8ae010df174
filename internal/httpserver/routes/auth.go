package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/mw"
)

func init() { Register(registerAuth, middleware.Timeout(5*time.Second)) }

func registerAuth(r chi.Router, d deps.Deps) {
	limited := r.With(mw.RateLimit(mw.RateLimitConfig{
		Burst:      10,
		Refill:     6 * time.Second,
		MaxEntries: 10000,
		TrustProxy: d.TrustProxy,
	}))
	limited.Get("/auth/signin", handlers.SignIn(d))
	limited.Post("/auth/signout", handlers.SignOut(d))
}
