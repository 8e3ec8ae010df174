package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
)

// The tab route outlives any request timeout; it is registered bare.
func init() { Register(registerTab) }

func registerTab(r chi.Router, d deps.Deps) {
	r.Get("/ws", handlers.Tab(d))
}
