package api

import (
	"github.com/go-chi/chi/v5"
)

// Paths of the backend endpoints.
const (
	GraphQLPath  = "/graphql"
	RealtimePath = "/graphql/realtime"
)

// NewRouter creates a chi router with the GraphQL routes mounted.
// The realtime endpoint authenticates on connection_init instead of through
// AuthMiddleware, since browsers cannot set headers on websocket upgrades.
func NewRouter(h *Handler, rt *Realtime, auth Authenticator) chi.Router {
	r := chi.NewRouter()

	r.Get(RealtimePath, rt.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(auth))
		r.Post(GraphQLPath, h.GraphQL)
	})

	return r
}
