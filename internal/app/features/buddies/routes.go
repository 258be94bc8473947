// internal/app/features/buddies/routes.go
package buddies

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter for the buddy admin API, mounted under
// /api/buddies.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(RateLimit(h.Limiter))
	r.Use(RequireAPIKey(h.APIKey))
	r.Post("/cycles", h.ServeRunCycle)
	r.Post("/groups/{groupID}/join", h.ServeJoin)
	r.Post("/groups/{groupID}/leave", h.ServeLeave)
	r.Get("/validate", h.ServeValidate)
	return r
}
