package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chatHandler "github.com/ingelean/inge-go/internal/handler/chat"
	"github.com/ingelean/inge-go/internal/handler/dashboard"
	"github.com/ingelean/inge-go/internal/session"
	"github.com/ingelean/inge-go/internal/store"
)

// NewRouter wires HTTP routes to the session controller and, when a
// conversation store is configured, the dashboard read path.
func NewRouter(ctrl *session.Controller, convStore store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		chatHandler.New(ctrl).RegisterRoutes(api)
		if convStore != nil {
			dashboard.New(convStore).RegisterRoutes(api)
		}
	})

	return r
}
