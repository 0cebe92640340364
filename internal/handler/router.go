package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/solace/backend/internal/handler/chat"
	"github.com/zhouzirui/solace/backend/internal/handler/wellness"
	middlewarePkg "github.com/zhouzirui/solace/backend/internal/middleware"
	chatService "github.com/zhouzirui/solace/backend/internal/service/chat"
	wellnessService "github.com/zhouzirui/solace/backend/internal/service/wellness"
	"github.com/zhouzirui/solace/backend/pkg/utils"
)

// Authenticator turns a request into an authenticated one or rejects it.
type Authenticator interface {
	Auth(next http.Handler) http.Handler
}

// Services bundles everything the HTTP layer talks to.
type Services struct {
	Chat     *chatService.Service
	Wellness *wellnessService.Service
	Auth     Authenticator
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"ai":     svc.Chat.PipelineEnabled(),
		})
	})

	r.Group(func(api chi.Router) {
		api.Use(svc.Auth.Auth)

		chat.New(svc.Chat, nil).RegisterRoutes(api)
		wellness.New(svc.Wellness, nil).RegisterRoutes(api)
	})

	return r
}
