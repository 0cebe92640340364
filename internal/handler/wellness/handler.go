package wellness

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/solace/backend/internal/middleware"
	wellnessService "github.com/zhouzirui/solace/backend/internal/service/wellness"
	"github.com/zhouzirui/solace/backend/pkg/utils"
)

// Handler mood 与 activity 的HTTP处理器
type Handler struct {
	svc    *wellnessService.Service
	logger *slog.Logger
}

func New(svc *wellnessService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger.With("component", "wellness-http")}
}

// RegisterRoutes 注册 /api 下的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/mood", h.handleCreateMood)
	r.Post("/api/activity", h.handleLogActivity)
}

type created struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func (h *Handler) handleCreateMood(w http.ResponseWriter, r *http.Request) {
	var payload wellnessService.MoodInput
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mood, err := h.svc.CreateMood(r.Context(), middleware.UserID(r.Context()), payload)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, created{Success: true, Data: mood})
}

func (h *Handler) handleLogActivity(w http.ResponseWriter, r *http.Request) {
	var payload wellnessService.ActivityInput
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	activity, err := h.svc.LogActivity(r.Context(), middleware.UserID(r.Context()), payload)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, created{Success: true, Data: activity})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, wellnessService.ErrUserRequired):
		utils.RespondError(w, http.StatusUnauthorized, "User not authenticated")
	case errors.Is(err, wellnessService.ErrInvalidMood), errors.Is(err, wellnessService.ErrInvalidActivity):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
