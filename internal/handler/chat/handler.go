package chat

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/solace/backend/internal/middleware"
	"github.com/zhouzirui/solace/backend/internal/model/chat"
	chatService "github.com/zhouzirui/solace/backend/internal/service/chat"
	"github.com/zhouzirui/solace/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc     *chatService.Service
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	// readTimeout bounds how long a websocket may stay silent between frames.
	readTimeout time.Duration
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chatSvc:     chatSvc,
		logger:      logger.With("component", "chat-http"),
		readTimeout: wsReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Get("/", h.handleListSessions)

		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Patch("/", h.handleUpdateStatus)
			r.Get("/history", h.handleHistory)
			r.Post("/messages", h.handleSendMessage)
			r.Post("/messages/stream", h.handleStreamMessage)
			r.Get("/ws", h.handleWebSocket)
		})
	})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type updateStatusRequest struct {
	Status chat.Status `json:"status"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{
		"message":   "Chat session created successfully",
		"sessionId": session.ID,
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chatSvc.ListSessions(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []chat.Summary{}
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionId"), middleware.UserID(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.GetHistory(r.Context(), chi.URLParam(r, "sessionId"), middleware.UserID(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var payload updateStatusRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !payload.Status.Valid() {
		utils.RespondError(w, http.StatusBadRequest, "status must be one of active, completed, archived")
		return
	}

	session, err := h.chatSvc.UpdateStatus(r.Context(), chi.URLParam(r, "sessionId"), middleware.UserID(r.Context()), payload.Status)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload sendMessageRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.ProcessMessage(r.Context(), chatService.MessageRequest{
		SessionID: chi.URLParam(r, "sessionId"),
		CallerID:  middleware.UserID(r.Context()),
		Content:   payload.Message,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	utils.RespondError(w, status, message)
}
