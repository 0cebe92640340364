package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/solace/backend/internal/middleware"
	chatService "github.com/zhouzirui/solace/backend/internal/service/chat"
	"github.com/zhouzirui/solace/backend/pkg/utils"
)

// Server-sent event names used by the streaming endpoint.
const (
	sseEventStage = "stage"
	sseEventReply = "reply"
	sseEventError = "error"
	sseEventDone  = "done"
)

var errStreamingUnsupported = errors.New("streaming unsupported")

// StreamResponse is the payload of stage, error and done events.
type StreamResponse struct {
	SessionID string `json:"sessionId"`
	Stage     string `json:"stage,omitempty"`
	Status    int    `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
}

// handleStreamMessage runs the same pipeline as handleSendMessage but reports its
// progress as server-sent events. Failures arrive as an error event.
func (h *Handler) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, errStreamingUnsupported.Error())
		return
	}

	var payload sendMessageRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(event string, data any) {
		if err := utils.SendSSEEvent(w, flusher, event, data); err != nil {
			h.logger.Debug("sse write failed", "sessionId", sessionID, "error", err)
		}
	}

	reply, err := h.chatSvc.ProcessMessage(r.Context(), chatService.MessageRequest{
		SessionID: sessionID,
		CallerID:  middleware.UserID(r.Context()),
		Content:   payload.Message,
		OnStage: func(stage chatService.Stage) {
			send(sseEventStage, StreamResponse{SessionID: sessionID, Stage: string(stage)})
		},
	})
	if err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("stream request failed", "sessionId", sessionID, "status", status, "error", err)
		}
		send(sseEventError, StreamResponse{SessionID: sessionID, Status: status, Error: message})
		return
	}

	send(sseEventReply, reply)
	send(sseEventDone, StreamResponse{SessionID: sessionID, Finished: true})
}
