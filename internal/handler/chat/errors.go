package chat

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/solace/backend/internal/service/ai"
	chatService "github.com/zhouzirui/solace/backend/internal/service/chat"
	"github.com/zhouzirui/solace/backend/internal/service/emotion"
	"github.com/zhouzirui/solace/backend/internal/service/session"
)

// statusFor maps service errors to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest, "Message is required"
	case errors.Is(err, session.ErrOwnerRequired):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, "Unauthorized"
	case errors.Is(err, session.ErrInactive):
		return http.StatusConflict, "Session is no longer active"
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, emotion.ErrAnalysisParse), errors.Is(err, emotion.ErrAnalysisUnavailable):
		return http.StatusBadGateway, "Message analysis failed"
	case errors.Is(err, ai.ErrGenerationUnavailable):
		return http.StatusBadGateway, "Response generation failed"
	case errors.Is(err, chatService.ErrPipelineUnavailable):
		return http.StatusServiceUnavailable, "ai unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
