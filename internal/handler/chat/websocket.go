package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/solace/backend/internal/middleware"
	chatService "github.com/zhouzirui/solace/backend/internal/service/chat"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

// handleWebSocket 处理WebSocket连接. Each text frame of type "message" runs one exchange.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	callerID := middleware.UserID(r.Context())

	// Authorize before upgrading so failures are plain HTTP errors.
	if _, err := h.chatSvc.GetHistory(r.Context(), sessionID, callerID); err != nil {
		h.respondErr(w, r, err)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "sessionId", sessionID, "error", err)
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	go h.pingLoop(ctx, raw)

	h.logger.Info("websocket connected", "sessionId", sessionID)
	h.send(conn, sessionID, "connected", nil)

	for {
		// Nothing reads while a frame is processed, so the idle window restarts here.
		_ = raw.SetReadDeadline(time.Now().Add(h.readTimeout))

		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "sessionId", sessionID, "error", err)
			}
			return
		}

		switch msg.Type {
		case "message":
			h.processFrame(ctx, conn, sessionID, callerID, msg.Content)
		case "ping":
			h.send(conn, sessionID, "pong", nil)
		default:
			h.sendError(conn, sessionID, http.StatusBadRequest, "unsupported message type: "+msg.Type)
		}
	}
}

func (h *Handler) processFrame(ctx context.Context, conn *wsConn, sessionID, callerID, content string) {
	reply, err := h.chatSvc.ProcessMessage(ctx, chatService.MessageRequest{
		SessionID: sessionID,
		CallerID:  callerID,
		Content:   content,
		OnStage: func(stage chatService.Stage) {
			h.send(conn, sessionID, "stage", map[string]string{"stage": string(stage)})
		},
	})
	if err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("websocket exchange failed", "sessionId", sessionID, "status", status, "error", err)
		}
		h.sendError(conn, sessionID, status, message)
		return
	}
	h.send(conn, sessionID, "reply", reply)
}

func (h *Handler) send(conn *wsConn, sessionID, kind string, data interface{}) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", "sessionId", sessionID, "error", err)
	}
}

func (h *Handler) sendError(conn *wsConn, sessionID string, status int, message string) {
	h.send(conn, sessionID, "error", map[string]any{"status": status, "message": message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
