package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/chat"
	"github.com/dealsense/backend/pkg/logger"
)

type WebSocketHandler struct {
	service *chat.Service
}

func NewWebSocketHandler(service *chat.Service) *WebSocketHandler {
	return &WebSocketHandler{service: service}
}

// HandleConnection serves one chat socket. The client sends {type: "query",
// session_id, content}; the server streams answer fragments and finishes
// with a complete frame carrying citations and degradations.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
			Content   string `json:"content"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}
		if msg.SessionID == "" || msg.Content == "" {
			h.sendError(c, "session_id and content are required")
			continue
		}

		if err := h.streamTurn(c, msg.SessionID, msg.Content); err != nil {
			logger.Error("Failed to stream turn", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamTurn(c *websocket.Conn, sessionID, query string) error {
	ctx := context.Background()

	if err := h.send(c, "status", "Assembling context..."); err != nil {
		return err
	}

	response, err := h.service.StreamTurn(ctx, chat.TurnRequest{
		SessionID: sessionID,
		Query:     query,
	}, func(fragment string) error {
		return h.send(c, "fragment", fragment)
	})
	if err != nil {
		return err
	}

	return c.WriteJSON(map[string]interface{}{
		"type":         "complete",
		"message_id":   response.MessageID,
		"citations":    response.Citations,
		"degradations": response.Degradations,
		"latency_ms":   response.LatencyMS,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
