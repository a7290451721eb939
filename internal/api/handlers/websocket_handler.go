package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/chat"
	"github.com/adgm-assist/backend/internal/llm"
	"github.com/adgm-assist/backend/internal/metrics"
	"github.com/adgm-assist/backend/pkg/logger"
)

type WebSocketHandler struct {
	sessions  *chat.Manager
	generator *chat.Generator
}

func NewWebSocketHandler(sessions *chat.Manager, generator *chat.Generator) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:  sessions,
		generator: generator,
	}
}

// HandleConnection runs one chat session per socket. The session is
// created on connect and ended when the socket closes, so the history
// lives exactly as long as the connection.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	session := h.sessions.Create()

	// Cancelled when the handler returns, so an in-flight completion is
	// abandoned once the socket is gone.
	ctx, cancel := context.WithCancel(context.Background())

	logger.Info("WebSocket session opened", zap.String("session_id", session.ID))

	defer func() {
		cancel()
		h.sessions.End(session.ID)
		c.Close()
		logger.Info("WebSocket session closed", zap.String("session_id", session.ID))
	}()

	h.send(c, map[string]interface{}{
		"type":       "session",
		"session_id": session.ID,
	})

	for {
		var msg struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			break
		}

		if msg.Type != "message" || msg.Content == "" {
			continue
		}

		if err := h.streamReply(ctx, c, session.ID, msg.Content); err != nil {
			logger.Error("Failed to stream reply",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
			h.sendError(c, "Failed to process message")
		}
	}
}

func (h *WebSocketHandler) streamReply(ctx context.Context, c *websocket.Conn, sessionID, question string) error {
	history, err := h.sessions.History(sessionID)
	if err != nil {
		return err
	}

	start := time.Now()

	reply, snippets, err := h.generator.Reply(ctx, sessionID, history, question)
	if err != nil {
		metrics.ChatTotal.WithLabelValues("error").Inc()

		if errors.Is(err, llm.ErrCompletionService) {
			return h.send(c, map[string]interface{}{
				"type":    "complete",
				"content": chat.SupportMessage,
				"sources": []string{},
			})
		}
		return err
	}

	metrics.ChatDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())
	metrics.ChatTotal.WithLabelValues("ok").Inc()

	if err := h.sessions.Append(sessionID, chat.Turn{User: question, Bot: reply}); err != nil {
		return err
	}

	for _, word := range splitIntoWords(reply) {
		if err := h.send(c, map[string]interface{}{
			"type":    "chunk",
			"content": word,
		}); err != nil {
			return err
		}
	}

	return h.send(c, map[string]interface{}{
		"type":       "complete",
		"content":    reply,
		"sources":    snippetSources(snippets),
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]interface{}) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord+" ")
				currentWord = ""
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
