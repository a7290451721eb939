package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/chat"
	"github.com/adgm-assist/backend/internal/llm"
	"github.com/adgm-assist/backend/internal/metrics"
	"github.com/adgm-assist/backend/internal/retrieval"
	"github.com/adgm-assist/backend/internal/storage/models"
	"github.com/adgm-assist/backend/internal/storage/sqlite"
	"github.com/adgm-assist/backend/pkg/logger"
)

type ChatHandler struct {
	sessions  *chat.Manager
	generator *chat.Generator
	db        *sqlite.Client
}

func NewChatHandler(sessions *chat.Manager, generator *chat.Generator, db *sqlite.Client) *ChatHandler {
	return &ChatHandler{
		sessions:  sessions,
		generator: generator,
		db:        db,
	}
}

func (h *ChatHandler) CreateSession(c *fiber.Ctx) error {
	session := h.sessions.Create()

	logger.Info("Session created", zap.String("session_id", session.ID))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": session.ID,
	})
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	history, err := h.sessions.History(req.SessionID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	start := time.Now()

	reply, snippets, err := h.generator.Reply(c.Context(), req.SessionID, history, req.Message)
	if err != nil {
		metrics.ChatTotal.WithLabelValues("error").Inc()

		// The completion service being down is a degraded answer, not a
		// server error. The client still gets a well formed reply.
		if errors.Is(err, llm.ErrCompletionService) {
			logger.Error("Completion service unavailable",
				zap.String("session_id", req.SessionID),
				zap.Error(err),
			)
			return c.JSON(fiber.Map{
				"session_id": req.SessionID,
				"reply":      chat.SupportMessage,
				"sources":    []string{},
			})
		}

		logger.Error("Failed to generate reply",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate reply",
		})
	}

	latency := time.Since(start)
	metrics.ChatDuration.WithLabelValues("http").Observe(latency.Seconds())
	metrics.ChatTotal.WithLabelValues("ok").Inc()

	if err := h.sessions.Append(req.SessionID, chat.Turn{User: req.Message, Bot: reply}); err != nil {
		logger.Warn("Session ended before turn could be recorded",
			zap.String("session_id", req.SessionID),
		)
	}

	h.persistRecord(req.SessionID, req.Message, reply, snippetTopScore(snippets), len(snippets), latency)

	return c.JSON(fiber.Map{
		"session_id": req.SessionID,
		"reply":      reply,
		"sources":    snippetSources(snippets),
		"latency_ms": latency.Milliseconds(),
	})
}

func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	turns, err := h.sessions.History(sessionID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// GetChatRecords returns persisted exchanges for a session, including
// sessions that have already ended.
func (h *ChatHandler) GetChatRecords(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	records, err := h.db.GetChatHistory(sessionID, c.QueryInt("limit", 50))
	if err != nil {
		logger.Error("Failed to load chat records",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat records",
		})
	}

	items := make([]fiber.Map, 0, len(records))
	for _, rec := range records {
		items = append(items, fiber.Map{
			"id":         rec.ID,
			"question":   rec.Question,
			"reply":      rec.Reply,
			"latency_ms": rec.LatencyMS,
			"created_at": rec.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"records":    items,
	})
}

func (h *ChatHandler) EndSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	if err := h.sessions.End(sessionID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	logger.Info("Session ended", zap.String("session_id", sessionID))

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"status":     "ended",
	})
}

func (h *ChatHandler) persistRecord(sessionID, question, reply string, topScore float64, chunks int, latency time.Duration) {
	if h.db == nil {
		return
	}

	rec := &models.ChatRecord{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Question:   question,
		Reply:      reply,
		TopScore:   topScore,
		ChunksUsed: chunks,
		LatencyMS:  int(latency.Milliseconds()),
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.db.InsertChatRecord(rec); err != nil {
		logger.Error("Failed to persist chat record",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func snippetSources(snippets []retrieval.Snippet) []string {
	sources := make([]string, 0, len(snippets))
	seen := make(map[string]bool)
	for _, s := range snippets {
		if seen[s.SourceURL] {
			continue
		}
		seen[s.SourceURL] = true
		sources = append(sources, s.SourceURL)
	}
	return sources
}

func snippetTopScore(snippets []retrieval.Snippet) float64 {
	if len(snippets) == 0 {
		return 0
	}
	return snippets[0].Score
}
