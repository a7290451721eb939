package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/storage/sqlite"
	"github.com/adgm-assist/backend/pkg/logger"
)

type DocumentHandler struct {
	db *sqlite.Client
}

func NewDocumentHandler(db *sqlite.Client) *DocumentHandler {
	return &DocumentHandler{db: db}
}

// ListDocuments returns the crawled pages currently mirrored in SQLite.
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	docs, err := h.db.ListDocuments(limit)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	items := make([]fiber.Map, 0, len(docs))
	for _, d := range docs {
		items = append(items, fiber.Map{
			"id":    d.ID,
			"url":   d.URL,
			"title": d.Title,
		})
	}

	return c.JSON(fiber.Map{
		"documents": items,
		"count":     len(items),
	})
}
