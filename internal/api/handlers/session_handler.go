package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/internal/storage/sqlite"
	"github.com/dealsense/backend/pkg/logger"
)

type SessionHandler struct {
	store *sqlite.Client
}

func NewSessionHandler(store *sqlite.Client) *SessionHandler {
	return &SessionHandler{store: store}
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req struct {
		CollectionID string `json:"collection_id"`
		Title        string `json:"title"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.CollectionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "collection_id is required",
		})
	}

	session := &models.ChatSession{
		ID:           uuid.New().String(),
		CollectionID: req.CollectionID,
		Title:        req.Title,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.store.CreateSession(c.Context(), session); err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.store.GetSession(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	return c.JSON(session)
}

func (h *SessionHandler) GetMessages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	messages, err := h.store.ListRecentMessages(c.Context(), c.Params("id"), limit)
	if err != nil {
		logger.Error("Failed to list messages", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list messages",
		})
	}

	return c.JSON(fiber.Map{
		"messages": messages,
	})
}
