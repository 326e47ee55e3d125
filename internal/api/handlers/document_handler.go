package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/ingestion"
	"github.com/dealsense/backend/internal/storage/sqlite"
	"github.com/dealsense/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	store     *sqlite.Client
}

func NewDocumentHandler(processor *ingestion.Processor, store *sqlite.Client) *DocumentHandler {
	return &DocumentHandler{processor: processor, store: store}
}

// UploadDocument accepts pre-extracted page text (or raw HTML) and indexes
// it into both retrieval signals.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		CollectionID string `json:"collection_id"`
		Filename     string `json:"filename"`
		Title        string `json:"title"`
		ContentType  string `json:"content_type"`
		SourceURL    string `json:"source_url"`
		HTML         string `json:"html"`
		Pages        []struct {
			Number int    `json:"number"`
			Text   string `json:"text"`
		} `json:"pages"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse document upload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.CollectionID == "" || req.Filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "collection_id and filename are required",
		})
	}

	input := ingestion.Input{
		CollectionID: req.CollectionID,
		Filename:     req.Filename,
		Title:        req.Title,
		ContentType:  req.ContentType,
		SourceURL:    req.SourceURL,
		HTML:         req.HTML,
	}
	for _, p := range req.Pages {
		input.Pages = append(input.Pages, ingestion.Page{Number: p.Number, Text: p.Text})
	}

	doc, chunkCount, err := h.processor.Process(c.Context(), input)
	if err != nil {
		logger.Error("Failed to ingest document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"pages":       doc.PageCount,
		"chunks":      chunkCount,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	collectionID := c.Query("collection_id")
	if collectionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "collection_id is required",
		})
	}

	docs, err := h.store.ListDocuments(c.Context(), collectionID)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{
		"documents": docs,
	})
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.store.GetDocument(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	return c.JSON(doc)
}
