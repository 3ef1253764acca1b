package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/middleware/validation"
	"github.com/policy-rag/backend/internal/query"
)

type DocumentHandler struct {
	queryEngine *query.Engine
}

func NewDocumentHandler(queryEngine *query.Engine) *DocumentHandler {
	return &DocumentHandler{
		queryEngine: queryEngine,
	}
}

// List reports every PDF with its processing state for ?tier= (default medium).
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	tier, err := domain.ParseTier(c.Query("tier"))
	if err != nil {
		return writeError(c, "documents.list", err)
	}

	docs, err := h.queryEngine.Documents(c.UserContext(), tier)
	if err != nil {
		return writeError(c, "documents.list", err)
	}
	return c.JSON(fiber.Map{
		"tier":      tier,
		"documents": docs,
	})
}

func (h *DocumentHandler) Ingest(c *fiber.Ctx) error {
	var req tierRequest
	if ok, err := validation.ParseBody(c, &req); !ok {
		return err
	}

	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		return writeError(c, "documents.ingest", err)
	}
	report, err := h.queryEngine.Ingest(c.UserContext(), tier)
	if err != nil {
		return writeError(c, "documents.ingest", err)
	}
	return c.JSON(report)
}

// Download serves a cited PDF by its library-relative name.
func (h *DocumentHandler) Download(c *fiber.Ctx) error {
	name := c.Query("name")
	path, err := h.queryEngine.ResolveSource(name)
	if err != nil {
		return writeError(c, "documents.download", err)
	}
	return c.Download(path)
}
