package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/policy-rag/backend/internal/category"
	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/events"
	"github.com/policy-rag/backend/internal/library"
)

type CategoryHandler struct {
	categorizer *category.Categorizer
	library     *library.Library
	file        string
	events      events.Publisher
}

func NewCategoryHandler(categorizer *category.Categorizer, lib *library.Library, file string, publisher events.Publisher) *CategoryHandler {
	return &CategoryHandler{
		categorizer: categorizer,
		library:     lib,
		file:        file,
		events:      publisher,
	}
}

// Get returns the saved catalog. Before the first refresh every category is empty.
func (h *CategoryHandler) Get(c *fiber.Ctx) error {
	catalog, err := category.Load(h.file)
	if errors.Is(err, domain.ErrNotFound) {
		catalog = category.NewCatalog()
	} else if err != nil {
		return writeError(c, "categories.get", err)
	}
	return c.JSON(catalog)
}

// Refresh re-categorises every PDF in the library and saves the result.
func (h *CategoryHandler) Refresh(c *fiber.Ctx) error {
	docs, err := h.library.List(c.UserContext())
	if err != nil {
		return writeError(c, "categories.refresh", err)
	}
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}

	catalog, err := h.categorizer.Categorize(c.UserContext(), names)
	if err != nil {
		return writeError(c, "categories.refresh", err)
	}
	if err := category.Save(h.file, catalog); err != nil {
		return writeError(c, "categories.refresh", err)
	}

	publish(c, h.events, events.Event{
		Topic: events.TopicCategoriesUpdated,
		Data:  map[string]any{"documents": len(names)},
	})
	return c.JSON(catalog)
}
