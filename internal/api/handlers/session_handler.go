package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/events"
	"github.com/policy-rag/backend/internal/middleware/validation"
	"github.com/policy-rag/backend/internal/session"
)

type SessionHandler struct {
	sessions *session.Manager
	events   events.Publisher
}

func NewSessionHandler(sessions *session.Manager, publisher events.Publisher) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		events:   publisher,
	}
}

type tierRequest struct {
	Tier string `json:"tier" validate:"omitempty,oneof=low medium high LOW MEDIUM HIGH"`
}

func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req tierRequest
	if ok, err := validation.ParseBody(c, &req); !ok {
		return err
	}

	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		return writeError(c, "session.create", err)
	}
	s, err := h.sessions.Start(tier)
	if err != nil {
		return writeError(c, "session.create", err)
	}
	return c.Status(fiber.StatusCreated).JSON(s)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return writeError(c, "session.get", err)
	}
	return c.JSON(s)
}

func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.sessions.Get(id); err != nil {
		return writeError(c, "session.delete", err)
	}
	h.sessions.End(id)
	return c.SendStatus(fiber.StatusNoContent)
}

// SetTier switches the session's precision tier and announces the change.
func (h *SessionHandler) SetTier(c *fiber.Ctx) error {
	var req tierRequest
	if ok, err := validation.ParseBody(c, &req); !ok {
		return err
	}
	if req.Tier == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tier is required"})
	}

	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		return writeError(c, "session.tier", err)
	}
	s, err := h.sessions.SetTier(c.Params("id"), tier)
	if err != nil {
		return writeError(c, "session.tier", err)
	}

	publish(c, h.events, events.Event{
		Topic:     events.TopicTierChanged,
		SessionID: s.ID,
		Data:      map[string]any{"tier": s.Tier.String()},
	})
	return c.JSON(s)
}
