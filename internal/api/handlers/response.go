package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/events"
	"github.com/policy-rag/backend/pkg/logger"
)

// statusOf maps an error kind to the HTTP status and the message shown to the user.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return fiber.StatusUnprocessableEntity, "Please ask a question with at least one meaningful word."
	case errors.Is(err, domain.ErrExternalService):
		return fiber.StatusBadGateway, "The language model service is unavailable. Please try again."
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return fiber.StatusBadRequest, "Invalid request."
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "Not found."
	default:
		return fiber.StatusInternalServerError, "Internal server error."
	}
}

func writeError(c *fiber.Ctx, op string, err error) error {
	status, msg := statusOf(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	} else {
		logger.Warn("Request rejected", zap.String("op", op), zap.Error(err))
	}

	body := fiber.Map{"error": msg}
	if kind := domain.KindOf(err); kind != nil {
		body["kind"] = kind.Error()
	}
	if errors.Is(err, domain.ErrInvalidQuery) {
		body["score"] = 0
	}
	return c.Status(status).JSON(body)
}

func publish(c *fiber.Ctx, publisher events.Publisher, evt events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(c.UserContext(), evt); err != nil {
		logger.Warn("Failed to publish event", zap.String("topic", evt.Topic), zap.Error(err))
	}
}
