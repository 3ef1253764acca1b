package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/middleware/validation"
	"github.com/policy-rag/backend/internal/query"
)

type QueryHandler struct {
	queryEngine *query.Engine
}

func NewQueryHandler(queryEngine *query.Engine) *QueryHandler {
	return &QueryHandler{
		queryEngine: queryEngine,
	}
}

type askRequest struct {
	Query     string `json:"query" validate:"required,max=2000"`
	SessionID string `json:"session_id" validate:"omitempty,uuid"`
	Tier      string `json:"tier" validate:"omitempty,oneof=low medium high LOW MEDIUM HIGH"`
}

func (h *QueryHandler) HandleAsk(c *fiber.Ctx) error {
	var req askRequest
	if ok, err := validation.ParseBody(c, &req); !ok {
		return err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = c.Get("X-Session-ID")
	}

	resp, err := h.queryEngine.Ask(c.UserContext(), query.Request{
		SessionID: sessionID,
		Query:     validation.Sanitize(req.Query),
		Tier:      domain.Tier(req.Tier),
	})
	if err != nil {
		return writeError(c, "ask", err)
	}

	return c.JSON(resp)
}
