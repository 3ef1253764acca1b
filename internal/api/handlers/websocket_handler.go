package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/events"
	"github.com/policy-rag/backend/internal/query"
	"github.com/policy-rag/backend/pkg/logger"
)

// Subscriber is the part of the event bus the events socket needs.
type Subscriber interface {
	Subscribe(ctx context.Context, topics ...string) (<-chan events.Event, error)
}

type WebSocketHandler struct {
	queryEngine *query.Engine
	subscriber  Subscriber
}

func NewWebSocketHandler(queryEngine *query.Engine, subscriber Subscriber) *WebSocketHandler {
	return &WebSocketHandler{
		queryEngine: queryEngine,
		subscriber:  subscriber,
	}
}

// HandleAsk answers {"type":"query"} messages, streaming the answer word by word and
// finishing with a "complete" message that carries the score and sources.
func (h *WebSocketHandler) HandleAsk(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			Content   string `json:"content"`
			SessionID string `json:"session_id"`
			Tier      string `json:"tier"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "query" {
			continue
		}

		err = h.streamResponse(c, query.Request{
			SessionID: msg.SessionID,
			Query:     msg.Content,
			Tier:      domain.Tier(strings.ToLower(msg.Tier)),
		})
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, err)
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req query.Request) error {
	if err := h.sendChunk(c, "status", "Processing query..."); err != nil {
		return err
	}

	response, err := h.queryEngine.Ask(context.Background(), req)
	if err != nil {
		return err
	}

	text := response.Answer
	if !response.Cited {
		text = response.Notice
	}
	words := splitIntoWords(text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":        "complete",
		"message_id":  response.ID,
		"tier":        response.Tier,
		"sources":     response.Sources,
		"score":       response.Score,
		"explanation": response.Explanation,
		"cited":       response.Cited,
		"latency_ms":  response.LatencyMS,
	})
}

// HandleEvents forwards bus events to the client until either side goes away.
func (h *WebSocketHandler) HandleEvents(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
	}()

	var topics []string
	if t := c.Query("topics"); t != "" {
		topics = strings.Split(t, ",")
	}

	stream, err := h.subscriber.Subscribe(ctx, topics...)
	if err != nil {
		logger.Error("Failed to subscribe to events", zap.Error(err))
		return
	}

	// Reads only detect the client closing the socket.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-stream:
			if !ok {
				return
			}
			if err := c.WriteJSON(evt); err != nil {
				logger.Debug("Events socket write failed", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, err error) {
	status, msg := statusOf(err)
	payload := map[string]interface{}{
		"type":   "error",
		"status": status,
		"error":  msg,
	}
	if errors.Is(err, domain.ErrInvalidQuery) {
		payload["score"] = 0
	}
	c.WriteJSON(payload)
}

func splitIntoWords(text string) []string {
	var words []string
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			words = append(words, "\n")
		}
		words = append(words, strings.Fields(line)...)
	}
	return words
}
