package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/events"
	"github.com/policy-rag/backend/internal/governance"
	"github.com/policy-rag/backend/internal/storage/models"
)

// GovernanceReader answers the dashboard's record and calendar queries.
type GovernanceReader interface {
	ListRecords(ctx context.Context) ([]models.GovernanceRecord, error)
	ListEvents(ctx context.Context) ([]models.CalendarEvent, error)
	EventsOn(ctx context.Context, date time.Time) ([]models.CalendarEvent, error)
	Upcoming(ctx context.Context, from time.Time, limit int) ([]models.CalendarEvent, error)
}

type GovernanceHandler struct {
	extractor  *governance.Extractor
	reader     GovernanceReader
	pdfDir     string
	failedFile string
	events     events.Publisher
}

// NewGovernanceHandler serves the governance batch and its results. failedFile is the
// list the batch writes for files that produced no record.
func NewGovernanceHandler(extractor *governance.Extractor, reader GovernanceReader, pdfDir, failedFile string, publisher events.Publisher) *GovernanceHandler {
	return &GovernanceHandler{
		extractor:  extractor,
		reader:     reader,
		pdfDir:     pdfDir,
		failedFile: failedFile,
		events:     publisher,
	}
}

// Extract runs the governance batch over the PDF directory.
func (h *GovernanceHandler) Extract(c *fiber.Ctx) error {
	report, err := h.extractor.Run(c.UserContext(), h.pdfDir)
	if err != nil {
		return writeError(c, "governance.extract", err)
	}

	publish(c, h.events, events.Event{
		Topic: events.TopicGovernanceRefreshed,
		Data: map[string]any{
			"stored": len(report.Stored),
			"failed": len(report.Failed),
		},
	})
	return c.JSON(report)
}

func (h *GovernanceHandler) Records(c *fiber.Ctx) error {
	records, err := h.reader.ListRecords(c.UserContext())
	if err != nil {
		return writeError(c, "governance.records", err)
	}
	return c.JSON(fiber.Map{"records": records})
}

// Failed lists the PDFs the last governance run could not turn into a record.
func (h *GovernanceHandler) Failed(c *fiber.Ctx) error {
	names := []string{}
	if h.failedFile != "" {
		list, err := governance.ReadFailedList(h.failedFile)
		if err != nil {
			return writeError(c, "governance.failed", err)
		}
		names = append(names, list...)
	}
	return c.JSON(fiber.Map{"failed": names})
}

// Events lists calendar events: ?date=YYYY-MM-DD for one day, ?upcoming=N for the next
// N from today, otherwise all of them.
func (h *GovernanceHandler) Events(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var (
		list []models.CalendarEvent
		err  error
	)
	switch {
	case c.Query("date") != "":
		date, perr := time.Parse(models.DateLayout, c.Query("date"))
		if perr != nil {
			return writeError(c, "governance.events", domain.NewError(domain.ErrInvalidConfiguration, "governance.events", perr))
		}
		list, err = h.reader.EventsOn(ctx, date)
	case c.Query("upcoming") != "":
		limit, perr := strconv.Atoi(c.Query("upcoming"))
		if perr != nil || limit <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "upcoming must be a positive number"})
		}
		list, err = h.reader.Upcoming(ctx, time.Now(), limit)
	default:
		list, err = h.reader.ListEvents(ctx)
	}
	if err != nil {
		return writeError(c, "governance.events", err)
	}
	return c.JSON(fiber.Map{"events": list})
}
