package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/storage/models"
	"github.com/policy-rag/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, domain.NewError(domain.ErrStorage, "sqlite.NewClient", fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, domain.NewError(domain.ErrStorage, "sqlite.NewClient", fmt.Errorf("failed to open database: %w", err))
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, domain.NewError(domain.ErrStorage, "sqlite.NewClient", fmt.Errorf("failed to enable WAL mode: %w", err))
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS Governance (
		id INTEGER PRIMARY KEY,
		file_name TEXT UNIQUE NOT NULL,
		approval_authority TEXT,
		owner TEXT,
		legislation TEXT,
		category TEXT,
		related_documents TEXT,
		date_effective DATE,
		review_date DATE,
		updated_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_governance_effective ON Governance(date_effective);
	CREATE INDEX IF NOT EXISTS idx_governance_review ON Governance(review_date);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return domain.NewError(domain.ErrStorage, "sqlite.InitSchema", fmt.Errorf("failed to initialize schema: %w", err))
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertGovernance inserts rec or overwrites every field of the record with the same
// file name.
func (c *Client) UpsertGovernance(ctx context.Context, rec *models.GovernanceRecord) error {
	query := `
		INSERT INTO Governance (file_name, approval_authority, owner, legislation, category, related_documents, date_effective, review_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			approval_authority = excluded.approval_authority,
			owner = excluded.owner,
			legislation = excluded.legislation,
			category = excluded.category,
			related_documents = excluded.related_documents,
			date_effective = excluded.date_effective,
			review_date = excluded.review_date,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx,
		query,
		rec.FileName,
		rec.ApprovalAuthority,
		rec.Owner,
		rec.Legislation,
		rec.Category,
		nullString(rec.RelatedDocuments),
		nullDate(rec.DateEffective),
		nullDate(rec.ReviewDate),
		time.Now().Unix(),
	)
	if err != nil {
		return domain.NewError(domain.ErrStorage, "sqlite.UpsertGovernance", fmt.Errorf("failed to upsert %s: %w", rec.FileName, err))
	}

	logger.Debug("Governance record upserted", zap.String("file_name", rec.FileName))
	return nil
}

func (c *Client) GetGovernance(ctx context.Context, fileName string) (*models.GovernanceRecord, error) {
	row := c.db.QueryRowContext(ctx, selectGovernance+` WHERE file_name = ?`, fileName)
	rec, err := scanGovernance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.ErrNotFound, "sqlite.GetGovernance", fmt.Errorf("no record for %s", fileName))
	}
	if err != nil {
		return nil, domain.NewError(domain.ErrStorage, "sqlite.GetGovernance", err)
	}
	return rec, nil
}

func (c *Client) ListRecords(ctx context.Context) ([]models.GovernanceRecord, error) {
	rows, err := c.db.QueryContext(ctx, selectGovernance+` ORDER BY file_name`)
	if err != nil {
		return nil, domain.NewError(domain.ErrStorage, "sqlite.ListRecords", fmt.Errorf("failed to query governance: %w", err))
	}
	defer rows.Close()

	var records []models.GovernanceRecord
	for rows.Next() {
		rec, err := scanGovernance(rows)
		if err != nil {
			return nil, domain.NewError(domain.ErrStorage, "sqlite.ListRecords", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.ErrStorage, "sqlite.ListRecords", err)
	}
	return records, nil
}

// ListEvents returns every effective and review date, earliest first.
func (c *Client) ListEvents(ctx context.Context) ([]models.CalendarEvent, error) {
	records, err := c.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	return eventsOf(records), nil
}

// EventsOn returns the events falling on the calendar day of date.
func (c *Client) EventsOn(ctx context.Context, date time.Time) ([]models.CalendarEvent, error) {
	day := date.Format(models.DateLayout)
	rows, err := c.db.QueryContext(ctx, selectGovernance+` WHERE date_effective = ? OR review_date = ? ORDER BY file_name`, day, day)
	if err != nil {
		return nil, domain.NewError(domain.ErrStorage, "sqlite.EventsOn", fmt.Errorf("failed to query events: %w", err))
	}
	defer rows.Close()

	var records []models.GovernanceRecord
	for rows.Next() {
		rec, err := scanGovernance(rows)
		if err != nil {
			return nil, domain.NewError(domain.ErrStorage, "sqlite.EventsOn", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.ErrStorage, "sqlite.EventsOn", err)
	}

	var events []models.CalendarEvent
	for _, ev := range eventsOf(records) {
		if ev.Date.Format(models.DateLayout) == day {
			events = append(events, ev)
		}
	}
	return events, nil
}

// Upcoming returns up to limit events on or after the day of from, earliest first.
func (c *Client) Upcoming(ctx context.Context, from time.Time, limit int) ([]models.CalendarEvent, error) {
	events, err := c.ListEvents(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	var out []models.CalendarEvent
	for _, ev := range events {
		if ev.Date.Before(start) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

const selectGovernance = `SELECT file_name, approval_authority, owner, legislation, category, related_documents, date_effective, review_date, updated_at FROM Governance`

type scanner interface {
	Scan(dest ...any) error
}

func scanGovernance(s scanner) (*models.GovernanceRecord, error) {
	var rec models.GovernanceRecord
	var authority, owner, legislation, category, related sql.NullString
	var effective, review sql.NullString
	var updatedAt sql.NullInt64

	if err := s.Scan(&rec.FileName, &authority, &owner, &legislation, &category, &related, &effective, &review, &updatedAt); err != nil {
		return nil, err
	}

	rec.ApprovalAuthority = authority.String
	rec.Owner = owner.String
	rec.Legislation = legislation.String
	rec.Category = category.String
	rec.RelatedDocuments = related.String
	rec.DateEffective = parseDate(effective)
	rec.ReviewDate = parseDate(review)
	if updatedAt.Valid {
		rec.UpdatedAt = time.Unix(updatedAt.Int64, 0)
	}
	return &rec, nil
}

func eventsOf(records []models.GovernanceRecord) []models.CalendarEvent {
	var events []models.CalendarEvent
	for i := range records {
		events = append(events, records[i].Events()...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(models.DateLayout), Valid: true}
}

// parseDate accepts the stored layout and the "YYYY-MM-DD HH:MM:SS" form older
// writers used.
func parseDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{models.DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}
