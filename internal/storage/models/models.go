package models

import "time"

// DateLayout is how governance dates are stored.
const DateLayout = "2006-01-02"

// GovernanceRecord is the structured header of one policy PDF. FileName is unique.
type GovernanceRecord struct {
	FileName          string    `json:"file_name"`
	ApprovalAuthority string    `json:"approval_authority"`
	Owner             string    `json:"owner"`
	Legislation       string    `json:"legislation"`
	Category          string    `json:"category"`
	RelatedDocuments  string    `json:"related_documents"`
	DateEffective     time.Time `json:"date_effective"`
	ReviewDate        time.Time `json:"review_date"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type EventKind string

const (
	EventEffective EventKind = "effective"
	EventReview    EventKind = "review"
)

// CalendarEvent is an effective or review date of a governance record.
type CalendarEvent struct {
	FileName string    `json:"file_name"`
	Kind     EventKind `json:"kind"`
	Date     time.Time `json:"date"`
	Title    string    `json:"title"`
}

func (r *GovernanceRecord) Events() []CalendarEvent {
	var events []CalendarEvent
	if !r.DateEffective.IsZero() {
		events = append(events, CalendarEvent{
			FileName: r.FileName,
			Kind:     EventEffective,
			Date:     r.DateEffective,
			Title:    "Effective: " + r.FileName,
		})
	}
	if !r.ReviewDate.IsZero() {
		events = append(events, CalendarEvent{
			FileName: r.FileName,
			Kind:     EventReview,
			Date:     r.ReviewDate,
			Title:    "Review due: " + r.FileName,
		})
	}
	return events
}
