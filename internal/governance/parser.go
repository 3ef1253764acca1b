// Package governance extracts the labelled header fields of policy PDFs and stores
// complete records in the relational store.
package governance

import (
	"regexp"
	"strings"
	"time"

	"github.com/policy-rag/backend/internal/storage/models"
)

// DateLayout is the strict DD/MM/YYYY form dates must take in documents.
const DateLayout = "02/01/2006"

const (
	FieldApprovalAuthority = "approval_authority"
	FieldOwner             = "owner"
	FieldLegislation       = "legislation"
	FieldCategory          = "category"
	FieldRelatedDocuments  = "related_documents"
	FieldDateEffective     = "date_effective"
	FieldReviewDate        = "review_date"
)

var (
	approvalAuthorityRe = regexp.MustCompile(`Approval Authority\s+(.*)`)
	ownerRe             = regexp.MustCompile(`Owner\s+(.*)`)
	legislationRe       = regexp.MustCompile(`Legislation\s+mandating\s+compliance\s*(.*)`)
	categoryRe          = regexp.MustCompile(`Category\s+(.*)`)
	relatedDocumentsRe  = regexp.MustCompile(`(?s)Related University\s+Legislation\s+and\s+Policy\s+Documents\s+(.+?)(?:Date effective|Review date)`)
	dateEffectiveRe     = regexp.MustCompile(`Date effective\s+(\d{2}/\d{2}/\d{4})`)
	reviewDateRe        = regexp.MustCompile(`Review date\s+(\d{2}/\d{2}/\d{4})`)
)

// Fields holds the values found in a document. Missing lists every field that was
// absent, empty or (for dates) not a valid DD/MM/YYYY date, in a fixed order.
type Fields struct {
	ApprovalAuthority string
	Owner             string
	Legislation       string
	Category          string
	RelatedDocuments  string
	DateEffective     time.Time
	ReviewDate        time.Time
	Missing           []string
}

func (f *Fields) Complete() bool {
	return len(f.Missing) == 0
}

// Record converts complete fields into a record for fileName. It returns nil when any
// field is missing.
func (f *Fields) Record(fileName string) *models.GovernanceRecord {
	if !f.Complete() {
		return nil
	}
	return &models.GovernanceRecord{
		FileName:          fileName,
		ApprovalAuthority: f.ApprovalAuthority,
		Owner:             f.Owner,
		Legislation:       f.Legislation,
		Category:          f.Category,
		RelatedDocuments:  f.RelatedDocuments,
		DateEffective:     f.DateEffective,
		ReviewDate:        f.ReviewDate,
	}
}

// Parse applies the labelled-field expressions to a document's text.
func Parse(text string) *Fields {
	f := &Fields{}

	field := func(re *regexp.Regexp, name string) string {
		v := firstGroup(re, text)
		if v == "" {
			f.Missing = append(f.Missing, name)
		}
		return v
	}
	date := func(re *regexp.Regexp, name string) time.Time {
		v := firstGroup(re, text)
		t, err := time.Parse(DateLayout, v)
		if v == "" || err != nil {
			f.Missing = append(f.Missing, name)
			return time.Time{}
		}
		return t
	}

	f.ApprovalAuthority = field(approvalAuthorityRe, FieldApprovalAuthority)
	f.Owner = field(ownerRe, FieldOwner)
	f.Legislation = field(legislationRe, FieldLegislation)
	f.Category = field(categoryRe, FieldCategory)
	f.RelatedDocuments = field(relatedDocumentsRe, FieldRelatedDocuments)
	f.DateEffective = date(dateEffectiveRe, FieldDateEffective)
	f.ReviewDate = date(reviewDateRe, FieldReviewDate)

	return f
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
