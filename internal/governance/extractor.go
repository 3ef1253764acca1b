package governance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/library"
	"github.com/policy-rag/backend/internal/metrics"
	"github.com/policy-rag/backend/internal/pdf"
	"github.com/policy-rag/backend/internal/storage/models"
	"github.com/policy-rag/backend/pkg/logger"
)

// Store is the session the extractor holds on the relational store for one batch.
type Store interface {
	InitSchema() error
	UpsertGovernance(ctx context.Context, rec *models.GovernanceRecord) error
	Close() error
}

// OpenStoreFunc opens a fresh store session. The extractor closes it when the batch ends.
type OpenStoreFunc func() (Store, error)

type Report struct {
	Stored   []string      `json:"stored"`
	Failed   []FailedFile  `json:"failed"`
	Duration time.Duration `json:"duration"`
}

type FailedFile struct {
	Name    string   `json:"name"`
	Reason  string   `json:"reason"`
	Missing []string `json:"missing,omitempty"`
}

// FailedNames lists the failed files in processing order.
func (r *Report) FailedNames() []string {
	names := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		names[i] = f.Name
	}
	return names
}

type Extractor struct {
	pdf        pdf.Extractor
	openStore  OpenStoreFunc
	failedFile string
}

// NewExtractor builds the batch extractor. failedFile, when set, receives the names
// of the files that produced no record, one per line.
func NewExtractor(extractor pdf.Extractor, openStore OpenStoreFunc, failedFile string) *Extractor {
	return &Extractor{
		pdf:        extractor,
		openStore:  openStore,
		failedFile: failedFile,
	}
}

// Run extracts and upserts a governance record for every PDF under dir. Only complete
// records are stored. A file that cannot be read, lacks a field or fails to upsert
// goes to the failed list and the batch continues.
func (e *Extractor) Run(ctx context.Context, dir string) (report *Report, err error) {
	start := time.Now()

	docs, err := library.New(dir).List(ctx)
	if err != nil {
		return nil, err
	}

	store, err := e.openStore()
	if err != nil {
		return nil, domain.NewError(domain.ErrStorage, "governance.Run", fmt.Errorf("failed to open store: %w", err))
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("Failed to close governance store", zap.Error(cerr))
		}
	}()

	if err := store.InitSchema(); err != nil {
		return nil, err
	}

	logger.Info("Governance extraction started", zap.String("dir", dir), zap.Int("files", len(docs)))

	report = &Report{}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if failed := e.processFile(ctx, store, doc); failed != nil {
			logger.Warn("Governance extraction failed",
				zap.String("file", doc.Name),
				zap.String("reason", failed.Reason),
			)
			report.Failed = append(report.Failed, *failed)
			metrics.GovernanceRecords.WithLabelValues("failed").Inc()
			continue
		}

		report.Stored = append(report.Stored, doc.Name)
		metrics.GovernanceRecords.WithLabelValues("stored").Inc()
	}

	if e.failedFile != "" {
		if err := writeFailedList(e.failedFile, report.FailedNames()); err != nil {
			logger.Warn("Failed to write failed list", zap.String("path", e.failedFile), zap.Error(err))
		}
	}

	report.Duration = time.Since(start)
	logger.Info("Governance extraction finished",
		zap.Int("stored", len(report.Stored)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

func (e *Extractor) processFile(ctx context.Context, store Store, doc library.Document) *FailedFile {
	text, err := e.pdf.Extract(ctx, doc.Path)
	if err != nil {
		logger.Warn("Governance text extraction failed", zap.String("file", doc.Name), zap.Error(err))
		return &FailedFile{Name: doc.Name, Reason: domain.Describe(err)}
	}

	fields := Parse(text)
	rec := fields.Record(doc.Name)
	if rec == nil {
		return &FailedFile{
			Name:    doc.Name,
			Reason:  "missing fields: " + strings.Join(fields.Missing, ", "),
			Missing: fields.Missing,
		}
	}

	if err := store.UpsertGovernance(ctx, rec); err != nil {
		logger.Warn("Governance upsert failed", zap.String("file", doc.Name), zap.Error(err))
		return &FailedFile{Name: doc.Name, Reason: domain.Describe(err)}
	}
	return nil
}

// ReadFailedList returns the names written by the last run. A missing file is an
// empty list.
func ReadFailedList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read failed list: %w", err)
	}

	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func writeFailedList(path string, names []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
