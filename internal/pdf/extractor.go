// Package pdf extracts plain text from PDF files.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"

	"github.com/policy-rag/backend/internal/domain"
)

const (
	KindNative    = "native"
	KindPdftotext = "pdftotext"
)

// Extractor returns the full text of a PDF or fails with domain.ErrExtraction.
// Partial text is never returned.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// New builds the extractor named by kind.
func New(kind, pdftotextPath string) (Extractor, error) {
	switch strings.ToLower(kind) {
	case "", KindNative:
		return NewNativeExtractor(), nil
	case KindPdftotext:
		return NewPopplerExtractor(ExecRunner{}, pdftotextPath), nil
	default:
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "pdf.New",
			fmt.Errorf("unknown extractor %q", kind))
	}
}

// NativeExtractor reads PDFs in-process.
type NativeExtractor struct{}

func NewNativeExtractor() *NativeExtractor {
	return &NativeExtractor{}
}

func (e *NativeExtractor) Extract(ctx context.Context, path string) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The parser panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.NewError(domain.ErrExtraction, "pdf.Extract", fmt.Errorf("%s: parser panic: %v", path, r))
		}
	}()

	f, r, err := ledongthuc.Open(path)
	if err != nil {
		return "", domain.NewError(domain.ErrExtraction, "pdf.Extract", fmt.Errorf("failed to open %s: %w", path, err))
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", domain.NewError(domain.ErrExtraction, "pdf.Extract", fmt.Errorf("failed to read text from %s: %w", path, err))
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", domain.NewError(domain.ErrExtraction, "pdf.Extract", fmt.Errorf("failed to read text from %s: %w", path, err))
	}

	return buf.String(), nil
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// PopplerExtractor shells out to poppler's pdftotext.
type PopplerExtractor struct {
	runner CommandRunner
	binary string
}

func NewPopplerExtractor(runner CommandRunner, binary string) *PopplerExtractor {
	if binary == "" {
		binary = "pdftotext"
	}
	return &PopplerExtractor{runner: runner, binary: binary}
}

func (e *PopplerExtractor) Extract(ctx context.Context, path string) (string, error) {
	out, err := e.runner.Run(ctx, e.binary, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", domain.NewError(domain.ErrExtraction, "pdf.Extract",
				fmt.Errorf("%s exited with %d for %s: %w", e.binary, exitErr.ExitCode(), path, err))
		}
		return "", domain.NewError(domain.ErrExtraction, "pdf.Extract", fmt.Errorf("failed to run %s on %s: %w", e.binary, path, err))
	}
	return string(out), nil
}
