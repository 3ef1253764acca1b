// Package library lists the policy PDFs under the configured directory and maps the
// relative names handed to callers back to files on disk.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/policy-rag/backend/internal/domain"
)

const pdfPattern = "**/*.{pdf,PDF}"

// Document is a PDF found in the library. Name is relative to the library root and
// slash-separated; Path is never exposed to clients.
type Document struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Path       string    `json:"-"`
}

type Library struct {
	root string
}

func New(root string) *Library {
	return &Library{root: root}
}

func (l *Library) Root() string {
	return l.root
}

// List walks the library recursively and returns every PDF in lexical order of name.
// A missing or non-directory root is an ErrInvalidConfiguration.
func (l *Library) List(ctx context.Context) ([]Document, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "library.List",
			fmt.Errorf("pdf directory %s: %w", l.root, err))
	}
	if !info.IsDir() {
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "library.List",
			fmt.Errorf("pdf directory %s is not a directory", l.root))
	}

	var docs []Document
	fsys := os.DirFS(l.root)
	err = doublestar.GlobWalk(fsys, pdfPattern, func(name string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		docs = append(docs, Document{
			Name:       name,
			Size:       fi.Size(),
			ModifiedAt: fi.ModTime(),
			Path:       filepath.Join(l.root, filepath.FromSlash(name)),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to walk pdf directory: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// Resolve maps a relative document name to its path on disk. Absolute names, names
// escaping the root and anything that is not an existing PDF are ErrNotFound.
func (l *Library) Resolve(name string) (string, error) {
	notFound := domain.NewError(domain.ErrNotFound, "library.Resolve", fmt.Errorf("document %q", name))

	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", notFound
	}
	clean := path.Clean(name)
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", notFound
	}
	if !strings.EqualFold(path.Ext(clean), ".pdf") {
		return "", notFound
	}

	full := filepath.Join(l.root, filepath.FromSlash(clean))
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return "", notFound
	}
	return full, nil
}
