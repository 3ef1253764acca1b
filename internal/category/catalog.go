// Package category holds the category to file mapping shown on the dashboard, its
// text form and the model-backed categoriser that produces it.
package category

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/policy-rag/backend/internal/domain"
)

const (
	Governance         = "Governance"
	HealthSafety       = "Health Safety and Environment"
	LearningTeaching   = "Learning and Teaching"
	PhysicalFacilities = "Physical Facilities"
	Research           = "Research"
)

// Names returns the fixed categories in display order.
func Names() []string {
	return []string{Governance, HealthSafety, LearningTeaching, PhysicalFacilities, Research}
}

type Category struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// Catalog keeps categories and their files in the order they were added.
type Catalog struct {
	Categories []Category `json:"categories"`
}

// NewCatalog returns a catalog with the fixed categories and no files.
func NewCatalog() *Catalog {
	c := &Catalog{}
	for _, name := range Names() {
		c.Categories = append(c.Categories, Category{Name: name})
	}
	return c
}

func (c *Catalog) Files(name string) []string {
	for _, cat := range c.Categories {
		if cat.Name == name {
			return cat.Files
		}
	}
	return nil
}

// CategoryOf reports the first category listing file.
func (c *Catalog) CategoryOf(file string) (string, bool) {
	for _, cat := range c.Categories {
		for _, f := range cat.Files {
			if f == file {
				return cat.Name, true
			}
		}
	}
	return "", false
}

func (c *Catalog) Add(name, file string) {
	for i := range c.Categories {
		if c.Categories[i].Name == name {
			c.Categories[i].Files = append(c.Categories[i].Files, file)
			return
		}
	}
	c.Categories = append(c.Categories, Category{Name: name, Files: []string{file}})
}

// ParseError reports the first line that is neither blank, a comment, a header nor an item.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Parse reads the catalog text form:
//
//	# comment
//	Governance:
//	  - code-of-conduct.pdf
//
// Headers start in column one and end with a colon. Items are "- name" after any number
// of spaces and belong to the closest header above them.
func Parse(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	seen := make(map[string]bool)
	current := -1

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimLeft(line, " ")

		switch {
		case strings.TrimSpace(line) == "":
			continue
		case strings.HasPrefix(trimmed, "#"):
			continue
		case strings.HasPrefix(trimmed, "- "):
			if current < 0 {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: "item before any category"}
			}
			file := strings.TrimSpace(trimmed[2:])
			if file == "" {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: "empty item"}
			}
			c.Categories[current].Files = append(c.Categories[current].Files, file)
		case line == trimmed && strings.HasSuffix(line, ":"):
			name := strings.TrimSpace(strings.TrimSuffix(line, ":"))
			if name == "" {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: "empty category name"}
			}
			if seen[name] {
				return nil, &ParseError{Line: lineNo, Text: line, Msg: "duplicate category"}
			}
			seen[name] = true
			c.Categories = append(c.Categories, Category{Name: name})
			current = len(c.Categories) - 1
		default:
			return nil, &ParseError{Line: lineNo, Text: line, Msg: "unexpected line"}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return c, nil
}

// Format writes the canonical text form read by Parse.
func Format(c *Catalog) string {
	var b strings.Builder
	for i, cat := range c.Categories {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(cat.Name)
		b.WriteString(":\n")
		for _, f := range cat.Files {
			b.WriteString("  - ")
			b.WriteString(f)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Load reads a catalog file. A missing file is ErrNotFound, a malformed one
// ErrInvalidConfiguration.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, domain.NewError(domain.ErrNotFound, "category.Load", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "category.Load", fmt.Errorf("%s: %w", path, err))
	}
	return c, nil
}

// Save writes the catalog atomically.
func Save(path string, c *Catalog) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".catalog-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(Format(c)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
