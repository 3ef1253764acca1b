package category

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/llm"
)

func TestParse(t *testing.T) {
	text := `# generated
Governance:
  - code-of-conduct.pdf
- delegations.pdf

Research:
    - research-data.pdf
Physical Facilities:
`
	c, err := Parse(strings.NewReader(text))
	require.NoError(t, err)

	assert.Equal(t, &Catalog{Categories: []Category{
		{Name: "Governance", Files: []string{"code-of-conduct.pdf", "delegations.pdf"}},
		{Name: "Research", Files: []string{"research-data.pdf"}},
		{Name: "Physical Facilities"},
	}}, c)

	name, ok := c.CategoryOf("research-data.pdf")
	assert.True(t, ok)
	assert.Equal(t, "Research", name)
	_, ok = c.CategoryOf("missing.pdf")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"item before header", "- a.pdf\n", 1},
		{"indented header", "Governance:\n  Research:\n", 2},
		{"free text", "Governance:\n  - a.pdf\n  No PDFs in this category.\n", 3},
		{"empty item", "Governance:\n  - \n", 2},
		{"duplicate header", "Research:\n\nResearch:\n", 3},
		{"bare colon", ":\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.text))
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line)
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	c := NewCatalog()
	c.Add(Governance, "code-of-conduct.pdf")
	c.Add(Research, "research-data.pdf")
	c.Add(Research, "ethics.pdf")
	c.Add("Archive", "old.pdf")

	text := Format(c)
	assert.True(t, strings.HasPrefix(text, "Governance:\n  - code-of-conduct.pdf\n\nHealth Safety and Environment:\n"))

	parsed, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "categorized_pdfs.txt")

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	c := NewCatalog()
	c.Add(LearningTeaching, "assessment.pdf")
	require.NoError(t, Save(path, c))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"assessment.pdf"}, loaded.Files(LearningTeaching))
}

type stubCompleter struct {
	reply string
	err   error
	calls int
	last  llm.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.reply}, nil
}

func TestCategorize_KeepsKnownNamesAndCategories(t *testing.T) {
	stub := &stubCompleter{reply: `Governance:
- code-of-conduct.pdf
- invented.pdf
**Research:**
- research-data.pdf
Finance:
- budget.pdf
Learning and Teaching:
- code-of-conduct.pdf`}

	names := []string{"code-of-conduct.pdf", "research-data.pdf", "budget.pdf"}
	c, err := NewCategorizer(stub).Categorize(context.Background(), names)
	require.NoError(t, err)

	assert.Equal(t, []string{"code-of-conduct.pdf"}, c.Files(Governance))
	assert.Equal(t, []string{"research-data.pdf"}, c.Files(Research))
	assert.Empty(t, c.Files(LearningTeaching))
	_, ok := c.CategoryOf("budget.pdf")
	assert.False(t, ok)
	assert.Len(t, c.Categories, 5)
	assert.Contains(t, stub.last.UserPrompt, "research-data.pdf")
}

func TestCategorize_Failures(t *testing.T) {
	stub := &stubCompleter{}
	c, err := NewCategorizer(stub).Categorize(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, c.Categories, 5)
	assert.Zero(t, stub.calls)

	stub.err = errors.New("timeout")
	_, err = NewCategorizer(stub).Categorize(context.Background(), []string{"a.pdf"})
	assert.ErrorIs(t, err, domain.ErrExternalService)

	stub.err = nil
	stub.reply = "I cannot help with that."
	_, err = NewCategorizer(stub).Categorize(context.Background(), []string{"a.pdf"})
	assert.ErrorIs(t, err, domain.ErrExternalService)
}
