package category

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/llm"
	"github.com/policy-rag/backend/pkg/logger"
)

const categorizerSystemPrompt = "You are a highly accurate assistant that categorizes university policy PDF names."

const categorizerGuidelines = `You are an expert in university document classification. Categorize the following PDF names into these categories: Governance, Health Safety and Environment, Learning and Teaching, Physical Facilities, Research.

Use the following guidelines:
- Governance: policies related to university administration, ethics, and overall management.
- Health Safety and Environment: policies about health, safety, sustainability, and environmental issues.
- Learning and Teaching: policies about academic programs, assessments, and student-related matters.
- Physical Facilities: policies about university buildings, spaces, and physical resources.
- Research: policies about research conduct, data management, and research-related procedures.

Format the response exactly as follows:
Governance:
- PDF name
Health Safety and Environment:
- PDF name
Learning and Teaching:
- PDF name
Physical Facilities:
- PDF name
Research:
- PDF name

PDF Names to categorize:
`

type Categorizer struct {
	llm       llm.Completer
	maxTokens int
}

func NewCategorizer(completer llm.Completer) *Categorizer {
	return &Categorizer{llm: completer, maxTokens: 500}
}

// Categorize asks the model to sort names into the fixed categories. Names the model
// invents and categories outside the fixed set are dropped, as are repeats.
func (c *Categorizer) Categorize(ctx context.Context, names []string) (*Catalog, error) {
	catalog := NewCatalog()
	if len(names) == 0 {
		return catalog, nil
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: categorizerSystemPrompt,
		UserPrompt:   categorizerGuidelines + strings.Join(names, "\n"),
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		return nil, domain.NewError(domain.ErrExternalService, "category.Categorize", err)
	}

	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	categories := make(map[string]bool)
	for _, n := range Names() {
		categories[n] = true
	}

	placed := make(map[string]bool)
	dropped := 0
	current := ""
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*#"))
		switch {
		case strings.HasPrefix(line, "- ") && current != "":
			file := strings.TrimSpace(line[2:])
			if !categories[current] || !known[file] || placed[file] {
				dropped++
				continue
			}
			placed[file] = true
			catalog.Add(current, file)
		case strings.HasSuffix(line, ":"):
			current = strings.TrimSpace(strings.TrimSuffix(line, ":"))
		}
	}

	logger.Info("Categorised documents",
		zap.Int("documents", len(names)),
		zap.Int("placed", len(placed)),
		zap.Int("dropped", dropped),
	)
	if len(placed) == 0 {
		return nil, domain.NewError(domain.ErrExternalService, "category.Categorize",
			fmt.Errorf("model reply placed none of %d documents", len(names)))
	}
	return catalog, nil
}
