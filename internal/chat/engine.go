// Package chat answers questions from the chunks retrieved out of a vector index.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/index"
	"github.com/policy-rag/backend/internal/llm"
	"github.com/policy-rag/backend/pkg/logger"
)

// NoAnswerText is shown in place of an answer the model could not ground.
const NoAnswerText = "I could not find an answer to that question in the policy documents."

const noAnswerMarker = "NO_ANSWER"

const systemPrompt = `You are an expert on a university's policy document library and your job is to answer questions about those policies.
Answer ONLY from the numbered context passages provided. Do not use outside knowledge and do not invent policies, dates, names or figures.
Keep answers concise and factual. When a passage supports a statement, you may mention the document it came from.
If the passages do not contain the answer, reply with exactly ` + noAnswerMarker + ` and nothing else.`

var cannotAnswerPhrases = []string{
	"i don't know",
	"i do not know",
	"cannot answer",
	"can't answer",
	"unable to answer",
	"not able to answer",
	"no relevant information",
	"does not contain the answer",
	"do not contain the answer",
	"does not provide information",
	"do not provide information",
}

// Searcher is satisfied by *index.Index.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]index.Hit, error)
}

type Answer struct {
	Text     string      `json:"text"`
	Sources  []index.Hit `json:"sources"`
	Context  string      `json:"-"`
	NoAnswer bool        `json:"no_answer"`
}

// SourceFiles lists the distinct source files of the answer in rank order.
func (a *Answer) SourceFiles() []string {
	seen := make(map[string]struct{}, len(a.Sources))
	var files []string
	for _, h := range a.Sources {
		if _, ok := seen[h.Chunk.SourceFile]; ok {
			continue
		}
		seen[h.Chunk.SourceFile] = struct{}{}
		files = append(files, h.Chunk.SourceFile)
	}
	return files
}

type Engine struct {
	llm             llm.Completer
	topK            int
	maxContextChars int
}

func NewEngine(completer llm.Completer, topK int) *Engine {
	if topK <= 0 {
		topK = 5
	}
	return &Engine{
		llm:             completer,
		topK:            topK,
		maxContextChars: 12000,
	}
}

// Ask retrieves the best chunks for query and asks the model for a grounded answer.
// An empty retrieval or a refusal from the model yields NoAnswer rather than an error.
func (e *Engine) Ask(ctx context.Context, idx Searcher, query string) (*Answer, error) {
	hits, err := idx.Search(ctx, query, e.topK)
	if err != nil {
		if domain.KindOf(err) != nil || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.NewError(domain.ErrExternalService, "chat.retrieve", err)
	}

	if len(hits) == 0 {
		logger.Info("No chunks retrieved", zap.String("query", query))
		return &Answer{Text: NoAnswerText, NoAnswer: true}, nil
	}

	passages := e.composeContext(hits)
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Context:\n%s\nQuestion: %s", passages, query),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if isNoAnswer(text) {
		logger.Info("Model could not answer from context",
			zap.String("query", query),
			zap.Int("chunks", len(hits)),
		)
		return &Answer{Text: NoAnswerText, NoAnswer: true, Context: passages}, nil
	}

	logger.Info("Answer generated",
		zap.Int("chunks", len(hits)),
		zap.Int("answer_length", len(text)),
	)

	return &Answer{Text: text, Sources: hits, Context: passages}, nil
}

func (e *Engine) composeContext(hits []index.Hit) string {
	var b strings.Builder
	for i, h := range hits {
		entry := fmt.Sprintf("[%d] (%s, part %d)\n%s\n\n", i+1, h.Chunk.SourceFile, h.Chunk.Index+1, h.Chunk.Text)
		if b.Len() > 0 && b.Len()+len(entry) > e.maxContextChars {
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

func isNoAnswer(text string) bool {
	if text == "" {
		return true
	}
	if strings.HasPrefix(strings.ToUpper(text), noAnswerMarker) {
		return true
	}
	opening := strings.ToLower(strings.ReplaceAll(firstSentence(text), "’", "'"))
	for _, phrase := range cannotAnswerPhrases {
		if strings.Contains(opening, phrase) {
			return true
		}
	}
	return false
}

// firstSentence returns text up to and including the first sentence terminator that
// ends a word. A refusal counts only when it opens the reply.
func firstSentence(text string) string {
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
			return text[:i+1]
		}
	}
	return text
}
