package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/index"
	"github.com/policy-rag/backend/internal/llm"
)

type stubSearcher struct {
	hits []index.Hit
	err  error
}

func (s stubSearcher) Search(context.Context, string, int) ([]index.Hit, error) {
	return s.hits, s.err
}

type stubCompleter struct {
	content string
	err     error
	calls   int
	last    llm.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func hits(files ...string) []index.Hit {
	out := make([]index.Hit, len(files))
	for i, f := range files {
		out[i] = index.Hit{
			Chunk: domain.Chunk{Text: "text of " + f, SourceFile: f, Index: i},
			Score: 0.9 - float64(i)*0.1,
		}
	}
	return out
}

func TestAsk_GroundedAnswer(t *testing.T) {
	llmStub := &stubCompleter{content: "  Staff receive 20 days of annual leave.  "}
	e := NewEngine(llmStub, 3)

	ans, err := e.Ask(context.Background(), stubSearcher{hits: hits("leave.pdf", "leave.pdf", "pay.pdf")}, "annual leave?")
	require.NoError(t, err)

	assert.False(t, ans.NoAnswer)
	assert.Equal(t, "Staff receive 20 days of annual leave.", ans.Text)
	assert.Len(t, ans.Sources, 3)
	assert.Equal(t, []string{"leave.pdf", "pay.pdf"}, ans.SourceFiles())
	assert.Contains(t, llmStub.last.UserPrompt, "[1] (leave.pdf, part 1)")
	assert.Contains(t, llmStub.last.UserPrompt, "Question: annual leave?")
	assert.Contains(t, llmStub.last.SystemPrompt, "ONLY from the numbered context")
}

func TestAsk_NoHitsSkipsModel(t *testing.T) {
	llmStub := &stubCompleter{content: "should not be used"}
	ans, err := NewEngine(llmStub, 5).Ask(context.Background(), stubSearcher{}, "parking fines")
	require.NoError(t, err)

	assert.True(t, ans.NoAnswer)
	assert.Equal(t, NoAnswerText, ans.Text)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, llmStub.calls)
}

func TestAsk_CannotAnswerResponses(t *testing.T) {
	for _, content := range []string{
		"",
		"   ",
		"NO_ANSWER",
		"no_answer.",
		"I don't know based on the provided documents.",
		"I’m sorry, but the context does not contain the answer.",
		"I cannot answer that from these passages. Try asking about a specific policy.",
	} {
		t.Run(content, func(t *testing.T) {
			ans, err := NewEngine(&stubCompleter{content: content}, 5).
				Ask(context.Background(), stubSearcher{hits: hits("a.pdf")}, "question here")
			require.NoError(t, err)
			assert.True(t, ans.NoAnswer)
			assert.Empty(t, ans.Sources)
		})
	}
}

func TestAsk_PartialGapStaysAnswered(t *testing.T) {
	for _, content := range []string{
		"The Owner is the COO. The document does not provide information about exemptions.",
		"Staff must complete the induction within four weeks of starting. The passages do not provide information on contractors, so check with the policy owner.",
	} {
		t.Run(content, func(t *testing.T) {
			ans, err := NewEngine(&stubCompleter{content: content}, 5).
				Ask(context.Background(), stubSearcher{hits: hits("a.pdf")}, "question here")
			require.NoError(t, err)
			assert.False(t, ans.NoAnswer)
			assert.Equal(t, content, ans.Text)
			assert.NotEmpty(t, ans.Sources)
		})
	}
}

func TestAsk_ModelFailure(t *testing.T) {
	stub := &stubCompleter{err: domain.NewError(domain.ErrExternalService, "llm.Complete", errors.New("timeout"))}
	_, err := NewEngine(stub, 5).Ask(context.Background(), stubSearcher{hits: hits("a.pdf")}, "question")
	assert.ErrorIs(t, err, domain.ErrExternalService)
}

func TestAsk_SearchFailure(t *testing.T) {
	_, err := NewEngine(&stubCompleter{}, 5).Ask(context.Background(), stubSearcher{err: errors.New("embedding backend down")}, "question")
	assert.ErrorIs(t, err, domain.ErrExternalService)
}

func TestComposeContext_RespectsBudget(t *testing.T) {
	e := NewEngine(&stubCompleter{}, 5)
	e.maxContextChars = 60

	long := []index.Hit{
		{Chunk: domain.Chunk{Text: strings.Repeat("x", 40), SourceFile: "a.pdf"}},
		{Chunk: domain.Chunk{Text: strings.Repeat("y", 40), SourceFile: "b.pdf"}},
	}
	ctx := e.composeContext(long)
	assert.Contains(t, ctx, "a.pdf")
	assert.NotContains(t, ctx, "b.pdf")
}
