// Package evaluation scores how well an answer addresses a question: a local lexical
// heuristic first, then an independent review by a language model whose score is the
// one shown to users.
package evaluation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/chat"
	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/llm"
	"github.com/policy-rag/backend/internal/metrics"
	"github.com/policy-rag/backend/pkg/logger"
)

// DefaultMinCitableScore is the lowest score for which sources are shown.
const DefaultMinCitableScore = 5.0

const (
	queryWeight  = 0.7
	sourceWeight = 0.3
)

var (
	scoreLine       = regexp.MustCompile(`(?mi)^[\s*_#>-]*score[\s*_]*:[\s*_]*(\S+)`)
	explanationLine = regexp.MustCompile(`(?mi)^[\s*_#>-]*explanation[\s*_]*:[\s*_]*(.*)$`)
	leadingNumber   = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?`)
)

var placeholders = map[string]struct{}{
	"":               {},
	"n/a":            {},
	"na":             {},
	"none":           {},
	"null":           {},
	"no answer":      {},
	"empty response": {},
	"no_answer":      {},
}

const reviewSystemPrompt = `You are a strict reviewer of answers produced by a university policy question-answering system.
You receive a question, the answer that was given, the policy passages the answer was based on and a preliminary heuristic score.
Rules:
- If the question is nonsensical, unrelated to the passages, or cannot be answered from the passages, the score MUST be 0.
- Otherwise judge independently how accurately and completely the answer addresses the question using only the passages, on a scale of 0 to 100.
- The heuristic score is only a hint; do not copy it.
Reply with exactly two lines:
Score: <number from 0 to 100>
Explanation: <one or two sentences>`

// Review is the parsed output of the model review.
type Review struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// Result is the outcome of Evaluate. Score is the reviewed score when Reviewed is
// true and 0 otherwise.
type Result struct {
	Heuristic   float64 `json:"heuristic_score"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation,omitempty"`
	Reviewed    bool    `json:"reviewed"`
}

type Evaluator struct {
	llm        llm.Completer
	model      string
	minCitable float64
}

// NewEvaluator builds a scorer. model selects the review model; empty uses the client
// default.
func NewEvaluator(completer llm.Completer, model string, minCitable float64) *Evaluator {
	if minCitable <= 0 {
		minCitable = DefaultMinCitableScore
	}
	return &Evaluator{
		llm:        completer,
		model:      model,
		minCitable: minCitable,
	}
}

// ValidateQuery rejects queries without at least one alphabetic token of three or more
// letters. Tokens split on anything that is not a letter or digit, so "abc123" is one
// token and does not count.
func ValidateQuery(query string) error {
	for _, tok := range strings.FieldsFunc(query, isSeparator) {
		if isWord(tok) {
			return nil
		}
	}
	return domain.NewError(domain.ErrInvalidQuery, "evaluation.ValidateQuery",
		fmt.Errorf("query %q has no meaningful words", query))
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func isWord(tok string) bool {
	n := 0
	for _, r := range tok {
		if !unicode.IsLetter(r) {
			return false
		}
		n++
	}
	return n >= 3
}

// IsPlaceholder reports answers that carry no content worth scoring.
func IsPlaceholder(answer string) bool {
	norm := strings.ToLower(strings.TrimSpace(answer))
	if _, ok := placeholders[norm]; ok {
		return true
	}
	return norm == strings.ToLower(chat.NoAnswerText)
}

// HeuristicScore combines the term-frequency cosine between query and answer (70%)
// with the mean retrieval score of the sources (30%), scaled to 0..100. Source scores
// are clamped to 0..1 and an empty source list contributes 0.
func HeuristicScore(query, answer string, sourceScores []float64) float64 {
	if ValidateQuery(query) != nil || IsPlaceholder(answer) {
		return 0
	}

	lexical := termCosine(termFrequencies(query), termFrequencies(answer))

	sourceMean := 0.0
	if len(sourceScores) > 0 {
		for _, s := range sourceScores {
			sourceMean += math.Max(0, math.Min(1, s))
		}
		sourceMean /= float64(len(sourceScores))
	}

	score := 100 * (queryWeight*lexical + sourceWeight*sourceMean)
	return math.Max(0, math.Min(100, score))
}

// Review asks the model for an independent score. A reply without a numeric Score
// line is an ErrExternalService.
func (e *Evaluator) Review(ctx context.Context, query, answer, passages string, heuristic float64) (*Review, error) {
	prompt := fmt.Sprintf("Question:\n%s\n\nAnswer:\n%s\n\nPassages:\n%s\n\nHeuristic score: %.1f",
		query, answer, passages, heuristic)

	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: reviewSystemPrompt,
		UserPrompt:   prompt,
		Model:        e.model,
		Temperature:  0.1,
		MaxTokens:    200,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to review answer: %w", err)
	}

	review, err := ParseReview(resp.Content)
	if err != nil {
		logger.Warn("Unparseable relevance review", zap.String("reply", resp.Content), zap.Error(err))
		return nil, err
	}
	return review, nil
}

// ParseReview extracts the score and explanation from a review reply. The score is
// clamped to 0..100; a missing explanation is tolerated.
func ParseReview(reply string) (*Review, error) {
	m := scoreLine.FindStringSubmatch(reply)
	if m == nil {
		return nil, domain.NewError(domain.ErrExternalService, "evaluation.ParseReview",
			fmt.Errorf("review has no Score line"))
	}

	num := leadingNumber.FindString(strings.Trim(m[1], "*_"))
	if num == "" {
		return nil, domain.NewError(domain.ErrExternalService, "evaluation.ParseReview",
			fmt.Errorf("review score %q is not a number", m[1]))
	}
	score, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return nil, domain.NewError(domain.ErrExternalService, "evaluation.ParseReview", err)
	}

	review := &Review{Score: math.Max(0, math.Min(100, score))}
	if em := explanationLine.FindStringSubmatch(reply); em != nil {
		review.Explanation = strings.TrimSpace(strings.Trim(em[1], "*_ "))
	}
	return review, nil
}

// Evaluate scores an answer. Invalid queries score 0 with an ErrInvalidQuery and no
// model call; answers the engine could not give score 0 without review. Otherwise
// the reviewed score is returned, and a failed review fails the evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, query string, answer *chat.Answer) (*Result, error) {
	if err := ValidateQuery(query); err != nil {
		return &Result{}, err
	}
	if answer == nil || answer.NoAnswer || IsPlaceholder(answer.Text) {
		return &Result{}, nil
	}

	scores := make([]float64, len(answer.Sources))
	for i, h := range answer.Sources {
		scores[i] = h.Score
	}
	heuristic := HeuristicScore(query, answer.Text, scores)

	review, err := e.Review(ctx, query, answer.Text, answer.Context, heuristic)
	if err != nil {
		return nil, err
	}

	metrics.RelevanceScore.Observe(review.Score)
	logger.Info("Answer evaluated",
		zap.Float64("heuristic", heuristic),
		zap.Float64("score", review.Score),
	)

	return &Result{
		Heuristic:   heuristic,
		Score:       review.Score,
		Explanation: review.Explanation,
		Reviewed:    true,
	}, nil
}

// ShouldCite reports whether sources may be shown for score.
func (e *Evaluator) ShouldCite(score float64) bool {
	return score >= e.minCitable
}

func termFrequencies(text string) map[string]float64 {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return fallbackFrequencies(text)
	}

	tf := make(map[string]float64)
	for _, tok := range doc.Tokens() {
		if term := normalizeTerm(tok.Text); term != "" {
			tf[term]++
		}
	}
	return tf
}

func fallbackFrequencies(text string) map[string]float64 {
	tf := make(map[string]float64)
	for _, w := range strings.Fields(text) {
		if term := normalizeTerm(w); term != "" {
			tf[term]++
		}
	}
	return tf
}

// normalizeTerm lowercases a token and trims punctuation; pure punctuation becomes "".
func normalizeTerm(tok string) string {
	return strings.ToLower(strings.TrimFunc(tok, isSeparator))
}

func termCosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for term, x := range a {
		normA += x * x
		if y, ok := b[term]; ok {
			dot += x * y
		}
	}
	for _, y := range b {
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
