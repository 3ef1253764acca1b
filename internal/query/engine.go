package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/chat"
	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/evaluation"
	"github.com/policy-rag/backend/internal/events"
	"github.com/policy-rag/backend/internal/index"
	"github.com/policy-rag/backend/internal/ingestion"
	"github.com/policy-rag/backend/internal/library"
	"github.com/policy-rag/backend/internal/metrics"
	"github.com/policy-rag/backend/internal/session"
	"github.com/policy-rag/backend/pkg/logger"
)

// NotRelevantNotice replaces the answer when its relevance score is too low to cite.
const NotRelevantNotice = "The documents do not seem to contain information relevant to this question."

type Ingester interface {
	Run(ctx context.Context, dir string, tier domain.Tier) (*ingestion.Report, error)
	Status(ctx context.Context, dir string, tier domain.Tier) ([]ingestion.FileStatus, error)
}

type Indexer interface {
	Get(ctx context.Context, tier domain.Tier, chunks []domain.Chunk) (*index.Index, error)
	Live(tier domain.Tier) (*index.Index, bool)
	Invalidate(tier domain.Tier)
}

type Answerer interface {
	Ask(ctx context.Context, idx chat.Searcher, query string) (*chat.Answer, error)
}

type Scorer interface {
	Evaluate(ctx context.Context, query string, answer *chat.Answer) (*evaluation.Result, error)
	ShouldCite(score float64) bool
}

type Engine struct {
	library  *library.Library
	ingester Ingester
	indexer  Indexer
	chat     Answerer
	scorer   Scorer
	sessions *session.Manager
	events   events.Publisher
}

// Request is one top-level question. Tier applies when no session is given; with a
// session, the session's tier wins.
type Request struct {
	SessionID string      `json:"session_id"`
	Query     string      `json:"query" validate:"required,max=2000"`
	Tier      domain.Tier `json:"tier"`
}

type Response struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id,omitempty"`
	Query       string      `json:"query"`
	Tier        domain.Tier `json:"tier"`
	Answer      string      `json:"answer,omitempty"`
	Notice      string      `json:"notice,omitempty"`
	Sources     []Source    `json:"sources"`
	Score       float64     `json:"score"`
	Explanation string      `json:"explanation,omitempty"`
	Cited       bool        `json:"cited"`
	NoAnswer    bool        `json:"no_answer"`
	LatencyMS   int64       `json:"latency_ms"`
}

// Source is one cited file with the best retrieval score among its chunks.
type Source struct {
	File       string  `json:"file"`
	Confidence float64 `json:"confidence"`
}

func NewEngine(lib *library.Library, ingester Ingester, indexer Indexer, answerer Answerer, scorer Scorer, sessions *session.Manager, publisher events.Publisher) *Engine {
	return &Engine{
		library:  lib,
		ingester: ingester,
		indexer:  indexer,
		chat:     answerer,
		scorer:   scorer,
		sessions: sessions,
		events:   publisher,
	}
}

// Ask runs one question through ingestion, retrieval, answering and scoring. A query
// without meaningful words fails with ErrInvalidQuery before any document or model
// work. Sources are only returned when the reviewed score is citable.
func (e *Engine) Ask(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp := &Response{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		Query:     strings.TrimSpace(req.Query),
	}

	if err := evaluation.ValidateQuery(resp.Query); err != nil {
		metrics.QueryTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	tier, err := e.resolveTier(req)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	resp.Tier = tier

	logger.Info("Processing question",
		zap.String("query_id", resp.ID),
		zap.String("session_id", req.SessionID),
		zap.String("tier", tier.String()),
	)

	answer, result, err := e.answer(ctx, tier, resp.Query)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		logger.Error("Question failed", zap.String("query_id", resp.ID), zap.Error(err))
		return nil, err
	}

	resp.Score = result.Score
	resp.Explanation = result.Explanation
	resp.NoAnswer = answer.NoAnswer
	status := "answered"
	if e.scorer.ShouldCite(result.Score) {
		resp.Answer = answer.Text
		resp.Sources = sourcesOf(answer.Sources)
		resp.Cited = true
	} else {
		resp.Notice = NotRelevantNotice
		status = "not_relevant"
		if len(answer.Sources) > 0 {
			metrics.SourcesSuppressed.Inc()
		}
	}

	e.recordExchange(req.SessionID, resp)

	elapsed := time.Since(start)
	resp.LatencyMS = elapsed.Milliseconds()
	metrics.QueryDuration.WithLabelValues(tier.String()).Observe(elapsed.Seconds())
	metrics.QueryTotal.WithLabelValues(status).Inc()

	logger.Info("Question processed",
		zap.String("query_id", resp.ID),
		zap.Float64("score", resp.Score),
		zap.Bool("cited", resp.Cited),
		zap.Int64("latency_ms", resp.LatencyMS),
	)

	return resp, nil
}

func (e *Engine) answer(ctx context.Context, tier domain.Tier, query string) (*chat.Answer, *evaluation.Result, error) {
	_, idx, err := e.refresh(ctx, tier)
	if err != nil {
		return nil, nil, err
	}

	answer, err := e.chat.Ask(ctx, idx, query)
	if err != nil {
		return nil, nil, err
	}

	result, err := e.scorer.Evaluate(ctx, query, answer)
	if err != nil {
		return nil, nil, err
	}
	return answer, result, nil
}

// Ingest brings the chunk cache of tier up to date and builds its index.
func (e *Engine) Ingest(ctx context.Context, tier domain.Tier) (*ingestion.Report, error) {
	if !tier.Valid() {
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "query.Ingest", fmt.Errorf("unknown precision tier %q", tier))
	}
	report, _, err := e.refresh(ctx, tier)
	return report, err
}

// refresh runs ingestion for tier and returns the index over its chunks. Re-extracted
// files invalidate the live index even when the file set is unchanged.
func (e *Engine) refresh(ctx context.Context, tier domain.Tier) (*ingestion.Report, *index.Index, error) {
	report, err := e.ingester.Run(ctx, e.library.Root(), tier)
	if err != nil {
		return nil, nil, err
	}

	if len(report.Extracted) > 0 {
		e.indexer.Invalidate(tier)
		e.publish(ctx, events.Event{
			Topic: events.TopicCorpusChanged,
			Data: map[string]any{
				"tier":      tier.String(),
				"extracted": report.Extracted,
				"failed":    len(report.Failed),
			},
		})
	}

	previous, _ := e.indexer.Live(tier)
	idx, err := e.indexer.Get(ctx, tier, report.Chunks)
	if err != nil {
		return nil, nil, err
	}

	if idx != previous {
		e.publish(ctx, events.Event{
			Topic: events.TopicIndexRebuilt,
			Data: map[string]any{
				"tier":   tier.String(),
				"files":  len(idx.Files()),
				"chunks": idx.Len(),
			},
		})
	}
	return report, idx, nil
}

// Documents reports, for every PDF in the library, whether tier has fresh chunks for it.
func (e *Engine) Documents(ctx context.Context, tier domain.Tier) ([]ingestion.FileStatus, error) {
	if tier == "" {
		tier = domain.DefaultTier
	}
	return e.ingester.Status(ctx, e.library.Root(), tier)
}

// ResolveSource maps a cited file name to its path for download. Only names relative to
// the library are accepted.
func (e *Engine) ResolveSource(name string) (string, error) {
	return e.library.Resolve(name)
}

func (e *Engine) resolveTier(req Request) (domain.Tier, error) {
	if req.SessionID == "" || e.sessions == nil {
		return domain.ParseTier(req.Tier.String())
	}

	s, err := e.sessions.Reset(req.SessionID)
	if err != nil {
		return "", err
	}
	return s.Tier, nil
}

func (e *Engine) recordExchange(sessionID string, resp *Response) {
	if sessionID == "" || e.sessions == nil {
		return
	}

	reply := session.Message{Content: resp.Answer, Score: resp.Score}
	if !resp.Cited {
		reply.Content = resp.Notice
	}
	for _, s := range resp.Sources {
		reply.Sources = append(reply.Sources, s.File)
	}

	if _, err := e.sessions.RecordExchange(sessionID, session.Message{Content: resp.Query}, reply); err != nil {
		logger.Warn("Failed to record exchange", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, evt events.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, evt); err != nil {
		logger.Warn("Failed to publish event", zap.String("topic", evt.Topic), zap.Error(err))
	}
}

func sourcesOf(hits []index.Hit) []Source {
	var sources []Source
	pos := make(map[string]int)
	for _, h := range hits {
		if i, ok := pos[h.Chunk.SourceFile]; ok {
			if h.Score > sources[i].Confidence {
				sources[i].Confidence = h.Score
			}
			continue
		}
		pos[h.Chunk.SourceFile] = len(sources)
		sources = append(sources, Source{File: h.Chunk.SourceFile, Confidence: h.Score})
	}
	return sources
}
