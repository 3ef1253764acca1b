// Package bootstrap wires the application components from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/cache"
	"github.com/policy-rag/backend/internal/cache/file"
	"github.com/policy-rag/backend/internal/cache/redis"
	"github.com/policy-rag/backend/internal/category"
	"github.com/policy-rag/backend/internal/chat"
	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/evaluation"
	"github.com/policy-rag/backend/internal/events"
	"github.com/policy-rag/backend/internal/governance"
	"github.com/policy-rag/backend/internal/index"
	"github.com/policy-rag/backend/internal/ingestion"
	"github.com/policy-rag/backend/internal/library"
	"github.com/policy-rag/backend/internal/llm"
	"github.com/policy-rag/backend/internal/pdf"
	"github.com/policy-rag/backend/internal/query"
	"github.com/policy-rag/backend/internal/session"
	"github.com/policy-rag/backend/internal/storage/sqlite"
	"github.com/policy-rag/backend/pkg/config"
	"github.com/policy-rag/backend/pkg/logger"
)

type Container struct {
	Config *config.Config

	Library     *library.Library
	Cache       cache.Store
	LLM         *llm.Client
	Pipeline    *ingestion.Pipeline
	Builder     *index.Builder
	Sessions    *session.Manager
	Bus         *events.Bus
	Query       *query.Engine
	Governance  *governance.Extractor
	Records     *sqlite.Client
	Categorizer *category.Categorizer
}

func NewContainer(cfg *config.Config) (*Container, error) {
	extractor, err := pdf.New(cfg.PDF.Extractor, cfg.PDF.PdftotextPath)
	if err != nil {
		return nil, err
	}

	store, err := newCacheStore(cfg)
	if err != nil {
		return nil, err
	}

	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	embedder, err := index.NewEmbedder(cfg.Index.Embedder, llmClient)
	if err != nil {
		store.Close()
		return nil, err
	}

	records, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := records.InitSchema(); err != nil {
		store.Close()
		records.Close()
		return nil, err
	}

	c := &Container{
		Config:      cfg,
		Library:     library.New(cfg.PDF.Dir),
		Cache:       store,
		LLM:         llmClient,
		Pipeline:    ingestion.NewPipeline(extractor, store),
		Builder:     index.NewBuilder(embedder),
		Sessions:    session.NewManager(time.Duration(cfg.Session.TTLMinutes) * time.Minute),
		Bus:         events.NewBus(),
		Records:     records,
		Categorizer: category.NewCategorizer(llmClient),
	}

	c.Query = query.NewEngine(
		c.Library,
		c.Pipeline,
		c.Builder,
		chat.NewEngine(llmClient, cfg.Index.TopK),
		evaluation.NewEvaluator(llmClient, cfg.LLM.ScoringModel, cfg.Scoring.MinCitableScore),
		c.Sessions,
		c.Bus,
	)

	sqlitePath := cfg.SQLite.Path
	c.Governance = governance.NewExtractor(extractor, func() (governance.Store, error) {
		s, err := sqlite.NewClient(sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, cfg.Governance.FailedFile)

	logger.Info("Components initialised",
		zap.String("pdf_dir", cfg.PDF.Dir),
		zap.String("extractor", cfg.PDF.Extractor),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("embedder", cfg.Index.Embedder),
	)
	return c, nil
}

func newCacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "", "file":
		return file.New(cfg.Cache.Path)
	case "redis":
		return redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	default:
		return nil, domain.NewError(domain.ErrInvalidConfiguration, "bootstrap.cache",
			fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend))
	}
}

// PurgeCache drops every cached chunk entry and every live index, so the next
// ingestion re-extracts the whole corpus.
func (c *Container) PurgeCache(ctx context.Context) error {
	if err := c.Cache.Purge(ctx); err != nil {
		return fmt.Errorf("failed to purge chunk cache: %w", err)
	}
	for _, tier := range domain.Tiers() {
		c.Builder.Invalidate(tier)
	}
	logger.Info("Chunk cache purged")
	return nil
}

func (c *Container) Close() error {
	return errors.Join(
		c.Bus.Close(),
		c.Cache.Close(),
		c.Records.Close(),
	)
}
