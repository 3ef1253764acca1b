package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./pdfs", cfg.PDF.Dir)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, "tfidf", cfg.Index.Embedder)
	assert.Equal(t, 5, cfg.Index.TopK)
	assert.Equal(t, 5.0, cfg.Scoring.MinCitableScore)
	assert.Equal(t, cfg.LLM.Model, cfg.LLM.ScoringModel)
}

func TestLoadFile_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
pdf:
  dir: /srv/policies
  extractor: pdftotext
index:
  topK: 8
llm:
  model: gpt-4o-mini
  scoringModel: gpt-4o
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o644))
	t.Setenv("POLICY_RAG_SERVER_PORT", "9090")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/policies", cfg.PDF.Dir)
	assert.Equal(t, "pdftotext", cfg.PDF.Extractor)
	assert.Equal(t, 8, cfg.Index.TopK)
	assert.Equal(t, "gpt-4o", cfg.LLM.ScoringModel)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadFile_MissingExplicitFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
