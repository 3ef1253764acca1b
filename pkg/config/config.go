package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	PDF        PDFConfig
	Cache      CacheConfig
	Redis      RedisConfig
	SQLite     SQLiteConfig
	LLM        LLMConfig
	Index      IndexConfig
	Scoring    ScoringConfig
	Governance GovernanceConfig
	Categories CategoriesConfig
	Session    SessionConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins string
	RateLimit      int
	RateBurst      int
}

type PDFConfig struct {
	Dir           string
	Extractor     string
	PdftotextPath string
}

type CacheConfig struct {
	Backend string
	Path    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SQLiteConfig struct {
	Path string
}

type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	ScoringModel   string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
}

type IndexConfig struct {
	Embedder string
	TopK     int
}

type ScoringConfig struct {
	MinCitableScore float64
}

type GovernanceConfig struct {
	FailedFile string
}

type CategoriesConfig struct {
	File string
}

type SessionConfig struct {
	TTLMinutes int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads config.yaml from the usual locations (a missing file is fine) and applies
// POLICY_RAG_* environment overrides, e.g. POLICY_RAG_LLM_APIKEY.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/policy-rag")
	}

	v.SetEnvPrefix("POLICY_RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.LLM.ScoringModel == "" {
		config.LLM.ScoringModel = config.LLM.Model
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", "*")
	v.SetDefault("server.rateLimit", 2)
	v.SetDefault("server.rateBurst", 10)

	v.SetDefault("pdf.dir", "./pdfs")
	v.SetDefault("pdf.extractor", "native")
	v.SetDefault("pdf.pdftotextPath", "pdftotext")

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.path", "./data/processed_chunks.json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("sqlite.path", "./data/governance.db")

	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.scoringModel", "")
	v.SetDefault("llm.temperature", 0.5)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.embeddingModel", "text-embedding-ada-002")

	v.SetDefault("index.embedder", "tfidf")
	v.SetDefault("index.topK", 5)

	v.SetDefault("scoring.minCitableScore", 5.0)

	v.SetDefault("governance.failedFile", "./data/failed_pdfs.txt")
	v.SetDefault("categories.file", "./data/categorized_pdfs.txt")

	v.SetDefault("session.ttlMinutes", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
	v.SetDefault("logging.maxSizeMB", 10)
	v.SetDefault("logging.maxBackups", 5)
	v.SetDefault("logging.maxAgeDays", 30)
}
