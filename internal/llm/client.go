package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/metrics"
	"github.com/policy-rag/backend/pkg/circuitbreaker"
	"github.com/policy-rag/backend/pkg/logger"
	"github.com/policy-rag/backend/pkg/retry"
)

const embeddingBatchSize = 100

// Completer is what answer generation, relevance review and categorisation need from
// the model service.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	// Model overrides the client default, e.g. a separate scoring model.
	Model       string
	Temperature float32
	MaxTokens   int
}

type CompletionResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		Window:           time.Minute,
		TrialLimit:       2,
		TrialSuccesses:   1,
		Countable:        isUpstreamFailure,
		OnTransition: func(name string, _, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		RetryIf:        isUpstreamFailure,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", opts.Model),
		zap.String("embedding_model", opts.EmbeddingModel),
		zap.Bool("custom_base_url", opts.BaseURL != ""),
	)

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		temperature:    opts.Temperature,
		maxTokens:      opts.MaxTokens,
		timeout:        opts.Timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Model() string { return c.model }

// Complete runs one chat completion. Every failure, including an empty choice list,
// is a domain.ErrExternalService.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	result, err := circuitbreaker.ExecuteWithResult(ctx, c.cb, func(ctx context.Context) (*CompletionResponse, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*CompletionResponse, error) {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       model,
				Messages:    messages,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return nil, retry.Permanent(errors.New("completion returned no choices"))
			}

			return &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Model:   model,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}, nil
		})
	})
	if err != nil {
		return nil, domain.NewError(domain.ErrExternalService, "llm.Complete", err)
	}

	metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(result.Usage.CompletionTokens))

	logger.Debug("LLM completion generated",
		zap.String("model", model),
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
	)

	return result, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))
	tokens := 0
	for i := 0; i < len(texts); i += embeddingBatchSize {
		batch := texts[i:min(i+embeddingBatchSize, len(texts))]

		vectors, err := circuitbreaker.ExecuteWithResult(ctx, c.cb, func(ctx context.Context) ([][]float32, error) {
			return retry.DoWithResult(ctx, c.retryConfig, func() ([][]float32, error) {
				resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(c.embeddingModel),
				})
				if err != nil {
					return nil, fmt.Errorf("failed to generate embeddings: %w", err)
				}
				if len(resp.Data) != len(batch) {
					return nil, retry.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(batch)))
				}

				out := make([][]float32, len(batch))
				for _, data := range resp.Data {
					if data.Index < 0 || data.Index >= len(out) {
						return nil, retry.Permanent(fmt.Errorf("embedding index %d out of range", data.Index))
					}
					out[data.Index] = data.Embedding
				}
				tokens += resp.Usage.TotalTokens
				return out, nil
			})
		})
		if err != nil {
			return nil, domain.NewError(domain.ErrExternalService, "llm.Embed", err)
		}
		embeddings = append(embeddings, vectors...)
	}

	metrics.LLMTokensUsed.WithLabelValues(c.embeddingModel, "embedding").Add(float64(tokens))
	logger.Debug("Embeddings generated", zap.Int("count", len(embeddings)), zap.Int("tokens", tokens))

	return embeddings, nil
}

// isUpstreamFailure separates service trouble (retried, counted by the breaker) from
// request errors the service will reject again.
func isUpstreamFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
