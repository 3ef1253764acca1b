package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policy-rag/backend/internal/domain"
)

type fakeAPI struct {
	chatCalls  atomic.Int32
	embedCalls atomic.Int32
	chat       func(n int32, w http.ResponseWriter, body map[string]any)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/v1/chat/completions":
		f.chat(f.chatCalls.Add(1), w, body)
	case "/v1/embeddings":
		f.embedCalls.Add(1)
		inputs, _ := body["input"].([]any)
		data := make([]map[string]any, 0, len(inputs))
		// Reverse order to check the client sorts by index.
		for i := len(inputs) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body["model"],
			"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	default:
		http.NotFound(w, r)
	}
}

func writeCompletion(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func writeError(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": "upstream said no", "type": "server_error"},
	})
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c := NewClient(Options{
		APIKey:         "test",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-test",
		EmbeddingModel: "embed-test",
		MaxTokens:      64,
		Timeout:        5 * time.Second,
	})
	c.retryConfig.InitialDelay = time.Millisecond
	c.retryConfig.MaxDelay = 2 * time.Millisecond
	return c
}

func TestComplete(t *testing.T) {
	var gotModel any
	api := &fakeAPI{chat: func(_ int32, w http.ResponseWriter, body map[string]any) {
		gotModel = body["model"]
		writeCompletion(w, "Staff accrue 20 days of annual leave.")
	}}
	c := newTestClient(t, api)

	resp, err := c.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "system",
		UserPrompt:   "user",
		Model:        "gpt-scoring",
	})
	require.NoError(t, err)
	assert.Equal(t, "Staff accrue 20 days of annual leave.", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-scoring", gotModel)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	api := &fakeAPI{chat: func(n int32, w http.ResponseWriter, _ map[string]any) {
		if n < 3 {
			writeError(w, http.StatusBadGateway)
			return
		}
		writeCompletion(w, "ok")
	}}
	c := newTestClient(t, api)

	resp, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), api.chatCalls.Load())
}

func TestComplete_ClientErrorIsNotRetried(t *testing.T) {
	api := &fakeAPI{chat: func(_ int32, w http.ResponseWriter, _ map[string]any) {
		writeError(w, http.StatusBadRequest)
	}}
	c := newTestClient(t, api)

	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "q"})
	assert.ErrorIs(t, err, domain.ErrExternalService)
	assert.Equal(t, int32(1), api.chatCalls.Load())
}

func TestComplete_NoChoices(t *testing.T) {
	api := &fakeAPI{chat: func(_ int32, w http.ResponseWriter, _ map[string]any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	}}
	c := newTestClient(t, api)

	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "q"})
	assert.ErrorIs(t, err, domain.ErrExternalService)
	assert.Equal(t, int32(1), api.chatCalls.Load())
}

func TestEmbed_PreservesInputOrder(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, []float32{float32(i), 1}, v)
	}

	none, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, int32(1), api.embedCalls.Load())
}
