package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/config"
)

const originalText = "Hello world bar"

type fakeOpenAI struct {
	embeddingCalls atomic.Int32
	chatAnswer     string
	chatStatus     int

	mu          sync.Mutex
	chatRequest map[string]any
}

func (f *fakeOpenAI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		f.embeddingCalls.Add(1)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		// handler 运行在其他 goroutine 中，不能使用 require
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Input, 1) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// 原文映射到 (1, 0)，其他文本映射到 (0.6, 0.8)，余弦相似度为 0.6
		vector := []float32{0.6, 0.8}
		if req.Input[0] == originalText {
			vector = []float32{1, 0}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vector},
			},
		})
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.chatRequest = req
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if f.chatStatus != 0 {
			w.WriteHeader(f.chatStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": f.chatAnswer},
				},
			},
		})
	})

	return mux
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]float64
}

func (c *memoryCache) Get(_ context.Context, model, text string) ([]float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[embeddingCacheKey(model, text)]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, model, text string, embedding []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[embeddingCacheKey(model, text)] = embedding
	return nil
}

func newTestOracle(t *testing.T, fake *fakeOpenAI, cache EmbeddingCache) *OpenAIOracle {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	o, err := NewOpenAIOracle(&config.OpenAIConfig{
		APIKey:         "sk-test",
		BaseURL:        srv.URL + "/v1",
		EmbeddingModel: "text-embedding-3-small",
		ChatModel:      "gpt-4o-mini",
		MaxTokens:      100,
		RequestTimeout: 5,
	}, cache)
	require.NoError(t, err)
	return o
}

func TestOpenAIOracle_Privacy(t *testing.T) {
	o := newTestOracle(t, &fakeOpenAI{}, nil)

	privacy, err := o.Privacy(context.Background(), originalText, "H€llo wrold bar")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, privacy, 1e-6)

	privacy, err = o.Privacy(context.Background(), originalText, originalText)
	require.NoError(t, err)
	assert.InDelta(t, 0, privacy, 1e-9)
}

func TestOpenAIOracle_PrivacyUsesCache(t *testing.T) {
	fake := &fakeOpenAI{}
	o := newTestOracle(t, fake, &memoryCache{data: map[string][]float64{}})
	hitsBefore := testutil.ToFloat64(cacheLookups.WithLabelValues("hit"))

	for i := 0; i < 3; i++ {
		_, err := o.Privacy(context.Background(), originalText, "H€llo wrold bar")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), fake.embeddingCalls.Load())
	assert.Equal(t, hitsBefore+4, testutil.ToFloat64(cacheLookups.WithLabelValues("hit")))
}

func TestOpenAIOracle_Usability(t *testing.T) {
	fake := &fakeOpenAI{chatAnswer: "  hello World foo\n"}
	o := newTestOracle(t, fake, nil)

	usability, err := o.Usability(context.Background(), originalText, "H€llo wrold bar")
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, usability, 1e-9)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	// temperature 必须出现在请求中，并且实际上等于 0
	require.Contains(t, fake.chatRequest, "temperature")
	temperature, ok := fake.chatRequest["temperature"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 0, temperature, 1e-30)
	assert.Equal(t, "gpt-4o-mini", fake.chatRequest["model"])
}

func TestOpenAIOracle_UsabilityError(t *testing.T) {
	o := newTestOracle(t, &fakeOpenAI{chatStatus: http.StatusInternalServerError}, nil)
	errorsBefore := testutil.ToFloat64(requestsTotal.WithLabelValues("chat", "error"))

	_, err := o.Usability(context.Background(), originalText, "H€llo wrold bar")
	require.Error(t, err)
	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(requestsTotal.WithLabelValues("chat", "error")))
}

func TestNewOpenAIOracle_MissingKey(t *testing.T) {
	_, err := NewOpenAIOracle(&config.OpenAIConfig{}, nil)
	require.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	sim, err := cosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1, sim, 1e-12)

	sim, err = cosineSimilarity([]float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, sim, 1e-12)

	_, err = cosineSimilarity([]float64{0, 0}, []float64{0, 1})
	require.ErrorIs(t, err, errZeroVector)

	_, err = cosineSimilarity([]float64{1}, []float64{0, 1})
	require.Error(t, err)
}

func TestWordRecall(t *testing.T) {
	assert.Equal(t, 1.0, wordRecall("The quick fox", "the QUICK fox jumps"))
	assert.Equal(t, 0.5, wordRecall("alpha bravo", "alpha charlie"))
	assert.Equal(t, 0.0, wordRecall("", "anything"))
	assert.Equal(t, 0.0, wordRecall("alpha", ""))
	// 重复的词只算一次
	assert.Equal(t, 1.0, wordRecall("echo echo echo", "echo"))
}
