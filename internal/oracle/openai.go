// Package oracle 给 (原文, 扰动文本) 打分：隐私分数来自 embedding 的余弦距离，可用性分数来自大模型的还原结果。
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/config"
)

// go-openai 会省略值为 0 的 temperature，用最小的正数代替 0
const zeroTemperature = math.SmallestNonzeroFloat32

const reconstructPrompt = "Reconstruct the distorted paragraph exactly as it should be. Respond with only the corrected paragraph and nothing else."

type OpenAIOracle struct {
	client         *openai.Client
	embeddingModel string
	chatModel      string
	maxTokens      int
	requestTimeout time.Duration
	cache          EmbeddingCache // 可以为 nil
}

func NewOpenAIOracle(cfg *config.OpenAIConfig, cache EmbeddingCache) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("缺少 OpenAI API Key")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	slog.Info("初始化 OpenAI 评分器", "embeddingModel", cfg.EmbeddingModel, "chatModel", cfg.ChatModel)

	return &OpenAIOracle{
		client:         openai.NewClientWithConfig(clientConfig),
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		maxTokens:      cfg.MaxTokens,
		requestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		cache:          cache,
	}, nil
}

// Privacy = 1 - cos(embedding(original), embedding(distorted))
func (o *OpenAIOracle) Privacy(ctx context.Context, original, distorted string) (float64, error) {
	a, err := o.embedding(ctx, original)
	if err != nil {
		return 0, err
	}
	b, err := o.embedding(ctx, distorted)
	if err != nil {
		return 0, err
	}

	sim, err := cosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// Usability 让大模型还原扰动文本，再统计原文中的词被还原了多少
func (o *OpenAIOracle) Usability(ctx context.Context, original, distorted string) (float64, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reconstructPrompt},
			{Role: openai.ChatMessageRoleUser, Content: distorted},
		},
		Temperature:         0,
		MaxCompletionTokens: o.maxTokens,
	})
	recordRequest("chat", time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("OpenAI 对话请求失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, errors.New("OpenAI 没有返回任何结果")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	return wordRecall(original, answer), nil
}

func (o *OpenAIOracle) embedding(ctx context.Context, text string) ([]float64, error) {
	if o.cache != nil {
		cached, ok, err := o.cache.Get(ctx, o.embeddingModel, text)
		switch {
		case err != nil:
			// 缓存不可用时直接请求接口
			slog.Warn("无法读取 embedding 缓存", "error", err)
			cacheLookups.WithLabelValues("error").Inc()
		case ok:
			cacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			cacheLookups.WithLabelValues("miss").Inc()
		}
	}

	reqCtx, cancel := o.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := o.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	recordRequest("embeddings", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("OpenAI embedding 请求失败: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("OpenAI 没有返回 embedding")
	}

	embedding := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		embedding[i] = float64(v)
	}

	if o.cache != nil {
		if err := o.cache.Set(ctx, o.embeddingModel, text, embedding); err != nil {
			slog.Warn("无法写入 embedding 缓存", "error", err)
		}
	}

	return embedding, nil
}

func (o *OpenAIOracle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.requestTimeout)
}
