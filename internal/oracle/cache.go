package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache 缓存文本的 embedding，同一段原文在整个优化过程中会被反复计算
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float64, bool, error)
	Set(ctx context.Context, model, text string, embedding []float64) error
}

type RedisEmbeddingCache struct {
	rdb        *redis.Client
	expiration time.Duration
}

func NewRedisEmbeddingCache(rdb *redis.Client, expiration time.Duration) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{
		rdb:        rdb,
		expiration: expiration,
	}
}

func embeddingCacheKey(model, text string) string {
	return fmt.Sprintf("embedding_%s_%x", model, sha256.Sum256([]byte(text)))
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, model, text string) ([]float64, bool, error) {
	data, err := c.rdb.Get(ctx, embeddingCacheKey(model, text)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var embedding []float64
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, err
	}
	return embedding, true, nil
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, model, text string, embedding []float64) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, embeddingCacheKey(model, text), data, c.expiration).Err()
}
