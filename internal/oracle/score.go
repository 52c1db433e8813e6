package oracle

import (
	"errors"
	"math"
	"strings"
)

var errZeroVector = errors.New("向量的模为 0，无法计算余弦相似度")

func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New("两个向量的维度不一致")
	}

	dot, normA, normB := 0.0, 0.0, 0.0
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, errZeroVector
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// wordRecall 原文（小写、按空白切分后的词集合）中有多少比例的词出现在 answer 中
func wordRecall(original, answer string) float64 {
	words := wordSet(original)
	if len(words) == 0 {
		return 0
	}

	recovered := wordSet(answer)
	matched := 0
	for w := range words {
		if _, ok := recovered[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}
