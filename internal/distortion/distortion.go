// Package distortion 实现字符级的文本扰动：先根据权重为每个字符分配扰动类别，再逐字符应用扰动。
package distortion

import (
	"strings"
	"unicode"

	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

// Rand 是扰动过程所需的随机源，*rand.Rand 满足这个接口
type Rand interface {
	Intn(n int) int
	Float64() float64
}

/**
 * 为文本的每个字符位置分配一个扰动类别
 * 1. 大写字母永远不扰动
 * 2. 每个类别分到的位置数为 floor(pct / 100 * remaining)，其中 remaining 为非大写字母位置的总数
 * 3. 被截断而没分配到的位置全部视为 unchanged
 */
func Assign(text string, weights domain.Weights, rng Rand) ([]domain.Category, error) {
	pct, err := weights.Percentages()
	if err != nil {
		return nil, err
	}

	runes := []rune(text)
	labels := make([]domain.Category, len(runes))

	// 大写字母位置直接标记为 unchanged（零值），其余位置进入待分配池
	pool := make([]int, 0, len(runes))
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			pool = append(pool, i)
		}
	}

	remaining := len(pool)
	for _, c := range domain.AllCategories() {
		count := int(pct[c] / 100 * float64(remaining))
		if count <= 0 || len(pool) == 0 {
			continue
		}

		picked := samplePositions(pool, min(count, len(pool)), rng)
		chosen := make(map[int]struct{}, len(picked))
		for _, pos := range picked {
			labels[pos] = c
			chosen[pos] = struct{}{}
		}

		// 从池中移除已分配的位置，保持剩余位置的相对顺序
		rest := pool[:0]
		for _, pos := range pool {
			if _, ok := chosen[pos]; !ok {
				rest = append(rest, pos)
			}
		}
		pool = rest
	}

	// 池中剩下的位置保持零值，即 unchanged
	return labels, nil
}

// samplePositions 不放回地从 pool 中均匀抽取 k 个位置，不修改 pool
func samplePositions(pool []int, k int, rng Rand) []int {
	candidates := make([]int, len(pool))
	copy(candidates, pool)

	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	return candidates[:k]
}

// ApplyChar 对单个字符应用扰动，返回的结果可能不止一个字符
func ApplyChar(r rune, c domain.Category, rng Rand) string {
	// 空白字符和大写字母永远不扰动，即使上游分配了别的类别
	if unicode.IsSpace(r) || c == domain.CategoryUnchanged || unicode.IsUpper(r) {
		return string(r)
	}

	switch c {
	case domain.CategoryCapitalization:
		if unicode.IsLower(r) {
			return string(unicode.ToUpper(r))
		}
		return string(unicode.ToLower(r))
	case domain.CategorySymbol:
		if choices, ok := symbolMap[unicode.ToLower(r)]; ok {
			return choices[rng.Intn(len(choices))]
		}
	case domain.CategoryAdjacent:
		if choices, ok := keyboardAdjacent[unicode.ToLower(r)]; ok {
			return choices[rng.Intn(len(choices))]
		}
	case domain.CategoryRepeat:
		return string(r) + string(r)
	case domain.CategoryInsert:
		return string(r) + string(lowercaseLetters[rng.Intn(len(lowercaseLetters))])
	case domain.CategoryPunctuation:
		return string(r) + punctuation[rng.Intn(len(punctuation))]
	}

	return string(r)
}

// Render 按照给定的类别序列扰动文本
// swap 是唯一会消耗两个位置的操作：与下一个字符交换位置，但下一个字符是大写字母时不交换
func Render(text string, labels []domain.Category, rng Rand) string {
	runes := []rune(text)
	var sb strings.Builder
	sb.Grow(len(text))

	for i := 0; i < len(runes); i++ {
		if i >= len(labels) {
			// 类别序列比文本短，剩下的字符原样输出
			sb.WriteRune(runes[i])
			continue
		}

		c := labels[i]
		if c == domain.CategorySwap && i+1 < len(runes) && !unicode.IsUpper(runes[i+1]) {
			sb.WriteRune(runes[i+1])
			sb.WriteRune(runes[i])
			i++
			continue
		}

		sb.WriteString(ApplyChar(runes[i], c, rng))
	}

	return sb.String()
}

// Distort 根据权重扰动整段文本
func Distort(text string, weights domain.Weights, rng Rand) (string, error) {
	labels, err := Assign(text, weights, rng)
	if err != nil {
		return "", err
	}
	return Render(text, labels, rng), nil
}
