package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidWeights = errors.New("无效的扰动权重")

// Category 扰动操作类别
type Category int

const (
	CategoryUnchanged Category = iota
	CategoryCapitalization
	CategorySymbol
	CategoryAdjacent
	CategorySwap
	CategoryInsert
	CategoryRepeat
	CategoryPunctuation

	NumCategories = 8
)

var categoryNames = [NumCategories]string{
	"unchanged",
	"capitalization",
	"symbol",
	"adjacent",
	"swap",
	"insert",
	"repeat",
	"punctuation",
}

// AllCategories 按固定顺序返回所有类别，分配扰动时也按这个顺序遍历
func AllCategories() []Category {
	cs := make([]Category, NumCategories)
	for i := range cs {
		cs[i] = Category(i)
	}
	return cs
}

func (c Category) String() string {
	if c < 0 || int(c) >= NumCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == strings.TrimSpace(name) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: 未知的扰动类别 %q", ErrInvalidWeights, name)
}

// Weights 每个扰动类别的权重，数组保证所有类别一定存在
type Weights [NumCategories]float64

func (w Weights) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Percentages 将权重归一化为总和为 100 的百分比
func (w Weights) Percentages() (Weights, error) {
	total := w.Sum()
	if total <= 0 {
		return Weights{}, fmt.Errorf("%w: 权重总和必须大于 0", ErrInvalidWeights)
	}

	var pct Weights
	for i, v := range w {
		pct[i] = v / total * 100
	}
	return pct, nil
}

func (w Weights) Map() map[string]float64 {
	m := make(map[string]float64, NumCategories)
	for i, v := range w {
		m[categoryNames[i]] = v
	}
	return m
}

// WeightsFromMap 未出现的类别权重为 0
func WeightsFromMap(m map[string]float64) (Weights, error) {
	var w Weights
	for name, v := range m {
		c, err := ParseCategory(name)
		if err != nil {
			return Weights{}, err
		}
		w[c] = v
	}
	return w, nil
}

func (w Weights) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Map())
}

func (w *Weights) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	parsed, err := WeightsFromMap(m)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
