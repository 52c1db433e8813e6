package utils

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

func ValidateDistortionParameters(p *domain.DistortionParameters) error {
	if p.PopulationSize < 1 {
		return errors.New("种群大小必须大于 0")
	}

	if p.EliteSize < 0 || p.EliteSize > p.PopulationSize {
		return errors.New("精英数量必须在 0 到种群大小之间")
	}

	if !inRange(p.MutationRate, 0, 1) {
		return errors.New("变异概率必须在 0 到 1 之间")
	}

	if !inRange(p.Alpha, 0, 1) {
		return errors.New("alpha 必须在 0 到 1 之间")
	}

	if !inRange(p.MinUnchangedWeight, 0, 100) {
		return errors.New("unchanged 的最小权重必须在 0 到 100 之间")
	}

	if p.Generations < 0 {
		return errors.New("迭代次数不能为负数")
	}

	return nil
}

// inRange 对 NaN 返回 false
func inRange(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

func ValidateWeights(w domain.Weights) error {
	for _, c := range domain.AllCategories() {
		if !inRange(w[c], 0, math.MaxFloat64) {
			return fmt.Errorf("%w: 类别 %s 的权重必须是非负的有限数", domain.ErrInvalidWeights, c)
		}
	}

	if w.Sum() <= 0 {
		return fmt.Errorf("%w: 权重之和必须大于 0", domain.ErrInvalidWeights)
	}

	return nil
}

// ParseWeights 解析形如 "symbol=20,unchanged=80" 的权重，未出现的类别权重为 0
func ParseWeights(s string) (domain.Weights, error) {
	var w domain.Weights

	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		name, value, ok := strings.Cut(item, "=")
		if !ok {
			return domain.Weights{}, fmt.Errorf("%w: 无法解析 %q", domain.ErrInvalidWeights, item)
		}

		c, err := domain.ParseCategory(name)
		if err != nil {
			return domain.Weights{}, err
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return domain.Weights{}, fmt.Errorf("%w: 类别 %s 的权重不是数字", domain.ErrInvalidWeights, c)
		}
		w[c] += v
	}

	if err := ValidateWeights(w); err != nil {
		return domain.Weights{}, err
	}

	return w, nil
}
