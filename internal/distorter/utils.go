package distorter

import (
	"math"

	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

// populationStats 返回种群的最佳适应度、平均适应度以及权重多样性
// 多样性为每个类别权重的（总体）标准差的平均值
func populationStats(pop []*Individual) (best, avg, diversity float64) {
	if len(pop) == 0 {
		return 0, 0, 0
	}

	best = math.Inf(-1)
	for _, ind := range pop {
		best = max(best, ind.fitness)
		avg += ind.fitness
	}
	avg /= float64(len(pop))

	for c := 0; c < domain.NumCategories; c++ {
		values := make([]float64, len(pop))
		for i, ind := range pop {
			values[i] = ind.weights[c]
		}
		diversity += stdDev(values)
	}
	diversity /= domain.NumCategories

	return best, avg, diversity
}

func stdDev(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-mean, 2)
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}
