package distorter

import (
	"context"

	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

// Individual: 一组扰动权重以及它的评估结果
type Individual struct {
	weights        domain.Weights
	fitness        float64
	privacyScore   float64
	usabilityScore float64
	distortedText  string // 最近一次根据 weights 生成的扰动文本
}

func (ind *Individual) Weights() domain.Weights { return ind.weights }
func (ind *Individual) Fitness() float64        { return ind.fitness }

// Oracle 负责给 (原文, 扰动文本) 打分
type Oracle interface {
	// Privacy 原文与扰动文本之间的语义差异，大致在 [-1, 1]
	Privacy(ctx context.Context, original, distorted string) (float64, error)
	// Usability 从扰动文本中恢复原文的程度，在 [0, 1]
	Usability(ctx context.Context, original, distorted string) (float64, error)
}

// 遗传算法参数
type Parameters struct {
	PopulationSize     int32   // 种群大小
	EliteSize          int32   // 精英数量
	MutationRate       float64 // 变异概率
	Alpha              float64 // 隐私分数的权重，可用性分数的权重为 1 - Alpha
	MinUnchangedWeight float64 // unchanged 类别的最小权重（0 ~ 100）
	Generations        int32   // 迭代次数
	Concurrency        int32   // 同一代中同时评估的个体数量
	Seed               int64   // 随机种子，为 0 时使用当前时间
}

func ParametersFromDomain(p domain.DistortionParameters, concurrency int32) *Parameters {
	return &Parameters{
		PopulationSize:     p.PopulationSize,
		EliteSize:          p.EliteSize,
		MutationRate:       p.MutationRate,
		Alpha:              p.Alpha,
		MinUnchangedWeight: p.MinUnchangedWeight,
		Generations:        p.Generations,
		Concurrency:        concurrency,
		Seed:               p.Seed,
	}
}
