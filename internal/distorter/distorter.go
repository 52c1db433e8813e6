package distorter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/distortion"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/utils"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidParameters = errors.New("无效的遗传算法参数")
	ErrNoSolutionFound   = errors.New("没有找到有效的解")
)

type Distorter struct {
	parameters *Parameters
	oracle     Oracle
	rng        *rand.Rand // 只在主流程中使用，并发评估时使用派生出的随机源
}

func New(parameters *Parameters, oracle Oracle) (*Distorter, error) {
	if err := validateParameters(parameters); err != nil {
		return nil, err
	}
	if oracle == nil {
		return nil, fmt.Errorf("%w: 缺少评分器", ErrInvalidParameters)
	}

	return &Distorter{
		parameters: parameters,
		oracle:     oracle,
		rng:        utils.NewRand(parameters.Seed),
	}, nil
}

func validateParameters(p *Parameters) error {
	if p == nil {
		return fmt.Errorf("%w: 参数不能为空", ErrInvalidParameters)
	}

	if err := utils.ValidateDistortionParameters(&domain.DistortionParameters{
		PopulationSize:     p.PopulationSize,
		EliteSize:          p.EliteSize,
		MutationRate:       p.MutationRate,
		Alpha:              p.Alpha,
		MinUnchangedWeight: p.MinUnchangedWeight,
		Generations:        p.Generations,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	if p.Concurrency < 0 {
		return fmt.Errorf("%w: 并发数不能为负数", ErrInvalidParameters)
	}

	return nil
}

// Train 针对 text 搜索最佳的扰动权重
func (d *Distorter) Train(ctx context.Context, text string) (*domain.DistortionResult, error) {
	size := int(d.parameters.PopulationSize)
	floor := d.parameters.MinUnchangedWeight

	// 生成初始种群
	pop := make([]*Individual, size)
	for i := range pop {
		ind, err := d.createIndividual()
		if err != nil {
			return nil, err
		}
		pop[i] = ind
	}
	if err := d.evaluateAll(ctx, pop, text); err != nil {
		return nil, err
	}

	var bestEver *Individual
	convergence := domain.Convergence{
		BestFitness: make([]float64, 0, d.parameters.Generations),
		AvgFitness:  make([]float64, 0, d.parameters.Generations),
		Diversity:   make([]float64, 0, d.parameters.Generations),
	}

	for gen := 0; gen < int(d.parameters.Generations); gen++ {
		sortByFitness(pop)
		bestEver = keepBest(bestEver, pop[0])

		// 保留精英
		newPop := make([]*Individual, 0, size)
		newPop = append(newPop, pop[:int(d.parameters.EliteSize)]...)

		// 繁殖剩余的个体
		children := make([]*Individual, 0, size-len(newPop))
		for len(newPop)+len(children) < size {
			p1 := d.selectByTournament(pop)
			p2 := d.selectByTournament(pop)

			child, err := d.uniformCrossover(p1, p2)
			if err != nil {
				return nil, err
			}
			if err := d.mutate(child); err != nil {
				return nil, err
			}

			// 确保子代满足 unchanged 的下限
			if child.weights, err = normalizeWithFloor(child.weights, floor); err != nil {
				return nil, err
			}

			children = append(children, child)
		}

		if err := d.evaluateAll(ctx, children, text); err != nil {
			return nil, err
		}
		pop = append(newPop, children...)

		best, avg, diversity := populationStats(pop)
		convergence.BestFitness = append(convergence.BestFitness, best)
		convergence.AvgFitness = append(convergence.AvgFitness, avg)
		convergence.Diversity = append(convergence.Diversity, diversity)

		slog.Info("完成一代进化", "generation", gen+1, "best", best, "avg", avg, "diversity", diversity)
	}

	// 最后一代产生的个体也要参与比较
	sortByFitness(pop)
	bestEver = keepBest(bestEver, pop[0])

	if bestEver == nil {
		return nil, ErrNoSolutionFound
	}

	return &domain.DistortionResult{
		DistortedText:  bestEver.distortedText,
		PrivacyScore:   bestEver.privacyScore,
		UsabilityScore: bestEver.usabilityScore,
		Fitness:        bestEver.fitness,
		Weights:        bestEver.weights,
		Convergence:    convergence,
	}, nil
}

// evaluateAll 并发评估一批新个体：评分、隐私修正、再评分
// 随机源在启动 goroutine 之前按顺序派生，保证结果与并发数无关
func (d *Distorter) evaluateAll(ctx context.Context, inds []*Individual, text string) error {
	rngs := make([]*rand.Rand, len(inds))
	for i := range rngs {
		rngs[i] = d.newEvaluationRand()
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, int(d.parameters.Concurrency)))

	for i, ind := range inds {
		i, ind := i, ind
		g.Go(func() error {
			if err := d.evaluate(gCtx, ind, text, rngs[i]); err != nil {
				return err
			}
			if err := adjustForPrivacy(ind, d.parameters.MinUnchangedWeight); err != nil {
				return err
			}
			return d.evaluate(gCtx, ind, text, rngs[i])
		})
	}

	return g.Wait()
}

/**
 * 计算个体的适应度
 * fitness = Alpha * privacy + (1 - Alpha) * usability
 * 可用性评分失败时记为 0，隐私评分失败则直接返回错误
 */
func (d *Distorter) evaluate(ctx context.Context, ind *Individual, text string, rng *rand.Rand) error {
	distorted, err := distortion.Distort(text, ind.weights, rng)
	if err != nil {
		return err
	}

	privacy, err := d.oracle.Privacy(ctx, text, distorted)
	if err != nil {
		return fmt.Errorf("无法计算隐私分数: %w", err)
	}

	usability, err := d.oracle.Usability(ctx, text, distorted)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Warn("无法计算可用性分数，按 0 处理", "error", err)
		usability = 0
	}

	ind.distortedText = distorted
	ind.privacyScore = privacy
	ind.usabilityScore = usability
	ind.fitness = d.parameters.Alpha*privacy + (1-d.parameters.Alpha)*usability
	return nil
}

func sortByFitness(pop []*Individual) {
	sort.SliceStable(pop, func(i, j int) bool {
		return pop[i].fitness > pop[j].fitness
	})
}

// keepBest 返回 best 与 candidate 中更好的一个
// 这里需要拷贝一份，防止后续的隐私修正修改到历史最佳个体
func keepBest(best, candidate *Individual) *Individual {
	if best != nil && candidate.fitness <= best.fitness {
		return best
	}
	cp := *candidate
	return &cp
}
