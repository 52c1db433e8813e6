package distorter

import (
	"fmt"
	"math/rand"

	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

var (
	// 隐私修正时需要减少的类别，这些操作会让文本更难被还原
	privacyIncreasingCategories = []domain.Category{
		domain.CategorySymbol,
		domain.CategoryAdjacent,
		domain.CategorySwap,
		domain.CategoryInsert,
	}
	// 隐私修正时需要增加的类别
	privacyReducingCategories = []domain.Category{
		domain.CategoryCapitalization,
		domain.CategoryRepeat,
		domain.CategoryPunctuation,
	}
)

const (
	correctionAdjustment = 0.5
	correctionDecrease   = correctionAdjustment * 10
	correctionIncrease   = correctionAdjustment * 5
	correctionLowerBound = 5.0
	correctionUpperBound = 40.0

	tournamentSize = 3
)

/**
 * 带下限的归一化
 * 1. 先把权重总和归一化为 100
 * 2. 如果 unchanged 低于下限，把它设为下限，再把其他类别按比例缩放到 100 - floor
 * 3. 最后再整体缩放一次，消除浮点误差
 * 对同一组权重调用两次的结果与调用一次相同
 */
func normalizeWithFloor(w domain.Weights, floor float64) (domain.Weights, error) {
	w, err := w.Percentages()
	if err != nil {
		return w, err
	}

	if w[domain.CategoryUnchanged] < floor {
		w[domain.CategoryUnchanged] = floor
		scaleOthers(&w, 100-floor)
		// unchanged 固定在下限上，只需要修正其他类别
		return w, nil
	}

	return w.Percentages()
}

// scaleOthers 把除 unchanged 以外的类别按比例缩放到 target，它们的和为 0 时不做任何事
func scaleOthers(w *domain.Weights, target float64) {
	others := 0.0
	for c := range w {
		if domain.Category(c) != domain.CategoryUnchanged {
			others += w[c]
		}
	}
	if others <= 0 {
		return
	}

	scale := target / others
	for c := range w {
		if domain.Category(c) != domain.CategoryUnchanged {
			w[c] *= scale
		}
	}
}

// createIndividual 随机初始化一个个体
// 下限和原始的随机值比较，随机值低于下限时 unchanged 固定为下限，其他类别分配剩余的权重
func (d *Distorter) createIndividual() (*Individual, error) {
	floor := d.parameters.MinUnchangedWeight

	var w domain.Weights
	for c := range w {
		w[c] = d.rng.Float64()
	}
	if w[domain.CategoryUnchanged] < floor {
		w[domain.CategoryUnchanged] = floor
		scaleOthers(&w, 100-floor)
	}

	normalized, err := normalizeWithFloor(w, floor)
	if err != nil {
		return nil, err
	}
	return &Individual{weights: normalized}, nil
}

// 锦标赛选择：随机选出 3 个不同的个体，返回适应度最高的那个
func (d *Distorter) selectByTournament(pop []*Individual) *Individual {
	size := min(tournamentSize, len(pop))
	candidates := d.rng.Perm(len(pop))[:size]

	winner := pop[candidates[0]]
	for _, idx := range candidates[1:] {
		if pop[idx].fitness > winner.fitness {
			winner = pop[idx]
		}
	}
	return winner
}

// 均匀交叉
// 两个父本的 unchanged 都不低于下限时随机继承其中一个，否则子代的 unchanged 直接取下限
func (d *Distorter) uniformCrossover(p1, p2 *Individual) (*Individual, error) {
	floor := d.parameters.MinUnchangedWeight
	var w domain.Weights

	if p1.weights[domain.CategoryUnchanged] >= floor && p2.weights[domain.CategoryUnchanged] >= floor {
		if d.rng.Float64() < 0.5 {
			w[domain.CategoryUnchanged] = p1.weights[domain.CategoryUnchanged]
		} else {
			w[domain.CategoryUnchanged] = p2.weights[domain.CategoryUnchanged]
		}
	} else {
		w[domain.CategoryUnchanged] = floor
	}

	for c := range w {
		if domain.Category(c) == domain.CategoryUnchanged {
			continue
		}
		if d.rng.Float64() < 0.5 {
			w[c] = p1.weights[c]
		} else {
			w[c] = p2.weights[c]
		}
	}

	normalized, err := normalizeWithFloor(w, floor)
	if err != nil {
		return nil, fmt.Errorf("交叉产生了无效的子代: %w", err)
	}
	return &Individual{weights: normalized}, nil
}

// 变异
// 随机挑选一个类别并重新取值，unchanged 已经处于下限时不参与变异
func (d *Distorter) mutate(ind *Individual) error {
	if d.rng.Float64() >= d.parameters.MutationRate {
		return nil
	}

	floor := d.parameters.MinUnchangedWeight
	mutable := make([]domain.Category, 0, domain.NumCategories)
	for _, c := range domain.AllCategories() {
		if c == domain.CategoryUnchanged && ind.weights[c] <= floor {
			continue
		}
		mutable = append(mutable, c)
	}

	c := mutable[d.rng.Intn(len(mutable))]
	ind.weights[c] = d.rng.Float64() * 100

	normalized, err := normalizeWithFloor(ind.weights, floor)
	if err != nil {
		return fmt.Errorf("变异产生了无效的个体: %w", err)
	}
	ind.weights = normalized
	return nil
}

/**
 * 隐私修正
 * 固定步长地减少会显著提高隐私分数的操作，增加温和的操作，然后重新归一化
 * 步长与实际测得的隐私分数无关
 */
func adjustForPrivacy(ind *Individual, floor float64) error {
	for _, c := range privacyIncreasingCategories {
		ind.weights[c] = max(correctionLowerBound, ind.weights[c]-correctionDecrease)
	}
	for _, c := range privacyReducingCategories {
		ind.weights[c] = min(correctionUpperBound, ind.weights[c]+correctionIncrease)
	}

	normalized, err := normalizeWithFloor(ind.weights, floor)
	if err != nil {
		return err
	}
	ind.weights = normalized
	return nil
}

// newEvaluationRand 为每次评估派生一个独立的随机源，这样并发评估时结果仍然可以复现
func (d *Distorter) newEvaluationRand() *rand.Rand {
	return rand.New(rand.NewSource(d.rng.Int63()))
}
