package optimizer

import (
	"fmt"
	"math"
	"math/bits"
)

// 锦标赛退化（所有抽样都落在同一个下标）时的最大重抽次数
const maxTournamentRetries = 16

// randomChromosome 在上下界之间均匀随机生成一个染色体
func (e *Engine) randomChromosome() Chromosome {
	ch := make(Chromosome, e.params.NumParams)

	for j := range ch {
		limitDiff := e.params.UpperLim[j] - e.params.LowerLim[j]
		ch[j] = e.clampGene(j, e.round(e.rng.Float64()*limitDiff+e.params.LowerLim[j]))
	}

	return ch
}

// evaluate 计算染色体的适应度
// 适应度函数返回的错误或 panic 会被包装成 CostFunctionError；NaN/Inf 视为最差适应度
func (e *Engine) evaluate(ch Chromosome, slot int) (fitness float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CostFunctionError{Generation: e.generation, Slot: slot, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	fitness, err = e.cost(ch)
	if err != nil {
		return 0, &CostFunctionError{Generation: e.generation, Slot: slot, Err: err}
	}

	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		e.logger.Warn("适应度不是有限值，按最差处理", "generation", e.generation, "slot", slot, "fitness", fitness)
		return math.Inf(-1), nil
	}

	return fitness, nil
}

// selectParents 使用锦标赛选择从前 popSize 个槽位中选出两个不同的父本
func (e *Engine) selectParents() (int, int) {
	popSize := e.params.PopulationSize
	idx := make([]int, e.params.TournamentSize)

	for attempt := 0; attempt < maxTournamentRetries; attempt++ {
		for i := range idx {
			idx[i] = e.rng.IntN(popSize)
		}

		first, second := e.tournamentWinners(idx)
		if second >= 0 {
			return first, second
		}
	}

	// 随机源反复退化时，取相邻下标作为第二个父本
	first := idx[0]
	return first, (first + 1) % popSize
}

// tournamentWinners 返回抽样中适应度最高的两个不同下标，不存在第二个时返回 -1
func (e *Engine) tournamentWinners(idx []int) (int, int) {
	first := idx[0]
	for _, id := range idx[1:] {
		if e.population.Fitness(id) > e.population.Fitness(first) {
			first = id
		}
	}

	second := -1
	for _, id := range idx {
		if id == first {
			continue
		}
		if second < 0 || e.population.Fitness(id) > e.population.Fitness(second) {
			second = id
		}
	}

	return first, second
}

// crossover 按 CrossoverRate 的概率对两个父本进行交叉，否则原样复制
func (e *Engine) crossover(parent1, parent2 Chromosome) (Chromosome, Chromosome) {
	if !(e.rng.Float64() < e.params.CrossoverRate) {
		return parent1.Clone(), parent2.Clone()
	}

	switch e.params.CrossoverStrategy {
	case CrossoverSinglePoint:
		return e.singlePointCrossover(parent1, parent2)
	default:
		return e.blendCrossover(parent1, parent2)
	}
}

// blendCrossover 算术混合交叉，所有维度共用一个混合系数
func (e *Engine) blendCrossover(parent1, parent2 Chromosome) (Chromosome, Chromosome) {
	child1 := make(Chromosome, len(parent1))
	child2 := make(Chromosome, len(parent2))

	alpha := e.rng.Float64()
	for j := range child1 {
		child1[j] = e.clampGene(j, e.round(alpha*parent1[j]+(1-alpha)*parent2[j]))
		child2[j] = e.clampGene(j, e.round(alpha*parent2[j]+(1-alpha)*parent1[j]))
	}

	return child1, child2
}

// singlePointCrossover 交换两个父本在切分点之后的基因
func (e *Engine) singlePointCrossover(parent1, parent2 Chromosome) (Chromosome, Chromosome) {
	child1 := parent1.Clone()
	child2 := parent2.Clone()

	length := len(child1)
	if length < 2 {
		return child1, child2
	}

	split := 1 + e.rng.IntN(length-1)
	for i := split; i < length; i++ {
		child1[i], child2[i] = parent2[i], parent1[i]
	}

	return child1, child2
}

// mutate 返回变异后的副本，不修改传入的染色体
func (e *Engine) mutate(child Chromosome) Chromosome {
	mutated := child.Clone()

	switch e.params.MutationStrategy {
	case MutationBitFlip:
		e.bitFlipMutation(mutated)
	default:
		e.offsetMutation(mutated)
	}

	return mutated
}

// offsetMutation 随机选出 MutationGenes 个维度，加上与取值范围成比例的随机偏移
func (e *Engine) offsetMutation(ch Chromosome) {
	chosen := make([]bool, len(ch))
	for i := 0; i < e.params.MutationGenes; i++ {
		chosen[e.rng.IntN(len(ch))] = true
	}

	for j, ok := range chosen {
		if !ok {
			continue
		}
		limitDiff := e.params.UpperLim[j] - e.params.LowerLim[j]
		adder := e.round((e.rng.Float64() - 0.5) * 2 * limitDiff)
		ch[j] = e.clampGene(j, ch[j]+adder)
	}
}

// bitFlipMutation 对每个维度相对下界的整数偏移量翻转一个随机位。
// 三位及以上时最高位和最低位都保持不变，更短的偏移量只能翻转最低位。
func (e *Engine) bitFlipMutation(ch Chromosome) {
	for j := range ch {
		offset := uint64(math.Max(0, math.Floor(ch[j]-e.params.LowerLim[j])))

		bit := 0
		if length := bits.Len64(offset); length >= 3 {
			// 从最高位数起的下标 1..length-2
			bit = length - 2 - e.rng.IntN(length-2)
		}
		offset ^= 1 << bit

		ch[j] = e.clampGene(j, e.params.LowerLim[j]+float64(offset))
	}
}

// round 在整数模式下向下取整
func (e *Engine) round(v float64) float64 {
	if e.params.Integer {
		return math.Floor(v)
	}
	return v
}

// clampGene 将第 j 个基因限制在上下界之内
func (e *Engine) clampGene(j int, v float64) float64 {
	return math.Max(e.params.LowerLim[j], math.Min(e.params.UpperLim[j], v))
}
