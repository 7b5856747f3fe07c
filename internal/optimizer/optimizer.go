package optimizer

import (
	"context"
	"log/slog"
	"math"
)

// Engine 持有一次优化运行的全部状态，同一时间只能被一个 goroutine 使用
type Engine struct {
	params   Parameters
	cost     CostFunc
	rng      Rand
	logger   *slog.Logger
	progress func(GenerationReport)

	population   *Population
	generation   int
	phase        Phase
	mutationRate float64
	initialized  bool
}

type Option func(*Engine)

// WithRand 替换随机源，测试中可用于注入确定的随机序列
func WithRand(rng Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithProgress 注册每代结束后的回调
func WithProgress(fn func(GenerationReport)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// ValidateParameters 补全默认值并检查参数，返回补全后的参数
func ValidateParameters(params Parameters) (Parameters, error) {
	p := params.withDefaults()

	if p.NumParams <= 0 {
		return p, invalidConfig("参数个数必须大于 0")
	}
	if len(p.LowerLim) != p.NumParams || len(p.UpperLim) != p.NumParams {
		return p, invalidConfig("上下界长度 (%d, %d) 与参数个数 %d 不一致", len(p.LowerLim), len(p.UpperLim), p.NumParams)
	}
	for j := 0; j < p.NumParams; j++ {
		lower, upper := p.LowerLim[j], p.UpperLim[j]
		if math.IsNaN(lower) || math.IsInf(lower, 0) || math.IsNaN(upper) || math.IsInf(upper, 0) {
			return p, invalidConfig("第 %d 个参数的上下界必须是有限值", j)
		}
		if lower > upper {
			return p, invalidConfig("第 %d 个参数的下界 %v 大于上界 %v", j, lower, upper)
		}
	}
	if p.PopulationSize <= 0 || p.PopulationSize%2 != 0 {
		return p, invalidConfig("种群大小必须是正偶数，当前为 %d", p.PopulationSize)
	}
	if p.MaxGenerations <= 0 {
		return p, invalidConfig("最大迭代次数必须大于 0")
	}
	if !inUnitInterval(p.CrossoverRate) {
		return p, invalidConfig("交叉概率必须在 [0, 1] 之间")
	}
	if !inUnitInterval(p.MutationRate) {
		return p, invalidConfig("变异概率必须在 [0, 1] 之间")
	}
	if !inUnitInterval(p.CoolingRate) {
		return p, invalidConfig("变异率衰减系数必须在 [0, 1] 之间")
	}
	if p.TournamentSize < 2 {
		return p, invalidConfig("锦标赛规模至少为 2")
	}
	if p.MutationGenes < 1 {
		return p, invalidConfig("每次变异的基因个数至少为 1")
	}
	if p.EliteWidth < 1 || p.EliteWidth > p.PopulationSize {
		return p, invalidConfig("保留个体数必须在 [1, %d] 之间", p.PopulationSize)
	}
	switch p.CrossoverStrategy {
	case CrossoverBlend, CrossoverSinglePoint:
	default:
		return p, invalidConfig("不支持的交叉策略 %q", p.CrossoverStrategy)
	}
	switch p.MutationStrategy {
	case MutationOffset, MutationBitFlip:
	default:
		return p, invalidConfig("不支持的变异策略 %q", p.MutationStrategy)
	}

	return p, nil
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func New(params Parameters, cost CostFunc, opts ...Option) (*Engine, error) {
	p, err := ValidateParameters(params)
	if err != nil {
		return nil, err
	}
	if cost == nil {
		return nil, invalidConfig("适应度函数不能为空")
	}

	// 上下界由引擎持有一份副本，调用方之后的修改不影响本次运行
	p.LowerLim = append([]float64(nil), p.LowerLim...)
	p.UpperLim = append([]float64(nil), p.UpperLim...)

	e := &Engine{
		params:       p,
		cost:         cost,
		logger:       slog.Default(),
		population:   newPopulation(2 * p.PopulationSize),
		phase:        PhaseFilling,
		mutationRate: p.MutationRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = newRand(p.Seed)
	}

	return e, nil
}

// Initialize 生成并评估第一代种群，然后排序
func (e *Engine) Initialize() error {
	e.population = newPopulation(2 * e.params.PopulationSize)
	e.generation = 0
	e.mutationRate = e.params.MutationRate
	e.phase = PhaseFilling
	e.initialized = false

	for i := 0; i < e.params.PopulationSize; i++ {
		ch := e.randomChromosome()

		fitness, err := e.evaluate(ch, i)
		if err != nil {
			return err
		}

		e.population.Set(i, ch, fitness)
	}

	e.population.Sort(e.population.Len())
	e.population.Truncate(e.params.PopulationSize)
	e.initialized = true

	e.logger.Debug("初始种群已生成", "populationSize", e.params.PopulationSize, "bestFitness", e.BestFitness())
	return nil
}

// RunGeneration 推进一代：填充子代、排序、截断
func (e *Engine) RunGeneration() error {
	if !e.initialized {
		return ErrNotStarted
	}
	if e.phase == PhaseTerminal {
		return ErrTerminal
	}

	// 过半之后逐代衰减变异率
	if e.params.CoolingRate > 0 && e.params.CoolingRate < 1 && e.generation > e.params.MaxGenerations/2 {
		e.mutationRate *= e.params.CoolingRate
	}

	e.phase = PhaseFilling
	capacity := e.population.Len()

	for slot := e.population.Active(); slot < capacity; slot += 2 {
		idxParent1, idxParent2 := e.selectParents()

		child1, child2 := e.crossover(e.population.Chromosome(idxParent1), e.population.Chromosome(idxParent2))

		if e.rng.Float64() < e.mutationRate {
			child1 = e.mutate(child1)
		}
		if e.rng.Float64() < e.mutationRate {
			child2 = e.mutate(child2)
		}

		if err := e.place(slot, child1); err != nil {
			return err
		}
		// 剩余槽位为奇数时丢弃第二个子代
		if slot+1 < capacity {
			if err := e.place(slot+1, child2); err != nil {
				return err
			}
		}
	}

	e.phase = PhaseSorting
	e.population.Sort(capacity)

	e.phase = PhaseTruncating
	e.population.Truncate(e.params.EliteWidth)
	e.generation++

	e.report()

	if e.generation >= e.params.MaxGenerations {
		e.phase = PhaseTerminal
	} else {
		e.phase = PhaseFilling
	}

	return nil
}

func (e *Engine) place(slot int, ch Chromosome) error {
	fitness, err := e.evaluate(ch, slot)
	if err != nil {
		return err
	}
	e.population.Set(slot, ch, fitness)
	return nil
}

func (e *Engine) report() {
	e.logger.Debug("完成一代", "generation", e.generation, "bestFitness", e.BestFitness())

	if e.progress == nil {
		return
	}
	e.progress(GenerationReport{
		Generation:     e.generation,
		BestFitness:    e.BestFitness(),
		BestChromosome: e.BestChromosome(),
		Stats:          e.Stats(),
		MutationRate:   e.mutationRate,
	})
}

// Optimize 运行剩余的所有代并返回最优解，只在两代之间检查 ctx
func (e *Engine) Optimize(ctx context.Context) (Result, error) {
	if !e.initialized {
		if err := e.Initialize(); err != nil {
			return Result{}, err
		}
	}

	for e.phase != PhaseTerminal {
		select {
		case <-ctx.Done():
			return e.result(), ctx.Err()
		default:
		}

		if err := e.RunGeneration(); err != nil {
			return e.result(), err
		}
	}

	return e.result(), nil
}

func (e *Engine) result() Result {
	return Result{
		Chromosome:  e.BestChromosome(),
		Fitness:     e.BestFitness(),
		Generations: e.generation,
	}
}

// BestChromosome 返回当前最优染色体的副本
func (e *Engine) BestChromosome() Chromosome {
	return e.population.Chromosome(0).Clone()
}

func (e *Engine) BestFitness() float64 {
	return e.population.Fitness(0)
}

func (e *Engine) Generation() int {
	return e.generation
}

func (e *Engine) Phase() Phase {
	return e.phase
}

func (e *Engine) MutationRate() float64 {
	return e.mutationRate
}

func (e *Engine) Parameters() Parameters {
	return e.params
}

// Population 返回前 popSize 个槽位的副本
func (e *Engine) Population() ([]Chromosome, []float64) {
	n := e.params.PopulationSize
	chromosomes := make([]Chromosome, n)
	fitness := make([]float64, n)

	for i := 0; i < n; i++ {
		chromosomes[i] = e.population.Chromosome(i).Clone()
		fitness[i] = e.population.Fitness(i)
	}

	return chromosomes, fitness
}

// Stats 统计前 popSize 个槽位的适应度。
// Mean 只对有限值取平均，全部非有限时为 -Inf；Worst 仍如实反映 -Inf。
func (e *Engine) Stats() Stats {
	n := e.params.PopulationSize
	stats := Stats{
		Best:  e.population.Fitness(0),
		Worst: e.population.Fitness(0),
		Mean:  math.Inf(-1),
	}

	total, finite := 0.0, 0
	for i := 0; i < n; i++ {
		f := e.population.Fitness(i)
		stats.Best = math.Max(stats.Best, f)
		stats.Worst = math.Min(stats.Worst, f)
		if !math.IsInf(f, 0) && !math.IsNaN(f) {
			total += f
			finite++
		}
	}
	if finite > 0 {
		stats.Mean = total / float64(finite)
	}

	return stats
}
