package optimizer

// Chromosome: 一组待优化的参数，长度固定为 NumParams
type Chromosome []float64

// Clone 返回染色体的副本，避免种群槽位之间共享底层数组
func (c Chromosome) Clone() Chromosome {
	if c == nil {
		return nil
	}
	out := make(Chromosome, len(c))
	copy(out, c)
	return out
}

// CostFunc 计算染色体的适应度，值越大越好
type CostFunc func(ch Chromosome) (float64, error)

type CrossoverStrategy string

const (
	CrossoverBlend       CrossoverStrategy = "blend"        // 算术混合交叉
	CrossoverSinglePoint CrossoverStrategy = "single_point" // 单点交叉
)

type MutationStrategy string

const (
	MutationOffset  MutationStrategy = "offset"   // 按取值范围比例的随机偏移
	MutationBitFlip MutationStrategy = "bit_flip" // 整数位翻转
)

// 未使用槽位的适应度
const UnassignedFitness = -1e9

// 遗传算法参数
type Parameters struct {
	NumParams      int       `json:"numParams"`      // 参数个数
	LowerLim       []float64 `json:"lowerLim"`       // 每个参数的下界
	UpperLim       []float64 `json:"upperLim"`       // 每个参数的上界
	PopulationSize int       `json:"populationSize"` // 种群大小（必须为偶数）
	MaxGenerations int       `json:"maxGenerations"` // 最大迭代次数
	CrossoverRate  float64   `json:"crossoverRate"`  // 交叉概率
	MutationRate   float64   `json:"mutationRate"`   // 变异概率

	TournamentSize    int               `json:"tournamentSize"`    // 锦标赛规模
	MutationGenes     int               `json:"mutationGenes"`     // 每次变异的基因个数
	EliteWidth        int               `json:"eliteWidth"`        // 每代截断后保留的个体数
	Integer           bool              `json:"integer"`           // 是否对参数取整
	CrossoverStrategy CrossoverStrategy `json:"crossoverStrategy"` // 交叉策略
	MutationStrategy  MutationStrategy  `json:"mutationStrategy"`  // 变异策略
	CoolingRate       float64           `json:"coolingRate"`       // 后半程变异率衰减系数，0 表示不衰减
	Seed              uint64            `json:"seed"`              // 随机种子，0 表示随机
}

func DefaultParameters() Parameters {
	numParams := 10
	lower := make([]float64, numParams)
	upper := make([]float64, numParams)
	for i := range upper {
		upper[i] = 1000
	}

	return Parameters{
		NumParams:         numParams,
		LowerLim:          lower,
		UpperLim:          upper,
		PopulationSize:    100,
		MaxGenerations:    300,
		CrossoverRate:     0.6,
		MutationRate:      0.2,
		TournamentSize:    5,
		MutationGenes:     1,
		EliteWidth:        50,
		Integer:           true,
		CrossoverStrategy: CrossoverBlend,
		MutationStrategy:  MutationOffset,
	}
}

// withDefaults 补全可选参数
func (p Parameters) withDefaults() Parameters {
	if p.TournamentSize == 0 {
		p.TournamentSize = 5
	}
	if p.MutationGenes == 0 {
		p.MutationGenes = 1
	}
	if p.EliteWidth == 0 {
		p.EliteWidth = p.PopulationSize / 2
	}
	if p.CrossoverStrategy == "" {
		p.CrossoverStrategy = CrossoverBlend
	}
	if p.MutationStrategy == "" {
		p.MutationStrategy = MutationOffset
	}
	return p
}

type Phase int

const (
	PhaseFilling Phase = iota
	PhaseSorting
	PhaseTruncating
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseFilling:
		return "filling"
	case PhaseSorting:
		return "sorting"
	case PhaseTruncating:
		return "truncating"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Stats 为当前活跃窗口的统计信息
type Stats struct {
	Best  float64 `json:"best"`
	Worst float64 `json:"worst"`
	Mean  float64 `json:"mean"`
}

// GenerationReport 在每一代结束后回调
type GenerationReport struct {
	Generation     int        `json:"generation"`
	BestFitness    float64    `json:"bestFitness"`
	BestChromosome Chromosome `json:"bestChromosome"`
	Stats          Stats      `json:"stats"`
	MutationRate   float64    `json:"mutationRate"`
}

type Result struct {
	Chromosome  Chromosome `json:"chromosome"`
	Fitness     float64    `json:"fitness"`
	Generations int        `json:"generations"`
}
