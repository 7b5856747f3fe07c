package objective

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
)

var (
	ErrUnknownObjective = errors.New("未知的目标函数")
	ErrUnknownGoal      = errors.New("未知的优化方向")
)

type Goal string

const (
	GoalMaximize Goal = "maximize"
	GoalMinimize Goal = "minimize"
)

// Func 计算一个染色体的目标值，不包含优化方向
type Func func(x optimizer.Chromosome) float64

type Objective struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	LowerLim    float64 `json:"lowerLim"` // 推荐的每维下界
	UpperLim    float64 `json:"upperLim"` // 推荐的每维上界
	Optimum     float64 `json:"optimum"`  // 在推荐的优化方向上的理论最优值
	Goal        Goal    `json:"goal"`     // 推荐的优化方向
	Integer     bool    `json:"integer"`

	fn Func
}

// Eval 直接计算目标值
func (o *Objective) Eval(x optimizer.Chromosome) float64 {
	return o.fn(x)
}

var registry = map[string]*Objective{
	"sum": {
		Name:        "sum",
		Description: "各维之和",
		LowerLim:    0,
		UpperLim:    1000,
		Optimum:     0,
		Goal:        GoalMinimize,
		Integer:     true,
		fn:          sum,
	},
	"sphere": {
		Name:        "sphere",
		Description: "各维平方和，单峰",
		LowerLim:    -100,
		UpperLim:    100,
		Optimum:     0,
		Goal:        GoalMinimize,
		fn:          sphere,
	},
	"rastrigin": {
		Name:        "rastrigin",
		Description: "Rastrigin 函数，大量规则分布的局部极值",
		LowerLim:    -5.12,
		UpperLim:    5.12,
		Optimum:     0,
		Goal:        GoalMinimize,
		fn:          rastrigin,
	},
	"rosenbrock": {
		Name:        "rosenbrock",
		Description: "Rosenbrock 香蕉函数，最优解位于狭长弯曲的山谷中",
		LowerLim:    -5,
		UpperLim:    10,
		Optimum:     0,
		Goal:        GoalMinimize,
		fn:          rosenbrock,
	},
	"ackley": {
		Name:        "ackley",
		Description: "Ackley 函数，外围平坦、中心有深坑",
		LowerLim:    -32.768,
		UpperLim:    32.768,
		Optimum:     0,
		Goal:        GoalMinimize,
		fn:          ackley,
	},
	"griewank": {
		Name:        "griewank",
		Description: "Griewank 函数",
		LowerLim:    -600,
		UpperLim:    600,
		Optimum:     0,
		Goal:        GoalMinimize,
		fn:          griewank,
	},
	"schwefel": {
		Name:        "schwefel",
		Description: "Schwefel 函数，最优解远离次优解",
		LowerLim:    -500,
		UpperLim:    500,
		Optimum:     0,
		Goal:        GoalMinimize,
		fn:          schwefel,
	},
}

// Lookup 按名称查找内置目标函数
func Lookup(name string) (*Objective, error) {
	o, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObjective, name)
	}
	return o, nil
}

// All 返回按名称排序的所有内置目标函数
func All() []*Objective {
	objectives := make([]*Objective, 0, len(registry))
	for _, o := range registry {
		objectives = append(objectives, o)
	}
	slices.SortFunc(objectives, func(a, b *Objective) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return objectives
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for _, o := range All() {
		names = append(names, o.Name)
	}
	return names
}

func ParseGoal(s string) (Goal, error) {
	switch Goal(s) {
	case GoalMaximize, GoalMinimize:
		return Goal(s), nil
	case "":
		return GoalMinimize, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGoal, s)
	}
}

// CostFunc 将目标函数包装成适应度函数，最小化时取相反数
func (o *Objective) CostFunc(goal Goal) (optimizer.CostFunc, error) {
	switch goal {
	case GoalMaximize:
		return func(x optimizer.Chromosome) (float64, error) {
			return o.fn(x), nil
		}, nil
	case GoalMinimize:
		return func(x optimizer.Chromosome) (float64, error) {
			return -o.fn(x), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGoal, goal)
	}
}

// ObjectiveValue 将适应度换算回目标值
func ObjectiveValue(goal Goal, fitness float64) float64 {
	if goal == GoalMinimize {
		return -fitness
	}
	return fitness
}

// Bounds 返回 n 维的推荐上下界
func (o *Objective) Bounds(n int) ([]float64, []float64) {
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i] = o.LowerLim
		upper[i] = o.UpperLim
	}
	return lower, upper
}

func sum(x optimizer.Chromosome) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s
}

func sphere(x optimizer.Chromosome) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return s
}

func rastrigin(x optimizer.Chromosome) float64 {
	s := 10 * float64(len(x))
	for _, v := range x {
		s += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return s
}

func rosenbrock(x optimizer.Chromosome) float64 {
	s := 0.0
	for i := 0; i+1 < len(x); i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		s += 100*a*a + b*b
	}
	return s
}

func ackley(x optimizer.Chromosome) float64 {
	if len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	sumSq, sumCos := 0.0, 0.0
	for _, v := range x {
		sumSq += v * v
		sumCos += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sumSq/n)) - math.Exp(sumCos/n) + 20 + math.E
}

func griewank(x optimizer.Chromosome) float64 {
	s, p := 0.0, 1.0
	for i, v := range x {
		s += v * v / 4000
		p *= math.Cos(v / math.Sqrt(float64(i+1)))
	}
	return s - p + 1
}

func schwefel(x optimizer.Chromosome) float64 {
	s := 418.9829 * float64(len(x))
	for _, v := range x {
		s -= v * math.Sin(math.Sqrt(math.Abs(v)))
	}
	return s
}
