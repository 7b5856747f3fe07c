package utils

import (
	"errors"
	"fmt"
	"math"

	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
)

// Limits 是提交任务时允许的参数上限
type Limits struct {
	MaxNumParams      int
	MaxPopulationSize int
	MaxGenerations    int
}

func ValidateParametersWithinLimits(params optimizer.Parameters, limits Limits) error {
	if params.NumParams > limits.MaxNumParams {
		return fmt.Errorf("参数个数不能超过 %d", limits.MaxNumParams)
	}
	if params.PopulationSize > limits.MaxPopulationSize {
		return fmt.Errorf("种群大小不能超过 %d", limits.MaxPopulationSize)
	}
	if params.MaxGenerations > limits.MaxGenerations {
		return fmt.Errorf("最大迭代次数不能超过 %d", limits.MaxGenerations)
	}
	return nil
}

// ValidateResultWithinBounds 检查最优解的长度以及每一维是否在上下界之内
func ValidateResultWithinBounds(params optimizer.Parameters, chromosome []float64) error {
	if len(chromosome) != params.NumParams {
		return fmt.Errorf("最优解的长度 %d 与参数个数 %d 不一致", len(chromosome), params.NumParams)
	}

	for j, v := range chromosome {
		if math.IsNaN(v) {
			return fmt.Errorf("最优解的第 %d 维不是数字", j)
		}
		if v < params.LowerLim[j] || v > params.UpperLim[j] {
			return fmt.Errorf("最优解的第 %d 维 %v 超出范围 [%v, %v]", j, v, params.LowerLim[j], params.UpperLim[j])
		}
		if params.Integer && v != math.Floor(v) && v != params.LowerLim[j] && v != params.UpperLim[j] {
			return fmt.Errorf("整数模式下最优解的第 %d 维 %v 不是整数", j, v)
		}
	}

	return nil
}

// ValidateFitness 检查最优适应度是否为有限值
func ValidateFitness(fitness float64) error {
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return errors.New("最优适应度不是有限值")
	}
	return nil
}
