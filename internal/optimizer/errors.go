package optimizer

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("无效的遗传算法参数")
	ErrTerminal      = errors.New("已达到最大迭代次数")
	ErrNotStarted    = errors.New("种群尚未初始化")
)

// CostFunctionError 表示适应度函数在某个槽位上求值失败
type CostFunctionError struct {
	Generation int
	Slot       int
	Err        error
}

func (e *CostFunctionError) Error() string {
	return fmt.Sprintf("第 %d 代槽位 %d 的适应度计算失败: %v", e.Generation, e.Slot, e.Err)
}

func (e *CostFunctionError) Unwrap() error {
	return e.Err
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
