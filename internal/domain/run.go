package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Finished 表示任务已经结束，不会再被 worker 修改
func (s RunStatus) Finished() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// Fitness 是可以安全序列化为 JSON 的适应度，非有限值序列化为 null
type Fitness float64

func (f Fitness) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

func (f *Fitness) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Fitness(math.Inf(-1))
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Fitness(v)
	return nil
}

type OptimizationRun struct {
	ID             int64                `json:"id"`
	UserID         int64                `json:"userID"`
	Name           string               `json:"name"`
	Objective      string               `json:"objective"`
	Goal           string               `json:"goal"`
	Parameters     optimizer.Parameters `json:"parameters"`
	Status         RunStatus            `json:"status"`
	BestChromosome []float64            `json:"bestChromosome"`
	BestFitness    *Fitness             `json:"bestFitness"`
	BestObjective  *Fitness             `json:"bestObjective"`
	Generations    int                  `json:"generations"`
	ErrorMessage   string               `json:"errorMessage"`
	CreatedAt      time.Time            `json:"createdAt"`
	StartedAt      *time.Time           `json:"startedAt"`
	FinishedAt     *time.Time           `json:"finishedAt"`
	Version        int32                `json:"-"`
}

// GenerationStat 记录某一代结束后前 popSize 个个体的适应度统计
type GenerationStat struct {
	RunID        int64   `json:"runID"`
	Generation   int     `json:"generation"`
	BestFitness  Fitness `json:"bestFitness"`
	WorstFitness Fitness `json:"worstFitness"`
	MeanFitness  Fitness `json:"meanFitness"`
	MutationRate float64 `json:"mutationRate"`
}

func NewGenerationStat(runID int64, report optimizer.GenerationReport) *GenerationStat {
	return &GenerationStat{
		RunID:        runID,
		Generation:   report.Generation,
		BestFitness:  Fitness(report.Stats.Best),
		WorstFitness: Fitness(report.Stats.Worst),
		MeanFitness:  Fitness(report.Stats.Mean),
		MutationRate: report.MutationRate,
	}
}

// RunProgress 是正在运行的任务写入 redis 的实时进度
type RunProgress struct {
	RunID          int64     `json:"runID"`
	Status         RunStatus `json:"status"`
	Generation     int       `json:"generation"`
	MaxGenerations int       `json:"maxGenerations"`
	BestFitness    Fitness   `json:"bestFitness"`
	BestChromosome []float64 `json:"bestChromosome"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// OptimizationJob 是投递到 optimization_queue 的消息
type OptimizationJob struct {
	RunID int64 `json:"runID"`
}
