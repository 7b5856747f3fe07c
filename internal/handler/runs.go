package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/mq"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/objective"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/progress"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/utils"
)

type createRunRequest struct {
	Name              string    `json:"name" validate:"required,max=100"`
	Objective         string    `json:"objective" validate:"required"`
	Goal              string    `json:"goal" validate:"omitempty,oneof=minimize maximize"`
	NumParams         int       `json:"numParams" validate:"required,min=1"`
	LowerLim          []float64 `json:"lowerLim"`
	UpperLim          []float64 `json:"upperLim"`
	PopulationSize    int       `json:"populationSize" validate:"omitempty,min=2"`
	MaxGenerations    int       `json:"maxGenerations" validate:"omitempty,min=1"`
	CrossoverRate     *float64  `json:"crossoverRate" validate:"omitempty,min=0,max=1"`
	MutationRate      *float64  `json:"mutationRate" validate:"omitempty,min=0,max=1"`
	TournamentSize    int       `json:"tournamentSize" validate:"omitempty,min=2"`
	MutationGenes     int       `json:"mutationGenes" validate:"omitempty,min=1"`
	EliteWidth        int       `json:"eliteWidth" validate:"omitempty,min=1"`
	Integer           *bool     `json:"integer"`
	CrossoverStrategy string    `json:"crossoverStrategy" validate:"omitempty,oneof=blend single_point"`
	MutationStrategy  string    `json:"mutationStrategy" validate:"omitempty,oneof=offset bit_flip"`
	CoolingRate       float64   `json:"coolingRate" validate:"min=0,max=1"`
	Seed              uint64    `json:"seed"`
}

// parameters 按目标函数的推荐值和服务端默认值补全请求中省略的字段
func (h *Handler) parameters(req *createRunRequest, obj *objective.Objective) optimizer.Parameters {
	defaults := optimizer.DefaultParameters()

	params := optimizer.Parameters{
		NumParams:         req.NumParams,
		LowerLim:          req.LowerLim,
		UpperLim:          req.UpperLim,
		PopulationSize:    req.PopulationSize,
		MaxGenerations:    req.MaxGenerations,
		CrossoverRate:     defaults.CrossoverRate,
		MutationRate:      defaults.MutationRate,
		TournamentSize:    req.TournamentSize,
		MutationGenes:     req.MutationGenes,
		EliteWidth:        req.EliteWidth,
		Integer:           obj.Integer,
		CrossoverStrategy: optimizer.CrossoverStrategy(req.CrossoverStrategy),
		MutationStrategy:  optimizer.MutationStrategy(req.MutationStrategy),
		CoolingRate:       req.CoolingRate,
		Seed:              req.Seed,
	}

	lower, upper := obj.Bounds(req.NumParams)
	if params.LowerLim == nil {
		params.LowerLim = lower
	}
	if params.UpperLim == nil {
		params.UpperLim = upper
	}
	if params.PopulationSize == 0 {
		params.PopulationSize = h.config.Optimizer.DefaultPopulation
	}
	if params.MaxGenerations == 0 {
		params.MaxGenerations = h.config.Optimizer.DefaultGenerations
	}
	if req.CrossoverRate != nil {
		params.CrossoverRate = *req.CrossoverRate
	}
	if req.MutationRate != nil {
		params.MutationRate = *req.MutationRate
	}
	if req.Integer != nil {
		params.Integer = *req.Integer
	}

	return params
}

func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)

	req := &createRunRequest{}
	if err := h.readJSON(r, req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	obj, err := objective.Lookup(req.Objective)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	goal, err := objective.ParseGoal(req.Goal)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	params, err := optimizer.ValidateParameters(h.parameters(req, obj))
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	limits := utils.Limits{
		MaxNumParams:      h.config.Optimizer.MaxNumParams,
		MaxPopulationSize: h.config.Optimizer.MaxPopulationSize,
		MaxGenerations:    h.config.Optimizer.MaxGenerations,
	}
	if err := utils.ValidateParametersWithinLimits(params, limits); err != nil {
		h.badRequest(w, r, err)
		return
	}

	run := &domain.OptimizationRun{
		UserID:     myInfo.ID,
		Name:       req.Name,
		Objective:  obj.Name,
		Goal:       string(goal),
		Parameters: params,
	}
	if err := h.store.CreateRun(run); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	if _, err := h.publisher.Publish(ctx, mq.OptimizationQueue, domain.OptimizationJob{RunID: run.ID}); err != nil {
		// 没有投递出去的任务不会被 worker 处理，直接删掉避免一直停留在 pending
		if delErr := h.store.DeleteRun(run.ID); delErr != nil {
			err = errors.Join(err, delErr)
		}
		h.internalServerError(w, r, err)
		return
	}
	metrics.RunSubmitted(run.Objective)

	h.successResponse(w, r, "任务已提交", run)
}

// GetRuns 管理员可以看到所有任务，其他用户只能看到自己的任务
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)

	var (
		runs []*domain.OptimizationRun
		err  error
	)
	if myInfo.Role == domain.RoleAdmin {
		runs, err = h.store.GetAllRuns()
	} else {
		runs, err = h.store.GetRunsByUserID(myInfo.ID)
	}
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取任务列表成功", runs)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.OptimizationRun)
	h.successResponse(w, r, "获取任务成功", run)
}

// GetRunProgress 优先读取 redis 中的实时进度，进度已过期或尚未开始时由数据库记录推出
func (h *Handler) GetRunProgress(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.OptimizationRun)

	p, err := h.progress.Get(r.Context(), run.ID)
	if err == nil {
		h.successResponse(w, r, "获取任务进度成功", p)
		return
	}
	if !errors.Is(err, progress.ErrNotFound) {
		h.internalServerError(w, r, err)
		return
	}

	p = &domain.RunProgress{
		RunID:          run.ID,
		Status:         run.Status,
		Generation:     run.Generations,
		MaxGenerations: run.Parameters.MaxGenerations,
		BestChromosome: run.BestChromosome,
		UpdatedAt:      run.CreatedAt,
	}
	p.BestFitness = domain.Fitness(math.Inf(-1))
	if run.BestFitness != nil {
		p.BestFitness = *run.BestFitness
	}
	if run.FinishedAt != nil {
		p.UpdatedAt = *run.FinishedAt
	}

	h.successResponse(w, r, "获取任务进度成功", p)
}

func (h *Handler) GetRunGenerations(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.OptimizationRun)

	stats, err := h.store.GetGenerationStats(run.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取每代统计成功", stats)
}

func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(RunCtx).(*domain.OptimizationRun)

	if !run.Status.Finished() {
		h.errorResponse(w, r, "只能删除已结束的任务")
		return
	}

	if err := h.store.DeleteRun(run.ID); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	// 进度会自动过期，删除失败不影响结果
	if err := h.progress.Delete(r.Context(), run.ID); err != nil {
		h.logInternalServerError(r, err)
	}

	h.successResponse(w, r, "删除任务成功", nil)
}
