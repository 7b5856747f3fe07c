package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/mq"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/objective"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/utils"
)

// ErrMalformedJob 表示消息无法解析，重新入队也不会成功
var ErrMalformedJob = errors.New("无法解析的任务消息")

type RunStore interface {
	MarkRunRunning(id int64, reclaim bool) (*domain.OptimizationRun, error)
	FinishRun(run *domain.OptimizationRun) error
	InsertGenerationStats(stats []*domain.GenerationStat) error
	GetUserByID(id int64) (*domain.User, error)
}

type ProgressStore interface {
	Save(ctx context.Context, p *domain.RunProgress) error
}

type Publisher interface {
	Publish(ctx context.Context, queue string, v any) (string, error)
}

type Options struct {
	StatsBatchSize   int
	RunTimeout       time.Duration
	FinishAttempts   int
	FinishRetryDelay time.Duration
}

type Runner struct {
	store    RunStore
	progress ProgressStore
	mail     Publisher
	logger   *slog.Logger
	opts     Options
}

func NewRunner(store RunStore, progress ProgressStore, mail Publisher, logger *slog.Logger, opts Options) *Runner {
	if opts.StatsBatchSize <= 0 {
		opts.StatsBatchSize = 1
	}
	if opts.FinishAttempts <= 0 {
		opts.FinishAttempts = 3
	}
	return &Runner{
		store:    store,
		progress: progress,
		mail:     mail,
		logger:   logger,
		opts:     opts,
	}
}

// Handle 处理一条 optimization_queue 消息
// 返回 ErrMalformedJob 时消息应当被丢弃；返回其他错误时可以重新入队。
// redelivered 表示上一个持有该消息的 worker 没有确认它，此时会接管仍处于 running 的任务
func (r *Runner) Handle(ctx context.Context, body []byte, redelivered bool) error {
	job := domain.OptimizationJob{}
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if job.RunID <= 0 {
		return fmt.Errorf("%w: 任务 ID 无效", ErrMalformedJob)
	}

	run, err := r.store.MarkRunRunning(job.RunID, redelivered)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// 任务不存在、已经结束或正在其他 worker 上运行
			r.logger.Warn("跳过非待运行的任务", "runID", job.RunID, "redelivered", redelivered)
			return nil
		}
		return err
	}
	if redelivered {
		r.logger.Warn("处理重新投递的任务", "runID", run.ID)
	}

	r.logger.Info("开始运行优化任务", "runID", run.ID, "objective", run.Objective)
	done := metrics.RunStarted(run.Objective)

	r.execute(ctx, run)
	done(string(run.Status))

	if err := r.finish(run); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("任务已被其他 worker 接管，丢弃本次结果", "runID", run.ID)
			return nil
		}
		return fmt.Errorf("无法保存任务 %d 的结果: %w", run.ID, err)
	}

	r.saveProgress(ctx, run, run.Generations, run.BestFitness, run.BestChromosome)
	r.notify(ctx, run)

	r.logger.Info("优化任务已结束", "runID", run.ID, "status", run.Status, "generations", run.Generations)
	return nil
}

// execute 运行遗传算法并把结果写回 run，失败时 run.Status 为 failed
func (r *Runner) execute(ctx context.Context, run *domain.OptimizationRun) {
	fail := func(err error) {
		r.logger.Error("优化任务失败", "runID", run.ID, "error", err)
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = err.Error()
	}

	obj, err := objective.Lookup(run.Objective)
	if err != nil {
		fail(err)
		return
	}
	goal, err := objective.ParseGoal(run.Goal)
	if err != nil {
		fail(err)
		return
	}
	cost, err := obj.CostFunc(goal)
	if err != nil {
		fail(err)
		return
	}

	batch := newStatsBatch(r.store, r.opts.StatsBatchSize, r.logger)

	engine, err := optimizer.New(run.Parameters, cost,
		optimizer.WithLogger(r.logger.With("runID", run.ID)),
		optimizer.WithProgress(func(report optimizer.GenerationReport) {
			batch.add(domain.NewGenerationStat(run.ID, report))
			metrics.GenerationDone(run.Objective)

			fitness := domain.Fitness(report.BestFitness)
			r.saveProgress(ctx, run, report.Generation, &fitness, report.BestChromosome)
		}),
	)
	if err != nil {
		fail(err)
		return
	}

	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}

	result, err := engine.Optimize(ctx)
	batch.flush()

	run.Generations = result.Generations
	if result.Chromosome != nil {
		run.BestChromosome = result.Chromosome
		fitness := domain.Fitness(result.Fitness)
		value := domain.Fitness(objective.ObjectiveValue(goal, result.Fitness))
		run.BestFitness = &fitness
		run.BestObjective = &value
	}

	if err != nil {
		fail(err)
		return
	}
	if err := utils.ValidateResultWithinBounds(engine.Parameters(), result.Chromosome); err != nil {
		fail(err)
		return
	}
	if err := utils.ValidateFitness(result.Fitness); err != nil {
		fail(err)
		return
	}

	run.Status = domain.RunStatusSucceeded
}

// finish 写入最终结果，遇到临时错误时重试；版本冲突直接返回 sql.ErrNoRows
func (r *Runner) finish(run *domain.OptimizationRun) error {
	var err error
	for attempt := 1; attempt <= r.opts.FinishAttempts; attempt++ {
		err = r.store.FinishRun(run)
		if err == nil || errors.Is(err, sql.ErrNoRows) {
			return err
		}

		r.logger.Warn("无法保存任务结果，稍后重试", "runID", run.ID, "attempt", attempt, "error", err)
		if attempt < r.opts.FinishAttempts {
			time.Sleep(r.opts.FinishRetryDelay)
		}
	}
	return err
}

func (r *Runner) saveProgress(ctx context.Context, run *domain.OptimizationRun, generation int, fitness *domain.Fitness, chromosome []float64) {
	p := &domain.RunProgress{
		RunID:          run.ID,
		Status:         run.Status,
		Generation:     generation,
		MaxGenerations: run.Parameters.MaxGenerations,
		BestChromosome: chromosome,
		UpdatedAt:      time.Now(),
	}
	if fitness != nil {
		p.BestFitness = *fitness
	}

	// 进度只用于展示，写入失败不影响任务
	if err := r.progress.Save(context.WithoutCancel(ctx), p); err != nil {
		r.logger.Warn("无法保存任务进度", "runID", run.ID, "error", err)
	}
}

func (r *Runner) notify(ctx context.Context, run *domain.OptimizationRun) {
	user, err := r.store.GetUserByID(run.UserID)
	if err != nil {
		r.logger.Warn("无法获取任务所属用户，跳过邮件通知", "runID", run.ID, "error", err)
		return
	}

	data := domain.RunFinishedMailData{
		FullName:       user.FullName,
		RunID:          run.ID,
		RunName:        run.Name,
		Objective:      run.Objective,
		Status:         run.Status,
		Generations:    run.Generations,
		BestChromosome: run.BestChromosome,
		ErrorMessage:   run.ErrorMessage,
	}
	if run.BestObjective != nil {
		data.BestObjective = *run.BestObjective
	}

	msg := domain.MailMessage{
		Type: domain.MailTypeRunFinished,
		To:   user.Email,
		Data: data,
	}

	if _, err := r.mail.Publish(context.WithoutCancel(ctx), mq.EmailQueue, msg); err != nil {
		r.logger.Warn("无法投递任务结束邮件", "runID", run.ID, "error", err)
	}
}

// statsBatch 缓存每代统计，攒够一批再写入数据库
type statsBatch struct {
	store  RunStore
	size   int
	logger *slog.Logger
	buf    []*domain.GenerationStat
}

func newStatsBatch(store RunStore, size int, logger *slog.Logger) *statsBatch {
	return &statsBatch{
		store:  store,
		size:   size,
		logger: logger,
		buf:    make([]*domain.GenerationStat, 0, size),
	}
}

func (b *statsBatch) add(stat *domain.GenerationStat) {
	b.buf = append(b.buf, stat)
	if len(b.buf) >= b.size {
		b.flush()
	}
}

func (b *statsBatch) flush() {
	if len(b.buf) == 0 {
		return
	}
	if err := b.store.InsertGenerationStats(b.buf); err != nil {
		b.logger.Error("无法写入每代统计", "count", len(b.buf), "error", err)
	}
	b.buf = b.buf[:0]
}
