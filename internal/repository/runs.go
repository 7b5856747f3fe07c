package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
)

const runColumns = `
	id, user_id, name, objective, goal, parameters, status, best_chromosome, best_fitness, best_objective,
	generations, error_message, created_at, started_at, finished_at, version
`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun 读取一行任务记录，best_chromosome 通过 pgtype 扫描为 []float64
func scanRun(types *pgtype.Map, row rowScanner) (*domain.OptimizationRun, error) {
	run := &domain.OptimizationRun{}

	var (
		parameters     []byte
		bestChromosome []float64
		bestFitness    sql.NullFloat64
		bestObjective  sql.NullFloat64
		startedAt      sql.NullTime
		finishedAt     sql.NullTime
	)

	dst := []any{
		&run.ID,
		&run.UserID,
		&run.Name,
		&run.Objective,
		&run.Goal,
		&parameters,
		&run.Status,
		types.SQLScanner(&bestChromosome),
		&bestFitness,
		&bestObjective,
		&run.Generations,
		&run.ErrorMessage,
		&run.CreatedAt,
		&startedAt,
		&finishedAt,
		&run.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(parameters, &run.Parameters); err != nil {
		return nil, err
	}

	run.BestChromosome = bestChromosome
	if bestFitness.Valid {
		f := domain.Fitness(bestFitness.Float64)
		run.BestFitness = &f
	}
	if bestObjective.Valid {
		f := domain.Fitness(bestObjective.Float64)
		run.BestObjective = &f
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return run, nil
}

func nullFitness(f *domain.Fitness) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(*f), Valid: true}
}

func (r *Repository) CreateRun(run *domain.OptimizationRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	parameters, err := json.Marshal(run.Parameters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO optimization_runs (user_id, name, objective, goal, parameters)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, status, created_at, version
	`

	args := []any{run.UserID, run.Name, run.Objective, run.Goal, parameters}
	dst := []any{&run.ID, &run.Status, &run.CreatedAt, &run.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(dst...); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetRunByID(id int64) (*domain.OptimizationRun, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM optimization_runs WHERE id = $1`

	return scanRun(pgtype.NewMap(), r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) queryRuns(query string, args ...any) ([]*domain.OptimizationRun, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// pgtype.Map 不能并发使用，每次查询单独创建
	types := pgtype.NewMap()

	runs := make([]*domain.OptimizationRun, 0)
	for rows.Next() {
		run, err := scanRun(types, rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

func (r *Repository) GetAllRuns() ([]*domain.OptimizationRun, error) {
	return r.queryRuns(`SELECT ` + runColumns + ` FROM optimization_runs ORDER BY id DESC`)
}

func (r *Repository) GetRunsByUserID(userID int64) ([]*domain.OptimizationRun, error) {
	return r.queryRuns(`SELECT `+runColumns+` FROM optimization_runs WHERE user_id = $1 ORDER BY id DESC`, userID)
}

// MarkRunRunning 把 pending 状态的任务标记为运行中。
// reclaim 为 true 或 started_at 早于 RUN_TIMEOUT 时，running 状态的任务也会被重新接管；
// 其他情况返回 sql.ErrNoRows
func (r *Repository) MarkRunRunning(id int64, reclaim bool) (*domain.OptimizationRun, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		UPDATE optimization_runs
		SET status = 'running', started_at = NOW(), version = version + 1
		WHERE id = $1 AND (
			status = 'pending'
			OR (
				status = 'running'
				AND (
					$2::boolean
					OR ($3::float8 > 0 AND started_at < NOW() - make_interval(secs => $3::float8))
				)
			)
		)
		RETURNING ` + runColumns

	staleAfter := float64(r.cfg.Optimizer.RunTimeout)
	return scanRun(pgtype.NewMap(), r.dbpool.QueryRowContext(ctx, query, id, reclaim, staleAfter))
}

// FinishRun 写入最终结果，version 不匹配时返回 sql.ErrNoRows
func (r *Repository) FinishRun(run *domain.OptimizationRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		UPDATE optimization_runs
		SET
			status = $1,
			best_chromosome = $2,
			best_fitness = $3,
			best_objective = $4,
			generations = $5,
			error_message = $6,
			finished_at = NOW(),
			version = version + 1
		WHERE id = $7 AND version = $8
		RETURNING finished_at, version
	`

	var bestChromosome any
	if run.BestChromosome != nil {
		bestChromosome = run.BestChromosome
	}

	args := []any{
		run.Status,
		bestChromosome,
		nullFitness(run.BestFitness),
		nullFitness(run.BestObjective),
		run.Generations,
		run.ErrorMessage,
		run.ID,
		run.Version,
	}

	var finishedAt time.Time
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&finishedAt, &run.Version); err != nil {
		return err
	}
	run.FinishedAt = &finishedAt

	return nil
}

func (r *Repository) DeleteRun(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `DELETE FROM optimization_runs WHERE id = $1`

	if _, err := r.dbpool.ExecContext(ctx, query, id); err != nil {
		return err
	}

	return nil
}

// InsertGenerationStats 在一个事务中批量写入每代统计
func (r *Repository) InsertGenerationStats(stats []*domain.GenerationStat) error {
	if len(stats) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO generation_stats (run_id, generation, best_fitness, worst_fitness, mean_fitness, mutation_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, generation) DO NOTHING
	`

	for _, stat := range stats {
		args := []any{
			stat.RunID,
			stat.Generation,
			float64(stat.BestFitness),
			float64(stat.WorstFitness),
			float64(stat.MeanFitness),
			stat.MutationRate,
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetGenerationStats(runID int64) ([]*domain.GenerationStat, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT generation, best_fitness, worst_fitness, mean_fitness, mutation_rate
		FROM generation_stats
		WHERE run_id = $1
		ORDER BY generation
	`

	rows, err := r.dbpool.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]*domain.GenerationStat, 0)
	for rows.Next() {
		stat := &domain.GenerationStat{RunID: runID}

		var best, worst, mean float64
		if err := rows.Scan(&stat.Generation, &best, &worst, &mean, &stat.MutationRate); err != nil {
			return nil, err
		}
		stat.BestFitness = domain.Fitness(best)
		stat.WorstFitness = domain.Fitness(worst)
		stat.MeanFitness = domain.Fitness(mean)

		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
