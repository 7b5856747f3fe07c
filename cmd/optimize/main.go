package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/objective"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
)

type options struct {
	objective string
	goal      string
	dims      int
	lower     string
	upper     string
	logEvery  int
	verbose   bool
	params    optimizer.Parameters
}

func parseFlags(args []string) (*options, error) {
	defaults := optimizer.DefaultParameters()
	opts := &options{}

	var (
		integer           string
		crossoverStrategy string
		mutationStrategy  string
	)

	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	fs.StringVar(&opts.objective, "objective", "sum", fmt.Sprintf("目标函数 %v", objective.Names()))
	fs.StringVar(&opts.goal, "goal", "", "优化方向 (minimize, maximize)，默认使用目标函数推荐的方向")
	fs.IntVar(&opts.dims, "dims", defaults.NumParams, "参数个数")
	fs.StringVar(&opts.lower, "lower", "", "每个参数的下界，默认使用目标函数推荐的下界")
	fs.StringVar(&opts.upper, "upper", "", "每个参数的上界，默认使用目标函数推荐的上界")
	fs.IntVar(&opts.params.PopulationSize, "pop", defaults.PopulationSize, "种群大小（偶数）")
	fs.IntVar(&opts.params.MaxGenerations, "gen", defaults.MaxGenerations, "最大迭代次数")
	fs.Float64Var(&opts.params.CrossoverRate, "crossover", defaults.CrossoverRate, "交叉概率")
	fs.Float64Var(&opts.params.MutationRate, "mutation", defaults.MutationRate, "变异概率")
	fs.IntVar(&opts.params.TournamentSize, "tournament", defaults.TournamentSize, "锦标赛规模")
	fs.IntVar(&opts.params.MutationGenes, "mutation-genes", defaults.MutationGenes, "每次变异的基因个数")
	fs.IntVar(&opts.params.EliteWidth, "elite", 0, "每代保留的个体数，默认为种群大小的一半")
	fs.StringVar(&integer, "integer", "", "是否对参数取整 (true, false)，默认使用目标函数的设置")
	fs.StringVar(&crossoverStrategy, "crossover-strategy", string(defaults.CrossoverStrategy), "交叉策略 (blend, single_point)")
	fs.StringVar(&mutationStrategy, "mutation-strategy", string(defaults.MutationStrategy), "变异策略 (offset, bit_flip)")
	fs.Float64Var(&opts.params.CoolingRate, "cooling", 0, "后半程变异率衰减系数")
	fs.Uint64Var(&opts.params.Seed, "seed", 0, "随机种子，0 表示随机")
	fs.IntVar(&opts.logEvery, "log-every", 10, "每隔多少代输出一次进度，0 表示不输出")
	fs.BoolVar(&opts.verbose, "v", false, "输出调试日志")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	obj, err := objective.Lookup(opts.objective)
	if err != nil {
		return nil, err
	}
	if opts.goal == "" {
		opts.goal = string(obj.Goal)
	}

	opts.params.NumParams = opts.dims
	opts.params.CrossoverStrategy = optimizer.CrossoverStrategy(crossoverStrategy)
	opts.params.MutationStrategy = optimizer.MutationStrategy(mutationStrategy)

	opts.params.Integer = obj.Integer
	if integer != "" {
		if opts.params.Integer, err = strconv.ParseBool(integer); err != nil {
			return nil, fmt.Errorf("无效的 -integer: %w", err)
		}
	}

	if opts.dims > 0 {
		opts.params.LowerLim, opts.params.UpperLim = obj.Bounds(opts.dims)
		if err := fillBound(opts.params.LowerLim, opts.lower, "lower"); err != nil {
			return nil, err
		}
		if err := fillBound(opts.params.UpperLim, opts.upper, "upper"); err != nil {
			return nil, err
		}
	}

	return opts, nil
}

// fillBound 用命令行给出的统一边界覆盖推荐边界
func fillBound(bounds []float64, value, name string) error {
	if value == "" {
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("无效的 -%s: %w", name, err)
	}
	for i := range bounds {
		bounds[i] = v
	}
	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	obj, _ := objective.Lookup(opts.objective)
	goal, err := objective.ParseGoal(opts.goal)
	if err != nil {
		logger.Error("无效的优化方向", "error", err)
		os.Exit(2)
	}
	cost, err := obj.CostFunc(goal)
	if err != nil {
		logger.Error("无法创建适应度函数", "error", err)
		os.Exit(2)
	}

	engine, err := optimizer.New(opts.params, cost,
		optimizer.WithLogger(logger),
		optimizer.WithProgress(func(report optimizer.GenerationReport) {
			if opts.logEvery > 0 && report.Generation%opts.logEvery == 0 {
				logger.Info("迭代进度",
					"generation", report.Generation,
					"bestFitness", report.BestFitness,
					"objective", objective.ObjectiveValue(goal, report.BestFitness),
					"mutationRate", report.MutationRate,
				)
			}
		}),
	)
	if err != nil {
		logger.Error("无效的遗传算法参数", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("开始优化", "objective", obj.Name, "goal", goal, "dims", opts.params.NumParams)

	result, err := engine.Optimize(ctx)
	if err != nil {
		logger.Error("优化未完成", "generations", result.Generations, "error", err)
	}
	if result.Chromosome == nil {
		os.Exit(1)
	}

	logger.Info("优化结束",
		"generations", result.Generations,
		"bestFitness", result.Fitness,
		"objective", objective.ObjectiveValue(goal, result.Fitness),
	)
	fmt.Println(result.Chromosome)

	if err != nil {
		os.Exit(1)
	}
}
