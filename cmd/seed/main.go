package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/mq"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/repository"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/seed"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var dims int

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机用户, 2: 提交随机任务, 3: 为每个目标函数提交基准任务)")
	flag.IntVar(&n, "n", 5, "要插入的记录数量")
	flag.IntVar(&dims, "dims", 10, "基准任务的参数个数")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", "error", err)
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	repo := repository.NewRepository(cfg, dbpool)
	if err := repo.EnsureSchema(); err != nil {
		logger.Error("无法初始化数据库表", "error", err)
		return
	}

	switch op {
	case 0:
		logger.Error("未指定操作")
	case 1:
		if n <= 0 {
			logger.Error("请输入合法的用户数量")
			return
		}
		cnt := seed.Users(repo, n, cfg.Seed.User.Password, cfg.Email.UserDomain)
		logger.Info("插入用户成功", "count", cnt)
	case 2, 3:
		if op == 2 && n <= 0 {
			logger.Error("请输入合法的任务数量")
			return
		}

		// 提交任务需要投递到优化队列
		conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
		if err != nil {
			logger.Error("无法连接到 rabbitmq", "error", err)
			return
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			logger.Error("无法建立通道", "error", err)
			return
		}
		defer ch.Close()

		if err := mq.DeclareQueues(ch); err != nil {
			logger.Error("无法声明队列", "error", err)
			return
		}
		publisher := mq.NewPublisher(ch, time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)

		var cnt int
		if op == 2 {
			cnt, err = seed.Runs(context.Background(), repo, publisher, n)
		} else {
			cnt, err = seed.Benchmark(context.Background(), repo, publisher, dims)
		}
		if err != nil {
			logger.Error("无法提交任务", "error", err)
			return
		}
		logger.Info("提交任务成功", "count", cnt)
	default:
		logger.Error("指定的操作非法")
	}
}
