package seed

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/mq"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/objective"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/utils"
)

var ErrNoResearcher = errors.New("没有可用的研究员")

type Store interface {
	CreateUser(user *domain.User) error
	GetAllUsers() ([]*domain.User, error)
	CreateRun(run *domain.OptimizationRun) error
}

type Publisher interface {
	Publish(ctx context.Context, queue string, v any) (string, error)
}

// Users 插入 n 个随机研究员，返回成功插入的数量
func Users(store Store, n int, password, emailDomain string) int {
	cnt := 0
	for i := 0; i < n; i++ {
		user, err := utils.GenerateRandomUser(password, emailDomain)
		if err != nil {
			slog.Error("无法生成随机用户", "error", err)
			continue
		}

		if err := store.CreateUser(user); err != nil {
			// 随机用户名可能重复，跳过即可
			slog.Error("无法插入用户", "username", user.Username, "error", err)
			continue
		}
		cnt++
	}
	return cnt
}

func activeResearchers(store Store) ([]*domain.User, error) {
	users, err := store.GetAllUsers()
	if err != nil {
		return nil, err
	}

	researchers := make([]*domain.User, 0, len(users))
	for _, user := range users {
		if user.IsActive && user.Role == domain.RoleResearcher {
			researchers = append(researchers, user)
		}
	}
	if len(researchers) == 0 {
		return nil, ErrNoResearcher
	}
	return researchers, nil
}

// submit 保存任务并投递到优化队列
func submit(ctx context.Context, store Store, publisher Publisher, run *domain.OptimizationRun) error {
	if err := store.CreateRun(run); err != nil {
		return err
	}
	_, err := publisher.Publish(ctx, mq.OptimizationQueue, domain.OptimizationJob{RunID: run.ID})
	return err
}

// Runs 为随机的在职研究员提交 n 个随机参数的任务
func Runs(ctx context.Context, store Store, publisher Publisher, n int) (int, error) {
	researchers, err := activeResearchers(store)
	if err != nil {
		return 0, err
	}

	cnt := 0
	for i := 0; i < n; i++ {
		user := researchers[rand.IntN(len(researchers))]
		run := utils.GenerateRandomRun(user.ID)
		if err := submit(ctx, store, publisher, run); err != nil {
			slog.Error("无法提交任务", "name", run.Name, "error", err)
			continue
		}
		cnt++
	}
	return cnt, nil
}

// Benchmark 以默认参数和推荐边界为每个内置目标函数提交一个任务
func Benchmark(ctx context.Context, store Store, publisher Publisher, dims int) (int, error) {
	researchers, err := activeResearchers(store)
	if err != nil {
		return 0, err
	}
	user := researchers[0]

	cnt := 0
	for _, o := range objective.All() {
		params := optimizer.DefaultParameters()
		params.NumParams = dims
		params.LowerLim, params.UpperLim = o.Bounds(dims)
		params.Integer = o.Integer

		run := &domain.OptimizationRun{
			UserID:     user.ID,
			Name:       "benchmark-" + o.Name,
			Objective:  o.Name,
			Goal:       string(o.Goal),
			Parameters: params,
		}
		if err := submit(ctx, store, publisher, run); err != nil {
			slog.Error("无法提交任务", "name", run.Name, "error", err)
			continue
		}
		cnt++
	}
	return cnt, nil
}
