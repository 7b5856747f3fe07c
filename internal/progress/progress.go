package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
)

var ErrNotFound = errors.New("任务进度不存在")

// Store 将运行中任务的实时进度保存在 redis 中
type Store struct {
	rdb        redis.Cmdable
	expiration time.Duration
	timeout    time.Duration
}

func NewStore(rdb redis.Cmdable, expiration, timeout time.Duration) *Store {
	return &Store{
		rdb:        rdb,
		expiration: expiration,
		timeout:    timeout,
	}
}

func Key(runID int64) string {
	return fmt.Sprintf("run_%d_progress", runID)
}

func (s *Store) Save(ctx context.Context, p *domain.RunProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.rdb.Set(ctx, Key(p.RunID), data, s.expiration).Err()
}

func (s *Store) Get(ctx context.Context, runID int64) (*domain.RunProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.rdb.Get(ctx, Key(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p := &domain.RunProgress{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}

	return p, nil
}

func (s *Store) Delete(ctx context.Context, runID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.rdb.Del(ctx, Key(runID)).Err()
}
