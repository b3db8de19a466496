package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"parkwatch/internal/config"
	"parkwatch/internal/domain"

	"github.com/redis/go-redis/v9"
)

const slotBoardKey = "cache:slot_board"

// RedisCache holds the slot availability board so the public list endpoint
// does not hit Postgres on every poll. The reconciler invalidates it on
// every applied transition.
type RedisCache struct {
	client   *redis.Client
	boardTTL time.Duration
}

func NewRedisCache(cfg *config.Config) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		boardTTL: cfg.SlotBoardTTL,
	}
}

func (c *RedisCache) GetSlotBoard(ctx context.Context) ([]domain.SlotView, error) {
	data, err := c.client.Get(ctx, slotBoardKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var views []domain.SlotView
	if err := json.Unmarshal(data, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *RedisCache) SetSlotBoard(ctx context.Context, views []domain.SlotView) error {
	payload, err := json.Marshal(views)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, slotBoardKey, payload, c.boardTTL).Err()
}

func (c *RedisCache) InvalidateSlotBoard(ctx context.Context) error {
	return c.client.Del(ctx, slotBoardKey).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
