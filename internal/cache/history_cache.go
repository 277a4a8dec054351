package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docchat/internal/vectorstore"
)

// HistoryCache holds each tenant's chat-turn list between writes.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// GetHistory reports a miss while the tenant is marked dirty.
func (c *HistoryCache) GetHistory(ctx context.Context, tenant string) ([]vectorstore.Turn, bool, error) {
	dirty, err := c.IsDirty(ctx, tenant)
	if err != nil || dirty {
		return nil, false, err
	}

	raw, err := c.client.Get(ctx, historyKey(tenant)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var turns []vectorstore.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return turns, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, tenant string, turns []vectorstore.Turn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(tenant), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached list and marks the tenant dirty so a racing
// reader does not repopulate it with stale turns.
func (c *HistoryCache) Invalidate(ctx context.Context, tenant string) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, dirtyKey(tenant), "1", c.dirtyMarkerTTL)
	pipe.Del(ctx, historyKey(tenant))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

// InvalidateAll removes every cached history list.
func (c *HistoryCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, historyKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete history failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, tenant string) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey(tenant)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func historyKey(tenant string) string {
	return fmt.Sprintf("chat:history:%s", tenant)
}

func dirtyKey(tenant string) string {
	return fmt.Sprintf("chat:dirty:%s", tenant)
}
