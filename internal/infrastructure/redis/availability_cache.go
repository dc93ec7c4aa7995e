package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("キャッシュが見つかりません")

// AvailabilityCache は在庫枠の残数キャッシュを管理する
// 一覧表示の読み取り負荷を下げるためのもので、販売判定には使用しない
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache は新しいAvailabilityCacheインスタンスを作成する
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// GetRemaining は在庫枠の残数をキャッシュから取得する
func (c *AvailabilityCache) GetRemaining(ctx context.Context, slotID string) (int, error) {
	val, err := c.client.Get(ctx, c.remainingKey(slotID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetRemaining は在庫枠の残数をキャッシュに保存する
func (c *AvailabilityCache) SetRemaining(ctx context.Context, slotID string, remaining int, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.remainingKey(slotID), remaining, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は在庫枠のキャッシュを無効化する
// 販売数が変化した際に呼び出す
func (c *AvailabilityCache) Invalidate(ctx context.Context, slotID string) error {
	if err := c.client.Del(ctx, c.remainingKey(slotID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) remainingKey(slotID string) string {
	return fmt.Sprintf("slots:remaining:%s", slotID)
}
