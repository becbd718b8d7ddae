package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hitoshi/catalog/internal/model"
)

const redisSessionKeyPrefix = "catalog:session:"

// redisSession はRedisに保存するセッションの形式。
// SessionStateのJSONで除外しているメタデータを併せて保存する。
type redisSession struct {
	State     *model.SessionState `json:"state"`
	ExpiresAt time.Time           `json:"expires_at"`
	CreatedAt time.Time           `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションストア。
// キーのTTLで期限切れを表現する。
type RedisSessionRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

// Save はセッション状態を作成または上書きする。
func (r *RedisSessionRepo) Save(ctx context.Context, state *model.SessionState) error {
	ttl := state.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, state.ID)
	}

	data, err := json.Marshal(redisSession{
		State:     state,
		ExpiresAt: state.ExpiresAt,
		CreatedAt: state.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.Set(ctx, redisSessionKey(state.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Find は指定IDのセッション状態を取得する。存在しない場合はnilを返す。
func (r *RedisSessionRepo) Find(ctx context.Context, id string) (*model.SessionState, error) {
	data, err := r.client.Get(ctx, redisSessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if stored.State == nil || !stored.ExpiresAt.After(r.now()) {
		return nil, nil
	}

	state := stored.State
	state.ID = id
	state.ExpiresAt = stored.ExpiresAt
	state.CreatedAt = stored.CreatedAt
	return state, nil
}

// Delete は指定IDのセッションを削除する。
func (r *RedisSessionRepo) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisSessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (r *RedisSessionRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func redisSessionKey(id string) string {
	return redisSessionKeyPrefix + id
}

// compile-time interface check
var _ SessionStore = (*RedisSessionRepo)(nil)
