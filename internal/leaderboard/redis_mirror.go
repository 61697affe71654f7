/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package leaderboard

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisMirror backs the leaderboard cache with a Redis sorted set,
// grounded on the ZADD/ZREVRANGE/ZREVRANK leaderboard idiom. Score
// commits never wait on this: callers are expected to log-and-ignore
// errors, which Board already does.
type RedisMirror struct {
	client *redis.Client
}

// NewRedisMirror wraps an existing client. Pass nil addr upstream to
// skip creating one entirely and run the leaderboard in-memory only.
func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

func (m *RedisMirror) Set(ctx context.Context, boardKey, playerID string, score int) error {
	return m.client.ZAdd(ctx, boardKey, redis.Z{Score: float64(score), Member: playerID}).Err()
}

func (m *RedisMirror) Remove(ctx context.Context, boardKey, playerID string) error {
	return m.client.ZRem(ctx, boardKey, playerID).Err()
}

// TopN reads the cached top-n ranking directly from Redis, for
// display clients that want to bypass the session lock entirely.
func (m *RedisMirror) TopN(ctx context.Context, boardKey string, n int64) ([]redis.Z, error) {
	return m.client.ZRevRangeWithScores(ctx, boardKey, 0, n-1).Result()
}

// RankOf returns the 0-based descending rank of a player, or an error
// if the player isn't present in the cache.
func (m *RedisMirror) RankOf(ctx context.Context, boardKey, playerID string) (int64, error) {
	return m.client.ZRevRank(ctx, boardKey, playerID).Result()
}
