// Package cache keeps a hot copy of the weekly leaderboard in Redis sorted
// sets. It is strictly an accelerator: the SQLite store stays the source of
// truth and every read path falls back to it.
package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/sakif/bookclub-bot/internal/engagement"
	"github.com/sakif/bookclub-bot/internal/model"
)

const (
	weeklyKeyPrefix   = "leaderboard:weekly:"
	usernameKeyPrefix = "leaderboard:usernames:"
)

type Leaderboard struct {
	client *redis.Client
}

var _ engagement.LeaderboardCache = (*Leaderboard)(nil)

func NewLeaderboard(addr string) *Leaderboard {
	return &Leaderboard{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

// Ping verifies the connection, used at startup to decide whether to run
// with or without the cache.
func (l *Leaderboard) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Leaderboard) Close() error {
	return l.client.Close()
}

func weeklyKey(guildID string) string   { return weeklyKeyPrefix + guildID }
func usernameKey(guildID string) string { return usernameKeyPrefix + guildID }

// AddPoints increments a user's weekly score in the guild's sorted set and
// remembers the display name alongside it.
func (l *Leaderboard) AddPoints(ctx context.Context, guildID, userID, username string, points int) error {
	if err := l.client.ZIncrBy(ctx, weeklyKey(guildID), float64(points), userID).Err(); err != nil {
		return fmt.Errorf("cache: incrementing weekly score: %w", err)
	}
	if username != "" {
		if err := l.client.HSet(ctx, usernameKey(guildID), userID, username).Err(); err != nil {
			return fmt.Errorf("cache: storing username: %w", err)
		}
	}
	return nil
}

// Top returns the guild's weekly ranking, highest first. An empty result
// means a cold cache, which callers treat as a miss.
func (l *Leaderboard) Top(ctx context.Context, guildID string, limit int) ([]model.WeeklyLeaderboardEntry, error) {
	members, err := l.client.ZRevRangeWithScores(ctx, weeklyKey(guildID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: reading weekly ranking: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	usernames, err := l.client.HGetAll(ctx, usernameKey(guildID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: reading usernames: %w", err)
	}

	entries := make([]model.WeeklyLeaderboardEntry, 0, len(members))
	for _, m := range members {
		userID, ok := m.Member.(string)
		if !ok {
			continue
		}
		if int(m.Score) <= 0 {
			continue
		}
		entries = append(entries, model.WeeklyLeaderboardEntry{
			UserID:       userID,
			Username:     usernames[userID],
			WeeklyPoints: int(m.Score),
		})
	}
	return entries, nil
}

// Reset drops the guild's cached ranking, done right after the store's
// weekly cycle reset.
func (l *Leaderboard) Reset(ctx context.Context, guildID string) error {
	if err := l.client.Del(ctx, weeklyKey(guildID), usernameKey(guildID)).Err(); err != nil {
		return fmt.Errorf("cache: dropping weekly ranking: %w", err)
	}
	return nil
}
