package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const typingKeyPrefix = "chat:typing:"

// RedisTyping keeps typing state in one sorted set per conversation, scored
// by expiry in Unix milliseconds. Every write also refreshes the key TTL so
// idle conversations disappear on their own.
type RedisTyping struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisTyping wraps a Redis client. keyTTL bounds how long an idle
// conversation key survives.
func NewRedisTyping(client *redis.Client, keyTTL time.Duration) *RedisTyping {
	return &RedisTyping{client: client, ttl: keyTTL}
}

func typingKey(conversationID int64) string {
	return typingKeyPrefix + strconv.FormatInt(conversationID, 10)
}

// Set marks the user as typing until expiresAt.
func (r *RedisTyping) Set(ctx context.Context, conversationID, userID int64, expiresAt time.Time) error {
	key := typingKey(conversationID)
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: strconv.FormatInt(userID, 10),
	})
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	return nil
}

// Clear removes the user's typing state.
func (r *RedisTyping) Clear(ctx context.Context, conversationID, userID int64) error {
	if err := r.client.ZRem(ctx, typingKey(conversationID), strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("clear typing: %w", err)
	}
	return nil
}

// Active drops expired members and returns the rest.
func (r *RedisTyping) Active(ctx context.Context, conversationID int64, now time.Time) ([]int64, error) {
	key := typingKey(conversationID)
	cutoff := strconv.FormatInt(now.UnixMilli(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	members := pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list typing: %w", err)
	}

	ids := make([]int64, 0, len(members.Val()))
	for _, m := range members.Val() {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Forget drops all typing state of a conversation.
func (r *RedisTyping) Forget(ctx context.Context, conversationID int64) error {
	if err := r.client.Del(ctx, typingKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("forget typing: %w", err)
	}
	return nil
}

var _ Typing = (*RedisTyping)(nil)
