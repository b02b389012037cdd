package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"discussion-room/internal/app"
	"discussion-room/internal/chat"
)

// RedisRecent wraps a Persistence and mirrors every saved message into a
// capped per-room Redis list. Cold-start loads read the list first so a
// restarted process can warm its cache without querying Postgres.
// The list is trusted only after a refill from the wrapped store marked it
// complete; saves alone (e.g. after a Redis flush) never make it authoritative.
// Mirror writes are best effort and never fail a save.
type RedisRecent struct {
	rdb   *redis.Client
	next  chat.Persistence
	log   *slog.Logger
	limit int
	ttl   time.Duration
}

var _ chat.Persistence = (*RedisRecent)(nil)

// NewRedis connects to redis and verifies connectivity
func NewRedis(ctx context.Context, cfg app.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// NewRedisRecent keeps the newest limit messages per room, capped at
// chat.MaxCacheSize; ttl <= 0 keeps lists forever.
func NewRedisRecent(rdb *redis.Client, next chat.Persistence, limit int, ttl time.Duration, log *slog.Logger) *RedisRecent {
	if limit <= 0 || limit > chat.MaxCacheSize {
		limit = chat.MaxCacheSize
	}
	return &RedisRecent{rdb: rdb, next: next, log: log, limit: limit, ttl: ttl}
}

// Save persists through the wrapped store, then mirrors the stored message.
func (r *RedisRecent) Save(ctx context.Context, roomID, username, content string) (chat.Message, error) {
	m, err := r.next.Save(ctx, roomID, username, content)
	if err != nil {
		return chat.Message{}, err
	}
	if err := r.push(ctx, roomID, false, m); err != nil {
		r.log.Warn("redis.mirror.failed", "room", roomID, "err", err)
	}
	return m, nil
}

// LoadRecent serves from the mirror once it was marked complete and falls
// back to the wrapped store otherwise, refilling the mirror.
func (r *RedisRecent) LoadRecent(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}

	vals, complete, err := r.read(ctx, roomID, limit)
	if err != nil {
		r.log.Warn("redis.mirror.read", "room", roomID, "err", err)
	}
	if err == nil && complete {
		out := make([]chat.Message, 0, len(vals))
		for _, v := range vals {
			var m chat.Message
			if err := json.Unmarshal([]byte(v), &m); err != nil {
				continue
			}
			out = append(out, m)
		}
		return out, nil
	}

	msgs, err := r.next.LoadRecent(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	if err := r.push(ctx, roomID, true, msgs...); err != nil {
		r.log.Warn("redis.mirror.refill", "room", roomID, "err", err)
	}
	return msgs, nil
}

// read returns the mirrored tail of the room and whether a refill marked it
// complete.
func (r *RedisRecent) read(ctx context.Context, roomID string, limit int) ([]string, bool, error) {
	pipe := r.rdb.Pipeline()
	lr := pipe.LRange(ctx, key(roomID), int64(-limit), -1)
	ex := pipe.Exists(ctx, filledKey(roomID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	return lr.Val(), ex.Val() == 1, nil
}

// push appends msgs to the room list. refill replaces the list and marks it
// complete.
func (r *RedisRecent) push(ctx context.Context, roomID string, refill bool, msgs ...chat.Message) error {
	if len(msgs) == 0 && !refill {
		return nil
	}
	vals := make([]any, 0, len(msgs))
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		vals = append(vals, raw)
	}

	k, fk := key(roomID), filledKey(roomID)
	pipe := r.rdb.TxPipeline()
	if refill {
		pipe.Del(ctx, k)
		pipe.Set(ctx, fk, 1, r.ttl)
	}
	if len(vals) > 0 {
		pipe.RPush(ctx, k, vals...)
		pipe.LTrim(ctx, k, int64(-r.limit), -1)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, k, r.ttl)
		pipe.Expire(ctx, fk, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// key namespacing for per-room history lists
func key(roomID string) string { return "chat_messages:" + roomID }

// filledKey marks a room list as a complete copy of the store's tail
func filledKey(roomID string) string { return "chat_messages_filled:" + roomID }
