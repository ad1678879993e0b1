package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisPresenceStore keeps presence rows in Redis:
//
//	<prefix>presence:conn:<connID>        hash {user_id, online, last_seen}
//	<prefix>presence:online               set of online connection ids
//	<prefix>presence:user:<userID>:seen   latest last-seen, unix millis
type RedisPresenceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisPresenceStore connects to redisURL and checks the connection.
func NewRedisPresenceStore(ctx context.Context, redisURL, prefix string) (*RedisPresenceStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}
	return &RedisPresenceStore{client: client, prefix: prefix}, nil
}

func (s *RedisPresenceStore) Close() error {
	return s.client.Close()
}

func (s *RedisPresenceStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisPresenceStore) connKey(cid string) string {
	return fmt.Sprintf("%spresence:conn:%s", s.prefix, cid)
}

func (s *RedisPresenceStore) onlineKey() string {
	return s.prefix + "presence:online"
}

func (s *RedisPresenceStore) seenKey(uid domain.UserID) string {
	return fmt.Sprintf("%spresence:user:%s:seen", s.prefix, uid)
}

func (s *RedisPresenceStore) UpsertPresence(ctx context.Context, rec domain.PresenceRecord) error {
	defer observe("upsert_presence", time.Now())

	ms := rec.LastSeen.UnixMilli()
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.connKey(rec.ConnectionID),
			"user_id", string(rec.UserID),
			"online", boolFlag(rec.Online),
			"last_seen", ms,
		)
		if rec.Online {
			p.SAdd(ctx, s.onlineKey(), rec.ConnectionID)
		} else {
			p.SRem(ctx, s.onlineKey(), rec.ConnectionID)
		}
		p.Set(ctx, s.seenKey(rec.UserID), ms, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: upsert presence: %w", err)
	}
	return nil
}

func (s *RedisPresenceStore) MarkOffline(ctx context.Context, connectionID string, at time.Time) error {
	defer observe("mark_offline", time.Now())

	uid, err := s.client.HGet(ctx, s.connKey(connectionID), "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: mark offline: %w", err)
	}
	return s.UpsertPresence(ctx, domain.PresenceRecord{
		ConnectionID: connectionID,
		UserID:       domain.UserID(uid),
		Online:       false,
		LastSeen:     at,
	})
}

func (s *RedisPresenceStore) ResetOnline(ctx context.Context, at time.Time) (int64, error) {
	defer observe("reset_online", time.Now())

	ids, err := s.client.SMembers(ctx, s.onlineKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("store: reset presence: %w", err)
	}
	var n int64
	for _, cid := range ids {
		if err := s.MarkOffline(ctx, cid, at); err != nil {
			return n, err
		}
		n++
	}
	// Drop ids whose hash vanished.
	if err := s.client.Del(ctx, s.onlineKey()).Err(); err != nil {
		return n, fmt.Errorf("store: reset presence: %w", err)
	}
	return n, nil
}

func (s *RedisPresenceStore) LastSeen(ctx context.Context, uid domain.UserID) (time.Time, bool, error) {
	defer observe("last_seen", time.Now())

	raw, err := s.client.Get(ctx, s.seenKey(uid)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: last seen: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: last seen: %w", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
