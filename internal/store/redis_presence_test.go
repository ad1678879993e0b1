package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires Redis; HUDDLE_TEST_REDIS_URL overrides the default address.
func setupRedisPresence(t *testing.T) *RedisPresenceStore {
	t.Helper()
	url := os.Getenv("HUDDLE_TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	ctx := context.Background()
	s, err := NewRedisPresenceStore(ctx, url, fmt.Sprintf("test:%d:", time.Now().UnixNano()))
	if err != nil {
		t.Skipf("Redis not available at %s: %v", url, err)
	}
	t.Cleanup(func() {
		keys, _ := s.client.Keys(ctx, s.prefix+"*").Result()
		if len(keys) > 0 {
			s.client.Del(ctx, keys...)
		}
		_ = s.Close()
	})
	return s
}

func TestRedisPresenceStore(t *testing.T) {
	s := setupRedisPresence(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, ok, err := s.LastSeen(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpsertPresence(ctx, domain.PresenceRecord{ConnectionID: "c-a", UserID: "u-1", Online: true, LastSeen: t0}))
	require.NoError(t, s.UpsertPresence(ctx, domain.PresenceRecord{ConnectionID: "c-b", UserID: "u-1", Online: true, LastSeen: t0}))
	require.NoError(t, s.MarkOffline(ctx, "c-a", t0.Add(time.Minute)))
	require.NoError(t, s.MarkOffline(ctx, "unknown", t0))

	seen, ok, err := s.LastSeen(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, seen.Equal(t0.Add(time.Minute)))

	n, err := s.ResetOnline(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	flag, err := s.client.HGet(ctx, s.connKey("c-b"), "online").Result()
	require.NoError(t, err)
	assert.Equal(t, "0", flag)
}
