package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewConnRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("c1"))
	assert.True(t, rl.Allow("c1"))
	assert.False(t, rl.Allow("c1"))
	assert.True(t, rl.Allow("c2"), "windows are per connection")

	now = now.Add(1001 * time.Millisecond)
	assert.True(t, rl.Allow("c1"))
}

func TestConnRateLimiter_Forget(t *testing.T) {
	rl := NewConnRateLimiter(1, time.Minute)
	assert.True(t, rl.Allow("c1"))
	assert.False(t, rl.Allow("c1"))

	rl.Forget("c1")
	assert.True(t, rl.Allow("c1"))
}
