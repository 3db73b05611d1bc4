package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client), mr
}

var testRule = Rule{Name: "test", Key: "rl:test:", Limit: 3, Window: time.Minute}

func TestAllow_WithinAndOverLimit(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < testRule.Limit; i++ {
		ok, err := l.Allow(ctx, "u1", testRule)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, err := l.Allow(ctx, "u1", testRule)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other users have their own window.
	ok, err = l.Allow(ctx, "u2", testRule)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_SetsWindowExpiry(t *testing.T) {
	l, mr := setupLimiter(t)
	ctx := context.Background()

	_, err := l.Allow(ctx, "u1", testRule)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("rl:test:u1"))
}

func TestAllow_WindowResets(t *testing.T) {
	l, mr := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i <= testRule.Limit; i++ {
		_, _ = l.Allow(ctx, "u1", testRule)
	}
	mr.FastForward(testRule.Window + time.Second)

	ok, err := l.Allow(ctx, "u1", testRule)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_FailsOpen(t *testing.T) {
	l, mr := setupLimiter(t)
	mr.Close()

	ok, err := l.Allow(context.Background(), "u1", testRule)
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestRemaining(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()

	n, err := l.Remaining(ctx, "u1", testRule)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for i := 0; i < 5; i++ {
		_, _ = l.Allow(ctx, "u1", testRule)
	}
	n, err = l.Remaining(ctx, "u1", testRule)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRules(t *testing.T) {
	assert.Equal(t, 10, RuleMatch.Limit)
	assert.Equal(t, 20, RulePenpalRequest.Limit)
	assert.NotEqual(t, RuleMatch.Key, RulePenpalRequest.Key)
}
