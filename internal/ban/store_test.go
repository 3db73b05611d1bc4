package ban

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client), mr
}

func TestIsBanned_NotBanned(t *testing.T) {
	store, _ := newTestStore(t)

	st, err := store.IsBanned(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, st.Banned)
}

func TestBanAndCheck(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "u1", 30*time.Second, "spam"))

	st, err := store.IsBanned(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Banned)
	assert.Equal(t, "spam", st.Reason)
	assert.Equal(t, 30*time.Second, st.Remaining)
}

func TestBan_Permanent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "u1", 0, "fraud"))

	st, err := store.IsBanned(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.Banned)
	assert.Zero(t, st.Remaining)
}

func TestBan_Expires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "u1", time.Minute, "spam"))
	mr.FastForward(2 * time.Minute)

	st, err := store.IsBanned(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, st.Banned)
}

func TestUnban(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "u1", time.Minute, "test"))
	require.NoError(t, store.Unban(ctx, "u1"))

	st, err := store.IsBanned(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, st.Banned)
}

func TestBannedAmong(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "u2", time.Minute, "spam"))
	require.NoError(t, store.Ban(ctx, "u4", 0, "abuse"))

	got, err := store.BannedAmong(ctx, []string{"u1", "u2", "u3", "u4"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"u2": true, "u4": true}, got)

	empty, err := store.BannedAmong(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBannedAmong_RedisDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.BannedAmong(context.Background(), []string{"u1"})
	assert.Error(t, err)
}
