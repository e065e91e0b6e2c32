package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromRedis(rdb, time.Hour), mr
}

func TestClaim_FirstCallerWins(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	orderID, claimed, err := c.Claim(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Zero(t, orderID)

	orderID, claimed, err = c.Claim(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Zero(t, orderID, "in-progress claim reports no order")

	got, err := mr.Get("idempotency:k1")
	require.NoError(t, err)
	assert.Equal(t, "pending", got)
	assert.Equal(t, time.Hour, mr.TTL("idempotency:k1"))
}

func TestComplete_ReturnsStoredOrder(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, claimed, err := c.Claim(ctx, "k2")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, c.Complete(ctx, "k2", 42))

	orderID, claimed, err := c.Claim(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, int64(42), orderID)
}

func TestRelease_AllowsRetry(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, _, err := c.Claim(ctx, "k3")
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, "k3"))

	_, claimed, err := c.Claim(ctx, "k3")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaim_ExpiredKeyCanBeReclaimed(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, _, err := c.Claim(ctx, "k4")
	require.NoError(t, err)
	require.NoError(t, c.Complete(ctx, "k4", 7))

	mr.FastForward(2 * time.Hour)

	_, claimed, err := c.Claim(ctx, "k4")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaim_CorruptValue(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, mr.Set("idempotency:k5", "not-a-number"))

	_, _, err := c.Claim(context.Background(), "k5")
	assert.Error(t, err)
}

func TestClaim_RedisDown(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Close()

	_, _, err := c.Claim(context.Background(), "k6")
	assert.Error(t, err)
}
