package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	ok, err := g.Claim(ctx, "repay-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, "repay-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Release(ctx, "repay-1"))
	ok, err = g.Claim(ctx, "repay-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNop(t *testing.T) {
	var g Guard = Nop{}
	for i := 0; i < 2; i++ {
		ok, err := g.Claim(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisGuardReportsUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	g := NewRedisGuardWithClient(client, time.Minute)
	defer g.Close()

	_, err := g.Claim(context.Background(), "k")
	assert.Error(t, err)
	assert.Equal(t, "loanledger:event:", g.prefix)
	assert.Equal(t, time.Minute, g.ttl)
}
