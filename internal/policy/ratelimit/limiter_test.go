package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitSpacesFetches(t *testing.T) {
	t.Parallel()

	l := New(Config{Delay: 100 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://spinitron.com/WUOG"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://spinitron.com/WUOG/pl/1"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{Delay: time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterZeroDelayNeverBlocks(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 50 {
		require.NoError(t, l.Wait(ctx, "https://spinitron.com/WUOG"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{Delay: time.Hour})
	require.NoError(t, l.Wait(context.Background(), "https://spinitron.com/WUOG"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "https://spinitron.com/WUOG"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "spinitron.com", hostOf("https://spinitron.com/WUOG?page=2"))
	assert.Equal(t, "unknown", hostOf("::not a url"))
	assert.Equal(t, "unknown", hostOf("/relative/path"))
}
