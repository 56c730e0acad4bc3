package rollupcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/utils"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func counting(calls *int32, day string) Builder {
	return func(ctx context.Context) (*DayRollup, error) {
		atomic.AddInt32(calls, 1)
		return &DayRollup{StoreID: "shop", Day: day, BuiltAt: now}, nil
	}
}

func TestCache_ClosedDayIsCachedUntilInvalidated(t *testing.T) {
	clock := utils.NewFixedClock(now)
	c, err := New(8, time.Minute, clock)
	require.NoError(t, err)

	var calls int32
	for i := 0; i < 3; i++ {
		r, err := c.Get(context.Background(), "shop", "2026-03-13", counting(&calls, "2026-03-13"))
		require.NoError(t, err)
		assert.Equal(t, "2026-03-13", r.Day)
		clock.Advance(time.Hour)
	}
	assert.Equal(t, int32(1), calls)

	c.Invalidate("shop", "2026-03-13")
	_, err = c.Get(context.Background(), "shop", "2026-03-13", counting(&calls, "2026-03-13"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestCache_OpenDayExpires(t *testing.T) {
	clock := utils.NewFixedClock(now)
	c, err := New(8, time.Minute, clock)
	require.NoError(t, err)

	var calls int32
	_, err = c.Get(context.Background(), "shop", "2026-03-14", counting(&calls, "2026-03-14"))
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = c.Get(context.Background(), "shop", "2026-03-14", counting(&calls, "2026-03-14"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)

	clock.Advance(time.Minute)
	_, err = c.Get(context.Background(), "shop", "2026-03-14", counting(&calls, "2026-03-14"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestCache_ConcurrentMissesShareOneBuild(t *testing.T) {
	c, err := New(8, time.Minute, utils.NewFixedClock(now))
	require.NoError(t, err)

	var calls int32
	release := make(chan struct{})
	build := func(ctx context.Context) (*DayRollup, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &DayRollup{Day: "2026-03-10"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "shop", "2026-03-10", build)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c, err := New(8, time.Minute, utils.NewFixedClock(now))
	require.NoError(t, err)

	boom := errors.New("scan failed")
	_, err = c.Get(context.Background(), "shop", "2026-03-10", func(context.Context) (*DayRollup, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestCache_CancelledCaller(t *testing.T) {
	c, err := New(8, time.Minute, utils.NewFixedClock(now))
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Get(ctx, "shop", "2026-03-10", func(context.Context) (*DayRollup, error) {
		<-release
		return &DayRollup{Day: "2026-03-10"}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCache_CancelledCallerDoesNotFailOtherWaiters(t *testing.T) {
	c, err := New(8, time.Minute, utils.NewFixedClock(now))
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	build := func(ctx context.Context) (*DayRollup, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		select {
		case <-release:
			return &DayRollup{Day: "2026-03-10"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(first, "shop", "2026-03-10", build)
		firstErr <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		r, err := c.Get(context.Background(), "shop", "2026-03-10", build)
		if err == nil && r.Day != "2026-03-10" {
			err = errors.New("unexpected rollup " + r.Day)
		}
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.NoError(t, <-second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, c.Len())
}

func TestCache_InvalidateThrough(t *testing.T) {
	c, err := New(8, time.Minute, utils.NewFixedClock(now))
	require.NoError(t, err)

	var calls int32
	for _, d := range []string{"2026-03-10", "2026-03-11", "2026-03-12"} {
		_, err := c.Get(context.Background(), "shop", d, counting(&calls, d))
		require.NoError(t, err)
	}
	_, err = c.Get(context.Background(), "other", "2026-03-10", counting(&calls, "2026-03-10"))
	require.NoError(t, err)

	assert.Equal(t, 2, c.InvalidateThrough("shop", "2026-03-11"))
	assert.Equal(t, 2, c.Len())
}
