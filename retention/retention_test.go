package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/models"
	"storepulse/api/store"
	"storepulse/api/utils"
)

var now = time.Date(2026, 3, 17, 6, 0, 0, 0, time.UTC)

func TestPolicy_State(t *testing.T) {
	p := NewPolicy(72) // cutoff 2026-03-14 06:00
	assert.Equal(t, now.Add(-72*time.Hour), p.Cutoff(now))
	assert.Equal(t, DayStale, p.State("2026-03-13", now))
	assert.Equal(t, DayClipped, p.State("2026-03-14", now))
	assert.Equal(t, DayRetained, p.State("2026-03-15", now))
	assert.Equal(t, DayRetained, p.State("2026-03-17", now))
	assert.Equal(t, "2026-03-13", p.LastStaleDay(now))

	from := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, p.Cutoff(now), p.Clamp(from, now))
	assert.Equal(t, now, p.Clamp(now, now))
}

func TestPolicy_Defaults(t *testing.T) {
	assert.Equal(t, 72*time.Hour, NewPolicy(0).Horizon)
}

// fakeCache records invalidations.
type fakeCache struct {
	mu    sync.Mutex
	calls map[string]string
}

func (f *fakeCache) InvalidateThrough(storeID, lastDay string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[storeID] = lastDay
	return 1
}

func TestSweeper_DeletesExpiredEvents(t *testing.T) {
	ctx := context.Background()
	events := store.NewMemoryEventStore()
	_, err := events.Append(ctx, []models.Event{
		{ID: "old", StoreID: "a", SessionID: "s1", ServerTS: now.Add(-100 * time.Hour)},
		{ID: "new", StoreID: "a", SessionID: "s1", ServerTS: now.Add(-time.Hour)},
		{ID: "old", StoreID: "b", SessionID: "s2", ServerTS: now.Add(-73 * time.Hour)},
	})
	require.NoError(t, err)

	cache := &fakeCache{calls: map[string]string{}}
	sw := NewSweeper(events, cache, NewPolicy(72), utils.NewFixedClock(now), time.Minute)

	res, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Stores: 2, Deleted: 2}, res)
	assert.Equal(t, map[string]string{"a": "2026-03-14", "b": "2026-03-14"}, cache.calls)

	left, err := events.ScanRange(ctx, "a", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].ID)

	// idempotent
	res, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
}

// flakyDeleter fails one store.
type flakyDeleter struct {
	*store.MemoryEventStore
	fail string
}

func (f *flakyDeleter) DeleteBefore(ctx context.Context, storeID string, cutoff time.Time) (int64, error) {
	if storeID == f.fail {
		return 0, errors.New("mutation timeout")
	}
	return f.MemoryEventStore.DeleteBefore(ctx, storeID, cutoff)
}

func TestSweeper_FailureDoesNotStopOtherStores(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryEventStore()
	_, err := mem.Append(ctx, []models.Event{
		{ID: "1", StoreID: "a", ServerTS: now.Add(-100 * time.Hour)},
		{ID: "2", StoreID: "b", ServerTS: now.Add(-100 * time.Hour)},
	})
	require.NoError(t, err)

	sw := NewSweeper(&flakyDeleter{MemoryEventStore: mem, fail: "a"}, nil, NewPolicy(72), utils.NewFixedClock(now), time.Minute)
	res, err := sw.SweepOnce(ctx)
	assert.ErrorContains(t, err, "store a")
	assert.Equal(t, int64(1), res.Deleted)
}

func TestSweeper_SkipsStoreAlreadyInFlight(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryEventStore()
	_, err := mem.Append(ctx, []models.Event{{ID: "1", StoreID: "a", ServerTS: now}})
	require.NoError(t, err)

	sw := NewSweeper(mem, nil, NewPolicy(72), utils.NewFixedClock(now), time.Minute)
	require.True(t, sw.acquire("a"))
	res, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	sw.release("a")
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sw := NewSweeper(store.NewMemoryEventStore(), nil, NewPolicy(72), utils.NewFixedClock(now), time.Millisecond)
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
