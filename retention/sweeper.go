package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"storepulse/api/metrics"
	"storepulse/api/utils"
)

// Deleter is the part of the event store the sweep needs.
type Deleter interface {
	ListStores(ctx context.Context) ([]string, error)
	DeleteBefore(ctx context.Context, storeID string, cutoff time.Time) (int64, error)
}

// Invalidator drops cached rollups for days the sweep touched.
type Invalidator interface {
	InvalidateThrough(storeID, lastDay string) int
}

// Result summarizes one sweep.
type Result struct {
	Stores  int
	Skipped int
	Deleted int64
}

// Sweeper deletes expired events on a timer. At most one sweep per store is
// in flight; a failed store is retried on the next tick.
type Sweeper struct {
	store       Deleter
	cache       Invalidator
	policy      Policy
	clock       utils.Clock
	interval    time.Duration
	concurrency int

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewSweeper wires a sweeper. cache may be nil.
func NewSweeper(store Deleter, cache Invalidator, policy Policy, clock utils.Clock, interval time.Duration) *Sweeper {
	if clock == nil {
		clock = utils.SystemClock()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		store:       store,
		cache:       cache,
		policy:      policy,
		clock:       clock,
		interval:    interval,
		concurrency: 4,
		inflight:    map[string]struct{}{},
	}
}

func (s *Sweeper) acquire(storeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[storeID]; busy {
		return false
	}
	s.inflight[storeID] = struct{}{}
	return true
}

func (s *Sweeper) release(storeID string) {
	s.mu.Lock()
	delete(s.inflight, storeID)
	s.mu.Unlock()
}

// SweepOnce runs one pass over every store. Per-store failures do not stop
// the others; they are joined into the returned error.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	stores, err := s.store.ListStores(ctx)
	if err != nil {
		metrics.SweepFailures.Inc()
		return Result{}, fmt.Errorf("failed to list stores: %w", err)
	}

	now := s.clock.Now()
	cutoff := s.policy.Cutoff(now)
	clippedDay := utils.DayString(cutoff)

	var (
		g       errgroup.Group
		deleted atomic.Int64
		skipped atomic.Int32
		errMu   sync.Mutex
		errs    []error
	)
	g.SetLimit(s.concurrency)

	for _, storeID := range stores {
		storeID := storeID // per-iteration copy (pre-Go 1.22 loop semantics)
		if !s.acquire(storeID) {
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			defer s.release(storeID)
			n, err := s.store.DeleteBefore(ctx, storeID, cutoff)
			if err != nil {
				metrics.SweepFailures.Inc()
				log.WithFields(log.Fields{"component": "retention", "store": storeID}).WithError(err).Warn("retention sweep failed, retrying next tick")
				errMu.Lock()
				errs = append(errs, fmt.Errorf("store %s: %w", storeID, err))
				errMu.Unlock()
				return nil
			}
			deleted.Add(n)
			metrics.SweepDeleted.Add(float64(n))
			if s.cache != nil {
				s.cache.InvalidateThrough(storeID, clippedDay)
			}
			if n > 0 {
				log.WithFields(log.Fields{"component": "retention", "store": storeID, "deleted": n}).Info("expired events deleted")
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Stores: len(stores), Skipped: int(skipped.Load()), Deleted: deleted.Load()}
	return res, errors.Join(errs...)
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if res, err := s.SweepOnce(ctx); err != nil {
			log.WithField("component", "retention").WithError(err).Warn("retention sweep incomplete")
		} else {
			log.WithFields(log.Fields{"component": "retention", "stores": res.Stores, "deleted": res.Deleted}).Debug("retention sweep done")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
