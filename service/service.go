// Package service orchestrates the pipeline for the HTTP layer: it scans the
// event store inside the retention horizon, builds cached day rollups, runs
// the engines and decorates their output. Store failures are retried once.
package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"storepulse/api/apperr"
	"storepulse/api/llm"
	"storepulse/api/metrics"
	"storepulse/api/models"
	"storepulse/api/normalizer"
	"storepulse/api/retention"
	"storepulse/api/rollup"
	"storepulse/api/rollupcache"
	"storepulse/api/store"
	"storepulse/api/utils"
)

// Settings are the tunables read from config.
type Settings struct {
	AbandonAfter          time.Duration
	CheckoutDrop          time.Duration
	RealtimeWindowMinutes int
	RealtimeTopK          int
	QueryTimeout          time.Duration
}

// Deps wires a Service. Only Events is required; the rest fall back to
// in-memory or disabled implementations.
type Deps struct {
	Events        store.EventStore
	Shoppers      store.ShopperStore
	Verifications store.VerificationStore
	Insights      store.InsightStore
	LLM           llm.Gateway
	Cache         *rollupcache.Cache
	Normalizer    *normalizer.Normalizer
	Policy        retention.Policy
	Clock         utils.Clock
	Settings      Settings
}

type Service struct {
	events        store.EventStore
	shoppers      store.ShopperStore
	verifications store.VerificationStore
	insights      store.InsightStore
	llm           llm.Gateway
	cache         *rollupcache.Cache
	normalizer    *normalizer.Normalizer
	policy        retention.Policy
	clock         utils.Clock
	settings      Settings
}

func New(d Deps) *Service {
	s := &Service{
		events:        d.Events,
		shoppers:      d.Shoppers,
		verifications: d.Verifications,
		insights:      d.Insights,
		llm:           d.LLM,
		cache:         d.Cache,
		normalizer:    d.Normalizer,
		policy:        d.Policy,
		clock:         d.Clock,
		settings:      d.Settings,
	}
	if s.shoppers == nil {
		s.shoppers = store.NewMemoryShopperStore()
	}
	if s.verifications == nil {
		s.verifications = store.NewMemoryVerificationStore()
	}
	if s.insights == nil {
		s.insights = store.NewMemoryInsightStore()
	}
	if s.llm == nil {
		s.llm = llm.Disabled{}
	}
	if s.normalizer == nil {
		s.normalizer = normalizer.New()
	}
	if s.policy.Horizon <= 0 {
		s.policy = retention.NewPolicy(0)
	}
	if s.clock == nil {
		s.clock = utils.SystemClock()
	}
	if s.settings.AbandonAfter <= 0 {
		s.settings.AbandonAfter = 24 * time.Hour
	}
	if s.settings.CheckoutDrop <= 0 {
		s.settings.CheckoutDrop = 30 * time.Minute
	}
	if s.settings.QueryTimeout <= 0 {
		s.settings.QueryTimeout = 10 * time.Second
	}
	return s
}

// do runs fn under the query timeout, retries it once on a retryable error
// and records latency and failures.
func do[T any](ctx context.Context, s *Service, query string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, s.settings.QueryTimeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && apperr.Retryable(err) && ctx.Err() == nil {
		log.WithFields(log.Fields{"component": "service", "query": query}).WithError(err).Warn("query failed, retrying once")
		v, err = fn(ctx)
	}
	if err != nil {
		metrics.QueryErrors.WithLabelValues(query, string(apperr.KindOf(err))).Inc()
	}
	return v, err
}

// EventStoreStatus reports the event store breaker state and whether queries
// can currently reach the store.
func (s *Service) EventStoreStatus() (string, bool) {
	return store.Status(s.events)
}

func requireStore(op, storeID string) error {
	if storeID == "" {
		return apperr.Validation(op, "store is required")
	}
	return nil
}

// resolveDay validates a YYYY-MM-DD day; empty means today.
func (s *Service) resolveDay(op, day string) (string, retention.DayState, error) {
	now := s.clock.Now()
	if day == "" {
		day = utils.DayString(now)
	}
	if _, _, err := utils.DayRange(day); err != nil {
		return "", 0, apperr.Validation(op, err.Error())
	}
	return day, s.policy.State(day, now), nil
}

func (s *Service) staleHint() string {
	return fmt.Sprintf("this day is older than the %d hour retention window; pick a day after %s",
		int(s.policy.Horizon.Hours()), s.policy.LastStaleDay(s.clock.Now()))
}

// scan reads [from, to) after clamping from to the retention horizon.
func (s *Service) scan(ctx context.Context, op, storeID string, from, to time.Time) ([]models.Event, error) {
	events, err := s.events.ScanRange(ctx, storeID, s.policy.Clamp(from, s.clock.Now()), to)
	if err != nil {
		return nil, apperr.StoreIO(op, err)
	}
	return events, nil
}

// dayRollup returns the cached projection of a store day.
func (s *Service) dayRollup(ctx context.Context, storeID, day string) (*rollupcache.DayRollup, error) {
	build := func(ctx context.Context) (*rollupcache.DayRollup, error) {
		from, to, err := utils.DayRange(day)
		if err != nil {
			return nil, apperr.Validation("rollup", err.Error())
		}
		now := s.clock.Now()
		clamped := s.policy.Clamp(from, now)
		events, err := s.events.ScanRange(ctx, storeID, clamped, to)
		if err != nil {
			return nil, apperr.StoreIO("rollup.scan", err)
		}
		signals := make([]models.Event, 0)
		for i := range events {
			if normalizer.IsFriction(events[i].EventName) {
				signals = append(signals, events[i])
			}
		}
		return &rollupcache.DayRollup{
			StoreID:  storeID,
			Day:      day,
			Sessions: rollup.Build(day, events),
			Signals:  signals,
			Clipped:  clamped.After(from),
			BuiltAt:  now,
		}, nil
	}
	if s.cache == nil {
		return build(ctx)
	}
	return s.cache.Get(ctx, storeID, day, build)
}

// abandoned reports an ATC session without purchase that has been idle for
// the checkout drop interval.
func (s *Service) abandoned(ss *models.SessionSummary, now time.Time) bool {
	return ss.ATCEvents > 0 && ss.PurchaseEvents == 0 && !ss.LastSeen.After(now.Add(-s.settings.CheckoutDrop))
}

// clampLimit applies a default and an upper bound to a limit parameter.
func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
