package store

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"storepulse/api/models"
)

// BreakerConfig tunes the event store circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "event-store",
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerEventStore fails fast while the wrapped store keeps failing.
// Cancelled or timed out requests do not count against the store.
type BreakerEventStore struct {
	next EventStore
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerEventStore(next EventStore, cfg BreakerConfig) *BreakerEventStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state change")
		},
	}
	return &BreakerEventStore{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

var _ EventStore = (*BreakerEventStore)(nil)

// State exposes the breaker state for health reporting.
func (b *BreakerEventStore) State() gobreaker.State { return b.cb.State() }

// Status reports an event store's breaker state for /health. Stores without a
// breaker report "ok"; healthy is false only while the breaker is open.
func Status(es EventStore) (state string, healthy bool) {
	b, ok := es.(*BreakerEventStore)
	if !ok {
		return "ok", true
	}
	st := b.State()
	return st.String(), st != gobreaker.StateOpen
}

func run[T any](b *BreakerEventStore, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (b *BreakerEventStore) Append(ctx context.Context, events []models.Event) (int, error) {
	return run(b, func() (int, error) { return b.next.Append(ctx, events) })
}

func (b *BreakerEventStore) ScanRange(ctx context.Context, storeID string, from, to time.Time) ([]models.Event, error) {
	return run(b, func() ([]models.Event, error) { return b.next.ScanRange(ctx, storeID, from, to) })
}

func (b *BreakerEventStore) ScanSession(ctx context.Context, storeID, sessionID string, from, to time.Time) ([]models.Event, error) {
	return run(b, func() ([]models.Event, error) { return b.next.ScanSession(ctx, storeID, sessionID, from, to) })
}

func (b *BreakerEventStore) Recent(ctx context.Context, storeID string, limit int) ([]models.Event, error) {
	return run(b, func() ([]models.Event, error) { return b.next.Recent(ctx, storeID, limit) })
}

func (b *BreakerEventStore) ListDays(ctx context.Context, storeID string, limit int) ([]models.DaySummary, error) {
	return run(b, func() ([]models.DaySummary, error) { return b.next.ListDays(ctx, storeID, limit) })
}

func (b *BreakerEventStore) ListStores(ctx context.Context) ([]string, error) {
	return run(b, func() ([]string, error) { return b.next.ListStores(ctx) })
}

func (b *BreakerEventStore) DeleteBefore(ctx context.Context, storeID string, cutoff time.Time) (int64, error) {
	return run(b, func() (int64, error) { return b.next.DeleteBefore(ctx, storeID, cutoff) })
}
