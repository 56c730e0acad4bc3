// Package store holds the persistence ports of the pipeline and their
// ClickHouse, Postgres and in-memory implementations.
package store

import (
	"context"
	"time"

	"storepulse/api/models"
)

// EventStore is the append-only event log. Appends are idempotent by event
// id. Scans return events ordered by (server_ts, id).
type EventStore interface {
	// Append stores events and reports how many were new.
	Append(ctx context.Context, events []models.Event) (int, error)
	// ScanRange returns a store's events with from <= server_ts < to.
	// A zero to leaves the range open.
	ScanRange(ctx context.Context, storeID string, from, to time.Time) ([]models.Event, error)
	// ScanSession is ScanRange narrowed to one session.
	ScanSession(ctx context.Context, storeID, sessionID string, from, to time.Time) ([]models.Event, error)
	// Recent returns the newest events first.
	Recent(ctx context.Context, storeID string, limit int) ([]models.Event, error)
	// ListDays returns per-day totals, newest day first.
	ListDays(ctx context.Context, storeID string, limit int) ([]models.DaySummary, error)
	// ListStores returns every store with at least one event.
	ListStores(ctx context.Context) ([]string, error)
	// DeleteBefore removes a store's events with server_ts < cutoff.
	DeleteBefore(ctx context.Context, storeID string, cutoff time.Time) (int64, error)
}

// ShopperStore allocates monotonically increasing shopper numbers.
type ShopperStore interface {
	Resolve(ctx context.Context, storeID, clientID string) (int64, error)
}

// VerificationStore holds the verifier's verdict per clarity cluster,
// keyed by models.VerificationKey.
type VerificationStore interface {
	Verifications(ctx context.Context, storeID string) (map[string]string, error)
	SetVerification(ctx context.Context, storeID, typ, page, groupKey, status string) error
}

// InsightStore persists LLM output for sessions and days.
type InsightStore interface {
	SaveSessionInsight(ctx context.Context, in models.SessionInsight) error
	SessionInsights(ctx context.Context, storeID, day string) (map[string]models.SessionInsight, error)
	SaveBrief(ctx context.Context, b models.DailyBrief) error
	// Brief returns nil when no brief was generated for the day.
	Brief(ctx context.Context, storeID, day string) (*models.DailyBrief, error)
}

func inRange(ts, from, to time.Time) bool {
	if ts.Before(from) {
		return false
	}
	return to.IsZero() || ts.Before(to)
}
