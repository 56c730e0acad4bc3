// Package retention owns the retention horizon and the periodic sweep that
// enforces it.
package retention

import (
	"time"

	"storepulse/api/utils"
)

// DefaultHours is used when no horizon is configured.
const DefaultHours = 72

// DayState describes how much of a UTC day is still retained.
type DayState int

const (
	DayRetained DayState = iota
	// DayClipped days straddle the horizon and are served from what remains.
	DayClipped
	// DayStale days ended before the horizon.
	DayStale
)

// Policy is the retention horizon.
type Policy struct {
	Horizon time.Duration
}

// NewPolicy builds a policy from hours; non-positive values use the default.
func NewPolicy(hours int) Policy {
	if hours <= 0 {
		hours = DefaultHours
	}
	return Policy{Horizon: time.Duration(hours) * time.Hour}
}

// Cutoff is the oldest server_ts still retained at now.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Horizon)
}

// Clamp raises from to the cutoff so no query reaches behind the horizon.
func (p Policy) Clamp(from, now time.Time) time.Time {
	if c := p.Cutoff(now); from.Before(c) {
		return c
	}
	return from
}

// State classifies a day string. Unparseable days are reported retained;
// callers validate the day first.
func (p Policy) State(day string, now time.Time) DayState {
	start, end, err := utils.DayRange(day)
	if err != nil {
		return DayRetained
	}
	cutoff := p.Cutoff(now)
	switch {
	case !end.After(cutoff):
		return DayStale
	case start.Before(cutoff):
		return DayClipped
	}
	return DayRetained
}

// LastStaleDay is the newest day that ended before the horizon.
func (p Policy) LastStaleDay(now time.Time) string {
	cutoff := p.Cutoff(now)
	return utils.DayString(utils.DayStart(utils.DayBucket(cutoff)).Add(-time.Nanosecond))
}
