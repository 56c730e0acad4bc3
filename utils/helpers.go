package utils

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	DayLayout  = "2006-01-02"
	secondsDay = 86400
)

// DayBucket is floor(ts / 86400s) in UTC.
func DayBucket(ts time.Time) int64 {
	sec := ts.Unix()
	b := sec / secondsDay
	if sec < 0 && sec%secondsDay != 0 {
		b--
	}
	return b
}

// DayStart returns the first instant of the bucket.
func DayStart(bucket int64) time.Time {
	return time.Unix(bucket*secondsDay, 0).UTC()
}

// DayString formats the UTC day containing ts.
func DayString(ts time.Time) string {
	return ts.UTC().Format(DayLayout)
}

// DayRange returns [start, end) for a YYYY-MM-DD day string.
func DayRange(day string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DayLayout, day, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid day %q, expected YYYY-MM-DD", day)
	}
	return start, start.Add(24 * time.Hour), nil
}

// DaysBetween counts whole UTC days from day to the day containing now.
// Days in the future count as zero.
func DaysBetween(day string, now time.Time) int {
	start, _, err := DayRange(day)
	if err != nil {
		return 0
	}
	d := DayBucket(now) - DayBucket(start)
	if d < 0 {
		return 0
	}
	return int(d)
}

// Clock is the injectable wall time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the process wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t.UTC()} }

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Seed hashes the parts into a stable 64-bit seed.
func Seed(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0x1f})
	}
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// TitleCase turns pass-through event names into display labels:
// "my_custom_evt" -> "My Custom Evt".
func TitleCase(name string) string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	})
	for i, f := range fields {
		r := []rune(f)
		r[0] = unicode.ToUpper(r[0])
		fields[i] = string(r)
	}
	return strings.Join(fields, " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
