package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"storepulse/api/apperr"
	"storepulse/api/models"
)

// RateLimiter keeps one token bucket per store, dropping buckets that have
// been idle for an hour.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	stopClean chan struct{}
	stopOnce  sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter allows perSec sustained requests per store with bursts of
// up to burst.
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		rate:      rate.Limit(perSec),
		burst:     burst,
		stopClean: make(chan struct{}),
	}
}

// Allow takes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// StartCleanup evicts idle buckets every interval until Stop.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-time.Hour))
		case <-rl.stopClean:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(threshold time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopClean) })
}

// RateLimit rejects requests over the store's budget with 429. Requests
// that name no store are bucketed by client IP.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := StoreKey(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !rl.Allow(key) {
			log.WithFields(log.Fields{"component": "ingest", "store": key}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.Response{
				Success: false,
				Error:   &models.ErrorResponse{Kind: string(apperr.KindValidation), Message: "rate_limited", Retry: true},
			})
			return
		}
		c.Next()
	}
}
