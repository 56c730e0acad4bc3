package handlers

import (
	"github.com/gin-gonic/gin"

	"storepulse/api/metrics"
	"storepulse/api/middleware"
	"storepulse/api/service"
)

// InitRoutes mounts every endpoint on r. limiter may be nil to disable
// ingest rate limiting.
func InitRoutes(r *gin.Engine, svc *service.Service, limiter *middleware.RateLimiter) {
	track := NewTrackHandlers(svc)
	analytics := NewAnalyticsHandlers(svc)

	r.GET("/health", analytics.HealthCheck)
	r.GET("/metrics", metrics.Handler())

	ingest := []gin.HandlerFunc{}
	if limiter != nil {
		ingest = append(ingest, middleware.RateLimit(limiter))
	}
	r.POST(middleware.PixelPath, append(ingest, track.TrackEvent)...)

	r.GET("/realtime", analytics.GetRealtime)
	r.GET("/overview", analytics.GetOverview)
	r.GET("/days", analytics.GetDays)
	r.GET("/sessions", analytics.GetSessions)
	r.GET("/sessions-by-day", analytics.GetSessionsByDay)
	r.GET("/events-by-day", analytics.GetEventsByDay)
	r.GET("/events", analytics.GetEvents)
	r.GET("/flow", analytics.GetFlow)
	r.GET("/clarity", analytics.GetClarity)
	r.GET("/top-issues", analytics.GetTopIssues)
	r.GET("/brief", analytics.GetBrief)

	r.POST("/analyze-session", analytics.AnalyzeSession)
	r.POST("/analyze-day", analytics.AnalyzeDay)
	r.POST("/brief/generate", analytics.GenerateBrief)
	r.POST("/verification", analytics.SetVerification)
}
