// api/handlers/analytics_handlers.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"storepulse/api/apperr"
	"storepulse/api/models"
	"storepulse/api/service"
)

type AnalyticsHandlers struct {
	Service *service.Service
}

func NewAnalyticsHandlers(s *service.Service) *AnalyticsHandlers {
	return &AnalyticsHandlers{Service: s}
}

func (h *AnalyticsHandlers) GetRealtime(c *gin.Context) {
	window, err := intQuery(c, "windowMinutes")
	if err != nil {
		respondError(c, "realtime", err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, "realtime", err)
		return
	}
	res, err := h.Service.Realtime(c.Request.Context(), c.Query("store"), window, limit)
	if err != nil {
		respondError(c, "realtime", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetOverview(c *gin.Context) {
	res, err := h.Service.Overview(c.Request.Context(), c.Query("store"))
	if err != nil {
		respondError(c, "overview", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetDays(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, "days", err)
		return
	}
	res, err := h.Service.Days(c.Request.Context(), c.Query("store"), limit)
	if err != nil {
		respondError(c, "days", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetSessions(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, "sessions", err)
		return
	}
	res, err := h.Service.Sessions(c.Request.Context(), c.Query("store"), limit)
	if err != nil {
		respondError(c, "sessions", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetSessionsByDay(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, "sessions_by_day", err)
		return
	}
	res, err := h.Service.SessionsByDay(c.Request.Context(), c.Query("store"), c.Query("date"), limit)
	if err != nil {
		respondError(c, "sessions_by_day", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetEventsByDay(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, "events_by_day", err)
		return
	}
	res, err := h.Service.EventsByDay(c.Request.Context(), c.Query("store"), c.Query("date"), c.Query("sessionId"), limit)
	if err != nil {
		respondError(c, "events_by_day", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetEvents(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, "events", err)
		return
	}
	res, err := h.Service.Events(c.Request.Context(), c.Query("store"), limit)
	if err != nil {
		respondError(c, "events", err)
		return
	}
	respondOK(c, res)
}

// flowQuery reads the parameters shared by /flow, /clarity and /top-issues.
func flowQuery(c *gin.Context) (service.FlowQuery, error) {
	limit, err := intQuery(c, "limitSessions")
	if err != nil {
		return service.FlowQuery{}, err
	}
	return service.FlowQuery{
		StoreID:       c.Query("store"),
		Day:           c.Query("date"),
		Mode:          c.Query("mode"),
		LimitSessions: limit,
		View:          c.Query("view"),
	}, nil
}

func (h *AnalyticsHandlers) GetFlow(c *gin.Context) {
	q, err := flowQuery(c)
	if err != nil {
		respondError(c, "flow", err)
		return
	}
	res, err := h.Service.Flow(c.Request.Context(), q)
	if err != nil {
		respondError(c, "flow", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetClarity(c *gin.Context) {
	q, err := flowQuery(c)
	if err != nil {
		respondError(c, "clarity", err)
		return
	}
	res, err := h.Service.Clarity(c.Request.Context(), q)
	if err != nil {
		respondError(c, "clarity", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetTopIssues(c *gin.Context) {
	q, err := flowQuery(c)
	if err != nil {
		respondError(c, "top_issues", err)
		return
	}
	res, err := h.Service.TopIssues(c.Request.Context(), q)
	if err != nil {
		respondError(c, "top_issues", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GetBrief(c *gin.Context) {
	res, err := h.Service.Brief(c.Request.Context(), c.Query("store"), c.Query("date"))
	if err != nil {
		respondError(c, "brief", err)
		return
	}
	respondOK(c, res)
}

// bindBody decodes a JSON body, mapping binding failures to validation
// errors.
func bindBody(c *gin.Context, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		log.Printf("Error binding %s request: %v", op, err)
		respondError(c, op, apperr.Validation(op, "invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (h *AnalyticsHandlers) AnalyzeSession(c *gin.Context) {
	var req models.AnalyzeSessionRequest
	if !bindBody(c, "analyze_session", &req) {
		return
	}
	res, err := h.Service.AnalyzeSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, "analyze_session", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) AnalyzeDay(c *gin.Context) {
	var req models.AnalyzeDayRequest
	if !bindBody(c, "analyze_day", &req) {
		return
	}
	res, err := h.Service.AnalyzeDay(c.Request.Context(), req)
	if err != nil {
		respondError(c, "analyze_day", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) GenerateBrief(c *gin.Context) {
	var req models.GenerateBriefRequest
	if !bindBody(c, "generate_brief", &req) {
		return
	}
	res, err := h.Service.GenerateBrief(c.Request.Context(), req)
	if err != nil {
		respondError(c, "generate_brief", err)
		return
	}
	respondOK(c, res)
}

func (h *AnalyticsHandlers) SetVerification(c *gin.Context) {
	var req models.VerificationRequest
	if !bindBody(c, "set_verification", &req) {
		return
	}
	if err := h.Service.SetVerification(c.Request.Context(), req); err != nil {
		respondError(c, "set_verification", err)
		return
	}
	respondOK(c, gin.H{"store": req.Store, "type": req.Type, "page": req.Page, "group_key": req.GroupKey, "status": req.Status})
}

// HealthCheck reports liveness and the event store breaker state. An open
// breaker answers 503 so load balancers stop routing queries here.
func (h *AnalyticsHandlers) HealthCheck(c *gin.Context) {
	state, healthy := h.Service.EventStoreStatus()
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "event_store": state})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "event_store": state})
}
