// api/handlers/track_handlers.go
package handlers

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"storepulse/api/apperr"
	"storepulse/api/models"
	"storepulse/api/service"
)

// maxTrackBody bounds one pixel batch.
const maxTrackBody = 1 << 20

type TrackHandlers struct {
	Service *service.Service
}

func NewTrackHandlers(s *service.Service) *TrackHandlers {
	return &TrackHandlers{Service: s}
}

// TrackEvent ingests a batch of pixel envelopes. A single object is accepted
// as a batch of one.
func (h *TrackHandlers) TrackEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTrackBody+1))
	if err != nil {
		respondError(c, "track", apperr.Validation("track", "unreadable request body"))
		return
	}
	if len(body) > maxTrackBody {
		respondError(c, "track", apperr.Validation("track", "request body too large"))
		return
	}

	var incoming []models.Envelope
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		respondOK(c, models.IngestResult{Rejected: []models.Rejection{}})
		return
	case trimmed[0] == '{':
		var one models.Envelope
		err = json.Unmarshal(trimmed, &one)
		incoming = []models.Envelope{one}
	default:
		err = json.Unmarshal(trimmed, &incoming)
	}
	if err != nil {
		log.Printf("Error binding incoming track JSON: %v", err)
		respondError(c, "track", apperr.Validation("track", "invalid request body"))
		return
	}

	ua := c.GetHeader("User-Agent")
	ip := c.ClientIP()
	for i := range incoming {
		incoming[i].UserAgent = ua
		incoming[i].ClientIP = ip
	}

	res, err := h.Service.Ingest(c.Request.Context(), incoming)
	if err != nil {
		respondError(c, "track", err)
		return
	}
	if len(res.Rejected) > 0 {
		log.WithFields(log.Fields{"component": "ingest", "rejected": len(res.Rejected), "accepted": res.Accepted}).Debug("Batch partially rejected")
	}
	respondOK(c, res)
}
