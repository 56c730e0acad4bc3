package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"storepulse/api/apperr"
	"storepulse/api/models"
)

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, models.Response{Success: true, Data: data})
}

// respondError maps err to its status and writes the error envelope. Stale
// days are answered with an empty shape and a hint, not an error.
func respondError(c *gin.Context, op string, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{"op": op, "kind": kind}).WithError(err).Error("Request failed")
	}
	_ = c.Error(err)
	c.JSON(status, models.Response{
		Success: false,
		Error: &models.ErrorResponse{
			Kind:    string(kind),
			Message: apperr.Message(err),
			Retry:   apperr.Retryable(err),
		},
	})
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation("query", "invalid '"+name+"' parameter, must be a non-negative integer")
	}
	return n, nil
}
