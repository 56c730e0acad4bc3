package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("normalize", "session_id is required")))
	assert.Equal(t, KindStoreIO, KindOf(fmt.Errorf("scan: %w", StoreIO("scan", errors.New("conn reset")))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("flow: %w", NotFound("events_by_day", "no events for session s1"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestStoreIOKeepsExistingKind(t *testing.T) {
	nf := NotFound("session", "unknown session")
	assert.Equal(t, KindNotFound, KindOf(StoreIO("scan", nf)))
	assert.Nil(t, StoreIO("scan", nil))
}

func TestRetryableAndStatus(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
		status    int
	}{
		{Validation("x", "bad"), false, http.StatusBadRequest},
		{NotFound("x", "missing"), false, http.StatusNotFound},
		{StoreIO("x", errors.New("io")), true, http.StatusServiceUnavailable},
		{errors.New("unexpected"), true, http.StatusInternalServerError},
		{LLMUnavailable("x", errors.New("502")), false, http.StatusOK},
	}
	for _, c := range cases {
		assert.Equal(t, c.retryable, Retryable(c.err), c.err.Error())
		assert.Equal(t, c.status, HTTPStatus(c.err), c.err.Error())
	}
}

func TestMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: password authentication failed")))
	assert.Equal(t, "event store unavailable, retry shortly", Message(StoreIO("scan", errors.New("dial tcp"))))
	assert.Equal(t, "bad date", Message(Validation("parse", "bad date")))
}
