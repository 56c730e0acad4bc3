package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/config"
	"storepulse/api/models"
)

func TestNewOpenAIClient_DisabledWithoutKey(t *testing.T) {
	_, err := NewOpenAIClient(config.OpenAI{})
	assert.ErrorIs(t, err, ErrDisabled)

	_, _, err = Disabled{}.Generate(context.Background(), "x", GenerationParams{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","model":"test-model","choices":[{"index":0,"message":{"role":"assistant","content":"Shopper stalled at shipping."}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(config.OpenAI{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "default-model"})
	require.NoError(t, err)

	temp := float32(0.2)
	text, model, err := c.Generate(context.Background(), "hello", GenerationParams{Model: "override", Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "Shopper stalled at shipping.", text)
	assert.Equal(t, "test-model", model)
	assert.Equal(t, "override", got["model"])
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(config.OpenAI{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	_, _, err = c.Generate(context.Background(), "hello", GenerationParams{})
	assert.Error(t, err)
}

func TestPrompts(t *testing.T) {
	s := &models.SessionSummary{
		SessionID:        "s1",
		Day:              "2026-03-14",
		ATCEvents:        1,
		InferredStage:    models.StageCheckoutShipping,
		LastCheckoutStep: models.StringPtr("shipping"),
		DeviceType:       models.StringPtr("mobile"),
	}
	events := []models.Event{{EventName: "my_custom_evt", ServerTS: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), PagePath: models.StringPtr("/cart")}}
	p := SessionPrompt(s, events)
	assert.Contains(t, p, "checkout_shipping")
	assert.Contains(t, p, "device=mobile")
	assert.Contains(t, p, "09:00:00 My Custom Evt /cart")

	brief := BriefPrompt("2026-03-14", models.FlowReport{TotalSessions: 3, Stages: []models.FlowStage{{Stage: models.StageATC, Reached: 3, Dropoffs: 1}}},
		[]models.TopIssueRow{{Rank: 1, IssueLabel: "Network request failed", WhereLabel: "/", ConfidenceLabel: "High"}})
	assert.Contains(t, brief, "atc: reached 3, dropped 1")
	assert.Contains(t, brief, "#1 Network request failed at /")
}
