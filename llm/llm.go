// Package llm is the optional natural-language enrichment gateway.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"storepulse/api/config"
)

// ErrDisabled is returned when no gateway is configured.
var ErrDisabled = errors.New("llm gateway not configured")

// GenerationParams tune one completion. Zero values use the gateway defaults.
type GenerationParams struct {
	Model       string
	Temperature *float32
	MaxTokens   int
}

// Gateway generates text for a prompt.
type Gateway interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (text string, model string, err error)
}

const systemRole = "You summarize storefront analytics for a merchant. Be brief and concrete."

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient returns ErrDisabled when no API key is set.
func NewOpenAIClient(cfg config.OpenAI) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrDisabled
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
		log.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	log.WithField("model", model).Info("Initializing OpenAI client")
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), model: model}, nil
}

func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, string, error) {
	model := o.model
	if params.Model != "" {
		model = params.Model
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemRole},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens > 0 {
		req.MaxCompletionTokens = params.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", model, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", model, fmt.Errorf("OpenAI returned no choices")
	}
	if resp.Model != "" {
		model = resp.Model
	}
	return resp.Choices[0].Message.Content, model, nil
}

// Disabled is the gateway used when enrichment is not configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, GenerationParams) (string, string, error) {
	return "", "", ErrDisabled
}
