package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"newspipe/pkg/llm"
	"newspipe/pkg/tracker"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Client implements llm.Provider for the OpenAI chat completions API
// and any OpenAI-compatible endpoint.
type Client struct {
	client  *openai.Client
	apiKey  string
	model   string
	tracker *tracker.Tracker
}

// NewClient creates a new OpenAI client. baseURL may be empty for api.openai.com.
func NewClient(apiKey, model, baseURL string, timeout time.Duration, t *tracker.Tracker) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		client:  openai.NewClientWithConfig(cfg),
		apiKey:  apiKey,
		model:   model,
		tracker: t,
	}, nil
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "openai" }

// GenerateJSON implements llm.Provider using json_object response mode.
func (c *Client) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	// json_object mode requires "json" to appear in the prompt.
	if !strings.Contains(strings.ToLower(prompt), "json") {
		prompt += " Respond in JSON."
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.track(false)
		return fmt.Errorf("openai %s: %w", name, err)
	}
	if len(resp.Choices) == 0 {
		c.track(false)
		return fmt.Errorf("openai %s: api returned no choices", name)
	}
	c.track(true)

	respText := llm.CleanJSONBlock(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(respText), target); err != nil {
		return fmt.Errorf("failed to unmarshal openai json: %w (raw: %s)", err, respText)
	}
	return nil
}

// HealthCheck lists the models visible to the key and verifies the configured one is among them.
func (c *Client) HealthCheck(ctx context.Context) error {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("openai key rejected: %w", err)
		}
		return fmt.Errorf("openai health check: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	return fmt.Errorf("openai model %q not available", c.model)
}

func (c *Client) track(ok bool) {
	if c.tracker == nil {
		return
	}
	if ok {
		c.tracker.TrackAPISuccess("openai")
	} else {
		c.tracker.TrackAPIFailure("openai")
	}
}
