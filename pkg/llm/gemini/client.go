package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/iterator"
	"google.golang.org/genai"

	"newspipe/pkg/llm"
	"newspipe/pkg/tracker"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Client implements llm.Provider for Google Gemini.
type Client struct {
	genaiClient *genai.Client
	modelName   string
	tracker     *tracker.Tracker
}

// NewClient creates a new Gemini client. baseURL may be empty for the public endpoint.
func NewClient(ctx context.Context, apiKey, model, baseURL string, t *tracker.Tracker) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{genaiClient: client, modelName: model, tracker: t}, nil
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "gemini" }

// GenerateJSON sends a prompt and unmarshals the response into the target struct.
func (c *Client) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.1),
	}

	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.modelName, genai.Text(prompt), cfg)
	if err != nil {
		c.track(false)
		return fmt.Errorf("gemini %s: %w", name, err)
	}

	text, err := responseText(resp)
	if err != nil {
		c.track(false)
		return err
	}
	c.track(true)

	cleaned := llm.CleanJSONBlock(text)
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("failed to unmarshal gemini json: %w (raw: %s)", err, cleaned)
	}
	return nil
}

// HealthCheck verifies the configured model is available for the API key.
func (c *Client) HealthCheck(ctx context.Context) error {
	name := c.modelName
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}

	_, err := c.genaiClient.Models.Get(ctx, name, nil)
	if err == nil {
		return nil
	}

	slog.Warn("Gemini model validation failed, listing available models", "model", c.modelName, "error", err)
	for _, m := range c.availableModels(ctx) {
		slog.Info("Gemini model available", "name", m)
	}
	return fmt.Errorf("gemini model %q not available: %w", c.modelName, err)
}

func (c *Client) availableModels(ctx context.Context) []string {
	page, err := c.genaiClient.Models.List(ctx, nil)
	if err != nil {
		return nil
	}

	var names []string
	for {
		for _, m := range page.Items {
			if strings.Contains(strings.ToLower(m.Name), "gemini") {
				names = append(names, m.Name)
			}
		}
		page, err = page.Next(ctx)
		if err == iterator.Done || err != nil {
			break
		}
	}
	return names
}

func (c *Client) track(ok bool) {
	if c.tracker == nil {
		return
	}
	if ok {
		c.tracker.TrackAPISuccess("gemini")
	} else {
		c.tracker.TrackAPIFailure("gemini")
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("gemini candidate has no content (finish reason %s)", cand.FinishReason)
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return sb.String(), nil
}
