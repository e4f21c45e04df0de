package perplexity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"newspipe/pkg/llm"
	"newspipe/pkg/request"
)

const (
	// DefaultBaseURL is the Sonar chat completions endpoint.
	DefaultBaseURL = "https://api.perplexity.ai/chat/completions"
	// DefaultModel is used when no model is configured.
	DefaultModel = "sonar"
)

// Client implements llm.Provider for the Perplexity Sonar API and exposes
// its grounded web search.
// Perplexity uses an OpenAI-compatible chat completions format.
type Client struct {
	rc      *request.Client
	apiKey  string
	model   string
	baseURL string
}

// sonarRequest follows the OpenAI Chat Completions format that Perplexity accepts.
type sonarRequest struct {
	Model               string            `json:"model"`
	Messages            []sonarMessage    `json:"messages"`
	WebSearchOptions    *webSearchOptions `json:"web_search_options,omitempty"`
	SearchRecencyFilter string            `json:"search_recency_filter,omitempty"`
}

// webSearchOptions controls Perplexity's web search behavior.
type webSearchOptions struct {
	// SearchContextSize: "low", "medium", or "high"
	SearchContextSize string `json:"search_context_size,omitempty"`
}

type sonarMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// sonarResponse matches the Perplexity API response format.
type sonarResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations     []string `json:"citations,omitempty"`
	SearchResults []Source `json:"search_results,omitempty"`
	Error         *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Source is one web page the answer was grounded on.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date,omitempty"`
}

// NewClient creates a new Perplexity Sonar client.
func NewClient(apiKey, model string, rc *request.Client) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("perplexity api key is required")
	}
	if rc == nil {
		return nil, fmt.Errorf("perplexity client needs a request client")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		rc:      rc,
		baseURL: DefaultBaseURL,
	}, nil
}

// SetBaseURL points the client at another endpoint.
func (c *Client) SetBaseURL(u string) {
	if u != "" {
		c.baseURL = u
	}
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "perplexity" }

// Model returns the configured Sonar model.
func (c *Client) Model() string { return c.model }

// GenerateJSON implements llm.Provider.
func (c *Client) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	// Perplexity doesn't have a native JSON mode, so we instruct via prompt
	jsonPrompt := prompt + "\n\nRespond with valid JSON only, no markdown."

	sresp, err := c.execute(ctx, sonarRequest{
		Model:    c.model,
		Messages: []sonarMessage{{Role: "user", Content: jsonPrompt}},
	})
	if err != nil {
		return err
	}

	respText := llm.CleanJSONBlock(sresp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(respText), target); err != nil {
		return fmt.Errorf("failed to unmarshal perplexity json: %w (raw: %s)", err, respText)
	}
	return nil
}

// HealthCheck implements llm.Provider.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.apiKey == "" {
		return llm.ErrNotConfigured
	}
	_, err := c.execute(ctx, sonarRequest{
		Model:    c.model,
		Messages: []sonarMessage{{Role: "user", Content: "ping"}},
	})
	return err
}

func (c *Client) execute(ctx context.Context, sreq sonarRequest) (*sonarResponse, error) {
	body, err := json.Marshal(sreq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"Content-Type":  "application/json",
	}

	respBody, err := c.rc.PostWithHeaders(ctx, c.baseURL, body, headers)
	if err != nil {
		return nil, err
	}

	var sresp sonarResponse
	if err := json.Unmarshal(respBody, &sresp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if sresp.Error != nil {
		return nil, fmt.Errorf("perplexity api error: %s (%s)", sresp.Error.Message, sresp.Error.Type)
	}
	if len(sresp.Choices) == 0 {
		return nil, fmt.Errorf("perplexity api returned no choices")
	}
	return &sresp, nil
}

// SearchResult is a web search grounded answer with the pages it cites.
type SearchResult struct {
	Content   string
	Citations []string
	Sources   []Source // richer citation data, when the API returns it
}

// Search performs a grounded web search query restricted to recent pages.
// recency is one of "day", "week", "month", "year" or empty for no filter.
func (c *Client) Search(ctx context.Context, query, recency string) (*SearchResult, error) {
	sresp, err := c.execute(ctx, sonarRequest{
		Model:               c.model,
		Messages:            []sonarMessage{{Role: "user", Content: query}},
		WebSearchOptions:    &webSearchOptions{SearchContextSize: "high"},
		SearchRecencyFilter: recency,
	})
	if err != nil {
		return nil, err
	}

	citations := sresp.Citations
	if len(citations) == 0 {
		for _, s := range sresp.SearchResults {
			citations = append(citations, s.URL)
		}
	}

	return &SearchResult{
		Content:   strings.TrimSpace(sresp.Choices[0].Message.Content),
		Citations: citations,
		Sources:   sresp.SearchResults,
	}, nil
}
