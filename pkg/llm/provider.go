package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by providers that have no API key.
var ErrNotConfigured = errors.New("llm provider not configured")

// Provider is a chat model that answers prompts with structured JSON.
type Provider interface {
	// Name identifies the provider in logs and request tracking.
	Name() string

	// GenerateJSON sends a prompt and unmarshals the response into the target struct.
	// name labels the call (e.g. "extract") in the prompt log.
	GenerateJSON(ctx context.Context, name, prompt string, target any) error

	// HealthCheck verifies that the provider is configured and reachable.
	HealthCheck(ctx context.Context) error
}
