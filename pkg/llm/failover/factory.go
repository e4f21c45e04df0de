package failover

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"newspipe/pkg/config"
	"newspipe/pkg/llm"
	"newspipe/pkg/llm/gemini"
	"newspipe/pkg/llm/openai"
	"newspipe/pkg/llm/perplexity"
	"newspipe/pkg/request"
)

// autoOrder is the chain used when llm.provider is "auto".
var autoOrder = []string{"openai", "gemini", "perplexity"}

// FromConfig builds the provider chain named by cfg.LLM.Provider, a single
// name, a comma-separated list, or "auto" for every provider with a key.
// The configured model applies only when exactly one provider is named.
// Providers without a key are skipped with a warning.
func FromConfig(ctx context.Context, cfg *config.Config, rc *request.Client) (llm.Provider, error) {
	names := parseNames(cfg.LLM.Provider)
	model := ""
	if len(names) == 1 {
		model = cfg.LLM.Model
	}

	var chain []llm.Provider
	for _, name := range names {
		p, err := build(ctx, name, model, cfg, rc)
		if err != nil {
			if cfg.LLM.Provider == "auto" {
				slog.Debug("LLM provider unavailable", "provider", name, "error", err)
			} else {
				slog.Warn("LLM provider unavailable", "provider", name, "error", err)
			}
			continue
		}
		chain = append(chain, p)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: no usable provider in %q", llm.ErrNotConfigured, cfg.LLM.Provider)
	}
	return New(chain, cfg.Log.LLM.Path)
}

func parseNames(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "auto" {
		return autoOrder
	}
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func build(ctx context.Context, name, model string, cfg *config.Config, rc *request.Client) (llm.Provider, error) {
	switch name {
	case "openai":
		return openai.NewClient(cfg.Keys.OpenAI, model, "", cfg.Request.Timeout.Std(), rc.Tracker())
	case "gemini":
		return gemini.NewClient(ctx, cfg.Keys.Gemini, model, "", rc.Tracker())
	case "perplexity":
		return perplexity.NewClient(cfg.Keys.Perplexity, model, rc)
	}
	return nil, fmt.Errorf("unknown llm provider %q", name)
}
