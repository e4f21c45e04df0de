package failover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"newspipe/pkg/llm"
	"newspipe/pkg/request"
)

// Provider wraps multiple LLM providers and handles fallbacks.
type Provider struct {
	providers  []llm.Provider
	disabled   map[int]bool
	backoffs   map[string]*backoffState // key: providerName:callName
	logPath    string
	retryDelay time.Duration
	mu         sync.RWMutex
}

type backoffState struct {
	subsequentFailures int
	skippedRequests    int
}

// New creates a new Provider with failover and a prompt transcript at logPath.
// providers is the ordered fallback chain.
func New(providers []llm.Provider, logPath string) (*Provider, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider required for failover")
	}
	return &Provider{
		providers:  providers,
		disabled:   make(map[int]bool),
		backoffs:   make(map[string]*backoffState),
		logPath:    logPath,
		retryDelay: time.Second,
	}, nil
}

// Name implements llm.Provider.
func (f *Provider) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// GenerateJSON implements llm.Provider.
func (f *Provider) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	return f.execute(ctx, name, prompt, target, func(p llm.Provider) error {
		return p.GenerateJSON(ctx, name, prompt, target)
	})
}

// HealthCheck verifies that at least one provider is healthy.
func (f *Provider) HealthCheck(ctx context.Context) error {
	f.mu.RLock()
	disabled := make(map[int]bool, len(f.disabled))
	for k, v := range f.disabled {
		disabled[k] = v
	}
	f.mu.RUnlock()

	var errs []string
	for i, p := range f.providers {
		if disabled[i] {
			continue
		}
		if err := p.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		return nil
	}

	if len(errs) == 0 {
		return fmt.Errorf("no providers available in failover chain")
	}
	return fmt.Errorf("all LLM providers failed health check: %s", strings.Join(errs, "; "))
}

// execute runs fn against the provider chain.
func (f *Provider) execute(ctx context.Context, callName, prompt string, target any, fn func(llm.Provider) error) error {
	type candidate struct {
		index int
		p     llm.Provider
	}
	var candidates []candidate

	f.mu.RLock()
	for i, p := range f.providers {
		if !f.disabled[i] {
			candidates = append(candidates, candidate{i, p})
		}
	}
	f.mu.RUnlock()

	if len(candidates) == 0 {
		return fmt.Errorf("no active LLM provider")
	}

	for idx, c := range candidates {
		pname := c.p.Name()
		isLast := idx == len(candidates)-1

		// A provider that keeps failing sits out as many calls as it has failed in a row.
		backoffKey := pname + ":" + callName
		f.mu.Lock()
		bs, exists := f.backoffs[backoffKey]
		if exists && !isLast && bs.skippedRequests < bs.subsequentFailures {
			bs.skippedRequests++
			slog.Debug("LLM provider in backoff, skipping", "provider", pname, "call", callName, "skipped", bs.skippedRequests)
			f.mu.Unlock()
			continue
		}
		f.mu.Unlock()

		err := fn(c.p)
		if err == nil {
			f.resetBackoff(backoffKey)
			f.logRequest(pname, callName, prompt, target, nil)
			return nil
		}
		f.logRequest(pname, callName, prompt, nil, err)

		if isUnrecoverable(err) {
			if isLast {
				return err
			}
			slog.Warn("LLM provider fatal error, disabling for the run", "provider", pname, "error", err)
			f.mu.Lock()
			f.disabled[c.index] = true
			f.mu.Unlock()
			continue
		}

		f.mu.Lock()
		bs, exists = f.backoffs[backoffKey]
		if !exists {
			bs = &backoffState{}
			f.backoffs[backoffKey] = bs
		}
		bs.subsequentFailures++
		bs.skippedRequests = 0
		f.mu.Unlock()

		if !isLast {
			slog.Info("LLM provider failed, falling back", "provider", pname, "next", candidates[idx+1].p.Name(), "error", err)
			continue
		}

		err = f.retryLast(ctx, pname, fn, c.p)
		if err != nil {
			f.logRequest(pname, callName, prompt, nil, err)
			return err
		}
		f.resetBackoff(backoffKey)
		f.logRequest(pname, callName, prompt, target, nil)
		return nil
	}

	return fmt.Errorf("all LLM providers exhausted for %q", callName)
}

func (f *Provider) resetBackoff(key string) {
	f.mu.Lock()
	delete(f.backoffs, key)
	f.mu.Unlock()
}

func (f *Provider) retryLast(ctx context.Context, name string, fn func(llm.Provider) error, p llm.Provider) error {
	var lastErr error
	delay := f.retryDelay
	for attempt := 1; attempt <= 3; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		err := fn(p)
		if err == nil {
			return nil
		}
		lastErr = err
		if isUnrecoverable(err) {
			return fmt.Errorf("last provider failed with fatal error: %w", err)
		}
		slog.Warn("Last LLM provider failed, retrying with backoff", "provider", name, "attempt", attempt, "error", err)
		delay *= 2
	}
	return fmt.Errorf("last provider exhausted after 3 retries: %w", lastErr)
}

// logRequest appends one transcript entry. Failed calls record only the reason.
func (f *Provider) logRequest(providerName, callName, prompt string, result any, err error) {
	if f.logPath == "" {
		return
	}
	if mkErr := os.MkdirAll(filepath.Dir(f.logPath), 0o755); mkErr != nil {
		return
	}
	file, fErr := os.OpenFile(f.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if fErr != nil {
		return
	}
	defer file.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	var entry string
	if err != nil {
		entry = fmt.Sprintf("[%s][%s] ERROR: %s - %v\n%s\n",
			timestamp, strings.ToUpper(providerName), callName, err, strings.Repeat("-", 80))
	} else {
		response, _ := json.Marshal(result)
		entry = fmt.Sprintf("[%s][%s] PROMPT: %s\nPROMPT_TEXT:\n%s\n\nRESPONSE:\n%s\n%s\n",
			timestamp, strings.ToUpper(providerName), callName, prompt,
			llm.WordWrap(string(response), 80), strings.Repeat("-", 80))
	}
	_, _ = file.WriteString(entry)
}

// isUnrecoverable identifies errors that disable a provider for the rest of the run
// (unless it's the last one).
func isUnrecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, llm.ErrNotConfigured) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if request.IsStatus(err, http.StatusUnauthorized) || request.IsStatus(err, http.StatusForbidden) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "invalid_api_key")
}
