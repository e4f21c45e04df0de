package failover

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newspipe/pkg/config"
	"newspipe/pkg/llm"
	"newspipe/pkg/request"
)

type mockProvider struct {
	name      string
	responses []string
	errors    []error
	healthErr error
	callCount int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	idx := m.callCount
	m.callCount++
	if idx >= len(m.errors) {
		return fmt.Errorf("out of bounds")
	}
	if m.errors[idx] != nil {
		return m.errors[idx]
	}
	if target == nil {
		return nil
	}
	return json.Unmarshal([]byte(m.responses[idx]), target)
}

func (m *mockProvider) HealthCheck(ctx context.Context) error {
	return m.healthErr
}

func newFast(t *testing.T, providers ...llm.Provider) *Provider {
	t.Helper()
	f, err := New(providers, "")
	if err != nil {
		t.Fatal(err)
	}
	f.retryDelay = time.Millisecond
	return f
}

type result struct {
	Company string `json:"company"`
}

func TestFailover_SuccessFirst(t *testing.T) {
	p1 := &mockProvider{name: "p1", responses: []string{`{"company":"a"}`}, errors: []error{nil}}
	p2 := &mockProvider{name: "p2", responses: []string{`{"company":"b"}`}, errors: []error{nil}}

	f := newFast(t, p1, p2)
	var res result
	if err := f.GenerateJSON(context.Background(), "extract", "prompt", &res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Company != "a" {
		t.Errorf("expected a, got %s", res.Company)
	}
	if p2.callCount > 0 {
		t.Errorf("p2 should not have been called")
	}
	if f.Name() != "p1,p2" {
		t.Errorf("unexpected name %q", f.Name())
	}
}

func TestFailover_FailoverOnRetryable(t *testing.T) {
	p1 := &mockProvider{name: "p1", responses: []string{""}, errors: []error{fmt.Errorf("429 too many requests")}}
	p2 := &mockProvider{name: "p2", responses: []string{`{"company":"b"}`}, errors: []error{nil}}

	f := newFast(t, p1, p2)
	var res result
	if err := f.GenerateJSON(context.Background(), "extract", "prompt", &res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Company != "b" {
		t.Errorf("expected b, got %s", res.Company)
	}
	if p1.callCount != 1 || p2.callCount != 1 {
		t.Errorf("expected one call each, got %d/%d", p1.callCount, p2.callCount)
	}
}

func TestFailover_BackoffSkipsFailingProvider(t *testing.T) {
	p1 := &mockProvider{name: "p1", responses: []string{"", ""}, errors: []error{fmt.Errorf("timeout"), nil}}
	p2 := &mockProvider{name: "p2", responses: []string{"{}", "{}"}, errors: []error{nil, nil}}

	f := newFast(t, p1, p2)
	_ = f.GenerateJSON(context.Background(), "extract", "prompt", nil)
	_ = f.GenerateJSON(context.Background(), "extract", "prompt", nil)

	if p1.callCount != 1 {
		t.Errorf("p1 should sit out the second call, got %d calls", p1.callCount)
	}
	if p2.callCount != 2 {
		t.Errorf("p2 should serve both calls, got %d", p2.callCount)
	}
}

func TestFailover_CircuitBreakerOnFatal(t *testing.T) {
	p1 := &mockProvider{name: "p1", responses: []string{""}, errors: []error{fmt.Errorf("401 unauthorized")}}
	p2 := &mockProvider{name: "p2", responses: []string{"{}", "{}"}, errors: []error{nil, nil}}

	f := newFast(t, p1, p2)
	if err := f.GenerateJSON(context.Background(), "extract", "prompt", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.mu.RLock()
	disabled := f.disabled[0]
	f.mu.RUnlock()
	if !disabled {
		t.Errorf("p1 should be disabled")
	}

	if err := f.GenerateJSON(context.Background(), "extract", "prompt", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1.callCount != 1 {
		t.Errorf("p1 should have been skipped, got %d calls", p1.callCount)
	}
}

func TestFailover_NoDisableLastProvider(t *testing.T) {
	p1 := &mockProvider{name: "p1", responses: []string{""}, errors: []error{fmt.Errorf("401 unauthorized")}}

	f := newFast(t, p1)
	err := f.GenerateJSON(context.Background(), "extract", "prompt", nil)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if f.disabled[0] {
		t.Errorf("last provider should NOT be disabled")
	}
}

func TestFailover_RetryLast(t *testing.T) {
	p1 := &mockProvider{
		name:      "p1",
		responses: []string{"", "", `{"company":"ok"}`},
		errors:    []error{fmt.Errorf("429"), fmt.Errorf("429"), nil},
	}

	f := newFast(t, p1)
	var res result
	if err := f.GenerateJSON(context.Background(), "extract", "prompt", &res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Company != "ok" {
		t.Errorf("expected success on 3rd attempt, got %q", res.Company)
	}
	if p1.callCount != 3 {
		t.Errorf("expected 3 calls, got %d", p1.callCount)
	}
}

func TestFailover_ExhaustAll(t *testing.T) {
	p1 := &mockProvider{name: "p1", responses: []string{""}, errors: []error{fmt.Errorf("429")}}
	p2 := &mockProvider{name: "p2", responses: []string{"", "", "", ""}, errors: []error{fmt.Errorf("429"), fmt.Errorf("429"), fmt.Errorf("429"), fmt.Errorf("429")}}

	f := newFast(t, p1, p2)
	err := f.GenerateJSON(context.Background(), "extract", "prompt", nil)
	if err == nil || !strings.Contains(err.Error(), "exhausted after 3 retries") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFailover_HealthCheck(t *testing.T) {
	p1 := &mockProvider{name: "p1", healthErr: fmt.Errorf("failed")}
	p2 := &mockProvider{name: "p2"}

	f := newFast(t, p1, p2)
	if err := f.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck should succeed if p2 is healthy: %v", err)
	}

	p2.healthErr = fmt.Errorf("also failed")
	if err := f.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck should fail if all providers are unhealthy")
	}

	p1.healthErr = nil
	f.disabled[0] = true
	if err := f.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck should fail if only healthy provider is disabled")
	}
}

func TestFailover_New_Errors(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Error("expected error for nil providers")
	}
}

func TestIsUnrecoverable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{fmt.Errorf("401 unauthorized"), true},
		{fmt.Errorf("403 forbidden"), true},
		{fmt.Errorf("400 bad request"), false},
		{fmt.Errorf("random error"), false},
		{fmt.Errorf("invalid_api_key"), true},
		{&request.StatusError{Code: 401}, true},
		{fmt.Errorf("wrap: %w", llm.ErrNotConfigured), true},
		{context.Canceled, true},
	}

	for _, tt := range tests {
		if got := isUnrecoverable(tt.err); got != tt.expected {
			t.Errorf("isUnrecoverable(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}

func TestFailover_Logging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "llm.log")

	p1 := &mockProvider{name: "p1", responses: []string{`{"company":"success_resp"}`}, errors: []error{nil}}
	f, _ := New([]llm.Provider{p1}, logPath)
	var res result
	_ = f.GenerateJSON(context.Background(), "SuccessCall", "Prompt text", &res)

	content, _ := os.ReadFile(logPath)
	for _, want := range []string{"PROMPT: SuccessCall", "Prompt text", "success_resp"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("log should contain %q, got %s", want, content)
		}
	}

	p2 := &mockProvider{name: "p2", responses: []string{""}, errors: []error{fmt.Errorf("fatal 401")}}
	f2, _ := New([]llm.Provider{p2}, logPath)
	_ = f2.GenerateJSON(context.Background(), "FailCall", "Fail Prompt", &res)

	content, _ = os.ReadFile(logPath)
	if !strings.Contains(string(content), "ERROR: FailCall - fatal 401") {
		t.Errorf("log should contain error entry, got %s", content)
	}
	if strings.Contains(string(content), "Fail Prompt") {
		t.Errorf("error log should not contain prompt text")
	}
}

func TestFromConfig(t *testing.T) {
	rc := request.New(nil, nil, request.DefaultOptions())

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	if _, err := FromConfig(context.Background(), cfg, rc); err == nil {
		t.Error("expected error without keys")
	}

	cfg.LLM.Provider = "auto"
	cfg.Keys.Perplexity = "pk"
	p, err := FromConfig(context.Background(), cfg, rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "perplexity" {
		t.Errorf("expected perplexity chain, got %q", p.Name())
	}

	if got := parseNames(" OpenAI , gemini "); len(got) != 2 || got[0] != "openai" || got[1] != "gemini" {
		t.Errorf("unexpected names %v", got)
	}
}
