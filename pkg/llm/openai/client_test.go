package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newspipe/pkg/tracker"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func TestGenerateJSON(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test_key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(`{"company":"Meta","size_mw":300}`))
	}))
	defer server.Close()

	tr := tracker.New()
	c, err := NewClient("test_key", "", server.URL+"/v1", 0, tr)
	require.NoError(t, err)

	var out struct {
		Company string  `json:"company"`
		SizeMW  float64 `json:"size_mw"`
	}
	require.NoError(t, c.GenerateJSON(context.Background(), "extract", "Extract fields.", &out))

	assert.Equal(t, "Meta", out.Company)
	assert.Equal(t, 300.0, out.SizeMW)
	assert.Equal(t, DefaultModel, gotReq["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, gotReq["response_format"])
	assert.Equal(t, int64(1), tr.Snapshot()["openai"].APISuccess)
}

func TestGenerateJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload any
	}{
		{"unauthorized", http.StatusUnauthorized, map[string]any{"error": map[string]any{"message": "bad key", "type": "invalid_request_error"}}},
		{"not json content", http.StatusOK, chatResponse("no idea")},
		{"no choices", http.StatusOK, map[string]any{"id": "x", "choices": []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.payload)
			}))
			defer server.Close()

			c, err := NewClient("k", "m", server.URL, 0, nil)
			require.NoError(t, err)
			var out map[string]any
			assert.Error(t, c.GenerateJSON(context.Background(), "extract", "json please", &out))
		})
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", "", "", 0, nil)
	assert.Error(t, err)
}
