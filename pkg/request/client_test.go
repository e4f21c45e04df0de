package request

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newspipe/pkg/cache"
	"newspipe/pkg/tracker"
)

func testOptions() Options {
	return Options{
		Timeout:   5 * time.Second,
		Retries:   3,
		BaseDelay: 5 * time.Millisecond,
		MaxDelay:  20 * time.Millisecond,
	}
}

func TestGet_Sequential(t *testing.T) {
	var conc, maxConc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)
		for {
			m := atomic.LoadInt32(&maxConc)
			if cur <= m || atomic.CompareAndSwapInt32(&maxConc, m, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	client := New(cache.NewMemory(), tracker.New(), testOptions())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(context.Background(), svr.URL, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxConc), "requests to one provider must be sequential")
}

func TestGet_Cache(t *testing.T) {
	var hits int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer svr.Close()

	tr := tracker.New()
	client := New(cache.NewMemory(), tr, testOptions())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		body, err := client.Get(ctx, svr.URL, "k1")
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, string(body))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	var stats tracker.ProviderStats
	for _, s := range tr.Snapshot() {
		stats = s
	}
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.APISuccess)
}

func TestGet_RetryOn429(t *testing.T) {
	var calls int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer svr.Close()

	client := New(nil, tracker.New(), testOptions())
	body, err := client.Get(context.Background(), svr.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "done", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGet_MaxRetries(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer svr.Close()

	tr := tracker.New()
	client := New(nil, tr, testOptions())
	_, err := client.Get(context.Background(), svr.URL, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxRetries))
}

func TestGet_ClientError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer svr.Close()

	client := New(nil, tracker.New(), testOptions())
	_, err := client.Get(context.Background(), svr.URL+"?api_key=secret", "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.NotContains(t, err.Error(), "secret")
}

func TestGet_RetryLogRedactsKey(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	defer slog.SetDefault(prev)

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := svr.URL
	svr.Close()

	client := New(nil, tracker.New(), testOptions())
	_, err := client.Get(context.Background(), addr+"/geocode?address=Temple&key=secret", "")
	require.Error(t, err)

	logged := buf.String()
	assert.Contains(t, logged, "Request failed, retrying")
	assert.Contains(t, logged, "REDACTED")
	assert.Contains(t, logged, "failures=")
	assert.NotContains(t, logged, "secret")
}

func TestTransportCause(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := &url.Error{Op: "Get", URL: "https://x.example/?key=secret", Err: inner}
	assert.Equal(t, inner, transportCause(wrapped))
	assert.Equal(t, inner, transportCause(inner))
}

func TestPost_BodyResentOnRetry(t *testing.T) {
	var calls int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"q":1}`, string(b))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	client := New(nil, tracker.New(), testOptions())
	body, err := client.Post(context.Background(), svr.URL, []byte(`{"q":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestGet_ContextCanceled(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer svr.Close()

	client := New(nil, tracker.New(), testOptions())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Get(ctx, svr.URL, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"serpapi.com", "serpapi"},
		{"news.google.com", "google-news"},
		{"maps.googleapis.com", "google-maps"},
		{"generativelanguage.googleapis.com", "gemini"},
		{"nominatim.openstreetmap.org", "nominatim"},
		{"api.perplexity.ai", "perplexity"},
		{"api.openai.com", "openai"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"other.com", "other.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeProvider(tt.host), tt.host)
	}
}
