package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"newspipe/pkg/cache"
	"newspipe/pkg/logging"
	"newspipe/pkg/tracker"
	"newspipe/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("newspipe/%s (datacenter news pipeline)", version.Version)

// StatusError is returned for non-retryable HTTP error responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d from %s", e.Code, e.URL)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// ErrMaxRetries is returned when every attempt hit a retryable error.
var ErrMaxRetries = errors.New("max retries exceeded")

// Options tunes the client.
type Options struct {
	Timeout   time.Duration
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MinGap    time.Duration // pause between two requests to the same provider
	UserAgent string
}

// DefaultOptions returns conservative settings.
func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		Retries:   3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		MinGap:    100 * time.Millisecond,
	}
}

// Client handles HTTP requests with queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff
	opts       Options

	// Queues per provider (domain)
	queues map[string]chan job
	mu     sync.Mutex
}

type job struct {
	req      *http.Request
	body     []byte
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client.
func New(c cache.Cacher, t *tracker.Tracker, opts Options) *Client {
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if t == nil {
		t = tracker.New()
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		cache:      c,
		tracker:    t,
		backoff:    NewProviderBackoff(opts.BaseDelay, opts.MaxDelay),
		opts:       opts,
		queues:     make(map[string]chan job),
	}
}

// Tracker returns the tracker the client reports to.
func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, u, nil, headers, cacheKey)
}

// Post performs a POST request with queuing.
func (c *Client) Post(ctx context.Context, u string, body []byte, contentType string) ([]byte, error) {
	return c.PostWithHeaders(ctx, u, body, map[string]string{"Content-Type": contentType})
}

// PostWithHeaders performs a POST request with custom headers and queuing.
func (c *Client) PostWithHeaders(ctx context.Context, u string, body []byte, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, u, body, headers, "")
}

// PostWithCache performs a POST request with queuing and caching.
func (c *Client) PostWithCache(ctx context.Context, u string, body []byte, headers map[string]string, cacheKey string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, u, body, headers, cacheKey)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	if cacheKey != "" && c.cache != nil {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		slog.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{req: req, body: body, headers: headers, cacheKey: cacheKey, respChan: respChan})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

func normalizeProvider(host string) string {
	host = strings.ToLower(host)
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	switch {
	case strings.HasSuffix(host, "serpapi.com"):
		return "serpapi"
	case host == "news.google.com":
		return "google-news"
	case host == "maps.googleapis.com":
		return "google-maps"
	case strings.HasSuffix(host, "generativelanguage.googleapis.com"):
		return "gemini"
	case strings.HasSuffix(host, "openstreetmap.org"):
		return "nominatim"
	case strings.HasSuffix(host, "perplexity.ai"):
		return "perplexity"
	case strings.HasSuffix(host, "openai.com"):
		return "openai"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	// Blocks when the queue is full, throttling the caller.
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		ctx := j.req.Context()
		if ctx.Err() != nil {
			slog.Warn("Job dropped from queue (context expired)", "provider", provider, "error", ctx.Err())
			j.respChan <- jobResult{err: ctx.Err()}
			continue
		}

		j.req.Header.Set("User-Agent", c.opts.UserAgent)
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
		}

		start := time.Now()
		body, err := c.executeWithBackoff(provider, j)
		logging.RequestLogger.Info("request",
			"provider", provider, "method", j.req.Method, "url", redact(j.req.URL),
			"duration", time.Since(start).Round(time.Millisecond), "bytes", len(body), "error", err)

		if err == nil {
			c.tracker.TrackAPISuccess(provider)
			if j.cacheKey != "" && c.cache != nil {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "provider", provider, "error", err)
				}
			}
		} else {
			c.tracker.TrackAPIFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}

		if c.opts.MinGap > 0 {
			time.Sleep(c.opts.MinGap)
		}
	}
}

// redact hides credentials passed as query parameters.
func redact(u *url.URL) string {
	q := u.Query()
	for _, k := range []string{"api_key", "key", "apikey"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	cp := *u
	cp.RawQuery = q.Encode()
	return cp.String()
}

// transportCause strips the *url.Error wrapper, whose message repeats the full
// URL including any key parameter.
func transportCause(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(provider string, j job) ([]byte, error) {
	req := j.req
	ctx := req.Context()

	for attempt := 0; attempt < c.opts.Retries; attempt++ {
		if err := c.backoff.Wait(ctx, provider); err != nil {
			return nil, err
		}
		if j.body != nil {
			req.Body = io.NopCloser(bytes.NewReader(j.body))
			req.ContentLength = int64(len(j.body))
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			delay := c.backoff.RecordFailure(provider)
			failures, _ := c.backoff.GetState(provider)
			slog.Warn("Request failed, retrying", "provider", provider, "url", redact(req.URL),
				"attempt", attempt+1, "failures", failures, "delay", delay, "error", transportCause(err))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			delay := c.backoff.RecordFailure(provider)
			failures, _ := c.backoff.GetState(provider)
			slog.Warn("API Backoff", "status", resp.StatusCode, "provider", provider, "attempt", attempt+1, "failures", failures, "delay", delay)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &StatusError{Code: resp.StatusCode, URL: redact(req.URL), Body: truncate(string(body), 300)}
		}

		c.backoff.RecordSuccess(provider)
		return body, nil
	}

	return nil, fmt.Errorf("%s: %w", provider, ErrMaxRetries)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
