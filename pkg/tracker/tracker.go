package tracker

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker tracks usage statistics per provider and per pipeline stage.
type Tracker struct {
	mu     sync.RWMutex
	stats  map[string]*ProviderStats
	stages map[string]*StageStats
}

// ProviderStats holds metrics for a specific provider.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits     int64
	CacheMisses   int64
	APISuccess    int64
	APIFailures   int64
	APIZeroResult int64
}

// StageStats holds per-stage record counters.
// Fields are accessed atomically.
type StageStats struct {
	Processed int64
	Skipped   int64
	Failed    int64
	Timeouts  int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats:  make(map[string]*ProviderStats),
		stages: make(map[string]*StageStats),
	}
}

func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

func (t *Tracker) getStage(stage string) *StageStats {
	t.mu.RLock()
	s, ok := t.stages[stage]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.stages[stage]; ok {
		return s
	}
	s = &StageStats{}
	t.stages[stage] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheMisses, 1)
}

func (t *Tracker) TrackAPISuccess(provider string) {
	atomic.AddInt64(&t.getStats(provider).APISuccess, 1)
}

func (t *Tracker) TrackAPIFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIFailures, 1)
}

// TrackAPIZero counts successful calls that returned no usable result.
func (t *Tracker) TrackAPIZero(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIZeroResult, 1)
}

// TrackStage adds a finished stage's counters.
func (t *Tracker) TrackStage(stage string, processed, skipped, failed int, timedOut bool) {
	s := t.getStage(stage)
	atomic.AddInt64(&s.Processed, int64(processed))
	atomic.AddInt64(&s.Skipped, int64(skipped))
	atomic.AddInt64(&s.Failed, int64(failed))
	if timedOut {
		atomic.AddInt64(&s.Timeouts, 1)
	}
}

// Snapshot returns a copy of the current provider stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats)
	for k, v := range t.stats {
		result[k] = ProviderStats{
			CacheHits:     atomic.LoadInt64(&v.CacheHits),
			CacheMisses:   atomic.LoadInt64(&v.CacheMisses),
			APISuccess:    atomic.LoadInt64(&v.APISuccess),
			APIFailures:   atomic.LoadInt64(&v.APIFailures),
			APIZeroResult: atomic.LoadInt64(&v.APIZeroResult),
		}
	}
	return result
}

// StageSnapshot returns a copy of the current stage stats.
func (t *Tracker) StageSnapshot() map[string]StageStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]StageStats)
	for k, v := range t.stages {
		result[k] = StageStats{
			Processed: atomic.LoadInt64(&v.Processed),
			Skipped:   atomic.LoadInt64(&v.Skipped),
			Failed:    atomic.LoadInt64(&v.Failed),
			Timeouts:  atomic.LoadInt64(&v.Timeouts),
		}
	}
	return result
}

// Registry builds a prometheus registry holding the current counter values.
func (t *Tracker) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	providerCalls := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "newspipe",
		Name:      "provider_requests",
		Help:      "Provider requests by outcome during the last run",
	}, []string{"provider", "outcome"})
	stageRecords := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "newspipe",
		Name:      "stage_records",
		Help:      "Stage records by outcome during the last run",
	}, []string{"stage", "outcome"})
	reg.MustRegister(providerCalls, stageRecords)

	for p, s := range t.Snapshot() {
		providerCalls.WithLabelValues(p, "cache_hit").Set(float64(s.CacheHits))
		providerCalls.WithLabelValues(p, "cache_miss").Set(float64(s.CacheMisses))
		providerCalls.WithLabelValues(p, "success").Set(float64(s.APISuccess))
		providerCalls.WithLabelValues(p, "failure").Set(float64(s.APIFailures))
		providerCalls.WithLabelValues(p, "zero_result").Set(float64(s.APIZeroResult))
	}
	for st, s := range t.StageSnapshot() {
		stageRecords.WithLabelValues(st, "processed").Set(float64(s.Processed))
		stageRecords.WithLabelValues(st, "skipped").Set(float64(s.Skipped))
		stageRecords.WithLabelValues(st, "failed").Set(float64(s.Failed))
		stageRecords.WithLabelValues(st, "timed_out").Set(float64(s.Timeouts))
	}
	return reg
}

// WriteTextfile writes the counters in the node_exporter textfile format.
func (t *Tracker) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, t.Registry()); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Summary renders provider counters as sorted "provider: ok=.. fail=.. hit=.." lines.
func (t *Tracker) Summary() []string {
	snap := t.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, n := range names {
		s := snap[n]
		out = append(out, fmt.Sprintf("%s: ok=%d fail=%d zero=%d hit=%d miss=%d",
			n, s.APISuccess, s.APIFailures, s.APIZeroResult, s.CacheHits, s.CacheMisses))
	}
	return out
}
