package tracker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()
	provider := "nominatim"

	if len(tr.Snapshot()) != 0 {
		t.Error("expected empty stats")
	}

	tr.TrackCacheHit(provider)
	tr.TrackCacheMiss(provider)
	tr.TrackAPISuccess(provider)
	tr.TrackAPIFailure(provider)
	tr.TrackAPIZero(provider)

	pStats, ok := tr.Snapshot()[provider]
	if !ok {
		t.Fatalf("expected stats for provider %s", provider)
	}
	if pStats.CacheHits != 1 || pStats.CacheMisses != 1 || pStats.APISuccess != 1 || pStats.APIFailures != 1 || pStats.APIZeroResult != 1 {
		t.Errorf("unexpected stats: %+v", pStats)
	}
}

func TestTrackStage(t *testing.T) {
	tr := New()
	tr.TrackStage("geocode", 3, 1, 2, false)
	tr.TrackStage("geocode", 1, 0, 0, true)

	s := tr.StageSnapshot()["geocode"]
	if s.Processed != 4 || s.Skipped != 1 || s.Failed != 2 || s.Timeouts != 1 {
		t.Errorf("unexpected stage stats: %+v", s)
	}
}

func TestWriteTextfile(t *testing.T) {
	tr := New()
	tr.TrackAPISuccess("serpapi")
	tr.TrackStage("ingest", 12, 0, 1, false)

	path := filepath.Join(t.TempDir(), "newspipe.prom")
	if err := tr.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{
		`newspipe_provider_requests{outcome="success",provider="serpapi"} 1`,
		`newspipe_stage_records{outcome="processed",stage="ingest"} 12`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("textfile missing %q:\n%s", want, s)
		}
	}
}

func TestSummary(t *testing.T) {
	tr := New()
	tr.TrackAPISuccess("rss")
	tr.TrackAPIFailure("google-maps")
	lines := tr.Summary()
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "google-maps:") {
		t.Errorf("unexpected summary: %v", lines)
	}
}
