package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"newspipe/pkg/db"
)

func TestMaintenance(t *testing.T) {
	// Setup DB
	dbPath := filepath.Join(t.TempDir(), "maint_test.db")
	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	// Old cache entry (100 days), fresh entry (1 day)
	oldStamp := time.Now().Add(-100 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "old-key", "old-val", oldStamp); err != nil {
		t.Fatal(err)
	}
	newStamp := time.Now().Add(-24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "new-key", "new-val", newStamp); err != nil {
		t.Fatal(err)
	}

	// Run history
	oldRun := time.Now().Add(-400 * 24 * time.Hour).UTC().Format(time.RFC3339)
	newRun := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	if _, err := d.Exec("INSERT INTO pipeline_runs (run_id, stage, started_at) VALUES ('r-old', 'ingest', ?), ('r-new', 'ingest', ?)", oldRun, newRun); err != nil {
		t.Fatal(err)
	}

	rep, err := Run(context.Background(), d, Options{CacheTTL: 90 * 24 * time.Hour, RunRetention: 180 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.CacheEntries != 1 || rep.Runs != 1 {
		t.Errorf("unexpected report %+v", rep)
	}

	var count int
	if err := d.QueryRow("SELECT count(*) FROM cache WHERE key = ?", "old-key").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("Old cache entry was not pruned")
	}
	if err := d.QueryRow("SELECT count(*) FROM cache WHERE key = ?", "new-key").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("New cache entry was incorrectly pruned")
	}
	if err := d.QueryRow("SELECT count(*) FROM pipeline_runs").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 remaining run, got %d", count)
	}
}

func TestMaintenance_Disabled(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	oldStamp := time.Now().Add(-1000 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES ('k', 'v', ?)", oldStamp); err != nil {
		t.Fatal(err)
	}
	rep, err := Run(context.Background(), d, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.CacheEntries != 0 {
		t.Errorf("nothing should be pruned with zero TTL, got %+v", rep)
	}
}
