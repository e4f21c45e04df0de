package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"newspipe/pkg/db"
)

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "news_pipeline.db")

	d, err := db.Init(path)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer d.Close()

	for _, table := range []string{"raw_articles", "mentions", "classified_mentions", "project_cards", "projects", "project_status", "pipeline_runs", "cache"} {
		var n int
		if err := d.QueryRow("SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}

	var n int
	if err := d.QueryRow("SELECT count(*) FROM pragma_table_info('projects') WHERE name='geocode_provider'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Error("geocode_provider column missing")
	}
}

func TestInit_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news_pipeline.db")
	d, err := db.Init(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exec("INSERT INTO cache (key, value) VALUES ('k', 'v')"); err != nil {
		t.Fatal(err)
	}
	d.Close()

	d, err = db.Init(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer d.Close()
	var v string
	if err := d.QueryRow("SELECT value FROM cache WHERE key='k'").Scan(&v); err != nil || v != "v" {
		t.Errorf("data lost across reopen: %q %v", v, err)
	}
}

func TestPruneCache(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "prune.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	old := time.Now().Add(-40 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "old", "x", old); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exec("INSERT INTO cache (key, value) VALUES (?, ?)", "new", "y"); err != nil {
		t.Fatal(err)
	}

	n, err := d.PruneCache(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("PruneCache failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned row, got %d", n)
	}
}
