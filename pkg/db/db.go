package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Single connection: stages write sequentially and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// PruneCache removes cache entries older than the specified duration.
func (d *DB) PruneCache(olderThan time.Duration) (int64, error) {
	// Format matches SQLite DEFAULT CURRENT_TIMESTAMP (YYYY-MM-DD HH:MM:SS)
	deadline := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	res, err := d.Exec("DELETE FROM cache WHERE created_at < ?", deadline)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneRuns removes pipeline run records that started before now minus olderThan.
func (d *DB) PruneRuns(olderThan time.Duration) (int64, error) {
	// started_at is stored as RFC3339 UTC, which sorts lexically.
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339)
	res, err := d.Exec("DELETE FROM pipeline_runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_articles (
		article_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		canonical_url TEXT NOT NULL,
		title TEXT,
		publisher TEXT,
		published_at TEXT,
		query_matched TEXT,
		snippet TEXT,
		raw_text TEXT,
		source TEXT,
		fetched_at TEXT,
		mention_id TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_raw_articles_mention ON raw_articles(mention_id);`,
	`CREATE TABLE IF NOT EXISTS mentions (
		mention_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		canonical_url TEXT NOT NULL UNIQUE,
		title TEXT,
		publisher TEXT,
		published_at TEXT,
		query_matched TEXT,
		snippet TEXT,
		raw_text TEXT,
		source_urls TEXT,
		raw_article_ids TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS classified_mentions (
		mention_id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		confidence TEXT,
		signals TEXT,
		flags TEXT,
		rules_version TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS project_cards (
		card_id TEXT PRIMARY KEY,
		mention_id TEXT NOT NULL UNIQUE,
		company TEXT,
		project_name TEXT,
		location_text TEXT,
		size_mw REAL,
		size_sqft REAL,
		investment_usd REAL,
		announced_date TEXT,
		status_hint TEXT,
		score REAL,
		confidence TEXT,
		method TEXT,
		source_url TEXT,
		project_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS projects (
		project_id TEXT PRIMARY KEY,
		name TEXT,
		company TEXT,
		location_text TEXT,
		lat REAL,
		lng REAL,
		geocode_status TEXT DEFAULT 'pending',
		geocode_confidence TEXT,
		size_mw REAL,
		size_sqft REAL,
		investment_usd REAL,
		announced_date TEXT,
		status TEXT,
		confidence TEXT,
		mention_ids TEXT,
		source_urls TEXT,
		card_ids TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS project_status (
		project_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (project_id, stage)
	);`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT,
		processed INTEGER,
		skipped INTEGER,
		failed INTEGER,
		timed_out BOOLEAN DEFAULT 0,
		dry_run BOOLEAN DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
}

// columnMigrations adds columns introduced after the first schema version.
var columnMigrations = []struct {
	table, column, ddl string
}{
	{"projects", "geocode_provider", "ALTER TABLE projects ADD COLUMN geocode_provider TEXT"},
	{"pipeline_runs", "dry_run", "ALTER TABLE pipeline_runs ADD COLUMN dry_run BOOLEAN DEFAULT 0"},
}

func (d *DB) migrate() error {
	for _, q := range schema {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	for _, m := range columnMigrations {
		var colCount int
		err := d.QueryRow("SELECT count(*) FROM pragma_table_info(?) WHERE name=?", m.table, m.column).Scan(&colCount)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", m.table, err)
		}
		if colCount == 0 {
			if _, err := d.Exec(m.ddl); err != nil {
				return fmt.Errorf("failed to add %s.%s column: %w", m.table, m.column, err)
			}
		}
	}

	return nil
}
