package classify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newspipe/pkg/db"
	"newspipe/pkg/deadline"
	"newspipe/pkg/model"
	"newspipe/pkg/store"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(nil)
	require.NoError(t, err)
	return c
}

func TestClassify(t *testing.T) {
	c := newClassifier(t)

	tests := []struct {
		name       string
		text       string
		label      model.Label
		confidence model.Confidence
		flags      []string
	}{
		{
			name:       "groundbreaking with permit",
			text:       "Google breaks ground on 500 MW data center campus in Midlothian, Texas\nCity permit approved last month.",
			label:      model.LabelAnnouncement,
			confidence: model.ConfidenceHigh,
		},
		{
			name:       "two categories is medium",
			text:       "Meta eyes data center in El Paso",
			label:      model.LabelAnnouncement,
			confidence: model.ConfidenceMedium,
		},
		{
			name:       "market news",
			text:       "Digital Realty share price climbs after quarterly results",
			label:      model.LabelNoise,
			confidence: model.ConfidenceHigh,
		},
		{
			name:       "noise with data center keyword",
			text:       "Data center REIT posts record earnings",
			label:      model.LabelNoise,
			confidence: model.ConfidenceMedium,
		},
		{
			name:       "noise overlapping an announcement",
			text:       "Shares fell after Oracle announces 1 GW data center in Abilene, Texas",
			label:      model.LabelNoise,
			confidence: model.ConfidenceLow,
			flags:      []string{FlagNoiseOverlap},
		},
		{
			name:       "single supporting category",
			text:       "Why data centers are straining the Texas grid",
			label:      model.LabelContext,
			confidence: model.ConfidenceLow,
		},
		{
			name:       "no data center keyword",
			text:       "Microsoft opens new office in Dallas, Texas with 300 jobs",
			label:      model.LabelContext,
			confidence: model.ConfidenceLow,
		},
		{
			name:       "empty",
			text:       "",
			label:      model.LabelContext,
			confidence: model.ConfidenceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			assert.Equal(t, tt.label, got.Label)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, tt.flags, got.Flags)
		})
	}
}

func TestClassify_Signals(t *testing.T) {
	c := newClassifier(t)
	text := "Google breaks ground on 500 MW data center campus in Midlothian, Texas"

	got := c.Classify(text)
	assert.Contains(t, got.Signals, "company:google")
	assert.Contains(t, got.Signals, "capacity:500 mw")
	assert.Contains(t, got.Signals, "location:midlothian")
	assert.Contains(t, got.Signals, "construction:breaks ground")
	assert.Contains(t, got.Signals, "dc:data center")
	assert.IsNonDecreasing(t, got.Signals)

	assert.Equal(t, got, c.Classify(text), "classification must be deterministic")
}

func TestClassify_CapacityPatterns(t *testing.T) {
	c := newClassifier(t)
	tests := []struct {
		text string
		want string
	}{
		{"a 1.2 GW data center", "capacity:1.2 gw"},
		{"a 300-megawatt data center", "capacity:300-megawatt"},
		{"a 250,000 sq ft data center", "capacity:250,000 sq ft"},
		{"a $10 billion data center", "capacity:$10 billion"},
		{"data center on 400 acres", "capacity:400 acres"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Contains(t, c.Classify(tt.text).Signals, tt.want)
		})
	}
}

func TestClassify_WholeWords(t *testing.T) {
	c := newClassifier(t)
	// "metadata" must not match "meta"; "texan" must not match "texas".
	got := c.Classify("Texan metadata center")
	assert.Empty(t, got.Signals)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("noise:\n  - crossword\n"), 0o644))

	r, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, RulesVersion+"+custom", r.Version)
	assert.Equal(t, []string{"crossword"}, r.Noise)
	assert.Equal(t, DefaultRules().DataCenter, r.DataCenter)

	c, err := New(r)
	require.NoError(t, err)
	assert.Equal(t, model.LabelNoise, c.Classify("Data center crossword").Label)
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("noise: [unterminated"), 0o644))
	_, err = LoadRules(path)
	assert.Error(t, err)
}

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return store.NewSQLiteStore(d)
}

func saveMention(t *testing.T, st *store.SQLiteStore, id, title string) {
	t.Helper()
	require.NoError(t, st.SaveMention(context.Background(), &model.Mention{
		ID:          id,
		URL:         "https://news.example/" + id,
		Title:       title,
		PublishedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}, nil))
}

func TestRun(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	c := newClassifier(t)

	saveMention(t, st, "m1", "Google breaks ground on 500 MW data center in Midlothian, Texas")
	saveMention(t, st, "m2", "Data center stocks: price target raised")

	res, err := c.Run(ctx, st, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	got, err := st.GetClassification(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.LabelAnnouncement, got.Label)
	assert.Equal(t, RulesVersion, got.RulesVersion)

	// Second run has nothing left to do.
	res, err = c.Run(ctx, st, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
}

func TestRun_DryRunAndDeadline(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	c := newClassifier(t)
	saveMention(t, st, "m1", "Google breaks ground on 500 MW data center in Midlothian, Texas")

	res, err := c.Run(ctx, st, nil, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	got, err := st.GetClassification(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, got, "dry run must not write")

	res, err = c.Run(ctx, st, deadline.At(time.Now().Add(-time.Second), nil), Options{})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 0, res.Processed)
}
