package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newspipe/pkg/canon"
	"newspipe/pkg/db"
	"newspipe/pkg/model"
	"newspipe/pkg/store"
)

var day1 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func article(url, title, publisher string, published time.Time) model.RawArticle {
	return model.RawArticle{
		ID:           canon.ID(url),
		URL:          url,
		CanonicalURL: canon.Canonicalize(url),
		Title:        title,
		Publisher:    publisher,
		PublishedAt:  published,
	}
}

func TestDedupe_Tiers(t *testing.T) {
	tests := []struct {
		name     string
		articles []model.RawArticle
		want     int
	}{
		{
			name: "tracking params collapse",
			articles: []model.RawArticle{
				article("https://a.example/story?utm_source=x", "Google expands", "A", day1),
				article("https://www.a.example/story/", "Google expands campus", "B", day1.Add(time.Hour)),
			},
			want: 1,
		},
		{
			name: "same publisher and title",
			articles: []model.RawArticle{
				article("https://a.example/1", "Meta picks El Paso - KTSM", "KTSM", day1),
				article("https://a.example/amp/1", "Meta picks El Paso!", "ktsm", day1.AddDate(0, 0, 2)),
			},
			want: 1,
		},
		{
			name: "fuzzy title same day",
			articles: []model.RawArticle{
				article("https://a.example/1", "Google to build 1 billion data center in Midlothian", "A", day1),
				article("https://b.example/2", "Google to build 1B data center in Midlothian Texas", "B", day1.Add(3*time.Hour)),
			},
			want: 1,
		},
		{
			name: "fuzzy title but no shared publisher or day",
			articles: []model.RawArticle{
				article("https://a.example/1", "Google to build 1 billion data center in Midlothian", "A", day1),
				article("https://b.example/2", "Google to build 1B data center in Midlothian Texas", "B", day1.AddDate(0, 0, 5)),
			},
			want: 2,
		},
		{
			name: "different stories",
			articles: []model.RawArticle{
				article("https://a.example/1", "Google to build data center in Midlothian", "A", day1),
				article("https://a.example/2", "Oklahoma approves chip plant incentives", "A", day1),
			},
			want: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.articles, DefaultThreshold)
			assert.Len(t, got, tt.want)

			// No URL is ever lost.
			var urls int
			for _, m := range got {
				urls += len(m.SourceURLs)
			}
			assert.Equal(t, len(tt.articles), urls)
		})
	}
}

func TestDedupe_EarliestSurvives(t *testing.T) {
	got := Dedupe([]model.RawArticle{
		article("https://first.example/x", "Stargate adds two buildings in Abilene", "Reuters", day1),
		article("https://second.example/y", "Stargate adds two buildings in Abilene", "Reuters", day1.AddDate(0, 0, 1)),
	}, DefaultThreshold)

	require.Len(t, got, 1)
	assert.Equal(t, canon.ID("https://first.example/x"), got[0].ID)
	assert.Equal(t, "https://first.example/x", got[0].URL)
	assert.Equal(t, []string{"https://first.example/x", "https://second.example/y"}, got[0].SourceURLs)
	assert.Len(t, got[0].RawArticleIDs, 2)
}

func TestIndex_FindTier(t *testing.T) {
	idx := NewIndex(0)
	m, match := idx.Assign(&model.RawArticle{URL: "https://a.example/1", Title: "Title one here", Publisher: "A", PublishedAt: day1})
	assert.Nil(t, match)

	tests := []struct {
		name string
		a    model.RawArticle
		tier int
	}{
		{"url", model.RawArticle{URL: "https://a.example/1?fbclid=z"}, 1},
		{"publisher title", model.RawArticle{URL: "https://a.example/other", Title: "Title one here", Publisher: "a"}, 2},
		{"fuzzy by day", model.RawArticle{URL: "https://z.example/9", Title: "Title one here!!", Publisher: "Z", PublishedAt: day1}, 3},
		{"none", model.RawArticle{URL: "https://z.example/8", Title: "Something else entirely", Publisher: "Z", PublishedAt: day1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.Find(&tt.a)
			if tt.tier == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, m.ID, got.MentionID)
			assert.Equal(t, tt.tier, got.Tier)
		})
	}
}

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return store.NewSQLiteStore(d)
}

func TestDeduper_Run(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	_, err := st.SaveRawArticles(ctx, []model.RawArticle{
		article("https://a.example/1", "Google to build 1 billion data center in Midlothian", "A", day1),
		article("https://b.example/2", "Google to build 1B data center in Midlothian Texas", "B", day1.Add(2*time.Hour)),
		article("https://c.example/3", "Undated story about power lines", "C", time.Time{}),
	})
	require.NoError(t, err)

	d := New(st)
	res, err := d.Run(ctx, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)

	mentions, err := st.ListMentions(ctx)
	require.NoError(t, err)
	require.Len(t, mentions, 2)
	assert.Equal(t, canon.ID("https://a.example/1"), mentions[0].ID)
	assert.Len(t, mentions[0].SourceURLs, 2)
	assert.True(t, mentions[1].PublishedAt.IsZero(), "undated mention sorts last")

	// A later article for an existing mention is merged into it.
	_, err = st.SaveRawArticles(ctx, []model.RawArticle{
		article("https://a.example/1?utm_campaign=feed", "x", "", day1),
		article("https://d.example/4", "Google to build $1 billion data center in Midlothian", "D", day1.Add(5*time.Hour)),
	})
	require.NoError(t, err)
	res, err = d.Run(ctx, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed, "tracking-param URL already has the same article id")

	m, err := st.GetMention(ctx, canon.ID("https://a.example/1"))
	require.NoError(t, err)
	assert.Len(t, m.SourceURLs, 3)

	// Nothing left: re-running is a no-op.
	res, err = d.Run(ctx, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
}
