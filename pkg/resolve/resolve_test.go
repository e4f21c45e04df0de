package resolve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newspipe/pkg/db"
	"newspipe/pkg/model"
	"newspipe/pkg/store"
)

func TestKeys(t *testing.T) {
	companies := []struct{ in, want string }{
		{"Google", "google"},
		{"Google LLC", "google"},
		{"CyrusOne Data Centers, Inc.", "cyrusone"},
		{"Unknown", ""},
		{"", ""},
	}
	for _, tt := range companies {
		assert.Equal(t, tt.want, CompanyKey(tt.in), tt.in)
	}

	locations := []struct{ in, want string }{
		{"Midlothian, TX", "midlothian"},
		{"near Midlothian, Texas", "midlothian"},
		{"Ellis County, TX", "ellis county"},
		{"Texas", ""},
		{"Unknown", ""},
	}
	for _, tt := range locations {
		assert.Equal(t, tt.want, LocationKey(tt.in), tt.in)
	}

	assert.Equal(t, "google|midlothian", Key("Google LLC", "Midlothian, Texas"))
	assert.Empty(t, Key("Google", ""))
}

func card(id, company, location string) model.ProjectCard {
	return model.ProjectCard{
		ID:           "card-" + id,
		MentionID:    id,
		Company:      company,
		LocationText: location,
		SourceURL:    "https://news.example/" + id,
		Confidence:   model.ConfidenceMedium,
	}
}

func TestMergeCard(t *testing.T) {
	a := card("m1", "Google", "Midlothian, TX")
	a.SizeMW = 300
	a.AnnouncedDate = "2025-03-10"
	a.StatusHint = "proposed"

	b := card("m2", "Google LLC", "Midlothian, Texas")
	b.SizeMW = 500
	b.ProjectName = "Project Mustang"
	b.AnnouncedDate = "2025-01-05"
	b.StatusHint = "under_construction"
	b.Confidence = model.ConfidenceHigh

	p := FromCard(&a)
	assert.True(t, MergeCard(&p, &b))

	assert.Equal(t, "Project Mustang", p.Name)
	assert.Equal(t, "Google LLC", p.Company)
	assert.Equal(t, "Midlothian, Texas", p.LocationText)
	assert.Equal(t, 500.0, p.SizeMW)
	assert.Equal(t, "2025-01-05", p.AnnouncedDate)
	assert.Equal(t, "under_construction", p.Status)
	assert.Equal(t, model.ConfidenceHigh, p.Confidence)
	assert.Equal(t, []string{"m1", "m2"}, p.MentionIDs)
	assert.Equal(t, []string{"https://news.example/m1", "https://news.example/m2"}, p.SourceURLs)
	assert.Equal(t, []string{"card-m1", "card-m2"}, p.CardIDs)

	before := p
	assert.False(t, MergeCard(&p, &b), "card already attached")
	assert.Equal(t, before, p)
}

func TestMergeProject_Idempotent(t *testing.T) {
	a := card("m1", "Google", "Midlothian, TX")
	p := FromCard(&a)
	lat, lng := 32.48, -97.0
	p.Lat, p.Lng = &lat, &lng

	same := p
	MergeProject(&p, &same)
	assert.Equal(t, same, p)

	other := FromCard(&a)
	MergeProject(&other, &p)
	assert.Equal(t, p.Lat, other.Lat, "coordinates are adopted when missing")
}

func TestFromCard_IDs(t *testing.T) {
	a := card("m1", "Google", "Midlothian, TX")
	b := card("m2", "google llc", "near Midlothian, Texas")
	assert.Equal(t, FromCard(&a).ID, FromCard(&b).ID)

	x := card("m3", "", "Midlothian, TX")
	y := card("m4", "", "Midlothian, TX")
	assert.NotEqual(t, FromCard(&x).ID, FromCard(&y).ID, "cards without a company never collapse")
}

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return store.NewSQLiteStore(d)
}

func seedCards(t *testing.T, st *store.SQLiteStore, cards ...model.ProjectCard) {
	t.Helper()
	ctx := context.Background()
	for i := range cards {
		c := cards[i]
		require.NoError(t, st.SaveMention(ctx, &model.Mention{ID: c.MentionID, URL: c.SourceURL}, nil))
		require.NoError(t, st.SaveCard(ctx, &c))
	}
}

func TestRun(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedCards(t, st,
		card("m1", "Google", "Midlothian, TX"),
		card("m2", "Google LLC", "Midlothian, Texas"),
		card("m3", "Meta", "El Paso, TX"),
	)

	r := New(st)
	res, err := r.Run(ctx, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)

	projects, err := st.ListProjects(ctx, store.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, projects, 2)

	// A new card for an existing project merges into it.
	seedCards(t, st, card("m4", "Google", "Midlothian, TX"))
	_, err = r.Run(ctx, nil, Options{})
	require.NoError(t, err)

	projects, err = st.ListProjects(ctx, store.ProjectFilter{Company: "Google LLC"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, []string{"m1", "m2", "m4"}, projects[0].MentionIDs)
	snapshot := projects[0]

	// Nothing left: a second pass changes nothing.
	res, err = r.Run(ctx, nil, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	again, err := st.GetProject(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot, *again)
}

func TestRun_DryRun(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedCards(t, st, card("m1", "Google", "Midlothian, TX"))

	res, err := New(st).Run(ctx, nil, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	projects, err := st.ListProjects(ctx, store.ProjectFilter{})
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestMergeNearby(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	place := func(id, company, location string, lat, lng float64) {
		c := card(id, company, location)
		seedCards(t, st, c)
		p := FromCard(&c)
		p.Lat, p.Lng = &lat, &lng
		p.GeocodeStatus = model.StatusOK
		require.NoError(t, st.SaveProject(ctx, &p))
	}
	place("m1", "Google", "Midlothian, TX", 32.4824, -96.9944)
	place("m2", "Google", "Ellis County, TX", 32.4830, -96.9950)
	place("m3", "Meta", "Midlothian, TX", 32.4824, -96.9944)

	res, err := New(st).MergeNearby(ctx, nil, Options{H3Resolution: 6})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	projects, err := st.ListProjects(ctx, store.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, projects, 2)

	var google *model.Project
	for i := range projects {
		if projects[i].Company == "Google" {
			google = &projects[i]
		}
	}
	require.NotNil(t, google)
	assert.Equal(t, []string{"m1", "m2"}, google.MentionIDs)
	assert.Equal(t, []string{"card-m1", "card-m2"}, google.CardIDs)
}
