package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newspipe/pkg/model"
)

// --- Cards ---

var cardColumns = []string{
	"card_id", "mention_id", "company", "project_name", "location_text", "size_mw", "size_sqft",
	"investment_usd", "announced_date", "status_hint", "score", "confidence", "method", "source_url", "created_at",
}

func (s *SQLiteStore) SaveCard(ctx context.Context, c *model.ProjectCard) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := exec(ctx, s.db, sq.Insert("project_cards").
		Columns(cardColumns...).
		Values(c.ID, c.MentionID, c.Company, c.ProjectName, c.LocationText, c.SizeMW, c.SizeSqft,
			c.InvestmentUSD, c.AnnouncedDate, c.StatusHint, c.Score, string(c.Confidence), c.Method,
			c.SourceURL, formatTime(c.CreatedAt)).
		Suffix("ON CONFLICT(mention_id) DO NOTHING"))
	return err
}

func (s *SQLiteStore) ListUnresolvedCards(ctx context.Context, limit int) ([]model.ProjectCard, error) {
	b := sq.Select(cardColumns...).From("project_cards").
		Where(sq.Eq{"project_id": nil}).
		OrderBy("card_id")
	rows, err := query(ctx, s.db, withLimit(b, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProjectCard
	for rows.Next() {
		var c model.ProjectCard
		var company, name, loc, date, hint, conf, method, src, created sql.NullString
		var mw, sqft, usd, score sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.MentionID, &company, &name, &loc, &mw, &sqft, &usd, &date,
			&hint, &score, &conf, &method, &src, &created); err != nil {
			return nil, err
		}
		c.Company = company.String
		c.ProjectName = name.String
		c.LocationText = loc.String
		c.SizeMW = mw.Float64
		c.SizeSqft = sqft.Float64
		c.InvestmentUSD = usd.Float64
		c.AnnouncedDate = date.String
		c.StatusHint = hint.String
		c.Score = score.Float64
		c.Confidence = model.Confidence(conf.String)
		c.Method = method.String
		c.SourceURL = src.String
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Projects ---

var projectColumns = []string{
	"project_id", "name", "company", "location_text", "lat", "lng", "geocode_status",
	"geocode_confidence", "geocode_provider", "size_mw", "size_sqft", "investment_usd",
	"announced_date", "status", "confidence", "mention_ids", "source_urls", "card_ids",
	"created_at", "updated_at",
}

func scanProjects(rows *sql.Rows) ([]model.Project, error) {
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		var p model.Project
		var name, company, loc, gStatus, gConf, gProvider, date, status, conf, mentions, urls, cards, created, updated sql.NullString
		var lat, lng, mw, sqft, usd sql.NullFloat64
		if err := rows.Scan(&p.ID, &name, &company, &loc, &lat, &lng, &gStatus, &gConf, &gProvider,
			&mw, &sqft, &usd, &date, &status, &conf, &mentions, &urls, &cards, &created, &updated); err != nil {
			return nil, err
		}
		p.Name = name.String
		p.Company = company.String
		p.LocationText = loc.String
		p.Lat = floatPtr(lat)
		p.Lng = floatPtr(lng)
		p.GeocodeStatus = gStatus.String
		p.GeocodePrecision = gConf.String
		p.GeocodeProvider = gProvider.String
		p.SizeMW = mw.Float64
		p.SizeSqft = sqft.Float64
		p.InvestmentUSD = usd.Float64
		p.AnnouncedDate = date.String
		p.Status = status.String
		p.Confidence = model.Confidence(conf.String)
		p.MentionIDs = decodeList(mentions)
		p.SourceURLs = decodeList(urls)
		p.CardIDs = decodeList(cards)
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	rows, err := query(ctx, s.db, sq.Select(projectColumns...).From("projects").Where(sq.Eq{"project_id": id}))
	if err != nil {
		return nil, err
	}
	list, err := scanProjects(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, f ProjectFilter) ([]model.Project, error) {
	b := sq.Select(projectColumns...).From("projects").OrderBy("project_id")
	if f.GeocodeStatus != "" {
		b = b.Where(sq.Eq{"geocode_status": f.GeocodeStatus})
	}
	if f.WithCoords {
		b = b.Where(sq.NotEq{"lat": nil, "lng": nil})
	}
	if f.Company != "" {
		b = b.Where(sq.Eq{"company": f.Company})
	}
	rows, err := query(ctx, s.db, withLimit(b, f.Limit))
	if err != nil {
		return nil, err
	}
	return scanProjects(rows)
}

func upsertProject(ctx context.Context, q queryer, p *model.Project) error {
	_, err := exec(ctx, q, sq.Insert("projects").Options("OR REPLACE").
		Columns(projectColumns...).
		Values(p.ID, p.Name, p.Company, p.LocationText, nullFloat(p.Lat), nullFloat(p.Lng),
			p.GeocodeStatus, p.GeocodePrecision, p.GeocodeProvider, p.SizeMW, p.SizeSqft,
			p.InvestmentUSD, p.AnnouncedDate, p.Status, string(p.Confidence),
			encodeList(p.MentionIDs), encodeList(p.SourceURLs), encodeList(p.CardIDs),
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt)))
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	if len(p.CardIDs) > 0 {
		_, err = exec(ctx, q, sq.Update("project_cards").
			Set("project_id", p.ID).
			Where(sq.Eq{"card_id": p.CardIDs}))
		if err != nil {
			return fmt.Errorf("attach cards to %s: %w", p.ID, err)
		}
	}
	return nil
}

func stampProject(p *model.Project) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.GeocodeStatus == "" {
		p.GeocodeStatus = model.StatusPending
	}
}

func (s *SQLiteStore) SaveProject(ctx context.Context, p *model.Project) error {
	stampProject(p)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertProject(ctx, tx, p)
	})
}

func (s *SQLiteStore) MergeProjects(ctx context.Context, survivor *model.Project, absorbed []string) error {
	stampProject(survivor)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var gone []string
		for _, id := range absorbed {
			if id != survivor.ID {
				gone = append(gone, id)
			}
		}
		if len(gone) > 0 {
			if _, err := exec(ctx, tx, sq.Delete("projects").Where(sq.Eq{"project_id": gone})); err != nil {
				return fmt.Errorf("delete absorbed projects: %w", err)
			}
			if _, err := exec(ctx, tx, sq.Delete("project_status").Where(sq.Eq{"project_id": gone})); err != nil {
				return fmt.Errorf("delete absorbed status: %w", err)
			}
		}
		return upsertProject(ctx, tx, survivor)
	})
}

// --- Status ---

func (s *SQLiteStore) SetStatus(ctx context.Context, rec *model.StatusRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := exec(ctx, s.db, sq.Insert("project_status").Options("OR REPLACE").
		Columns("project_id", "stage", "status", "detail", "updated_at").
		Values(rec.ProjectID, rec.Stage, rec.Status, rec.Detail, formatTime(rec.UpdatedAt)))
	return err
}

func (s *SQLiteStore) GetStatus(ctx context.Context, projectID, stage string) (*model.StatusRecord, error) {
	var rec model.StatusRecord
	var detail, updated sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT project_id, stage, status, detail, updated_at FROM project_status WHERE project_id = ? AND stage = ?",
		projectID, stage).Scan(&rec.ProjectID, &rec.Stage, &rec.Status, &detail, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Detail = detail.String
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}
