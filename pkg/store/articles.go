package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"newspipe/pkg/model"
)

var rawColumns = []string{
	"article_id", "url", "canonical_url", "title", "publisher", "published_at",
	"query_matched", "snippet", "raw_text", "source", "fetched_at",
}

func (s *SQLiteStore) SaveRawArticles(ctx context.Context, articles []model.RawArticle) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range articles {
			a := &articles[i]
			res, err := exec(ctx, tx, sq.Insert("raw_articles").Options("OR IGNORE").
				Columns(rawColumns...).
				Values(a.ID, a.URL, a.CanonicalURL, a.Title, a.Publisher, formatTime(a.PublishedAt),
					a.QueryMatched, a.Snippet, a.RawText, a.Source, formatTime(a.FetchedAt)))
			if err != nil {
				return fmt.Errorf("insert raw article %s: %w", a.ID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLiteStore) HasRawArticle(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM raw_articles WHERE article_id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) ListUnassignedRawArticles(ctx context.Context, limit int) ([]model.RawArticle, error) {
	// Undated rows sort last, then by url for a stable order.
	b := sq.Select(rawColumns...).From("raw_articles").
		Where(sq.Eq{"mention_id": nil}).
		OrderBy("(published_at IS NULL OR published_at = '')", "published_at", "url")
	rows, err := query(ctx, s.db, withLimit(b, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RawArticle
	for rows.Next() {
		var a model.RawArticle
		var title, publisher, published, queryMatched, snippet, rawText, source, fetched sql.NullString
		if err := rows.Scan(&a.ID, &a.URL, &a.CanonicalURL, &title, &publisher, &published,
			&queryMatched, &snippet, &rawText, &source, &fetched); err != nil {
			return nil, err
		}
		a.Title = title.String
		a.Publisher = publisher.String
		a.PublishedAt = parseTime(published)
		a.QueryMatched = queryMatched.String
		a.Snippet = snippet.String
		a.RawText = rawText.String
		a.Source = source.String
		a.FetchedAt = parseTime(fetched)
		out = append(out, a)
	}
	return out, rows.Err()
}
