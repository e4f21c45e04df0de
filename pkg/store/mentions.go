package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newspipe/pkg/model"
)

var mentionColumns = []string{
	"m.mention_id", "m.url", "m.canonical_url", "m.title", "m.publisher", "m.published_at",
	"m.query_matched", "m.snippet", "m.raw_text", "m.source_urls", "m.raw_article_ids", "m.created_at",
}

func scanMentions(rows *sql.Rows) ([]model.Mention, error) {
	defer rows.Close()
	var out []model.Mention
	for rows.Next() {
		var m model.Mention
		var title, publisher, published, queryMatched, snippet, rawText, urls, rawIDs, created sql.NullString
		if err := rows.Scan(&m.ID, &m.URL, &m.CanonicalURL, &title, &publisher, &published,
			&queryMatched, &snippet, &rawText, &urls, &rawIDs, &created); err != nil {
			return nil, err
		}
		m.Title = title.String
		m.Publisher = publisher.String
		m.PublishedAt = parseTime(published)
		m.QueryMatched = queryMatched.String
		m.Snippet = snippet.String
		m.RawText = rawText.String
		m.SourceURLs = decodeList(urls)
		m.RawArticleIDs = decodeList(rawIDs)
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func mentionsByPublished() sq.SelectBuilder {
	return sq.Select(mentionColumns...).From("mentions m").
		OrderBy("(m.published_at IS NULL OR m.published_at = '')", "m.published_at", "m.url")
}

func (s *SQLiteStore) GetMention(ctx context.Context, id string) (*model.Mention, error) {
	rows, err := query(ctx, s.db, sq.Select(mentionColumns...).From("mentions m").Where(sq.Eq{"m.mention_id": id}))
	if err != nil {
		return nil, err
	}
	list, err := scanMentions(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (s *SQLiteStore) ListMentions(ctx context.Context) ([]model.Mention, error) {
	rows, err := query(ctx, s.db, mentionsByPublished())
	if err != nil {
		return nil, err
	}
	return scanMentions(rows)
}

func (s *SQLiteStore) SaveMention(ctx context.Context, m *model.Mention, rawIDs []string) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := exec(ctx, tx, sq.Insert("mentions").
			Columns("mention_id", "url", "canonical_url", "title", "publisher", "published_at",
				"query_matched", "snippet", "raw_text", "source_urls", "raw_article_ids", "created_at").
			Values(m.ID, m.URL, m.CanonicalURL, m.Title, m.Publisher, formatTime(m.PublishedAt),
				m.QueryMatched, m.Snippet, m.RawText, encodeList(m.SourceURLs), encodeList(m.RawArticleIDs),
				formatTime(m.CreatedAt)).
			Suffix(`ON CONFLICT(mention_id) DO UPDATE SET
				source_urls = excluded.source_urls,
				raw_article_ids = excluded.raw_article_ids,
				raw_text = CASE WHEN mentions.raw_text IS NULL OR mentions.raw_text = '' THEN excluded.raw_text ELSE mentions.raw_text END`))
		if err != nil {
			return fmt.Errorf("upsert mention %s: %w", m.ID, err)
		}
		if len(rawIDs) == 0 {
			return nil
		}
		_, err = exec(ctx, tx, sq.Update("raw_articles").
			Set("mention_id", m.ID).
			Where(sq.Eq{"article_id": rawIDs}))
		if err != nil {
			return fmt.Errorf("assign raw articles to %s: %w", m.ID, err)
		}
		return nil
	})
}

func (s *SQLiteStore) ListUnclassifiedMentions(ctx context.Context, limit int) ([]model.Mention, error) {
	b := mentionsByPublished().
		LeftJoin("classified_mentions c ON c.mention_id = m.mention_id").
		Where(sq.Eq{"c.mention_id": nil})
	rows, err := query(ctx, s.db, withLimit(b, limit))
	if err != nil {
		return nil, err
	}
	return scanMentions(rows)
}
