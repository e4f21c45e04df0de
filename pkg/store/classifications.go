package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newspipe/pkg/model"
)

func (s *SQLiteStore) GetClassification(ctx context.Context, mentionID string) (*model.ClassifiedMention, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT mention_id, label, confidence, signals, flags, rules_version, created_at
		 FROM classified_mentions WHERE mention_id = ?`, mentionID)

	var c model.ClassifiedMention
	var label, confidence, signals, flags, version, created sql.NullString
	if err := row.Scan(&c.MentionID, &label, &confidence, &signals, &flags, &version, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Label = model.Label(label.String)
	c.Confidence = model.Confidence(confidence.String)
	c.Signals = decodeList(signals)
	c.Flags = decodeList(flags)
	c.RulesVersion = version.String
	c.CreatedAt = parseTime(created)
	return &c, nil
}

func (s *SQLiteStore) SaveClassification(ctx context.Context, c *model.ClassifiedMention) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := exec(ctx, s.db, sq.Insert("classified_mentions").Options("OR REPLACE").
		Columns("mention_id", "label", "confidence", "signals", "flags", "rules_version", "created_at").
		Values(c.MentionID, string(c.Label), string(c.Confidence), encodeList(c.Signals), encodeList(c.Flags),
			c.RulesVersion, formatTime(c.CreatedAt)))
	return err
}

func (s *SQLiteStore) ListAnnouncementsWithoutCard(ctx context.Context, limit int) ([]model.Mention, error) {
	b := mentionsByPublished().
		Join("classified_mentions c ON c.mention_id = m.mention_id").
		LeftJoin("project_cards pc ON pc.mention_id = m.mention_id").
		Where(sq.Eq{"c.label": string(model.LabelAnnouncement), "pc.card_id": nil})
	rows, err := query(ctx, s.db, withLimit(b, limit))
	if err != nil {
		return nil, err
	}
	return scanMentions(rows)
}

func (s *SQLiteStore) CountLabels(ctx context.Context) (map[model.Label]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT label, count(*) FROM classified_mentions GROUP BY label")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.Label]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		out[model.Label(label)] = n
	}
	return out, rows.Err()
}
