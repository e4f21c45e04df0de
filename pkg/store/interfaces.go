package store

import (
	"context"

	"newspipe/pkg/model"
)

// RawArticleStore handles ingested search results.
type RawArticleStore interface {
	// SaveRawArticles inserts unseen articles and returns how many were new.
	SaveRawArticles(ctx context.Context, articles []model.RawArticle) (int, error)
	HasRawArticle(ctx context.Context, id string) (bool, error)
	// ListUnassignedRawArticles returns articles no mention has absorbed yet.
	ListUnassignedRawArticles(ctx context.Context, limit int) ([]model.RawArticle, error)
}

// MentionStore handles de-duplicated mentions.
type MentionStore interface {
	GetMention(ctx context.Context, id string) (*model.Mention, error)
	ListMentions(ctx context.Context) ([]model.Mention, error)
	// SaveMention upserts the mention and marks the raw articles as assigned, atomically.
	SaveMention(ctx context.Context, m *model.Mention, rawIDs []string) error
	ListUnclassifiedMentions(ctx context.Context, limit int) ([]model.Mention, error)
}

// ClassificationStore handles classification outcomes.
type ClassificationStore interface {
	GetClassification(ctx context.Context, mentionID string) (*model.ClassifiedMention, error)
	SaveClassification(ctx context.Context, c *model.ClassifiedMention) error
	// ListAnnouncementsWithoutCard returns announcement mentions that have not been extracted.
	ListAnnouncementsWithoutCard(ctx context.Context, limit int) ([]model.Mention, error)
	CountLabels(ctx context.Context) (map[model.Label]int, error)
}

// CardStore handles extracted project cards.
type CardStore interface {
	SaveCard(ctx context.Context, c *model.ProjectCard) error
	ListUnresolvedCards(ctx context.Context, limit int) ([]model.ProjectCard, error)
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	GeocodeStatus string // empty: any
	WithCoords    bool
	Company       string
	Limit         int
}

// ProjectStore handles canonical projects and their per-stage status.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]model.Project, error)
	// SaveProject upserts the project and attaches its cards, atomically.
	SaveProject(ctx context.Context, p *model.Project) error
	// MergeProjects replaces the absorbed projects with the survivor, atomically.
	MergeProjects(ctx context.Context, survivor *model.Project, absorbed []string) error
	SetStatus(ctx context.Context, rec *model.StatusRecord) error
	GetStatus(ctx context.Context, projectID, stage string) (*model.StatusRecord, error)
}

// RunStore handles pipeline run records.
type RunStore interface {
	SaveRun(ctx context.Context, run *model.PipelineRun) error
	ListRuns(ctx context.Context, stage string, limit int) ([]model.PipelineRun, error)
}

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
}
