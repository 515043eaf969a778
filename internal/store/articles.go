package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertArticle persists a new article. If an article with the same source
// URL already exists the insert is a silent no-op and the existing row's ID
// is loaded into a. The returned bool reports whether a row was created,
// which also decides whether sentiment scoring should run.
func (s *SQLiteStore) InsertArticle(ctx context.Context, a *Article) (bool, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = StatusApproved
	}
	if a.IngestType == "" {
		a.IngestType = IngestAPI
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (title, summary, source_name, source_url, published_at, status, ingest_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_url) DO NOTHING
	`, a.Title, a.Summary, a.SourceName, a.SourceURL, a.PublishedAt, a.Status, a.IngestType, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert article %q: %w", a.SourceURL, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		a.ID, _ = res.LastInsertId()
		return true, nil
	}

	// Dedup hit: load the existing row so callers can attach mentions to it.
	existing, err := s.GetArticleByURL(ctx, a.SourceURL)
	if err != nil {
		return false, fmt.Errorf("load existing article %q: %w", a.SourceURL, err)
	}
	*a = *existing
	return false, nil
}

func (s *SQLiteStore) GetArticleByURL(ctx context.Context, url string) (*Article, error) {
	var a Article
	err := s.db.GetContext(ctx, &a, "SELECT * FROM articles WHERE source_url = ?", url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article by url: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id int64) (*Article, error) {
	var a Article
	err := s.db.GetContext(ctx, &a, "SELECT * FROM articles WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", id, err)
	}
	return &a, nil
}

// UpsertMention links an article to an entity. Duplicate links are ignored,
// which makes mention creation safe under concurrent workers.
func (s *SQLiteStore) UpsertMention(ctx context.Context, m *EntityMention) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entity_mentions (article_id, entity_type, entity_id)
		VALUES (?, ?, ?)
	`, m.ArticleID, m.EntityType, m.EntityID)
	if err != nil {
		return fmt.Errorf("upsert mention %d/%s/%d: %w", m.ArticleID, m.EntityType, m.EntityID, err)
	}
	return nil
}

func (s *SQLiteStore) ListMentionsByArticle(ctx context.Context, articleID int64) ([]EntityMention, error) {
	var out []EntityMention
	err := s.db.SelectContext(ctx, &out,
		"SELECT article_id, entity_type, entity_id FROM entity_mentions WHERE article_id = ?", articleID)
	if err != nil {
		return nil, fmt.Errorf("list mentions for article %d: %w", articleID, err)
	}
	return out, nil
}

func (s *SQLiteStore) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM articles"); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}
