package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openelectorate/newspulse/internal/store"
	"github.com/openelectorate/newspulse/pkg/sentiment"
)

// DefaultContextTerms is the political vocabulary AND-ed onto every
// entity-keyed search so generic name matches stay on topic.
var DefaultContextTerms = []string{
	"election", "policy", "campaign", "scandal",
	"parliament", "minister", "government", "vote",
}

// FetchStats summarizes one fetch run.
type FetchStats struct {
	Fetched    int `json:"fetched"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	TooOld     int `json:"too_old"`
	Linked     int `json:"linked"`
}

// Engine fetches feed items, deduplicates them against stored articles,
// links articles to entities and hands new text to the sentiment scorer.
type Engine struct {
	store        store.Store
	feeds        *FeedClient
	scorer       *sentiment.Scorer
	linker       *Linker
	log          *slog.Logger
	maxSweepAge  time.Duration
	contextTerms []string
	scoreTimeout time.Duration

	scoring sync.WaitGroup
}

// NewEngine creates an ingestion engine. maxSweepAge bounds how old a
// source-sweep item may be before it is skipped.
func NewEngine(s store.Store, feeds *FeedClient, scorer *sentiment.Scorer, maxSweepAge time.Duration, contextTerms []string) *Engine {
	if maxSweepAge <= 0 {
		maxSweepAge = 48 * time.Hour
	}
	if len(contextTerms) == 0 {
		contextTerms = DefaultContextTerms
	}
	return &Engine{
		store:        s,
		feeds:        feeds,
		scorer:       scorer,
		linker:       NewLinker(s),
		log:          slog.With("component", "ingest"),
		maxSweepAge:  maxSweepAge,
		contextTerms: contextTerms,
		scoreTimeout: 15 * time.Second,
	}
}

// FetchForEntity fetches headlines matching an entity's keywords. An entity
// without keywords is a normal "nothing to search" case, not a failure.
func (e *Engine) FetchForEntity(ctx context.Context, et store.EntityType, entityID int64) (*FetchStats, error) {
	stats := &FetchStats{}

	keywords, err := e.store.ListActiveKeywords(ctx, et, entityID)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return stats, nil
	}

	items, err := e.feeds.SearchHeadlines(ctx, e.buildQuery(keywords))
	if err != nil {
		return nil, fmt.Errorf("fetch for %s/%d: %w", et, entityID, err)
	}

	var geoHint int64
	if et == store.EntityGeoUnit {
		geoHint = entityID
	}

	for _, it := range items {
		stats.Fetched++
		if err := e.processItem(ctx, stats, it, &store.EntityMention{
			EntityType: et,
			EntityID:   entityID,
		}, geoHint); err != nil {
			e.log.Warn("item ingest failed",
				"entity_type", et, "entity_id", entityID, "title", it.Title, "error", err)
		}
	}
	return stats, nil
}

// FetchFromSource sweeps a fixed feed endpoint. Items older than the
// max-age cutoff are skipped post-fetch; the feed has no recency control.
func (e *Engine) FetchFromSource(ctx context.Context, name, feedURL string) (*FetchStats, error) {
	stats := &FetchStats{}

	items, err := e.feeds.FetchSource(ctx, name, feedURL)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-e.maxSweepAge)
	for _, it := range items {
		stats.Fetched++
		if it.PublishedAt.Before(cutoff) {
			stats.TooOld++
			continue
		}
		if err := e.processItem(ctx, stats, it, nil, 0); err != nil {
			e.log.Warn("sweep item ingest failed", "source", name, "title", it.Title, "error", err)
			continue
		}

		// Sweeps are not entity-keyed, so candidate mentions come from
		// matching known names against the item text.
		article, err := e.store.GetArticleByURL(ctx, it.Link)
		if err != nil {
			continue
		}
		linked, err := e.linker.LinkCandidates(ctx, article)
		if err != nil {
			e.log.Warn("entity linking failed", "article", article.ID, "error", err)
			continue
		}
		stats.Linked += linked
	}
	return stats, nil
}

// IngestArticle stores a manually submitted article and hands it to the
// scorer, bypassing feed fetching entirely.
func (e *Engine) IngestArticle(ctx context.Context, a *store.Article) (bool, error) {
	if a.Title == "" || a.SourceURL == "" {
		return false, fmt.Errorf("manual article requires title and source url")
	}
	a.IngestType = store.IngestManual
	if a.PublishedAt.IsZero() {
		a.PublishedAt = time.Now().UTC()
	}

	created, err := e.store.InsertArticle(ctx, a)
	if err != nil {
		return false, err
	}
	if created {
		e.scoreAsync(a, 0)
	}
	return created, nil
}

// WaitScoring blocks until all in-flight sentiment hand-offs finish. Used
// on shutdown so pending scores are not lost.
func (e *Engine) WaitScoring() {
	e.scoring.Wait()
}

// processItem runs the shared ingest pipeline for one feed item:
// normalize, dedup by source URL, mention upsert, sentiment hand-off.
func (e *Engine) processItem(ctx context.Context, stats *FetchStats, it FeedItem, mention *store.EntityMention, geoHint int64) error {
	article := &store.Article{
		Title:       strings.TrimSpace(it.Title),
		Summary:     strings.TrimSpace(it.Summary),
		SourceName:  it.SourceName,
		SourceURL:   it.Link,
		PublishedAt: it.PublishedAt,
		Status:      store.StatusApproved,
		IngestType:  store.IngestAPI,
	}

	created, err := e.store.InsertArticle(ctx, article)
	if err != nil {
		return err
	}

	if mention != nil {
		mention.ArticleID = article.ID
		if err := e.store.UpsertMention(ctx, mention); err != nil {
			return err
		}
	}

	if !created {
		// Known article: the mention upsert above is all that was needed.
		// Never re-trigger sentiment analysis for an existing article.
		stats.Duplicates++
		return nil
	}

	stats.Created++
	e.scoreAsync(article, geoHint)
	return nil
}

// scoreAsync hands the article to the sentiment collaborator on its own
// goroutine with its own error boundary. Ingestion throughput never waits
// on the scoring service.
func (e *Engine) scoreAsync(article *store.Article, geoHint int64) {
	if e.scorer == nil {
		return
	}
	a := *article
	e.scoring.Add(1)
	go func() {
		defer e.scoring.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.scoreTimeout)
		defer cancel()
		if err := e.scorer.ScoreArticle(ctx, &a, geoHint); err != nil {
			e.log.Warn("sentiment scoring failed", "article", a.ID, "title", a.Title, "error", err)
		}
	}()
}

// buildQuery OR-joins the entity's keywords and AND-s the political
// context vocabulary.
func (e *Engine) buildQuery(keywords []store.Keyword) string {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		terms = append(terms, `"`+k.Keyword+`"`)
	}
	return "(" + strings.Join(terms, " OR ") + ") (" + strings.Join(e.contextTerms, " OR ") + ")"
}
