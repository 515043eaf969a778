package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/openelectorate/newspulse/internal/store"
)

// Scorer turns collaborator results into stored sentiment signals with geo
// attribution.
type Scorer struct {
	client        *Client
	store         store.Store
	fallbackGeoID int64
}

// NewScorer creates a scorer. fallbackGeoID receives signals whose article
// cannot be attributed to any geo unit.
func NewScorer(client *Client, s store.Store, fallbackGeoID int64) *Scorer {
	if fallbackGeoID <= 0 {
		fallbackGeoID = 1
	}
	return &Scorer{client: client, store: s, fallbackGeoID: fallbackGeoID}
}

// ScoreArticle analyzes an article's text and persists one signal per
// resolved geo unit. geoHint, when positive, pins attribution to that unit.
func (sc *Scorer) ScoreArticle(ctx context.Context, article *store.Article, geoHint int64) error {
	text := strings.TrimSpace(article.Title + ". " + article.Summary)
	result, err := sc.client.Analyze(ctx, text)
	if err != nil {
		return err
	}

	geoIDs, err := sc.resolveGeoUnits(ctx, article.ID, geoHint)
	if err != nil {
		return err
	}

	label := mapLabel(result.Label)
	for _, geoID := range geoIDs {
		sig := &store.SentimentSignal{
			GeoUnitID:      geoID,
			SourceRefID:    article.ID,
			Sentiment:      label,
			SentimentScore: result.Score,
			Confidence:     result.Confidence,
		}
		if err := sc.store.InsertSignal(ctx, sig); err != nil {
			return fmt.Errorf("persist signal: %w", err)
		}
	}
	return nil
}

// resolveGeoUnits finds the geo units an article concerns: the explicit
// hint, otherwise geo mentions plus the home constituency of every
// mentioned candidate, otherwise the fallback unit.
func (sc *Scorer) resolveGeoUnits(ctx context.Context, articleID, geoHint int64) ([]int64, error) {
	if geoHint > 0 {
		return []int64{geoHint}, nil
	}

	mentions, err := sc.store.ListMentionsByArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var geoIDs []int64
	add := func(id int64) {
		if id > 0 && !seen[id] {
			seen[id] = true
			geoIDs = append(geoIDs, id)
		}
	}

	for _, m := range mentions {
		switch m.EntityType {
		case store.EntityGeoUnit:
			add(m.EntityID)
		case store.EntityCandidate:
			cand, err := sc.store.GetCandidate(ctx, m.EntityID)
			if err == nil {
				add(cand.GeoUnitID)
			}
		}
	}

	if len(geoIDs) == 0 {
		geoIDs = append(geoIDs, sc.fallbackGeoID)
	}
	return geoIDs, nil
}

func mapLabel(label string) store.Sentiment {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "POSITIVE":
		return store.SentimentPositive
	case "NEGATIVE":
		return store.SentimentNegative
	default:
		return store.SentimentNeutral
	}
}
