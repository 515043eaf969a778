package store

import (
	"context"
	"fmt"
	"time"
)

func (s *SQLiteStore) InsertSignal(ctx context.Context, sig *SentimentSignal) error {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sentiment_signals (geo_unit_id, source_ref_id, sentiment, sentiment_score, confidence, relevance_weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sig.GeoUnitID, sig.SourceRefID, sig.Sentiment, sig.SentimentScore, sig.Confidence, sig.RelevanceWeight, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert signal for article %d: %w", sig.SourceRefID, err)
	}
	sig.ID, _ = res.LastInsertId()
	return nil
}

// UpdateSignalWeight caches a lazily computed relevance weight on the row.
func (s *SQLiteStore) UpdateSignalWeight(ctx context.Context, signalID int64, weight float64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sentiment_signals SET relevance_weight = ? WHERE id = ?", weight, signalID)
	if err != nil {
		return fmt.Errorf("update signal %d weight: %w", signalID, err)
	}
	return nil
}

// ListSignalsForEntities returns signals in the window whose source article
// mentions any of the given entities.
func (s *SQLiteStore) ListSignalsForEntities(ctx context.Context, w SignalWindow, mentions []EntityMention) ([]SentimentSignal, error) {
	if len(mentions) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT sig.* FROM sentiment_signals sig
		JOIN entity_mentions m ON m.article_id = sig.source_ref_id
		WHERE sig.created_at >= ? AND sig.created_at <= ? AND (`
	args := []any{w.From, w.To}

	for i, m := range mentions {
		if i > 0 {
			query += " OR "
		}
		query += "(m.entity_type = ? AND m.entity_id = ?)"
		args = append(args, m.EntityType, m.EntityID)
	}
	query += ") ORDER BY sig.created_at DESC"

	var out []SentimentSignal
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list signals for entities: %w", err)
	}
	return out, nil
}

// CountNegativeSignals counts recent NEGATIVE signals at or above the given
// confidence whose article mentions the candidate directly.
func (s *SQLiteStore) CountNegativeSignals(ctx context.Context, candidateID int64, since time.Time, minConfidence float64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(DISTINCT sig.id) FROM sentiment_signals sig
		JOIN entity_mentions m ON m.article_id = sig.source_ref_id
		WHERE sig.sentiment = ? AND sig.confidence >= ? AND sig.created_at >= ?
		  AND m.entity_type = ? AND m.entity_id = ?
	`, SentimentNegative, minConfidence, since, EntityCandidate, candidateID)
	if err != nil {
		return 0, fmt.Errorf("count negative signals for candidate %d: %w", candidateID, err)
	}
	return n, nil
}

// ListCriticalSignals returns recent strongly negative, high-confidence
// signals on candidate-mentioning articles, joined with the article title.
func (s *SQLiteStore) ListCriticalSignals(ctx context.Context, candidateID int64, since time.Time, maxScore, minConfidence float64) ([]SignalWithTitle, error) {
	var out []SignalWithTitle
	err := s.db.SelectContext(ctx, &out, `
		SELECT DISTINCT sig.*, a.title FROM sentiment_signals sig
		JOIN entity_mentions m ON m.article_id = sig.source_ref_id
		JOIN articles a ON a.id = sig.source_ref_id
		WHERE sig.sentiment_score <= ? AND sig.confidence >= ? AND sig.created_at >= ?
		  AND m.entity_type = ? AND m.entity_id = ?
		ORDER BY sig.sentiment_score
	`, maxScore, minConfidence, since, EntityCandidate, candidateID)
	if err != nil {
		return nil, fmt.Errorf("list critical signals for candidate %d: %w", candidateID, err)
	}
	return out, nil
}

func (s *SQLiteStore) ListSignalsForGeo(ctx context.Context, geoUnitID int64, w SignalWindow) ([]SentimentSignal, error) {
	var out []SentimentSignal
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM sentiment_signals
		WHERE geo_unit_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at
	`, geoUnitID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("list signals for geo %d: %w", geoUnitID, err)
	}
	return out, nil
}

// ListArticleTextsForGeo returns title+summary text of articles whose signals
// fall in the window for the geo unit. Used for daily issue extraction.
func (s *SQLiteStore) ListArticleTextsForGeo(ctx context.Context, geoUnitID int64, w SignalWindow) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, `
		SELECT DISTINCT a.title || ' ' || a.summary FROM articles a
		JOIN sentiment_signals sig ON sig.source_ref_id = a.id
		WHERE sig.geo_unit_id = ? AND sig.created_at >= ? AND sig.created_at <= ?
	`, geoUnitID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("list article texts for geo %d: %w", geoUnitID, err)
	}
	return out, nil
}
