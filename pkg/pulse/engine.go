package pulse

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/openelectorate/newspulse/internal/store"
)

// Trend is the direction of recent sentiment relative to the full window.
type Trend string

const (
	TrendRising    Trend = "RISING"
	TrendDeclining Trend = "DECLINING"
	TrendStable    Trend = "STABLE"
)

// trendDelta is the pulse difference that flips the trend label.
const trendDelta = 0.15

// Relevance weights by how directly a mention concerns the candidate.
const (
	weightCandidate = 1.0
	weightGeo       = 0.8
	weightParty     = 0.6
	weightFallback  = 0.4
)

// Driver is one of the signals contributing most to a pulse, exposed for
// explainability.
type Driver struct {
	Title           string          `json:"title"`
	Sentiment       store.Sentiment `json:"sentiment"`
	SentimentScore  float64         `json:"sentiment_score"`
	RelevanceWeight float64         `json:"relevance_weight"`
	EffectiveScore  float64         `json:"effective_score"`
}

// Pulse is the relevance- and confidence-weighted sentiment summary for a
// candidate over a window.
type Pulse struct {
	CandidateID      int64    `json:"candidate_id"`
	PulseScore       float64  `json:"pulse_score"`
	Trend            Trend    `json:"trend"`
	ArticlesAnalyzed int      `json:"articles_analyzed"`
	TopDrivers       []Driver `json:"top_drivers"`
}

// TrendPoint is one day's pulse in a trend series.
type TrendPoint struct {
	Date       time.Time `json:"date"`
	PulseScore float64   `json:"pulse_score"`
}

// Engine computes pulse scores from stored sentiment signals.
type Engine struct {
	store store.Store
	log   *slog.Logger
}

// NewEngine creates a pulse engine.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s, log: slog.With("component", "pulse")}
}

// CalculatePulse aggregates all signals in the window that concern the
// candidate directly or through their party or constituency. Zero signals
// yields a zero score with a STABLE trend, not an error.
func (e *Engine) CalculatePulse(ctx context.Context, candidateID int64, windowDays int) (*Pulse, error) {
	cand, err := e.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("resolve candidate %d: %w", candidateID, err)
	}
	return e.calculateAt(ctx, cand, time.Now().UTC(), windowDays, true)
}

func (e *Engine) calculateAt(ctx context.Context, cand *store.Candidate, asOf time.Time, windowDays int, withTrend bool) (*Pulse, error) {
	if windowDays <= 0 {
		windowDays = 7
	}

	signals, err := e.windowSignals(ctx, cand, asOf, windowDays)
	if err != nil {
		return nil, err
	}

	result := &Pulse{CandidateID: cand.ID, Trend: TrendStable}
	if len(signals) == 0 {
		return result, nil
	}

	var sum float64
	drivers := make([]Driver, 0, len(signals))
	for i := range signals {
		sig := &signals[i]
		weight, err := e.relevanceWeight(ctx, sig, cand)
		if err != nil {
			return nil, err
		}
		effective := sig.SentimentScore * sig.Confidence * weight
		sum += effective

		title := ""
		if a, err := e.store.GetArticle(ctx, sig.SourceRefID); err == nil {
			title = a.Title
		}
		drivers = append(drivers, Driver{
			Title:           title,
			Sentiment:       sig.Sentiment,
			SentimentScore:  sig.SentimentScore,
			RelevanceWeight: weight,
			EffectiveScore:  effective,
		})
	}

	result.ArticlesAnalyzed = len(signals)
	result.PulseScore = round4(sum / float64(len(signals)))

	sort.Slice(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].EffectiveScore) > math.Abs(drivers[j].EffectiveScore)
	})
	if len(drivers) > 5 {
		drivers = drivers[:5]
	}
	result.TopDrivers = drivers

	if withTrend {
		result.Trend = e.computeTrend(ctx, cand, asOf, windowDays, result.PulseScore)
	}
	return result, nil
}

// computeTrend compares a short recent window against the full window.
// Any failure here defaults to STABLE; trend must never fail the pulse.
func (e *Engine) computeTrend(ctx context.Context, cand *store.Candidate, asOf time.Time, windowDays int, fullScore float64) Trend {
	recent, err := e.calculateAt(ctx, cand, asOf, 2, false)
	if err != nil {
		e.log.Warn("trend computation failed", "candidate", cand.ID, "error", err)
		return TrendStable
	}
	if recent.ArticlesAnalyzed == 0 {
		return TrendStable
	}

	delta := recent.PulseScore - fullScore
	switch {
	case delta > trendDelta:
		return TrendRising
	case delta < -trendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// PulseTrend lazily yields one pulse per day boundary over the last days
// days, oldest first. The sequence is finite and restartable; each
// iteration recomputes, so callers wanting cheap re-reads should cache.
func (e *Engine) PulseTrend(ctx context.Context, candidateID int64, days int) iter.Seq2[TrendPoint, error] {
	return func(yield func(TrendPoint, error) bool) {
		cand, err := e.store.GetCandidate(ctx, candidateID)
		if err != nil {
			yield(TrendPoint{}, fmt.Errorf("resolve candidate %d: %w", candidateID, err))
			return
		}

		if days <= 0 {
			days = 7
		}
		today := time.Now().UTC().Truncate(24 * time.Hour)
		for i := days - 1; i >= 0; i-- {
			boundary := today.AddDate(0, 0, -i).Add(24 * time.Hour)
			p, err := e.calculateAt(ctx, cand, boundary, 1, false)
			if err != nil {
				if !yield(TrendPoint{}, err) {
					return
				}
				continue
			}
			if !yield(TrendPoint{Date: boundary.AddDate(0, 0, -1), PulseScore: p.PulseScore}, nil) {
				return
			}
		}
	}
}

// relevanceWeight returns the cached weight or computes and caches it. A
// direct candidate mention short-circuits to the maximum weight no matter
// what else the article mentions.
func (e *Engine) relevanceWeight(ctx context.Context, sig *store.SentimentSignal, cand *store.Candidate) (float64, error) {
	if sig.RelevanceWeight.Valid {
		return sig.RelevanceWeight.Float64, nil
	}

	mentions, err := e.store.ListMentionsByArticle(ctx, sig.SourceRefID)
	if err != nil {
		return 0, err
	}

	weight := weightFallback
	for _, m := range mentions {
		switch {
		case m.EntityType == store.EntityCandidate && m.EntityID == cand.ID:
			weight = weightCandidate
		case m.EntityType == store.EntityGeoUnit && m.EntityID == cand.GeoUnitID && weight < weightGeo:
			weight = weightGeo
		case m.EntityType == store.EntityParty && m.EntityID == cand.PartyID && weight < weightParty:
			weight = weightParty
		}
		if weight == weightCandidate {
			break
		}
	}

	if err := e.store.UpdateSignalWeight(ctx, sig.ID, weight); err != nil {
		e.log.Warn("weight cache write failed", "signal", sig.ID, "error", err)
	}
	sig.RelevanceWeight.Float64 = weight
	sig.RelevanceWeight.Valid = true
	return weight, nil
}

func (e *Engine) windowSignals(ctx context.Context, cand *store.Candidate, asOf time.Time, windowDays int) ([]store.SentimentSignal, error) {
	filter := []store.EntityMention{
		{EntityType: store.EntityCandidate, EntityID: cand.ID},
	}
	if cand.PartyID > 0 {
		filter = append(filter, store.EntityMention{EntityType: store.EntityParty, EntityID: cand.PartyID})
	}
	if cand.GeoUnitID > 0 {
		filter = append(filter, store.EntityMention{EntityType: store.EntityGeoUnit, EntityID: cand.GeoUnitID})
	}

	w := store.SignalWindow{
		From: asOf.AddDate(0, 0, -windowDays),
		To:   asOf,
	}
	return e.store.ListSignalsForEntities(ctx, w, filter)
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
