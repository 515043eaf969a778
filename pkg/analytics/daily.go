package analytics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openelectorate/newspulse/internal/store"
)

// DefaultIssueCategories maps issue labels to the keywords that score them.
var DefaultIssueCategories = map[string][]string{
	"economy":        {"economy", "inflation", "jobs", "unemployment", "tax", "budget", "trade"},
	"healthcare":     {"health", "hospital", "medicine", "doctor", "insurance", "vaccine"},
	"education":      {"school", "education", "university", "teacher", "student", "curriculum"},
	"security":       {"police", "crime", "security", "defense", "military", "terror"},
	"corruption":     {"corruption", "bribe", "scandal", "fraud", "embezzlement", "probe"},
	"environment":    {"climate", "environment", "pollution", "energy", "drought", "flood"},
	"infrastructure": {"road", "infrastructure", "transport", "railway", "housing", "electricity", "water supply"},
}

// DailyGeoStats aggregates one day of sentiment activity in a geo unit.
type DailyGeoStats struct {
	GeoUnitID     int64     `json:"geo_unit_id"`
	Date          time.Time `json:"date"`
	SignalCount   int       `json:"signal_count"`
	AvgSentiment  float64   `json:"avg_sentiment"`
	Pulse         float64   `json:"pulse"`
	DominantIssue string    `json:"dominant_issue"`
}

// Analyzer computes daily aggregated geo statistics.
type Analyzer struct {
	store      store.Store
	categories map[string][]string
}

// NewAnalyzer creates an analyzer. A nil category map uses the defaults.
func NewAnalyzer(s store.Store, categories map[string][]string) *Analyzer {
	if categories == nil {
		categories = DefaultIssueCategories
	}
	return &Analyzer{store: s, categories: categories}
}

// GeoDay aggregates the calendar day containing date for the geo unit:
// average raw sentiment, confidence-weighted pulse, and the dominant issue
// extracted from the day's article text.
func (a *Analyzer) GeoDay(ctx context.Context, geoUnitID int64, date time.Time) (*DailyGeoStats, error) {
	dayStart := date.UTC().Truncate(24 * time.Hour)
	w := store.SignalWindow{From: dayStart, To: dayStart.Add(24 * time.Hour)}

	signals, err := a.store.ListSignalsForGeo(ctx, geoUnitID, w)
	if err != nil {
		return nil, fmt.Errorf("daily geo stats %d: %w", geoUnitID, err)
	}

	stats := &DailyGeoStats{GeoUnitID: geoUnitID, Date: dayStart}
	if len(signals) > 0 {
		var sentSum, pulseSum float64
		for _, sig := range signals {
			sentSum += sig.SentimentScore
			weight := 1.0
			if sig.RelevanceWeight.Valid {
				weight = sig.RelevanceWeight.Float64
			}
			pulseSum += sig.SentimentScore * sig.Confidence * weight
		}
		stats.SignalCount = len(signals)
		stats.AvgSentiment = round4(sentSum / float64(len(signals)))
		stats.Pulse = round4(pulseSum / float64(len(signals)))
	}

	texts, err := a.store.ListArticleTextsForGeo(ctx, geoUnitID, w)
	if err != nil {
		return nil, err
	}
	stats.DominantIssue = a.dominantIssue(texts)
	return stats, nil
}

// dominantIssue scores each issue category by keyword hits over the texts
// and returns the highest scoring one, empty when nothing matches.
func (a *Analyzer) dominantIssue(texts []string) string {
	scores := make(map[string]int)
	for _, text := range texts {
		lower := strings.ToLower(text)
		for issue, words := range a.categories {
			for _, w := range words {
				scores[issue] += strings.Count(lower, w)
			}
		}
	}

	best, bestScore := "", 0
	for issue, score := range scores {
		if score > bestScore || (score == bestScore && score > 0 && issue < best) {
			best, bestScore = issue, score
		}
	}
	if bestScore == 0 {
		return ""
	}
	return best
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
