package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openelectorate/newspulse/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var articleSeq int

func addGeoSignal(t *testing.T, s store.Store, title string, score, conf, weight float64, at time.Time) {
	t.Helper()
	ctx := context.Background()

	articleSeq++
	a := &store.Article{
		Title:       title,
		Summary:     "coverage of " + title,
		SourceURL:   fmt.Sprintf("https://example.org/a/%d", articleSeq),
		PublishedAt: at,
	}
	_, err := s.InsertArticle(ctx, a)
	require.NoError(t, err)

	sig := &store.SentimentSignal{
		GeoUnitID:      10,
		SourceRefID:    a.ID,
		Sentiment:      store.SentimentNeutral,
		SentimentScore: score,
		Confidence:     conf,
		CreatedAt:      at,
	}
	if weight > 0 {
		sig.RelevanceWeight = sql.NullFloat64{Float64: weight, Valid: true}
	}
	require.NoError(t, s.InsertSignal(ctx, sig))
}

func TestGeoDayEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := NewAnalyzer(s, nil).GeoDay(context.Background(), 10, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, stats.SignalCount)
	assert.Zero(t, stats.AvgSentiment)
	assert.Zero(t, stats.Pulse)
	assert.Empty(t, stats.DominantIssue)
}

func TestGeoDayAggregates(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	addGeoSignal(t, s, "Hospital funding debate", 0.6, 1.0, 1.0, day.Add(9*time.Hour))
	addGeoSignal(t, s, "Doctor shortage at regional hospital", -0.4, 0.5, 0.8, day.Add(15*time.Hour))
	// Outside the day, never counted.
	addGeoSignal(t, s, "Old budget story", -1.0, 1.0, 1.0, day.Add(-3*time.Hour))

	stats, err := NewAnalyzer(s, nil).GeoDay(context.Background(), 10, day.Add(12*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SignalCount)
	assert.Equal(t, day, stats.Date)
	// (0.6 - 0.4) / 2
	assert.InDelta(t, 0.1, stats.AvgSentiment, 1e-9)
	// (0.6*1.0*1.0 + -0.4*0.5*0.8) / 2 = 0.22
	assert.InDelta(t, 0.22, stats.Pulse, 1e-9)
	assert.Equal(t, "healthcare", stats.DominantIssue)
}

func TestGeoDayUnweightedSignalCountsFull(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	// No cached relevance weight: pulse falls back to weight 1.0.
	addGeoSignal(t, s, "Neutral note", 0.5, 0.8, 0, day.Add(10*time.Hour))

	stats, err := NewAnalyzer(s, nil).GeoDay(context.Background(), 10, day)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, stats.Pulse, 1e-9)
}

func TestDominantIssue(t *testing.T) {
	a := NewAnalyzer(nil, nil)

	assert.Equal(t, "corruption", a.dominantIssue([]string{
		"New fraud probe opens into procurement scandal",
		"School term starts",
	}))
	assert.Empty(t, a.dominantIssue([]string{"Local choir wins contest"}))
	assert.Empty(t, a.dominantIssue(nil))
}
