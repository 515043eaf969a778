package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

// serveSentiment returns a test service that answers every analysis request
// with the given result and captures the last request body.
func serveSentiment(t *testing.T, result Result) (*Client, *map[string]string) {
	t.Helper()
	var lastReq map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastReq))
		require.NoError(t, json.NewEncoder(w).Encode(result))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second), &lastReq
}

func insertArticle(t *testing.T, s store.Store, url string) *store.Article {
	t.Helper()
	a := &store.Article{Title: "Minister under fire", Summary: "Opposition demands answers.",
		SourceURL: url, PublishedAt: time.Now().UTC()}
	_, err := s.InsertArticle(context.Background(), a)
	require.NoError(t, err)
	return a
}

func TestScoreArticleWithGeoHint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client, lastReq := serveSentiment(t, Result{Label: "negative", Score: -0.62, Confidence: 0.91})

	a := insertArticle(t, s, "https://example.org/fire")
	require.NoError(t, NewScorer(client, s, 1).ScoreArticle(ctx, a, 10))

	now := time.Now().UTC()
	sigs, err := s.ListSignalsForGeo(ctx, 10, store.SignalWindow{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, store.SentimentNegative, sigs[0].Sentiment)
	assert.InDelta(t, -0.62, sigs[0].SentimentScore, 1e-9)
	assert.InDelta(t, 0.91, sigs[0].Confidence, 1e-9)
	assert.Equal(t, a.ID, sigs[0].SourceRefID)

	assert.Equal(t, "Minister under fire. Opposition demands answers.", (*lastReq)["text"])
	assert.Equal(t, "political_news", (*lastReq)["context"])
}

func TestScoreArticleResolvesGeoFromMentions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client, _ := serveSentiment(t, Result{Label: "POSITIVE", Score: 0.4, Confidence: 0.8})

	require.NoError(t, s.CreateCandidate(ctx, &store.Candidate{ID: 5, FullName: "Jane Doe", GeoUnitID: 10}))
	a := insertArticle(t, s, "https://example.org/mentions")
	require.NoError(t, s.UpsertMention(ctx, &store.EntityMention{ArticleID: a.ID, EntityType: store.EntityCandidate, EntityID: 5}))
	require.NoError(t, s.UpsertMention(ctx, &store.EntityMention{ArticleID: a.ID, EntityType: store.EntityGeoUnit, EntityID: 20}))

	require.NoError(t, NewScorer(client, s, 1).ScoreArticle(ctx, a, 0))

	// One signal per resolved unit: the mentioned geo and the candidate's
	// home constituency. Nothing lands on the fallback unit.
	now := time.Now().UTC()
	w := store.SignalWindow{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
	for _, geoID := range []int64{10, 20} {
		sigs, err := s.ListSignalsForGeo(ctx, geoID, w)
		require.NoError(t, err)
		assert.Len(t, sigs, 1, "geo %d", geoID)
	}
	sigs, err := s.ListSignalsForGeo(ctx, 1, w)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestScoreArticleFallbackGeo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	client, _ := serveSentiment(t, Result{Label: "mixed", Score: 0.05, Confidence: 0.5})

	a := insertArticle(t, s, "https://example.org/nowhere")
	require.NoError(t, NewScorer(client, s, 7).ScoreArticle(ctx, a, 0))

	now := time.Now().UTC()
	sigs, err := s.ListSignalsForGeo(ctx, 7, store.SignalWindow{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	// Unknown labels collapse to neutral.
	assert.Equal(t, store.SentimentNeutral, sigs[0].Sentiment)
}

func TestScoreArticleServiceDown(t *testing.T) {
	s := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	a := insertArticle(t, s, "https://example.org/down")
	err := NewScorer(NewClient(srv.URL, time.Second), s, 1).ScoreArticle(context.Background(), a, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestMapLabel(t *testing.T) {
	assert.Equal(t, store.SentimentPositive, mapLabel(" Positive "))
	assert.Equal(t, store.SentimentNegative, mapLabel("NEGATIVE"))
	assert.Equal(t, store.SentimentNeutral, mapLabel("neutral"))
	assert.Equal(t, store.SentimentNeutral, mapLabel(""))
}
