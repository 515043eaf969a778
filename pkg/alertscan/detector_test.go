package alertscan

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
	"github.com/openelectorate/newspulse/pkg/pulse"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newDetector(s store.Store) *Detector {
	return NewDetector(s, pulse.NewEngine(s), 1)
}

func seedMonitoredCandidate(t *testing.T, s store.Store) *store.Candidate {
	t.Helper()
	c := &store.Candidate{
		ID: 5, FullName: "Jane Doe", PartyID: 2, GeoUnitID: 10,
		UserID:     sql.NullInt64{Int64: 7, Valid: true},
		Subscribed: true,
	}
	require.NoError(t, s.CreateCandidate(context.Background(), c))
	return c
}

var articleSeq int

func addSignal(t *testing.T, s store.Store, title string, score, conf float64, age time.Duration) {
	t.Helper()
	ctx := context.Background()

	articleSeq++
	a := &store.Article{
		Title:       title,
		SourceURL:   fmt.Sprintf("https://example.org/a/%d", articleSeq),
		PublishedAt: time.Now().UTC().Add(-age),
	}
	_, err := s.InsertArticle(ctx, a)
	require.NoError(t, err)
	require.NoError(t, s.UpsertMention(ctx, &store.EntityMention{
		ArticleID: a.ID, EntityType: store.EntityCandidate, EntityID: 5,
	}))

	sentiment := store.SentimentNeutral
	if score > 0 {
		sentiment = store.SentimentPositive
	} else if score < 0 {
		sentiment = store.SentimentNegative
	}
	require.NoError(t, s.InsertSignal(ctx, &store.SentimentSignal{
		GeoUnitID:      10,
		SourceRefID:    a.ID,
		Sentiment:      sentiment,
		SentimentScore: score,
		Confidence:     conf,
		CreatedAt:      time.Now().UTC().Add(-age),
	}))
}

func TestScanWithoutCandidates(t *testing.T) {
	s := newTestStore(t)
	n, err := newDetector(s).Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScanSkipsUnsubscribed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCandidate(context.Background(), &store.Candidate{
		ID: 5, FullName: "Jane Doe", GeoUnitID: 10,
	}))
	addSignal(t, s, "Very critical story", -0.9, 0.95, time.Hour)

	n, err := newDetector(s).Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNegativeSurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedMonitoredCandidate(t, s)

	// Three high-confidence negatives in 24h, each mild enough to stay
	// above the critical-hit score floor.
	addSignal(t, s, "Doe criticized over budget", -0.5, 0.9, time.Hour)
	addSignal(t, s, "Doe defends record", -0.5, 0.85, 2*time.Hour)
	addSignal(t, s, "Doe faces questions", -0.5, 0.95, 3*time.Hour)

	d := newDetector(s)
	n, err := d.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alerts, err := s.ListAlerts(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, store.AlertControversy, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "Jane Doe")
	assert.Contains(t, alerts[0].Message, "3 high-confidence negative stories")
	assert.Equal(t, int64(10), alerts[0].GeoUnitID)
}

func TestSurgeBelowCount(t *testing.T) {
	s := newTestStore(t)
	seedMonitoredCandidate(t, s)

	addSignal(t, s, "One negative", -0.5, 0.9, time.Hour)
	addSignal(t, s, "Low confidence negative", -0.5, 0.5, 2*time.Hour)

	n, err := newDetector(s).Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSentimentSpike(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedMonitoredCandidate(t, s)

	// 1-day pulse 0.6 against a 7-day baseline of 0.1.
	for i := 0; i < 3; i++ {
		addSignal(t, s, "Fresh praise", 0.6, 1.0, time.Hour)
	}
	for i := 0; i < 3; i++ {
		addSignal(t, s, "Older criticism", -0.4, 1.0, 3*24*time.Hour)
	}

	d := newDetector(s)
	n, err := d.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alerts, err := s.ListAlerts(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, store.AlertSentimentSpike, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "positive shift")
}

func TestSpikeSkipsSmallSample(t *testing.T) {
	s := newTestStore(t)
	seedMonitoredCandidate(t, s)

	// Big delta but only two recent signals.
	addSignal(t, s, "Fresh praise", 0.9, 1.0, time.Hour)
	addSignal(t, s, "More praise", 0.9, 1.0, 2*time.Hour)
	addSignal(t, s, "Older criticism", -0.4, 0.5, 3*24*time.Hour)

	n, err := newDetector(s).Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCriticalHitDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedMonitoredCandidate(t, s)

	addSignal(t, s, "Doe linked to fraud probe", -0.9, 0.95, time.Hour)

	d := newDetector(s)
	n, err := d.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alerts, err := s.ListAlerts(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, store.AlertNewsMention, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, `"Doe linked to fraud probe"`)
	assert.Equal(t, int64(10), alerts[0].GeoUnitID)

	// A second scan sees the existing alert quoting the title and stays
	// quiet.
	n, err = d.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	alerts, err = s.ListAlerts(ctx, 7, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}
