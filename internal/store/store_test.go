package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertMonitoredEntityIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &MonitoredEntity{
		EntityType:  EntityCandidate,
		EntityID:    5,
		Priority:    9,
		Reason:      ReasonOpponent,
		TriggeredBy: 3,
	}
	require.NoError(t, s.UpsertMonitoredEntity(ctx, first))

	// Second activation wins priority and reason without adding a row.
	second := &MonitoredEntity{
		EntityType:  EntityCandidate,
		EntityID:    5,
		Priority:    10,
		Reason:      ReasonSubscribed,
		TriggeredBy: 5,
	}
	require.NoError(t, s.UpsertMonitoredEntity(ctx, second))

	active, err := s.ListActiveEntities(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 10, active[0].Priority)
	assert.Equal(t, ReasonSubscribed, active[0].Reason)
	assert.Equal(t, int64(5), active[0].TriggeredBy)
	assert.True(t, active[0].IsActive)
}

func TestDeactivateKeepsRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMonitoredEntity(ctx, &MonitoredEntity{
		EntityType: EntityParty, EntityID: 2, Priority: 8, Reason: ReasonPartyContext,
	}))
	require.NoError(t, s.DeactivateEntity(ctx, EntityParty, 2))

	me, err := s.GetMonitoredEntity(ctx, EntityParty, 2)
	require.NoError(t, err)
	assert.False(t, me.IsActive)

	active, err := s.ListActiveEntities(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDeactivateTriggeredBy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, me := range []MonitoredEntity{
		{EntityType: EntityCandidate, EntityID: 5, Priority: 10, Reason: ReasonSubscribed, TriggeredBy: 5},
		{EntityType: EntityCandidate, EntityID: 6, Priority: 9, Reason: ReasonOpponent, TriggeredBy: 5},
		{EntityType: EntityParty, EntityID: 2, Priority: 8, Reason: ReasonPartyContext, TriggeredBy: 5},
		{EntityType: EntityGeoUnit, EntityID: 10, Priority: 8, Reason: ReasonGeoAccess, TriggeredBy: 0},
	} {
		me := me
		require.NoError(t, s.UpsertMonitoredEntity(ctx, &me))
	}

	n, err := s.DeactivateTriggeredBy(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	active, err := s.ListActiveEntities(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, EntityGeoUnit, active[0].EntityType)
}

func TestSeedKeywordsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	words := []string{"Jane Doe", "Doe campaign"}
	require.NoError(t, s.SeedKeywords(ctx, EntityCandidate, 5, words, 10))
	require.NoError(t, s.SeedKeywords(ctx, EntityCandidate, 5, words, 10))

	got, err := s.ListActiveKeywords(ctx, EntityCandidate, 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestInsertArticleDedupBySourceURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &Article{
		Title:       "Budget vote delayed",
		SourceURL:   "https://example.org/budget-vote",
		PublishedAt: time.Now().UTC(),
	}
	created, err := s.InsertArticle(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	firstID := a.ID

	dup := &Article{
		Title:       "Budget vote delayed (syndicated)",
		SourceURL:   "https://example.org/budget-vote",
		PublishedAt: time.Now().UTC(),
	}
	created, err = s.InsertArticle(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, firstID, dup.ID)

	n, err := s.CountArticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertMentionIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &Article{Title: "x", SourceURL: "https://example.org/x", PublishedAt: time.Now().UTC()}
	_, err := s.InsertArticle(ctx, a)
	require.NoError(t, err)

	m := &EntityMention{ArticleID: a.ID, EntityType: EntityCandidate, EntityID: 5}
	require.NoError(t, s.UpsertMention(ctx, m))
	require.NoError(t, s.UpsertMention(ctx, m))
	require.NoError(t, s.UpsertMention(ctx, &EntityMention{ArticleID: a.ID, EntityType: EntityParty, EntityID: 2}))

	mentions, err := s.ListMentionsByArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, mentions, 2)
}

func TestAlertMessageContains(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertAlert(ctx, &Alert{
		UserID: 7, GeoUnitID: 1, Type: AlertNewsMention,
		Message: `Highly critical coverage: "Minister linked to 100% markup"`,
	}))

	found, err := s.AlertMessageContains(ctx, 7, "Minister linked to 100% markup")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.AlertMessageContains(ctx, 7, "entirely different headline")
	require.NoError(t, err)
	assert.False(t, found)

	// LIKE wildcards in the fragment must not match everything.
	found, err = s.AlertMessageContains(ctx, 7, "%nonexistent%")
	require.NoError(t, err)
	assert.False(t, found)

	// Other users never see this alert.
	found, err = s.AlertMessageContains(ctx, 8, "Minister linked")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindGeoUnit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	north := &GeoUnit{Name: "Northfield", Code: "NF-01"}
	require.NoError(t, s.CreateGeoUnit(ctx, north))
	require.NoError(t, s.CreateGeoUnit(ctx, &GeoUnit{Name: "Norton Vale", Code: "NV-02"}))

	byCode, err := s.FindGeoUnit(ctx, "NF-01")
	require.NoError(t, err)
	assert.Equal(t, north.ID, byCode.ID)

	byName, err := s.FindGeoUnit(ctx, "northfield")
	require.NoError(t, err)
	assert.Equal(t, north.ID, byName.ID)

	byPrefix, err := s.FindGeoUnit(ctx, "Northf")
	require.NoError(t, err)
	assert.Equal(t, north.ID, byPrefix.ID)

	_, err = s.FindGeoUnit(ctx, "Atlantis")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTopCandidatesByVotesUsesLatestElection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.CreateCandidate(ctx, &Candidate{ID: i, FullName: "C", GeoUnitID: 10}))
	}
	older := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	// Candidate 3 won the old election but came last in the latest one.
	require.NoError(t, s.CreateElectionResult(ctx, &ElectionResult{CandidateID: 3, GeoUnitID: 10, Votes: 9000, ElectionDate: older}))
	require.NoError(t, s.CreateElectionResult(ctx, &ElectionResult{CandidateID: 1, GeoUnitID: 10, Votes: 5000, ElectionDate: latest}))
	require.NoError(t, s.CreateElectionResult(ctx, &ElectionResult{CandidateID: 2, GeoUnitID: 10, Votes: 4000, ElectionDate: latest}))
	require.NoError(t, s.CreateElectionResult(ctx, &ElectionResult{CandidateID: 3, GeoUnitID: 10, Votes: 100, ElectionDate: latest}))

	top, err := s.TopCandidatesByVotes(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].ID)
	assert.Equal(t, int64(2), top[1].ID)
}

func TestListSignalsForEntitiesWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &Article{Title: "x", SourceURL: "https://example.org/sig", PublishedAt: time.Now().UTC()}
	_, err := s.InsertArticle(ctx, a)
	require.NoError(t, err)
	require.NoError(t, s.UpsertMention(ctx, &EntityMention{ArticleID: a.ID, EntityType: EntityCandidate, EntityID: 5}))

	now := time.Now().UTC()
	recent := &SentimentSignal{GeoUnitID: 10, SourceRefID: a.ID, Sentiment: SentimentPositive, SentimentScore: 0.5, Confidence: 0.9, CreatedAt: now.Add(-time.Hour)}
	stale := &SentimentSignal{GeoUnitID: 10, SourceRefID: a.ID, Sentiment: SentimentNegative, SentimentScore: -0.5, Confidence: 0.9, CreatedAt: now.AddDate(0, 0, -30)}
	require.NoError(t, s.InsertSignal(ctx, recent))
	require.NoError(t, s.InsertSignal(ctx, stale))

	got, err := s.ListSignalsForEntities(ctx, SignalWindow{From: now.AddDate(0, 0, -7), To: now},
		[]EntityMention{{EntityType: EntityCandidate, EntityID: 5}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)

	// No mention match, no signals.
	got, err = s.ListSignalsForEntities(ctx, SignalWindow{From: now.AddDate(0, 0, -7), To: now},
		[]EntityMention{{EntityType: EntityParty, EntityID: 99}})
	require.NoError(t, err)
	assert.Empty(t, got)
}
