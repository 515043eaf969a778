package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openelectorate/newspulse/internal/queue"
	"github.com/openelectorate/newspulse/internal/store"
	"github.com/openelectorate/newspulse/pkg/alertscan"
	"github.com/openelectorate/newspulse/pkg/pulse"
)

func newTestScheduler(t *testing.T, sources []SweepSource) (*Scheduler, *store.SQLiteStore, *queue.Queue, *queue.Queue) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	noop := func(ctx context.Context, job *queue.Job) error { return nil }
	entityQ := queue.New(queue.Options{Name: "entity-fetch", PollInterval: time.Hour}, noop)
	sweepQ := queue.New(queue.Options{Name: "source-sweep", PollInterval: time.Hour}, noop)
	entityQ.Start(context.Background())
	sweepQ.Start(context.Background())
	t.Cleanup(entityQ.Stop)
	t.Cleanup(sweepQ.Stop)

	detector := alertscan.NewDetector(s, pulse.NewEngine(s), 1)
	sched := New(s, entityQ, sweepQ, detector, sources, time.Hour, time.Hour, time.Hour)
	return sched, s, entityQ, sweepQ
}

func TestEnqueueEntityJobsInvertsPriority(t *testing.T) {
	sched, s, entityQ, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	require.NoError(t, s.UpsertMonitoredEntity(ctx, &store.MonitoredEntity{
		EntityType: store.EntityCandidate, EntityID: 5, Priority: 10, Reason: store.ReasonSubscribed,
	}))
	require.NoError(t, s.UpsertMonitoredEntity(ctx, &store.MonitoredEntity{
		EntityType: store.EntityParty, EntityID: 2, Priority: 8, Reason: store.ReasonPartyContext,
	}))
	require.NoError(t, s.UpsertMonitoredEntity(ctx, &store.MonitoredEntity{
		EntityType: store.EntityGeoUnit, EntityID: 99, Priority: 7, Reason: store.ReasonGeoContext,
	}))
	require.NoError(t, s.DeactivateEntity(ctx, store.EntityGeoUnit, 99))

	sched.EnqueueEntityJobs(ctx)

	// One job per active entity; the deactivated one is skipped.
	assert.Equal(t, 2, entityQ.Stats().Waiting)
}

func TestEnqueueSweeps(t *testing.T) {
	sched, _, _, sweepQ := newTestScheduler(t, []SweepSource{
		{Name: "wire", URL: "https://example.org/rss"},
		{Name: "gazette", URL: "https://example.org/atom"},
	})

	sched.EnqueueSweeps()
	assert.Equal(t, 2, sweepQ.Stats().Waiting)
}

func TestRunStopsOnCancel(t *testing.T) {
	sched, _, entityQ, _ := newTestScheduler(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	// The initial tick runs before the loop settles.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
	assert.Zero(t, entityQ.Stats().Waiting) // empty registry, nothing queued
}
