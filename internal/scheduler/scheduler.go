package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/openelectorate/newspulse/internal/queue"
	"github.com/openelectorate/newspulse/internal/store"
	"github.com/openelectorate/newspulse/pkg/alertscan"
)

// SweepSource is one fixed-URL feed swept on the slow cycle.
type SweepSource struct {
	Name string
	URL  string
}

// Scheduler drives the periodic ticks: entity fetch jobs from the
// registry, whole-source sweeps, and alert scans.
type Scheduler struct {
	store       store.Store
	entityQueue *queue.Queue
	sweepQueue  *queue.Queue
	detector    *alertscan.Detector
	sources     []SweepSource
	log         *slog.Logger

	entityInt time.Duration
	sweepInt  time.Duration
	alertInt  time.Duration
}

// New creates a scheduler.
func New(
	s store.Store,
	entityQueue, sweepQueue *queue.Queue,
	detector *alertscan.Detector,
	sources []SweepSource,
	entityInt, sweepInt, alertInt time.Duration,
) *Scheduler {
	if entityInt == 0 {
		entityInt = 30 * time.Minute
	}
	if sweepInt == 0 {
		sweepInt = 2 * time.Hour
	}
	if alertInt == 0 {
		alertInt = time.Hour
	}
	return &Scheduler{
		store:       s,
		entityQueue: entityQueue,
		sweepQueue:  sweepQueue,
		detector:    detector,
		sources:     sources,
		log:         slog.With("component", "scheduler"),
		entityInt:   entityInt,
		sweepInt:    sweepInt,
		alertInt:    alertInt,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	entityTicker := time.NewTicker(s.entityInt)
	sweepTicker := time.NewTicker(s.sweepInt)
	alertTicker := time.NewTicker(s.alertInt)
	defer entityTicker.Stop()
	defer sweepTicker.Stop()
	defer alertTicker.Stop()

	// Run immediately on start.
	s.EnqueueEntityJobs(ctx)
	s.EnqueueSweeps()

	s.log.Info("scheduler running",
		"entity_interval", s.entityInt, "sweep_interval", s.sweepInt, "alert_interval", s.alertInt)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-entityTicker.C:
			s.EnqueueEntityJobs(ctx)
		case <-sweepTicker.C:
			s.EnqueueSweeps()
		case <-alertTicker.C:
			s.RunAlertScan(ctx)
		}
	}
}

// EnqueueEntityJobs reads the registry and queues one fetch job per active
// entity. Queue priority inverts the domain priority so priority-10
// entities are dequeued first.
func (s *Scheduler) EnqueueEntityJobs(ctx context.Context) {
	entities, err := s.store.ListActiveEntities(ctx)
	if err != nil {
		s.log.Warn("registry read failed", "error", err)
		return
	}

	enqueued := 0
	for _, me := range entities {
		_, err := s.entityQueue.Enqueue(queue.EntityFetchJob{
			EntityType:     me.EntityType,
			EntityID:       me.EntityID,
			DomainPriority: me.Priority,
		}, 10-me.Priority)
		if err != nil {
			s.log.Warn("enqueue failed",
				"entity_type", me.EntityType, "entity_id", me.EntityID, "error", err)
			continue
		}
		enqueued++
	}
	s.log.Info("entity tick", "active", len(entities), "enqueued", enqueued)
}

// EnqueueSweeps queues one job per configured sweep source.
func (s *Scheduler) EnqueueSweeps() {
	for _, src := range s.sources {
		if _, err := s.sweepQueue.Enqueue(queue.SourceSweepJob{
			SourceName: src.Name,
			URL:        src.URL,
		}, 5); err != nil {
			s.log.Warn("sweep enqueue failed", "source", src.Name, "error", err)
		}
	}
	s.log.Info("sweep tick", "sources", len(s.sources))
}

// RunAlertScan runs the anomaly detectors over every monitored candidate.
func (s *Scheduler) RunAlertScan(ctx context.Context) {
	created, err := s.detector.Scan(ctx)
	if err != nil {
		s.log.Warn("alert scan failed", "error", err)
		return
	}
	s.log.Info("alert scan complete", "alerts_created", created)
}
