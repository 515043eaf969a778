package queue

import (
	"time"

	"github.com/openelectorate/newspulse/internal/store"
)

// JobKind tags the closed set of job payload variants.
type JobKind string

const (
	KindEntityFetch JobKind = "entity_fetch"
	KindSourceSweep JobKind = "source_sweep"
	KindManual      JobKind = "manual"
)

// Payload is one of the tagged job variants. Workers dispatch on the
// concrete type, never on an untyped map.
type Payload interface {
	Kind() JobKind
}

// EntityFetchJob asks the ingestion engine to fetch news for one tracked
// entity. DomainPriority is the registry priority (0-10, 10 most urgent).
type EntityFetchJob struct {
	EntityType     store.EntityType `json:"entity_type"`
	EntityID       int64            `json:"entity_id"`
	DomainPriority int              `json:"domain_priority"`
}

func (EntityFetchJob) Kind() JobKind { return KindEntityFetch }

// SourceSweepJob asks the ingestion engine to sweep a whole feed source.
type SourceSweepJob struct {
	SourceName string `json:"source_name"`
	URL        string `json:"url"`
}

func (SourceSweepJob) Kind() JobKind { return KindSourceSweep }

// ManualTriggerJob wraps another payload for an administrative "ingest now"
// request. It jumps the queue and is never retried, so a manual re-run
// cannot start a retry storm.
type ManualTriggerJob struct {
	Target Payload `json:"target"`
}

func (ManualTriggerJob) Kind() JobKind { return KindManual }

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	StatusWaiting   JobStatus = "waiting"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is one unit of queued work.
type Job struct {
	ID          string
	Payload     Payload
	Priority    int // queue priority, 0 dequeued first
	Attempts    int
	MaxAttempts int
	Status      JobStatus
	LastError   string
	EnqueuedAt  time.Time
	NextRunAt   time.Time

	seq int64 // FIFO tiebreak within a priority
}

// jobHeap is a min-heap ordered by (priority, seq).
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}
