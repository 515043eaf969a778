package queue

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueStopped = errors.New("queue is not running")
	ErrQueueFull    = errors.New("queue is full")
)

// Handler executes one job. A returned error feeds the retry policy; it
// never propagates past the worker.
type Handler func(ctx context.Context, job *Job) error

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Name      string `json:"name"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Dropped   int    `json:"dropped"`
}

// Options configures a queue.
type Options struct {
	Name          string
	Workers       int           // bounded worker concurrency
	MaxAttempts   int           // attempts before a job moves to the failed set
	BackoffBase   time.Duration // exponential backoff base between attempts
	RateLimit     int           // max dispatches per RateWindow, 0 = unlimited
	RateWindow    time.Duration
	MaxJobs       int // bound on waiting jobs
	PollInterval  time.Duration
	MaxFailedKept int
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 5 * time.Second
	}
	if o.RateWindow <= 0 {
		o.RateWindow = time.Minute
	}
	if o.MaxJobs <= 0 {
		o.MaxJobs = 1000
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.MaxFailedKept <= 0 {
		o.MaxFailedKept = 100
	}
}

// Queue is a priority job queue with bounded workers, per-job retry with
// exponential backoff, and a sliding-window dispatch rate limit.
type Queue struct {
	opts    Options
	handler Handler
	log     *slog.Logger

	mu        sync.Mutex
	jobs      jobHeap
	failed    []*Job
	seq       int64
	active    int
	completed int
	dropped   int
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	// dispatch timestamps inside the current rate window
	dispatches []time.Time
}

// New creates a queue. The handler runs every dequeued job.
func New(opts Options, handler Handler) *Queue {
	opts.defaults()
	return &Queue{
		opts:    opts,
		handler: handler,
		log:     slog.With("component", "queue", "queue", opts.Name),
	}
}

// Enqueue adds a job at the given queue priority (0 dequeued first).
func (q *Queue) Enqueue(p Payload, priority int) (*Job, error) {
	maxAttempts := q.opts.MaxAttempts
	if p.Kind() == KindManual {
		// Manual triggers jump the queue and get exactly one attempt.
		priority = 0
		maxAttempts = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return nil, ErrQueueStopped
	}
	if q.jobs.Len() >= q.opts.MaxJobs {
		q.dropped++
		return nil, ErrQueueFull
	}

	q.seq++
	now := time.Now()
	job := &Job{
		ID:          uuid.NewString(),
		Payload:     p,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Status:      StatusWaiting,
		EnqueuedAt:  now,
		NextRunAt:   now,
		seq:         q.seq,
	}
	heap.Push(&q.jobs, job)
	return job, nil
}

// Start begins processing jobs until Stop is called or ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.running = true
	q.cancel = cancel
	q.done = make(chan struct{})
	q.mu.Unlock()

	go q.process(runCtx)
}

// Stop halts dispatching and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	done := q.done
	q.mu.Unlock()

	<-done
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Name:      q.opts.Name,
		Waiting:   q.jobs.Len(),
		Active:    q.active,
		Completed: q.completed,
		Failed:    len(q.failed),
		Dropped:   q.dropped,
	}
}

// FailedJobs returns the retained failed jobs, newest last.
func (q *Queue) FailedJobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.failed))
	copy(out, q.failed)
	return out
}

func (q *Queue) process(ctx context.Context) {
	defer close(q.done)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.opts.Workers)

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.Wait()
			return
		case <-ticker.C:
			for {
				job := q.nextReady()
				if job == nil {
					break
				}
				g.Go(func() error {
					q.run(gctx, job)
					return nil
				})
			}
		}
	}
}

// nextReady pops the highest-priority job that is due, or nil when nothing
// is due or the rate limit window is exhausted.
func (q *Queue) nextReady() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	if q.jobs.Len() == 0 {
		return nil
	}

	// The head may be backing off; scan for the best due job.
	idx := -1
	for i, j := range q.jobs {
		if j.NextRunAt.After(now) {
			continue
		}
		if idx < 0 || q.jobs.Less(i, idx) {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}

	if !q.allowDispatch(now) {
		return nil
	}

	job := q.jobs[idx]
	heap.Remove(&q.jobs, idx)
	job.Status = StatusActive
	q.active++
	return job
}

// allowDispatch enforces the sliding-window rate limit. Caller holds mu.
func (q *Queue) allowDispatch(now time.Time) bool {
	if q.opts.RateLimit <= 0 {
		return true
	}
	cutoff := now.Add(-q.opts.RateWindow)
	kept := q.dispatches[:0]
	for _, t := range q.dispatches {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	q.dispatches = kept
	if len(q.dispatches) >= q.opts.RateLimit {
		return false
	}
	q.dispatches = append(q.dispatches, now)
	return true
}

func (q *Queue) run(ctx context.Context, job *Job) {
	job.Attempts++
	err := q.handler(ctx, job)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--

	if err == nil {
		job.Status = StatusCompleted
		q.completed++
		return
	}

	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		q.failed = append(q.failed, job)
		if len(q.failed) > q.opts.MaxFailedKept {
			q.failed = q.failed[len(q.failed)-q.opts.MaxFailedKept:]
		}
		q.log.Warn("job failed permanently",
			"job", job.ID, "kind", job.Payload.Kind(), "attempts", job.Attempts, "error", err)
		return
	}

	// Exponential backoff: base * 2^(attempts-1).
	backoff := q.opts.BackoffBase << (job.Attempts - 1)
	job.Status = StatusWaiting
	job.NextRunAt = time.Now().Add(backoff)
	heap.Push(&q.jobs, job)
	q.log.Warn("job retry scheduled",
		"job", job.ID, "kind", job.Payload.Kind(), "attempt", job.Attempts, "backoff", backoff, "error", err)
}
