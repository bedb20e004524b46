package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueStopped is returned once the queue has been stopped or was never started.
	ErrQueueStopped = errors.New("queue not running")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. The context is cancelled when the queue stops.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	// MaxRetries is the number of extra attempts after a failure. Zero disables retries.
	MaxRetries int
	RetryDelay time.Duration
	// OnRequeueFailure is called when a retry could not be put back on the queue.
	OnRequeueFailure func(Job, error)
	Logger           *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	onRequeue  func(Job, error)
	logger     *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	active  int
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		onRequeue:  cfg.OnRequeueFailure,
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit. Jobs still buffered are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name, "dropped", len(q.jobs))
}

// Enqueue pushes a job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueStopped)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

// Depth reports buffered plus in-flight jobs.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) + q.active
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.track(1)
			err := q.handler(q.ctx, job)
			q.track(-1)
			if err != nil {
				q.handleFailure(workerID, job, err)
			}
		}
	}
}

func (q *Queue) track(delta int) {
	q.mu.Lock()
	q.active += delta
	q.mu.Unlock()
}

func (q *Queue) handleFailure(workerID int, job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Sugar().Errorw("job failed", "queue", q.name, "worker", workerID, "job_id", job.ID, "type", job.Type, "attempts", job.Attempt, "error", err)
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "worker", workerID, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	go func(j Job) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
				if q.onRequeue != nil {
					q.onRequeue(j, err)
				}
			}
		}
	}(job)
}
