package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
)

// RunQueue hands workbooks to a fixed set of workers. With the default single worker
// runs never overlap, so two uploads cannot race on the same remote batch.
type RunQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan queued
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type queued struct {
	job Job
	out chan Result
}

type Option func(*RunQueue)

func WithWorkers(n int) Option {
	return func(q *RunQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *RunQueue) {
		if n > 0 {
			q.ch = make(chan queued, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *RunQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewRunQueue(runner Runner, logger *slog.Logger, opts ...Option) *RunQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &RunQueue{
		runner:  runner,
		logger:  logger,
		workers: 1,
		timeout: 30 * time.Minute,
		ch:      make(chan queued, 16),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *RunQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.start", "worker_id", workerID)

				for item := range q.ch {
					q.process(workerID, item)
				}

				q.logger.Info("queue.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *RunQueue) process(workerID int, item queued) {
	job := item.job
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}

	start := time.Now()
	report, err := q.runner.RunFile(ctx, job.InputPath)
	if err != nil {
		q.logger.Error("queue.job.failed", "worker_id", workerID, "job_id", job.ID, "req_id", job.RequestID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
	} else {
		q.logger.Info("queue.job.ok", "worker_id", workerID, "job_id", job.ID, "req_id", job.RequestID,
			"waited_ms", start.Sub(job.SubmittedAt).Milliseconds(),
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	item.out <- Result{Job: job, Report: report, Err: err}
	close(item.out)
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *RunQueue) Enqueue(ctx context.Context, job Job) (<-chan Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "job_id", job.ID)
		return nil, ErrClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	item := queued{job: job, out: make(chan Result, 1)}
	select {
	case q.ch <- item:
		q.logger.Info("queue.enqueue.ok", "job_id", job.ID, "path", job.InputPath)
	default:
		q.logger.Warn("queue.enqueue.backpressure", "job_id", job.ID)
		select {
		case q.ch <- item:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return item.out, nil
}

func (q *RunQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.ok")
	}
}
