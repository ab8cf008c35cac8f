package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/correlation"
	"github.com/spec-kit/chat-relay/internal/domain"
	"github.com/spec-kit/chat-relay/internal/observability"
	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

// Handler processes one claimed job.
type Handler func(ctx context.Context, job *domain.DeliveryJob) error

// FailedJobArchiver persists terminally failed jobs for operator review.
// Optional; a nil archiver only skips the durable copy.
type FailedJobArchiver interface {
	Archive(ctx context.Context, queueName string, job *domain.DeliveryJob) error
}

// WorkerPool consumes one named queue with bounded concurrency.
type WorkerPool struct {
	queue        *Queue
	queueName    string
	concurrency  int
	handler      Handler
	maxAttempts  int
	backoffBase  time.Duration
	pollInterval time.Duration
	visibility   time.Duration
	archiver     FailedJobArchiver
	metrics      *observability.Metrics
	logger       *zap.Logger

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopping chan struct{}
	stopOnce sync.Once
}

// PoolOptions configure a worker pool.
type PoolOptions struct {
	QueueName         string
	Concurrency       int
	MaxAttempts       int
	BackoffBase       time.Duration
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	Archiver          FailedJobArchiver
}

// NewWorkerPool wires a pool; Start launches it.
func NewWorkerPool(q *Queue, opts PoolOptions, handler Handler, metrics *observability.Metrics, logger *zap.Logger) *WorkerPool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 60 * time.Second
	}
	return &WorkerPool{
		queue:        q,
		queueName:    opts.QueueName,
		concurrency:  opts.Concurrency,
		handler:      handler,
		maxAttempts:  opts.MaxAttempts,
		backoffBase:  opts.BackoffBase,
		pollInterval: opts.PollInterval,
		visibility:   opts.VisibilityTimeout,
		archiver:     opts.Archiver,
		metrics:      metrics,
		logger:       logger.With(zap.String("queue", opts.QueueName)),
		stopping:     make(chan struct{}),
	}
}

// Start launches the workers and the stale-claim reaper. They run until Stop
// or context cancellation.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info("starting workers", zap.Int("concurrency", p.concurrency))

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reap(ctx)
	}()
}

// Stop tells workers to stop claiming new jobs and waits up to the grace
// period for in-flight jobs to finish with their contexts intact. Only after
// the grace period expires are in-flight handler contexts canceled; their
// queue bookkeeping still runs on a detached context, so a claimed job always
// ends up requeued, completed, or failed.
func (p *WorkerPool) Stop(grace time.Duration) {
	p.stopOnce.Do(func() { close(p.stopping) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("workers drained")
	case <-time.After(grace):
		p.logger.Warn("drain timeout exceeded; canceling in-flight jobs")
		p.cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			p.logger.Warn("abandoning unresponsive workers")
		}
	}

	if p.cancel != nil {
		p.cancel()
	}
}

func (p *WorkerPool) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopping:
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue failed", zap.Error(err))
			p.idle(ctx)
			continue
		}
		if job == nil {
			p.idle(ctx)
			continue
		}

		p.process(ctx, job)
	}
}

func (p *WorkerPool) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-p.stopping:
	case <-time.After(p.pollInterval):
	}
}

// reap periodically returns claims abandoned by crashed workers to the ready
// sets.
func (p *WorkerPool) reap(ctx context.Context) {
	ticker := time.NewTicker(p.visibility)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopping:
			return
		case <-ticker.C:
		}

		n, err := p.queue.ReclaimStale(ctx, p.queueName, p.visibility)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("stale-claim reclaim failed", zap.Error(err))
			continue
		}
		if n > 0 {
			p.logger.Warn("reclaimed stale jobs", zap.Int("count", n))
		}
	}
}

// process runs the handler and applies the job state machine:
// active → completed | failed(retryable) → queued | failed(terminal).
func (p *WorkerPool) process(ctx context.Context, job *domain.DeliveryJob) {
	jobCtx := correlation.WithID(ctx, job.CorrelationID)
	// Queue bookkeeping must survive shutdown cancellation; a claimed job
	// that cannot be marked or requeued would be orphaned in the jobs hash.
	bookCtx := context.WithoutCancel(jobCtx)
	job.Attempts++

	err := p.safeHandle(jobCtx, job)
	if err == nil {
		p.metrics.RecordJob(p.queueName, "completed")
		p.queue.MarkCompleted(bookCtx, p.queueName, job)
		return
	}

	job.LastError = err.Error()

	if apperrors.IsRetryable(err) && job.Attempts < p.maxAttempts {
		delay := p.backoffBase << (job.Attempts - 1)
		p.metrics.RecordJob(p.queueName, "retried")
		p.logger.Warn("job failed; requeueing",
			zap.String("job_id", job.ID),
			zap.String("correlation_id", job.CorrelationID),
			zap.Int("attempt", job.Attempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		if reqErr := p.queue.Requeue(bookCtx, p.queueName, job, delay); reqErr != nil {
			p.logger.Error("requeue failed; marking job failed", zap.Error(reqErr))
			p.fail(bookCtx, job)
		}
		return
	}

	p.logger.Error("job terminally failed",
		zap.String("job_id", job.ID),
		zap.String("correlation_id", job.CorrelationID),
		zap.Int("attempts", job.Attempts),
		zap.Error(err))
	p.fail(bookCtx, job)
}

func (p *WorkerPool) fail(ctx context.Context, job *domain.DeliveryJob) {
	p.metrics.RecordJob(p.queueName, "failed")
	p.queue.MarkFailed(ctx, p.queueName, job)
	if p.archiver != nil {
		if err := p.archiver.Archive(ctx, p.queueName, job); err != nil {
			p.logger.Error("failed-job archive write failed",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

func (p *WorkerPool) safeHandle(ctx context.Context, job *domain.DeliveryJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewInternalError(nil)
			p.logger.Error("handler panic recovered",
				zap.String("job_id", job.ID), zap.Any("panic", r))
		}
	}()
	return p.handler(ctx, job)
}
