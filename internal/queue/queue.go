package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/domain"
)

// Queue names, one per job kind. Distinct worker pools consume each.
const (
	MessageQueue  = "process-message"
	StatusQueue   = "process-status"
	OutboundQueue = "process-outbound"
)

var priorities = []domain.JobPriority{domain.PriorityHigh, domain.PriorityLow}

// Queue is a Redis-backed delayed priority queue. Ready jobs live in sorted
// sets scored by ready-time, one set per priority level; payloads live in a
// hash until the job reaches a terminal state. Claimed jobs are tracked in an
// in-flight set scored by claim time so a crashed worker's jobs can be
// reclaimed. Completed and failed payloads are retained in bounded lists for
// operational visibility.
type Queue struct {
	rdb       *redis.Client
	namespace string
	retention int
	logger    *zap.Logger
}

// EnqueueOptions control scheduling of a job.
type EnqueueOptions struct {
	Priority domain.JobPriority
	Delay    time.Duration
}

// Stats summarizes one named queue.
type Stats struct {
	Queued    int64 `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// New constructs a queue over a shared Redis client.
func New(rdb *redis.Client, namespace string, retention int, logger *zap.Logger) *Queue {
	if retention <= 0 {
		retention = 200
	}
	return &Queue{rdb: rdb, namespace: namespace, retention: retention, logger: logger}
}

func (q *Queue) readyKey(queueName string, priority domain.JobPriority) string {
	return fmt.Sprintf("%s:%s:ready:%d", q.namespace, queueName, priority)
}

func (q *Queue) activeKey(queueName string) string {
	return fmt.Sprintf("%s:%s:active", q.namespace, queueName)
}

func (q *Queue) jobsKey(queueName string) string {
	return fmt.Sprintf("%s:%s:jobs", q.namespace, queueName)
}

func (q *Queue) doneKey(queueName, outcome string) string {
	return fmt.Sprintf("%s:%s:%s", q.namespace, queueName, outcome)
}

// Enqueue schedules a job. Delay postpones visibility; priority orders ready
// jobs relative to each other. Re-enqueueing a claimed job releases its
// in-flight entry.
func (q *Queue) Enqueue(ctx context.Context, queueName string, job *domain.DeliveryJob, opts EnqueueOptions) error {
	job.Priority = opts.Priority
	job.State = domain.JobStateQueued
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	readyAt := time.Now().Add(opts.Delay).UnixMilli()
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobsKey(queueName), job.ID, payload)
	pipe.ZAdd(ctx, q.readyKey(queueName, opts.Priority), redis.Z{
		Score:  float64(readyAt),
		Member: job.ID,
	})
	pipe.ZRem(ctx, q.activeKey(queueName), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s: %w", queueName, err)
	}

	q.logger.Debug("job enqueued",
		zap.String("queue", queueName),
		zap.String("job_id", job.ID),
		zap.Int("priority", int(opts.Priority)),
		zap.Duration("delay", opts.Delay))
	return nil
}

// Dequeue claims the next ready job, highest priority first. Returns nil when
// nothing is ready. Claiming atomically moves the job from its ready set into
// the in-flight set; the payload stays in the jobs hash until a terminal mark.
func (q *Queue) Dequeue(ctx context.Context, queueName string) (*domain.DeliveryJob, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	for _, priority := range priorities {
		key := q.readyKey(queueName, priority)
		ids, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: "-inf", Max: now, Count: 1,
		}).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}

		claim := q.rdb.TxPipeline()
		removed := claim.ZRem(ctx, key, ids[0])
		claim.ZAdd(ctx, q.activeKey(queueName), redis.Z{
			Score:  float64(time.Now().UnixMilli()),
			Member: ids[0],
		})
		if _, err := claim.Exec(ctx); err != nil {
			return nil, err
		}
		if removed.Val() == 0 {
			// Another worker claimed it first; the in-flight entry now
			// tracks that worker's claim.
			continue
		}

		raw, err := q.rdb.HGet(ctx, q.jobsKey(queueName), ids[0]).Bytes()
		if errors.Is(err, redis.Nil) {
			q.rdb.ZRem(ctx, q.activeKey(queueName), ids[0])
			continue
		}
		if err != nil {
			return nil, err
		}

		var job domain.DeliveryJob
		if err := json.Unmarshal(raw, &job); err != nil {
			q.logger.Error("dropping undecodable job",
				zap.String("queue", queueName), zap.String("job_id", ids[0]), zap.Error(err))
			drop := q.rdb.TxPipeline()
			drop.HDel(ctx, q.jobsKey(queueName), ids[0])
			drop.ZRem(ctx, q.activeKey(queueName), ids[0])
			_, _ = drop.Exec(ctx)
			continue
		}
		job.State = domain.JobStateActive
		return &job, nil
	}
	return nil, nil
}

// Requeue puts a failed-but-retryable job back with a delay.
func (q *Queue) Requeue(ctx context.Context, queueName string, job *domain.DeliveryJob, delay time.Duration) error {
	return q.Enqueue(ctx, queueName, job, EnqueueOptions{Priority: job.Priority, Delay: delay})
}

// ReclaimStale returns claimed-but-unfinished jobs older than the visibility
// timeout to their ready sets, making them claimable again. This is the
// recovery path for jobs whose worker crashed mid-flight.
func (q *Queue) ReclaimStale(ctx context.Context, queueName string, olderThan time.Duration) (int, error) {
	cutoff := strconv.FormatInt(time.Now().Add(-olderThan).UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.activeKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: cutoff,
	}).Result()
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, id := range ids {
		raw, err := q.rdb.HGet(ctx, q.jobsKey(queueName), id).Bytes()
		if errors.Is(err, redis.Nil) {
			// Finished elsewhere; only the tracking entry is stale.
			q.rdb.ZRem(ctx, q.activeKey(queueName), id)
			continue
		}
		if err != nil {
			return reclaimed, err
		}

		var job domain.DeliveryJob
		if err := json.Unmarshal(raw, &job); err != nil {
			q.logger.Error("dropping undecodable stale job",
				zap.String("queue", queueName), zap.String("job_id", id), zap.Error(err))
			drop := q.rdb.TxPipeline()
			drop.HDel(ctx, q.jobsKey(queueName), id)
			drop.ZRem(ctx, q.activeKey(queueName), id)
			_, _ = drop.Exec(ctx)
			continue
		}

		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, q.activeKey(queueName), id)
		pipe.ZAdd(ctx, q.readyKey(queueName, job.Priority), redis.Z{
			Score:  float64(time.Now().UnixMilli()),
			Member: id,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

// MarkCompleted records a finished job and releases its payload, keeping a
// bounded history.
func (q *Queue) MarkCompleted(ctx context.Context, queueName string, job *domain.DeliveryJob) {
	job.State = domain.JobStateCompleted
	q.finish(ctx, queueName, job, "completed")
}

// MarkFailed records a terminally failed job in the bounded failed list. It
// is never silently discarded.
func (q *Queue) MarkFailed(ctx context.Context, queueName string, job *domain.DeliveryJob) {
	job.State = domain.JobStateFailed
	q.finish(ctx, queueName, job, "failed")
}

func (q *Queue) finish(ctx context.Context, queueName string, job *domain.DeliveryJob, outcome string) {
	payload, err := json.Marshal(job)
	if err != nil {
		q.logger.Error("failed to serialize finished job", zap.Error(err))
		return
	}
	key := q.doneKey(queueName, outcome)
	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, q.jobsKey(queueName), job.ID)
	pipe.ZRem(ctx, q.activeKey(queueName), job.ID)
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(q.retention-1))
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Error("failed to record finished job",
			zap.String("queue", queueName), zap.String("outcome", outcome), zap.Error(err))
	}
}

// QueueStats reports depth and history sizes for a named queue.
func (q *Queue) QueueStats(ctx context.Context, queueName string) (Stats, error) {
	var stats Stats
	var err error
	for _, priority := range priorities {
		n, err := q.rdb.ZCard(ctx, q.readyKey(queueName, priority)).Result()
		if err != nil {
			return stats, err
		}
		stats.Queued += n
	}
	if stats.Active, err = q.rdb.ZCard(ctx, q.activeKey(queueName)).Result(); err != nil {
		return stats, err
	}
	if stats.Completed, err = q.rdb.LLen(ctx, q.doneKey(queueName, "completed")).Result(); err != nil {
		return stats, err
	}
	if stats.Failed, err = q.rdb.LLen(ctx, q.doneKey(queueName, "failed")).Result(); err != nil {
		return stats, err
	}
	return stats, nil
}

// FailedJobs lists recently failed jobs, newest first.
func (q *Queue) FailedJobs(ctx context.Context, queueName string, limit int) ([]domain.DeliveryJob, error) {
	if limit <= 0 || limit > q.retention {
		limit = q.retention
	}
	raws, err := q.rdb.LRange(ctx, q.doneKey(queueName, "failed"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]domain.DeliveryJob, 0, len(raws))
	for _, raw := range raws {
		var job domain.DeliveryJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
