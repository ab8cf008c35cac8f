package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/domain"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "relay", 5, zap.NewNop())
}

func testJob(kind domain.JobKind) *domain.DeliveryJob {
	return &domain.DeliveryJob{
		ID:            uuid.NewString(),
		Kind:          kind,
		CorrelationID: uuid.NewString(),
	}
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	job := testJob(domain.JobKindMessage)
	if err := q.Enqueue(ctx, MessageQueue, job, EnqueueOptions{Priority: domain.PriorityHigh}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	got, err := q.Dequeue(ctx, MessageQueue)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("expected job %s, got %+v", job.ID, got)
	}
	if got.State != domain.JobStateActive {
		t.Fatalf("claimed job must be active, got %q", got.State)
	}

	// Claimed jobs are not re-delivered.
	again, err := q.Dequeue(ctx, MessageQueue)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if again != nil {
		t.Fatalf("expected empty queue, got %+v", again)
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	low := testJob(domain.JobKindMessage)
	if err := q.Enqueue(ctx, MessageQueue, low, EnqueueOptions{Priority: domain.PriorityLow}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	high := testJob(domain.JobKindMessage)
	if err := q.Enqueue(ctx, MessageQueue, high, EnqueueOptions{Priority: domain.PriorityHigh}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	first, err := q.Dequeue(ctx, MessageQueue)
	if err != nil || first == nil {
		t.Fatalf("Dequeue() = %v, %v", first, err)
	}
	if first.ID != high.ID {
		t.Fatal("high priority must be claimed before low, despite later enqueue")
	}

	second, err := q.Dequeue(ctx, MessageQueue)
	if err != nil || second == nil {
		t.Fatalf("Dequeue() = %v, %v", second, err)
	}
	if second.ID != low.ID {
		t.Fatalf("expected low priority job second, got %s", second.ID)
	}
}

func TestQueue_DelayPostponesVisibility(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	job := testJob(domain.JobKindStatus)
	if err := q.Enqueue(ctx, StatusQueue, job, EnqueueOptions{
		Priority: domain.PriorityLow,
		Delay:    80 * time.Millisecond,
	}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	got, err := q.Dequeue(ctx, StatusQueue)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got != nil {
		t.Fatalf("delayed job must not be visible yet, got %+v", got)
	}

	time.Sleep(120 * time.Millisecond)
	got, err = q.Dequeue(ctx, StatusQueue)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("expected job after delay, got %+v", got)
	}
}

func TestQueue_TerminalStatesAndStats(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	completed := testJob(domain.JobKindMessage)
	if err := q.Enqueue(ctx, MessageQueue, completed, EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	failed := testJob(domain.JobKindMessage)
	if err := q.Enqueue(ctx, MessageQueue, failed, EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	j1, _ := q.Dequeue(ctx, MessageQueue)
	q.MarkCompleted(ctx, MessageQueue, j1)
	j2, _ := q.Dequeue(ctx, MessageQueue)
	j2.LastError = "platform down"
	q.MarkFailed(ctx, MessageQueue, j2)

	stats, err := q.QueueStats(ctx, MessageQueue)
	if err != nil {
		t.Fatalf("QueueStats() error: %v", err)
	}
	if stats.Queued != 0 || stats.Active != 0 || stats.Completed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	failedJobs, err := q.FailedJobs(ctx, MessageQueue, 10)
	if err != nil {
		t.Fatalf("FailedJobs() error: %v", err)
	}
	if len(failedJobs) != 1 || failedJobs[0].LastError != "platform down" {
		t.Fatalf("unexpected failed jobs %+v", failedJobs)
	}
}

// Terminal job history is bounded by the retention size.
func TestQueue_BoundedRetention(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t) // retention 5
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		job := testJob(domain.JobKindMessage)
		if err := q.Enqueue(ctx, MessageQueue, job, EnqueueOptions{}); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		claimed, err := q.Dequeue(ctx, MessageQueue)
		if err != nil || claimed == nil {
			t.Fatalf("Dequeue() = %v, %v", claimed, err)
		}
		q.MarkFailed(ctx, MessageQueue, claimed)
	}

	stats, err := q.QueueStats(ctx, MessageQueue)
	if err != nil {
		t.Fatalf("QueueStats() error: %v", err)
	}
	if stats.Failed != 5 {
		t.Fatalf("expected retention cap of 5, got %d", stats.Failed)
	}
}

// A claim is visible in the in-flight tracking until a terminal mark releases
// it.
func TestQueue_ClaimTrackedUntilTerminal(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	job := testJob(domain.JobKindMessage)
	if err := q.Enqueue(ctx, MessageQueue, job, EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	claimed, err := q.Dequeue(ctx, MessageQueue)
	if err != nil || claimed == nil {
		t.Fatalf("Dequeue() = %v, %v", claimed, err)
	}
	stats, err := q.QueueStats(ctx, MessageQueue)
	if err != nil {
		t.Fatalf("QueueStats() error: %v", err)
	}
	if stats.Active != 1 || stats.Queued != 0 {
		t.Fatalf("claimed job must be tracked as active, got %+v", stats)
	}

	q.MarkCompleted(ctx, MessageQueue, claimed)
	stats, err = q.QueueStats(ctx, MessageQueue)
	if err != nil {
		t.Fatalf("QueueStats() error: %v", err)
	}
	if stats.Active != 0 || stats.Completed != 1 {
		t.Fatalf("terminal mark must release the claim, got %+v", stats)
	}
}

// Claims older than the visibility timeout return to their ready set; fresh
// claims stay untouched.
func TestQueue_ReclaimStale(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	job := testJob(domain.JobKindMessage)
	if err := q.Enqueue(ctx, MessageQueue, job, EnqueueOptions{Priority: domain.PriorityHigh}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if claimed, err := q.Dequeue(ctx, MessageQueue); err != nil || claimed == nil {
		t.Fatalf("Dequeue() = %v, %v", claimed, err)
	}

	n, err := q.ReclaimStale(ctx, MessageQueue, time.Hour)
	if err != nil {
		t.Fatalf("ReclaimStale() error: %v", err)
	}
	if n != 0 {
		t.Fatalf("fresh claim must not be reclaimed, got %d", n)
	}

	time.Sleep(20 * time.Millisecond)
	n, err = q.ReclaimStale(ctx, MessageQueue, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ReclaimStale() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", n)
	}

	got, err := q.Dequeue(ctx, MessageQueue)
	if err != nil || got == nil || got.ID != job.ID {
		t.Fatalf("reclaimed job must be claimable again, got %v, %v", got, err)
	}
	if got.Priority != domain.PriorityHigh {
		t.Fatalf("reclaim must preserve priority, got %d", got.Priority)
	}
}

func TestQueue_EnvelopeSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	job := testJob(domain.JobKindMessage)
	job.Envelope = &domain.InboundEnvelope{
		ParticipantID: "5511999999999",
		MessageID:     "M1",
		Type:          "text",
		Text:          &domain.TextContent{Body: "hello"},
	}
	if err := q.Enqueue(ctx, MessageQueue, job, EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	got, err := q.Dequeue(ctx, MessageQueue)
	if err != nil || got == nil {
		t.Fatalf("Dequeue() = %v, %v", got, err)
	}
	if got.Envelope == nil || got.Envelope.Text == nil || got.Envelope.Text.Value() != "hello" {
		t.Fatalf("envelope did not survive the queue, got %+v", got.Envelope)
	}
}
