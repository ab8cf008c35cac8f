package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chat-relay/internal/queue"
	"github.com/spec-kit/chat-relay/internal/repository"
)

// OpsHandler exposes queue stats and the failed-jobs listing for operators.
type OpsHandler struct {
	queue      *queue.Queue
	failedJobs repository.FailedJobRepository
}

// NewOpsHandler constructs the handler. failedJobs may be nil when Postgres
// is not configured; listing then falls back to the queue's bounded history.
func NewOpsHandler(q *queue.Queue, failedJobs repository.FailedJobRepository) *OpsHandler {
	return &OpsHandler{queue: q, failedJobs: failedJobs}
}

// QueueStats GET /internal/queue/stats.
func (h *OpsHandler) QueueStats(c *fiber.Ctx) error {
	stats := fiber.Map{}
	for _, name := range []string{queue.MessageQueue, queue.StatusQueue, queue.OutboundQueue} {
		s, err := h.queue.QueueStats(c.UserContext(), name)
		if err != nil {
			return err
		}
		stats[name] = s
	}
	return c.JSON(fiber.Map{"data": stats})
}

// FailedJobs GET /internal/jobs/failed.
func (h *OpsHandler) FailedJobs(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	if h.failedJobs != nil {
		records, err := h.failedJobs.ListRecent(c.UserContext(), limit)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": records})
	}

	jobs := []any{}
	for _, name := range []string{queue.MessageQueue, queue.StatusQueue, queue.OutboundQueue} {
		recent, err := h.queue.FailedJobs(c.UserContext(), name, limit)
		if err != nil {
			return err
		}
		for i := range recent {
			jobs = append(jobs, recent[i])
		}
	}
	return c.JSON(fiber.Map{"data": jobs})
}
