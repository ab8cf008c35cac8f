package domain

import "time"

// JobKind discriminates queued units of work.
type JobKind string

const (
	JobKindMessage  JobKind = "process-message"
	JobKindStatus   JobKind = "process-status"
	JobKindOutbound JobKind = "process-outbound"
)

// JobPriority orders jobs within a queue.
type JobPriority int

const (
	PriorityHigh JobPriority = 0
	PriorityLow  JobPriority = 1
)

// Job states.
const (
	JobStateQueued    = "queued"
	JobStateActive    = "active"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)

// DeliveryJob is one queued unit of work. Exactly one payload field matching
// Kind is populated. Consumed at-least-once; downstream effects are idempotent
// via the envelope's dedupe token.
type DeliveryJob struct {
	ID            string      `json:"id"`
	Kind          JobKind     `json:"kind"`
	CorrelationID string      `json:"correlationId"`
	EnqueuedAt    time.Time   `json:"enqueuedAt"`
	Attempts      int         `json:"attempts"`
	Priority      JobPriority `json:"priority"`
	State         string      `json:"state"`
	LastError     string      `json:"lastError,omitempty"`

	Envelope *InboundEnvelope  `json:"envelope,omitempty"`
	Status   *StatusEvent      `json:"status,omitempty"`
	Outbound *PlatformOutbound `json:"outbound,omitempty"`
}
