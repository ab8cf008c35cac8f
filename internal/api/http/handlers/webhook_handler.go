package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/config"
	"github.com/spec-kit/chat-relay/internal/correlation"
	"github.com/spec-kit/chat-relay/internal/domain"
	"github.com/spec-kit/chat-relay/internal/intake"
	"github.com/spec-kit/chat-relay/internal/queue"
	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

// WebhookHandler accepts provider and platform webhook events, validates them
// and defers processing to the delivery queue. It answers within milliseconds;
// downstream failures after acceptance never surface to the webhook caller.
type WebhookHandler struct {
	queue  *queue.Queue
	cfg    config.QueueConfig
	logger *zap.Logger
}

// NewWebhookHandler constructs the handler.
func NewWebhookHandler(q *queue.Queue, cfg config.QueueConfig, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{queue: q, cfg: cfg, logger: logger}
}

type acceptedResponse struct {
	Accepted      bool   `json:"accepted"`
	CorrelationID string `json:"correlationId"`
	Timestamp     string `json:"timestamp"`
}

func accepted(c *fiber.Ctx, correlationID string) error {
	return c.JSON(acceptedResponse{
		Accepted:      true,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// MessageReceived POST /webhook/:provider/message-received.
func (h *WebhookHandler) MessageReceived(c *fiber.Ctx) error {
	correlationID := correlation.FromContext(c.UserContext())

	env, err := intake.DecodeMessage(c.Body())
	if err != nil {
		return err
	}

	if env.FromMe {
		// Loopback of our own outbound path; acknowledge and drop.
		h.logger.Debug("self-sent message dropped",
			zap.String("correlation_id", correlationID),
			zap.String("message_id", env.MessageID))
		return accepted(c, correlationID)
	}

	// Group chats yield to 1:1 traffic.
	priority := domain.PriorityHigh
	if env.IsGroup {
		priority = domain.PriorityLow
	}

	job := &domain.DeliveryJob{
		ID:            uuid.NewString(),
		Kind:          domain.JobKindMessage,
		CorrelationID: correlationID,
		Envelope:      env,
	}
	if err := h.queue.Enqueue(c.UserContext(), queue.MessageQueue, job, queue.EnqueueOptions{
		Priority: priority,
	}); err != nil {
		h.logger.Error("enqueue failed",
			zap.String("correlation_id", correlationID), zap.Error(err))
		return apperrors.NewInternalError(err)
	}

	return accepted(c, correlationID)
}

// MessageStatus POST /webhook/:provider/message-status. Status jobs are
// delayed a fixed interval to batch rapid sequential updates.
func (h *WebhookHandler) MessageStatus(c *fiber.Ctx) error {
	correlationID := correlation.FromContext(c.UserContext())

	evt, err := intake.DecodeStatus(c.Body())
	if err != nil {
		return err
	}

	job := &domain.DeliveryJob{
		ID:            uuid.NewString(),
		Kind:          domain.JobKindStatus,
		CorrelationID: correlationID,
		Status:        evt,
	}
	if err := h.queue.Enqueue(c.UserContext(), queue.StatusQueue, job, queue.EnqueueOptions{
		Priority: domain.PriorityLow,
		Delay:    h.cfg.StatusDelay(),
	}); err != nil {
		h.logger.Error("enqueue failed",
			zap.String("correlation_id", correlationID), zap.Error(err))
		return apperrors.NewInternalError(err)
	}

	return accepted(c, correlationID)
}

// platformWebhook is the platform's message_created event. Only outgoing,
// non-private agent messages are relayed back to the provider.
type platformWebhook struct {
	Event        string `json:"event"`
	MessageType  string `json:"message_type"`
	Private      bool   `json:"private"`
	Content      string `json:"content"`
	SourceID     string `json:"source_id"`
	Conversation struct {
		ID   int `json:"id"`
		Meta struct {
			Sender struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"sender"`
		} `json:"meta"`
	} `json:"conversation"`
	Sender struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"sender"`
	Attachments []struct {
		FileType string `json:"file_type"`
		DataURL  string `json:"data_url"`
		ThumbURL string `json:"thumb_url"`
	} `json:"attachments"`
}

// PlatformMessageCreated POST /webhook/platform/message-created.
func (h *WebhookHandler) PlatformMessageCreated(c *fiber.Ctx) error {
	correlationID := correlation.FromContext(c.UserContext())

	var hook platformWebhook
	if err := json.Unmarshal(c.Body(), &hook); err != nil {
		return apperrors.NewValidationError("malformed json body", nil)
	}

	if hook.Event != "" && hook.Event != "message_created" {
		return accepted(c, correlationID)
	}
	if hook.MessageType != domain.DirectionOutgoing || hook.Private {
		return accepted(c, correlationID)
	}
	if hook.SourceID != "" {
		// Carries a provider message id: this is our own relayed inbound
		// message echoing back. Relaying it again would loop.
		return accepted(c, correlationID)
	}

	phone := hook.Conversation.Meta.Sender.PhoneNumber
	if phone == "" {
		phone = hook.Sender.PhoneNumber
	}
	participant := domain.NormalizeParticipantID(phone)
	if participant == "" {
		return apperrors.NewValidationError("missing recipient phone number", nil)
	}

	outbound := &domain.PlatformOutbound{
		ConversationID: hook.Conversation.ID,
		ParticipantID:  participant,
		Content:        hook.Content,
		MessageType:    hook.MessageType,
		Private:        hook.Private,
	}
	for _, att := range hook.Attachments {
		outbound.Attachments = append(outbound.Attachments, domain.Attachment{
			Kind:         attachmentKind(att.FileType),
			URL:          att.DataURL,
			ThumbnailURL: att.ThumbURL,
		})
	}

	job := &domain.DeliveryJob{
		ID:            uuid.NewString(),
		Kind:          domain.JobKindOutbound,
		CorrelationID: correlationID,
		Outbound:      outbound,
	}
	if err := h.queue.Enqueue(c.UserContext(), queue.OutboundQueue, job, queue.EnqueueOptions{
		Priority: domain.PriorityHigh,
	}); err != nil {
		h.logger.Error("enqueue failed",
			zap.String("correlation_id", correlationID), zap.Error(err))
		return apperrors.NewInternalError(err)
	}

	return accepted(c, correlationID)
}

func attachmentKind(fileType string) domain.ContentKind {
	switch fileType {
	case "image":
		return domain.KindImage
	case "audio":
		return domain.KindAudio
	case "video":
		return domain.KindVideo
	case "file":
		return domain.KindDocument
	default:
		return domain.ContentKind(fileType)
	}
}
