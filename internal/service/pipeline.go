package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/domain"
	"github.com/spec-kit/chat-relay/internal/platform"
	"github.com/spec-kit/chat-relay/internal/repository"
	"github.com/spec-kit/chat-relay/internal/resolve"
	"github.com/spec-kit/chat-relay/internal/translate"
	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

// PlatformMessenger is the slice of the platform client the pipeline needs.
type PlatformMessenger interface {
	CreateMessage(ctx context.Context, conversationID int, msg *domain.OutboundMessage) (*platform.Message, error)
}

// IdentityResolver resolves and refreshes participant identity mappings.
type IdentityResolver interface {
	Resolve(ctx context.Context, participantID, displayNameHint string) (resolve.Identity, error)
	Touch(ctx context.Context, participantID string, at time.Time)
}

// ProviderSender pushes outgoing messages to the provider.
type ProviderSender interface {
	Send(ctx context.Context, req *domain.ProviderSendRequest) (string, error)
}

// Pipeline executes queued jobs: inbound messages, status updates and
// platform-originated outbound messages.
type Pipeline struct {
	resolver   IdentityResolver
	platform   PlatformMessenger
	provider   ProviderSender
	messageLog repository.MessageLogRepository
	sourceTag  string
	logger     *zap.Logger
}

// PipelineDependencies bundles collaborators for the pipeline.
type PipelineDependencies struct {
	Resolver   IdentityResolver
	Platform   PlatformMessenger
	Provider   ProviderSender
	MessageLog repository.MessageLogRepository
	SourceTag  string
}

// NewPipeline constructs the pipeline.
func NewPipeline(deps PipelineDependencies, logger *zap.Logger) *Pipeline {
	tag := deps.SourceTag
	if tag == "" {
		tag = "chat-relay"
	}
	return &Pipeline{
		resolver:   deps.Resolver,
		platform:   deps.Platform,
		provider:   deps.Provider,
		messageLog: deps.MessageLog,
		sourceTag:  tag,
		logger:     logger,
	}
}

// ProcessMessage handles one inbound envelope end to end: dedupe, identity
// resolution, translation, delivery, cache refresh, durable record. Transient
// failures propagate so the queue's retry policy applies; translation and
// validation failures are terminal.
func (p *Pipeline) ProcessMessage(ctx context.Context, job *domain.DeliveryJob) error {
	env := job.Envelope
	if env == nil {
		return apperrors.NewValidationError("message job missing envelope", nil)
	}
	if env.FromMe {
		// Loopback from our own outbound path; intake filters these, but a
		// replayed job must not re-ingest one either.
		return nil
	}

	log := p.logger.With(
		zap.String("correlation_id", job.CorrelationID),
		zap.String("message_id", env.MessageID))

	if seen, err := p.alreadyDelivered(ctx, env.MessageID); err != nil {
		return err
	} else if seen {
		log.Info("duplicate delivery skipped")
		return nil
	}

	identity, err := p.resolver.Resolve(ctx, env.ParticipantID, env.PushName)
	if err != nil {
		return err
	}

	out, err := translate.ToPlatform(env, translate.Context{SourceTag: p.sourceTag})
	if err != nil {
		p.recordFailure(ctx, env, job.CorrelationID)
		return err
	}

	created, err := p.platform.CreateMessage(ctx, identity.ConversationID, out)
	if err != nil {
		return err
	}

	at := env.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	p.resolver.Touch(ctx, env.ParticipantID, at)

	p.record(ctx, env, job.CorrelationID, identity, created, out)

	log.Info("message delivered",
		zap.Int("conversation_id", identity.ConversationID),
		zap.String("content_type", string(env.Kind())))
	return nil
}

// ProcessStatus applies a provider delivery-status update to the message log.
func (p *Pipeline) ProcessStatus(ctx context.Context, job *domain.DeliveryJob) error {
	evt := job.Status
	if evt == nil {
		return apperrors.NewValidationError("status job missing event", nil)
	}
	if p.messageLog == nil {
		p.logger.Debug("message log not configured; dropping status update",
			zap.String("message_id", evt.MessageID))
		return nil
	}

	err := p.messageLog.UpdateStatus(ctx, evt.MessageID, evt.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		// Status for a message this relay never saw; nothing to retry.
		p.logger.Debug("status update for unknown message",
			zap.String("message_id", evt.MessageID), zap.String("status", evt.Status))
		return nil
	}
	return err
}

// ProcessOutbound relays a platform-originated message to the provider.
func (p *Pipeline) ProcessOutbound(ctx context.Context, job *domain.DeliveryJob) error {
	msg := job.Outbound
	if msg == nil {
		return apperrors.NewValidationError("outbound job missing message", nil)
	}

	req, degraded := translate.ToProvider(msg)
	if degraded {
		p.logger.Warn("no provider send shape for attachment kind; degraded to text",
			zap.String("correlation_id", job.CorrelationID))
	}

	providerID, err := p.provider.Send(ctx, req)
	if err != nil {
		return err
	}

	p.logger.Info("outbound message sent",
		zap.String("correlation_id", job.CorrelationID),
		zap.String("provider_message_id", providerID))
	return nil
}

func (p *Pipeline) alreadyDelivered(ctx context.Context, dedupeToken string) (bool, error) {
	if p.messageLog == nil {
		return false, nil
	}
	return p.messageLog.Exists(ctx, dedupeToken)
}

func (p *Pipeline) record(ctx context.Context, env *domain.InboundEnvelope, correlationID string, identity resolve.Identity, created *platform.Message, out *domain.OutboundMessage) {
	if p.messageLog == nil {
		return
	}
	msgID := int64(created.ID)
	convID := int64(identity.ConversationID)
	rec := &repository.MessageRecord{
		DedupeToken:            env.MessageID,
		ParticipantID:          domain.NormalizeParticipantID(env.ParticipantID),
		PlatformMessageID:      &msgID,
		PlatformConversationID: &convID,
		ContentType:            string(env.Kind()),
		DeliveryStatus:         "delivered",
		CorrelationID:          correlationID,
	}
	if err := p.messageLog.Record(ctx, rec); err != nil {
		p.logger.Error("failed to record delivered message",
			zap.String("message_id", env.MessageID), zap.Error(err))
	}
}

func (p *Pipeline) recordFailure(ctx context.Context, env *domain.InboundEnvelope, correlationID string) {
	if p.messageLog == nil {
		return
	}
	rec := &repository.MessageRecord{
		DedupeToken:    env.MessageID,
		ParticipantID:  domain.NormalizeParticipantID(env.ParticipantID),
		ContentType:    string(env.Kind()),
		DeliveryStatus: "translation_failed",
		CorrelationID:  correlationID,
	}
	if err := p.messageLog.Record(ctx, rec); err != nil {
		p.logger.Error("failed to record translation failure",
			zap.String("message_id", env.MessageID), zap.Error(err))
	}
}
