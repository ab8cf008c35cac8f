package resolve

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/domain"
	"github.com/spec-kit/chat-relay/internal/platform"
	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

// IdentityStore is the shared identity cache consumed by the resolver.
type IdentityStore interface {
	Get(ctx context.Context, participantID string) (*domain.IdentityMapping, error)
	Put(ctx context.Context, mapping *domain.IdentityMapping) error
	Touch(ctx context.Context, participantID string, at time.Time) error
}

// PlatformDirectory is the slice of the platform client the resolver needs.
type PlatformDirectory interface {
	SearchContact(ctx context.Context, phone string) (*platform.Contact, error)
	CreateContact(ctx context.Context, contact platform.NewContact) (*platform.Contact, error)
	OpenConversation(ctx context.Context, contactID int) (*platform.Conversation, error)
	CreateConversation(ctx context.Context, contactID int) (*platform.Conversation, error)
	InboxID() int
}

// Identity is the resolved platform-side pair for a participant.
type Identity struct {
	ContactID      int
	ConversationID int
}

const lockStripes = 64

// Resolver guarantees a single contact/conversation per participant. The
// resolve-then-cache-write sequence is serialized per participant (striped
// locks) so concurrent first messages cannot race to create duplicates.
type Resolver struct {
	cache    IdentityStore
	platform PlatformDirectory
	logger   *zap.Logger
	locks    [lockStripes]sync.Mutex
}

// NewResolver wires the resolver.
func NewResolver(cache IdentityStore, directory PlatformDirectory, logger *zap.Logger) *Resolver {
	return &Resolver{cache: cache, platform: directory, logger: logger}
}

// Resolve returns the platform contact/conversation pair for a participant,
// creating both on first contact. The cache is source of truth within its TTL
// window; cache store failures degrade to a miss since re-resolving against
// the platform by natural key is always correctness-preserving. No partial
// state is cached on failure.
func (r *Resolver) Resolve(ctx context.Context, participantID, displayNameHint string) (Identity, error) {
	normalized := domain.NormalizeParticipantID(participantID)
	if normalized == "" {
		return Identity{}, apperrors.NewValidationError("participant id has no digits", nil)
	}

	lock := r.lockFor(normalized)
	lock.Lock()
	defer lock.Unlock()

	mapping, err := r.cache.Get(ctx, normalized)
	if err != nil {
		if !apperrors.IsCacheUnavailable(err) {
			return Identity{}, err
		}
		r.logger.Warn("identity cache unavailable; treating as miss",
			zap.String("participant_id", normalized), zap.Error(err))
	}
	if mapping != nil {
		return Identity{
			ContactID:      mapping.PlatformContactID,
			ConversationID: mapping.PlatformConversationID,
		}, nil
	}

	contact, err := r.findOrCreateContact(ctx, normalized, displayNameHint)
	if err != nil {
		return Identity{}, err
	}

	conversation, err := r.findOrCreateConversation(ctx, contact.ID)
	if err != nil {
		return Identity{}, err
	}

	now := time.Now().UTC()
	mapping = &domain.IdentityMapping{
		ParticipantID:          normalized,
		PlatformContactID:      contact.ID,
		PlatformConversationID: conversation.ID,
		DisplayName:            displayNameHint,
		LastMessageAt:          now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := r.cache.Put(ctx, mapping); err != nil {
		// The resolved pair is still valid; only the cache write failed.
		r.logger.Warn("failed to cache identity mapping",
			zap.String("participant_id", normalized), zap.Error(err))
	}

	return Identity{ContactID: contact.ID, ConversationID: conversation.ID}, nil
}

// Touch advances lastMessageAt for a participant already resolved.
func (r *Resolver) Touch(ctx context.Context, participantID string, at time.Time) {
	normalized := domain.NormalizeParticipantID(participantID)
	lock := r.lockFor(normalized)
	lock.Lock()
	defer lock.Unlock()

	if err := r.cache.Touch(ctx, normalized, at); err != nil {
		r.logger.Warn("failed to touch identity mapping",
			zap.String("participant_id", normalized), zap.Error(err))
	}
}

func (r *Resolver) findOrCreateContact(ctx context.Context, phone, displayName string) (*platform.Contact, error) {
	contact, err := r.platform.SearchContact(ctx, phone)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		return contact, nil
	}

	name := displayName
	if name == "" {
		name = "+" + phone
	}
	return r.platform.CreateContact(ctx, platform.NewContact{
		InboxID:     r.platform.InboxID(),
		Name:        name,
		PhoneNumber: "+" + phone,
		Identifier:  phone,
	})
}

// findOrCreateConversation reuses an open conversation only; resolved and
// closed conversations never receive appended messages.
func (r *Resolver) findOrCreateConversation(ctx context.Context, contactID int) (*platform.Conversation, error) {
	conversation, err := r.platform.OpenConversation(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if conversation != nil {
		return conversation, nil
	}
	return r.platform.CreateConversation(ctx, contactID)
}

func (r *Resolver) lockFor(participantID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(participantID))
	return &r.locks[h.Sum32()%lockStripes]
}
