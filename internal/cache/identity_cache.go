package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/chat-relay/internal/domain"
	apperrors "github.com/spec-kit/chat-relay/pkg/util/errorutil"
)

// IdentityCache is the single shared store for participant identity mappings.
// Keys expire after the configured TTL of inactivity; every write refreshes
// the TTL. Handler-local maps are deliberately not used anywhere: under
// horizontal scaling they split-brain the identity mapping.
type IdentityCache struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewIdentityCache constructs the cache over a shared Redis client.
func NewIdentityCache(rdb *redis.Client, namespace string, ttl time.Duration, logger *zap.Logger) *IdentityCache {
	return &IdentityCache{rdb: rdb, namespace: namespace, ttl: ttl, logger: logger}
}

func (c *IdentityCache) key(participantID string) string {
	return fmt.Sprintf("%s:%s", c.namespace, participantID)
}

// Get returns the mapping for a normalized participant id. A missing key
// returns (nil, nil). Store failures are returned as CacheUnavailable, which
// callers treat as a miss.
func (c *IdentityCache) Get(ctx context.Context, participantID string) (*domain.IdentityMapping, error) {
	raw, err := c.rdb.Get(ctx, c.key(participantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewCacheUnavailable(err)
	}

	var mapping domain.IdentityMapping
	if err := json.Unmarshal(raw, &mapping); err != nil {
		// A corrupt entry is as good as absent; re-resolution repairs it.
		c.logger.Warn("discarding corrupt identity mapping",
			zap.String("participant_id", participantID), zap.Error(err))
		return nil, nil
	}
	return &mapping, nil
}

// Put stores the mapping with the configured TTL.
func (c *IdentityCache) Put(ctx context.Context, mapping *domain.IdentityMapping) error {
	raw, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key(mapping.ParticipantID), raw, c.ttl).Err(); err != nil {
		return apperrors.NewCacheUnavailable(err)
	}
	return nil
}

// Touch advances lastMessageAt on an existing mapping and refreshes its TTL.
// Missing entries are left alone; the next resolve recreates them.
func (c *IdentityCache) Touch(ctx context.Context, participantID string, at time.Time) error {
	mapping, err := c.Get(ctx, participantID)
	if err != nil || mapping == nil {
		return err
	}
	mapping.LastMessageAt = at.UTC()
	mapping.UpdatedAt = time.Now().UTC()
	return c.Put(ctx, mapping)
}
