package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRecord is one delivered (or failed) inbound message, keyed by the
// provider's message id for dedupe.
type MessageRecord struct {
	ID                     int64
	DedupeToken            string
	ParticipantID          string
	PlatformMessageID      *int64
	PlatformConversationID *int64
	ContentType            string
	DeliveryStatus         string
	CorrelationID          string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// MessageLogRepository records delivered messages and answers dedupe checks.
type MessageLogRepository interface {
	Exists(ctx context.Context, dedupeToken string) (bool, error)
	Record(ctx context.Context, record *MessageRecord) error
	UpdateStatus(ctx context.Context, dedupeToken, status string) error
}

type messageLogRepository struct {
	pool *pgxpool.Pool
}

// NewMessageLogRepository instantiates the repository.
func NewMessageLogRepository(pool *pgxpool.Pool) MessageLogRepository {
	return &messageLogRepository{pool: pool}
}

func (r *messageLogRepository) Exists(ctx context.Context, dedupeToken string) (bool, error) {
	const query = `SELECT 1 FROM message_log WHERE dedupe_token=$1`
	var one int
	err := r.pool.QueryRow(ctx, query, dedupeToken).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *messageLogRepository) Record(ctx context.Context, record *MessageRecord) error {
	const query = `
        INSERT INTO message_log (dedupe_token, participant_id, platform_message_id, platform_conversation_id, content_type, delivery_status, correlation_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (dedupe_token) DO NOTHING
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		record.DedupeToken,
		record.ParticipantID,
		record.PlatformMessageID,
		record.PlatformConversationID,
		record.ContentType,
		record.DeliveryStatus,
		record.CorrelationID,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: the record already exists, which is exactly what dedupe wants.
		return nil
	}
	return err
}

func (r *messageLogRepository) UpdateStatus(ctx context.Context, dedupeToken, status string) error {
	const query = `UPDATE message_log SET delivery_status=$1, updated_at=NOW() WHERE dedupe_token=$2`
	cmd, err := r.pool.Exec(ctx, query, status, dedupeToken)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
