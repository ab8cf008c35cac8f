package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/chat-relay/internal/domain"
)

// FailedJobRecord is the durable copy of a terminally failed job.
type FailedJobRecord struct {
	ID            int64           `json:"id"`
	JobID         string          `json:"jobId"`
	Queue         string          `json:"queue"`
	Kind          string          `json:"kind"`
	CorrelationID string          `json:"correlationId"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	FailedAt      time.Time       `json:"failedAt"`
}

// FailedJobRepository persists terminally failed jobs for manual intervention.
type FailedJobRepository interface {
	Archive(ctx context.Context, queueName string, job *domain.DeliveryJob) error
	ListRecent(ctx context.Context, limit int) ([]FailedJobRecord, error)
}

type failedJobRepository struct {
	pool *pgxpool.Pool
}

// NewFailedJobRepository instantiates the repository.
func NewFailedJobRepository(pool *pgxpool.Pool) FailedJobRepository {
	return &failedJobRepository{pool: pool}
}

func (r *failedJobRepository) Archive(ctx context.Context, queueName string, job *domain.DeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO failed_jobs (job_id, queue, kind, correlation_id, attempts, last_error, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.pool.Exec(ctx, query,
		job.ID, queueName, string(job.Kind), job.CorrelationID, job.Attempts, job.LastError, payload)
	return err
}

func (r *failedJobRepository) ListRecent(ctx context.Context, limit int) ([]FailedJobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, job_id, queue, kind, correlation_id, attempts, last_error, payload, failed_at
        FROM failed_jobs ORDER BY failed_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFailedJobs(rows)
}

func scanFailedJobs(rows pgx.Rows) ([]FailedJobRecord, error) {
	var result []FailedJobRecord
	for rows.Next() {
		var rec FailedJobRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.Queue,
			&rec.Kind,
			&rec.CorrelationID,
			&rec.Attempts,
			&rec.LastError,
			&rec.Payload,
			&rec.FailedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
