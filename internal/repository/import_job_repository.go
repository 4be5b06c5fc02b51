package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
)

const importJobKeyPrefix = "import:job:"

// ImportJobRepository stores import job state in Redis. Jobs expire after the
// configured TTL; finished results are polled, not archived.
type ImportJobRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewImportJobRepository creates a new import job repository.
func NewImportJobRepository(client *redis.Client, ttl time.Duration) *ImportJobRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ImportJobRepository{client: client, ttl: ttl}
}

func importJobKey(id string) string {
	return importJobKeyPrefix + id
}

// Save stores the full job state, refreshing its TTL.
func (r *ImportJobRepository) Save(ctx context.Context, job *models.ImportJob) error {
	if r.client == nil {
		return fmt.Errorf("import job store is not configured")
	}
	if job == nil {
		return fmt.Errorf("job payload is nil")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal import job %s: %w", job.ID, err)
	}
	if err := r.client.Set(ctx, importJobKey(job.ID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set import job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads a job by id. Unknown or expired ids map to ErrNotFound.
func (r *ImportJobRepository) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	if r.client == nil {
		return nil, appErrors.ErrNotFound
	}
	raw, err := r.client.Get(ctx, importJobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get import job %s: %w", id, err)
	}
	var job models.ImportJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal import job %s: %w", id, err)
	}
	return &job, nil
}
