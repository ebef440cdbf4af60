package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cartlift/domain"

	"github.com/redis/go-redis/v9"
)

// feed entries outlive one schedule cycle of the slowest (weekly) job
const statusTTL = 7 * 24 * time.Hour

// StatusRepository keeps the per-shop, per-job status feed the merchant
// dashboard polls.
type StatusRepository struct {
	client *redis.Client
}

func NewStatusRepository(client *redis.Client) *StatusRepository {
	return &StatusRepository{client: client}
}

func statusKey(shop, job string) string {
	return fmt.Sprintf("jobs:status:%s:%s", shop, job)
}

func (r *StatusRepository) PutStatus(ctx context.Context, status domain.JobStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}

	key := statusKey(status.Shop, status.Job)
	if err := r.client.Set(ctx, key, data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job status: %w", err)
	}

	return nil
}

// GetStatus returns the latest status for one shop and job, nil when
// nothing has run inside the TTL.
func (r *StatusRepository) GetStatus(ctx context.Context, shop, job string) (*domain.JobStatus, error) {
	data, err := r.client.Get(ctx, statusKey(shop, job)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}

	var status domain.JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job status: %w", err)
	}

	return &status, nil
}
