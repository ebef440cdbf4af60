package postgres

import (
	"context"
	"fmt"
	"time"

	"cartlift/domain"

	"gorm.io/gorm"
)

// EventRepository is the read-only view of the serving layer's
// interaction_events table.
type EventRepository struct {
	DB *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{DB: db}
}

// QueryEvents returns the shop's events since the cutoff, oldest first.
// An empty kinds slice means all kinds.
func (r *EventRepository) QueryEvents(ctx context.Context, shop string, kinds []string, since time.Time) ([]domain.InteractionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).
		Where("shop = ?", shop).
		Where("created_at >= ?", since).
		Order("created_at ASC")
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}

	var events []domain.InteractionEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return events, nil
}

// RecentServed returns up to limit recommendation_served events since
// the cutoff, newest first.
func (r *EventRepository) RecentServed(ctx context.Context, shop string, since time.Time, limit int) ([]domain.InteractionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var events []domain.InteractionEvent
	err := r.DB.WithContext(ctx).
		Where("shop = ?", shop).
		Where("kind = ?", domain.EventRecoServed).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query served events: %w", err)
	}

	return events, nil
}

// DistinctShops lists every shop with events since the cutoff, used by
// the run-for-all-shops trigger mode.
func (r *EventRepository) DistinctShops(ctx context.Context, since time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var shops []string
	err := r.DB.WithContext(ctx).
		Model(&domain.InteractionEvent{}).
		Where("created_at >= ?", since).
		Distinct("shop").
		Order("shop ASC").
		Pluck("shop", &shops).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}

	return shops, nil
}
