package postgres

import (
	"context"
	"fmt"
	"time"

	"cartlift/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttributionRepository struct {
	DB *gorm.DB
}

func NewAttributionRepository(db *gorm.DB) *AttributionRepository {
	return &AttributionRepository{DB: db}
}

// Upsert inserts the record once; webhook redeliveries for the same
// (shop, order, product) are no-ops, which keeps attribution idempotent
// under at-least-once delivery.
func (r *AttributionRepository) Upsert(ctx context.Context, rec domain.AttributionRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop"}, {Name: "order_id"}, {Name: "product_id"}},
			DoNothing: true,
		},
	).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert attribution record: %w", err)
	}

	return nil
}

// ListSince returns the shop's attribution records created after the
// cutoff; the performance scorer reads purchases from here.
func (r *AttributionRepository) ListSince(ctx context.Context, shop string, since time.Time) ([]domain.AttributionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var records []domain.AttributionRecord
	err := r.DB.WithContext(ctx).
		Where("shop = ?", shop).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attribution records: %w", err)
	}

	return records, nil
}

// ListForOrder returns the records already written for one order.
func (r *AttributionRepository) ListForOrder(ctx context.Context, shop, orderID string) ([]domain.AttributionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var records []domain.AttributionRecord
	err := r.DB.WithContext(ctx).
		Where("shop = ? AND order_id = ?", shop, orderID).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list order attributions: %w", err)
	}

	return records, nil
}
