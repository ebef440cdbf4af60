package postgres

import (
	"context"
	"fmt"
	"time"

	"cartlift/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PerformanceRepository struct {
	DB *gorm.DB
}

func NewPerformanceRepository(db *gorm.DB) *PerformanceRepository {
	return &PerformanceRepository{DB: db}
}

// Upsert fully overwrites the product's snapshot row. The scorer
// recomputes from the window each run, so no field is accumulated.
func (r *PerformanceRepository) Upsert(ctx context.Context, perf domain.ProductPerformance) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop"}, {Name: "product_id"}},
			UpdateAll: true,
		},
	).Create(&perf).Error
	if err != nil {
		return fmt.Errorf("failed to upsert product performance: %w", err)
	}

	return nil
}

// Get returns one product's snapshot, nil when none is stored.
func (r *PerformanceRepository) Get(ctx context.Context, shop, productID string) (*domain.ProductPerformance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var perf domain.ProductPerformance
	err := r.DB.WithContext(ctx).
		Where("shop = ? AND product_id = ?", shop, productID).
		First(&perf).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product performance: %w", err)
	}

	return &perf, nil
}

// ListBlacklisted returns the products currently excluded from serving.
func (r *PerformanceRepository) ListBlacklisted(ctx context.Context, shop string) ([]domain.ProductPerformance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []domain.ProductPerformance
	err := r.DB.WithContext(ctx).
		Where("shop = ? AND is_blacklisted = ?", shop, true).
		Order("last_updated DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklisted products: %w", err)
	}

	return rows, nil
}

// PurgeStale drops snapshot rows that have not been refreshed since the
// cutoff, keeping the table aligned with the rolling window.
func (r *PerformanceRepository) PurgeStale(ctx context.Context, shop string, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}

	res := r.DB.WithContext(ctx).
		Where("shop = ? AND last_updated < ?", shop, before).
		Delete(&domain.ProductPerformance{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge stale performance rows: %w", res.Error)
	}

	return res.RowsAffected, nil
}
