package postgres

import (
	"context"
	"fmt"

	"cartlift/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insert batch size kept below the driver's parameter limit
const similarityInsertBatch = 500

type SimilarityRepository struct {
	DB *gorm.DB
}

func NewSimilarityRepository(db *gorm.DB) *SimilarityRepository {
	return &SimilarityRepository{DB: db}
}

// ReplaceForShop swaps the shop's entire similarity snapshot in one
// transaction. Concurrent readers either see the old snapshot or the
// new one, never a partially rebuilt set.
func (r *SimilarityRepository) ReplaceForShop(ctx context.Context, shop string, rows []domain.ProductSimilarity) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("shop = ?", shop).Delete(&domain.ProductSimilarity{}).Error; err != nil {
			return fmt.Errorf("delete previous snapshot: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, similarityInsertBatch).Error; err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace similarities for %s: %w", shop, err)
	}

	return nil
}

// Nudge seeds or bumps one directed similarity row, used by the
// missed-opportunity feedback path. The sample size counts how often
// the pairing was observed organically.
func (r *SimilarityRepository) Nudge(ctx context.Context, shop, productID1, productID2 string, scoreDelta float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	row := domain.ProductSimilarity{
		Shop:            shop,
		ProductID1:      productID1,
		ProductID2:      productID2,
		CoPurchaseScore: scoreDelta,
		OverallScore:    scoreDelta,
		SampleSize:      1,
	}

	err := r.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "shop"}, {Name: "product_id_1"}, {Name: "product_id_2"}},
			DoUpdates: clause.Assignments(map[string]any{
				"overall_score": gorm.Expr("product_similarities.overall_score + ?", scoreDelta),
				"sample_size":   gorm.Expr("product_similarities.sample_size + 1"),
			}),
		},
	).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to nudge similarity: %w", err)
	}

	return nil
}

// ListForShop returns the shop's stored snapshot ordered by score, the
// read path the serving layer uses.
func (r *SimilarityRepository) ListForShop(ctx context.Context, shop string) ([]domain.ProductSimilarity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []domain.ProductSimilarity
	err := r.DB.WithContext(ctx).
		Where("shop = ?", shop).
		Order("overall_score DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list similarities: %w", err)
	}

	return rows, nil
}
