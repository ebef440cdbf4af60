package postgres

import (
	"context"
	"fmt"
	"sort"

	"cartlift/domain"

	"gorm.io/gorm"
)

type ProfileRepository struct {
	DB *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{DB: db}
}

// Upsert creates or refreshes a profile keyed by (shop, session).
// Product sets only grow (union with the stored row); anonymous_id and
// data_retention_days are written on create and never touched again.
func (r *ProfileRepository) Upsert(ctx context.Context, profile domain.UserProfile) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	var created bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.UserProfile
		err := tx.Where("shop = ? AND session_id = ?", profile.Shop, profile.SessionID).
			First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err := tx.Create(&profile).Error; err != nil {
				return fmt.Errorf("create profile: %w", err)
			}
			created = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("query profile: %w", err)
		}

		updates := map[string]any{
			"customer_id":        profile.CustomerID,
			"privacy_level":      profile.PrivacyLevel,
			"viewed_products":    unionSet(existing.ViewedProducts, profile.ViewedProducts),
			"carted_products":    unionSet(existing.CartedProducts, profile.CartedProducts),
			"purchased_products": unionSet(existing.PurchasedProducts, profile.PurchasedProducts),
			"last_activity":      profile.LastActivity,
		}
		if profile.PriceRange != nil {
			updates["price_range"] = profile.PriceRange
		}

		err = tx.Model(&domain.UserProfile{}).
			Where("shop = ? AND session_id = ?", profile.Shop, profile.SessionID).
			Updates(updates).Error
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert profile: %w", err)
	}

	return created, nil
}

// Get returns one session's profile, nil when none exists.
func (r *ProfileRepository) Get(ctx context.Context, shop, sessionID string) (*domain.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var profile domain.UserProfile
	err := r.DB.WithContext(ctx).
		Where("shop = ? AND session_id = ?", shop, sessionID).
		First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	return &profile, nil
}

// MergePurchasedByCustomer unions the product ids into every profile
// row linked to the customer. Used by the attribution matcher so a
// purchase lands on the profile before the nightly rebuild.
func (r *ProfileRepository) MergePurchasedByCustomer(ctx context.Context, shop, customerID string, productIDs []string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if len(productIDs) == 0 {
		return nil
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profiles []domain.UserProfile
		err := tx.Where("shop = ? AND customer_id = ?", shop, customerID).
			Find(&profiles).Error
		if err != nil {
			return fmt.Errorf("query customer profiles: %w", err)
		}

		for i := range profiles {
			merged := unionSet(profiles[i].PurchasedProducts, productIDs)
			err := tx.Model(&domain.UserProfile{}).
				Where("shop = ? AND session_id = ?", profiles[i].Shop, profiles[i].SessionID).
				Update("purchased_products", merged).Error
			if err != nil {
				return fmt.Errorf("merge purchased products: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge customer purchases: %w", err)
	}

	return nil
}

func unionSet(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
