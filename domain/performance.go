package domain

import "time"

// Blacklist reasons recorded by the performance scorer. The CVR check
// runs first, so a product failing both only ever carries low_cvr.
const (
	BlacklistLowCVR = "low_cvr"
	BlacklistLowCTR = "low_ctr"
)

// ProductPerformance is the 30-day performance snapshot for one product.
// Fully recomputed and upserted each scorer run; never accumulated.
type ProductPerformance struct {
	Shop            string    `gorm:"column:shop;primaryKey" json:"shop"`
	ProductID       string    `gorm:"column:product_id;primaryKey" json:"product_id"`
	Impressions     int64     `gorm:"column:impressions;not null" json:"impressions"`
	Clicks          int64     `gorm:"column:clicks;not null" json:"clicks"`
	Purchases       int64     `gorm:"column:purchases;not null" json:"purchases"`
	Revenue         float64   `gorm:"column:revenue;type:numeric" json:"revenue"`
	CTR             float64   `gorm:"column:ctr" json:"ctr"`
	CVR             float64   `gorm:"column:cvr" json:"cvr"`
	Confidence      float64   `gorm:"column:confidence" json:"confidence"`
	IsBlacklisted   bool      `gorm:"column:is_blacklisted;default:false" json:"is_blacklisted"`
	BlacklistReason *string   `gorm:"column:blacklist_reason" json:"blacklist_reason,omitempty"`
	LastUpdated     time.Time `gorm:"column:last_updated" json:"last_updated"`
}

func (ProductPerformance) TableName() string {
	return "product_performance"
}
