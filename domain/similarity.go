package domain

import "time"

// ProductSimilarity is one directed edge of the co-purchase graph.
// Both (A,B) and (B,A) are stored with identical scores. Category,
// price and co-view scores are reserved for richer signals and stay
// zero for now.
type ProductSimilarity struct {
	Shop            string    `gorm:"column:shop;primaryKey" json:"shop"`
	ProductID1      string    `gorm:"column:product_id_1;primaryKey" json:"product_id_1"`
	ProductID2      string    `gorm:"column:product_id_2;primaryKey" json:"product_id_2"`
	CoPurchaseScore float64   `gorm:"column:co_purchase_score" json:"co_purchase_score"`
	OverallScore    float64   `gorm:"column:overall_score" json:"overall_score"`
	SampleSize      int64     `gorm:"column:sample_size" json:"sample_size"`
	CategoryScore   float64   `gorm:"column:category_score;default:0" json:"category_score"`
	PriceScore      float64   `gorm:"column:price_score;default:0" json:"price_score"`
	CoViewScore     float64   `gorm:"column:co_view_score;default:0" json:"co_view_score"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ProductSimilarity) TableName() string {
	return "product_similarities"
}
