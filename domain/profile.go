package domain

import "time"

// Privacy levels gate what a profile may retain.
const (
	PrivacyBasic    = "basic"    // anonymous id only, no customer linkage
	PrivacyStandard = "standard" // session-level aggregates, no customer id
	PrivacyAdvanced = "advanced" // customer id adopted when present
)

// PriceRange summarizes the purchase price points seen in a session.
type PriceRange struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
}

// UserProfile is the per-session behavioral profile. Product sets only
// grow across rebuilds; shrinking is left to external retention sweeps.
type UserProfile struct {
	Shop              string      `gorm:"column:shop;primaryKey" json:"shop"`
	SessionID         string      `gorm:"column:session_id;primaryKey" json:"session_id"`
	CustomerID        *string     `gorm:"column:customer_id;index" json:"customer_id,omitempty"`
	AnonymousID       *string     `gorm:"column:anonymous_id" json:"anonymous_id,omitempty"`
	PrivacyLevel      string      `gorm:"column:privacy_level;not null" json:"privacy_level"`
	ViewedProducts    []string    `gorm:"column:viewed_products;type:jsonb;serializer:json" json:"viewed_products"`
	CartedProducts    []string    `gorm:"column:carted_products;type:jsonb;serializer:json" json:"carted_products"`
	PurchasedProducts []string    `gorm:"column:purchased_products;type:jsonb;serializer:json" json:"purchased_products"`
	PriceRange        *PriceRange `gorm:"column:price_range;type:jsonb;serializer:json" json:"price_range,omitempty"`
	LastActivity      time.Time   `gorm:"column:last_activity" json:"last_activity"`
	DataRetentionDays int         `gorm:"column:data_retention_days" json:"data_retention_days"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}

// RetentionDaysFor maps a privacy level to the profile retention period.
func RetentionDaysFor(privacyLevel string) int {
	switch privacyLevel {
	case PrivacyBasic:
		return 30
	case PrivacyAdvanced:
		return 365
	default:
		return 90
	}
}
