package domain

import "time"

// AttributionRecord links one purchased product to the recommendation
// impressions that preceded it. Keyed by (shop, order, product) so
// webhook redeliveries cannot double-attribute; immutable after create.
type AttributionRecord struct {
	Shop                   string    `gorm:"column:shop;primaryKey" json:"shop"`
	OrderID                string    `gorm:"column:order_id;primaryKey" json:"order_id"`
	ProductID              string    `gorm:"column:product_id;primaryKey" json:"product_id"`
	OrderNumber            string    `gorm:"column:order_number" json:"order_number"`
	OrderValue             float64   `gorm:"column:order_value;type:numeric" json:"order_value"`
	CustomerID             *string   `gorm:"column:customer_id" json:"customer_id,omitempty"`
	RecommendationEventIDs []uint64  `gorm:"column:recommendation_event_ids;type:jsonb;serializer:json" json:"recommendation_event_ids"`
	AttributedRevenue      float64   `gorm:"column:attributed_revenue;type:numeric" json:"attributed_revenue"`
	ConversionTimeMinutes  int64     `gorm:"column:conversion_time_minutes" json:"conversion_time_minutes"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (AttributionRecord) TableName() string {
	return "attribution_records"
}

// Order is the completed-order payload delivered by the order webhook.
type Order struct {
	OrderID     string          `json:"order_id" validate:"required"`
	OrderNumber string          `json:"order_number"`
	CustomerID  *string         `json:"customer_id,omitempty"`
	TotalPrice  float64         `json:"total_price"`
	LineItems   []OrderLineItem `json:"line_items" validate:"dive"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderLineItem carries the product id as a raw JSON value because
// storefront platforms deliver it as either a number or a string;
// NormalizeID canonicalizes it before matching.
type OrderLineItem struct {
	ProductID any     `json:"product_id" validate:"required"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}
