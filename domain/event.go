package domain

import (
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// Event kinds emitted by the storefront serving layer.
const (
	EventImpression = "impression"
	EventClick      = "click"
	EventAddToCart  = "add_to_cart"
	EventPurchase   = "purchase"
	EventRecoServed = "recommendation_served"
)

// InteractionEvent is an immutable fact written by the serving layer.
// The pipeline only ever reads these rows.
type InteractionEvent struct {
	ID           uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Shop         string            `gorm:"column:shop;not null;index:idx_events_shop_created" json:"shop"`
	SessionID    string            `gorm:"column:session_id" json:"session_id"`
	CustomerID   *string           `gorm:"column:customer_id" json:"customer_id,omitempty"`
	ProductID    string            `gorm:"column:product_id" json:"product_id"`
	Kind         string            `gorm:"column:kind;not null" json:"kind"`
	OrderID      *string           `gorm:"column:order_id" json:"order_id,omitempty"`
	RevenueCents *int64            `gorm:"column:revenue_cents" json:"revenue_cents,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime;index:idx_events_shop_created" json:"created_at"`
}

func (InteractionEvent) TableName() string {
	return "interaction_events"
}

// ServedPayload is the typed metadata of a recommendation_served event:
// the products shown together and the anchor(s) that triggered them.
// Ids are normalized to strings so numeric and string ids compare equal.
type ServedPayload struct {
	RecommendationIDs []string
	Anchors           []string
}

// Served decodes the metadata of a recommendation_served event.
// Returns an error for other kinds or when recommendationIds is missing
// or malformed; callers treat that as a skippable parse error.
func (e *InteractionEvent) Served() (*ServedPayload, error) {
	if e.Kind != EventRecoServed {
		return nil, fmt.Errorf("event %d is %q, not %s", e.ID, e.Kind, EventRecoServed)
	}
	if e.Metadata == nil {
		return nil, fmt.Errorf("event %d has no metadata", e.ID)
	}

	recs, err := idList(e.Metadata["recommendationIds"])
	if err != nil {
		return nil, fmt.Errorf("event %d recommendationIds: %w", e.ID, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("event %d has empty recommendationIds", e.ID)
	}

	// anchors are optional; a missing list just means no anchor context.
	anchors, err := idList(e.Metadata["anchors"])
	if err != nil {
		anchors = nil
	}

	return &ServedPayload{RecommendationIDs: recs, Anchors: anchors}, nil
}

func idList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		id := NormalizeID(item)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// NormalizeID renders a product id to its canonical string form so that
// the numeric id 123 and the string id "123" match each other.
func NormalizeID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	case uint64:
		return strconv.FormatUint(id, 10)
	default:
		return ""
	}
}
