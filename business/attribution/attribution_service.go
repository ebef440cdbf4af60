package attribution

import (
	"context"
	"fmt"
	"time"

	"cartlift/domain"
	"cartlift/pkg/logger"
	"cartlift/pkg/metrics"
)

const (
	defaultWindowDays = 7
	defaultServedCap  = 100

	// score bump applied when an order reveals a pairing no
	// recommendation predicted
	missedOpportunityNudge = 0.05
)

type EventRepository interface {
	// RecentServed returns up to limit recommendation_served events
	// since the cutoff, newest first.
	RecentServed(ctx context.Context, shop string, since time.Time, limit int) ([]domain.InteractionEvent, error)
}

type AttributionRepository interface {
	Upsert(ctx context.Context, rec domain.AttributionRecord) error
}

type SimilarityRepository interface {
	// Nudge seeds or bumps one directed similarity row.
	Nudge(ctx context.Context, shop, productID1, productID2 string, scoreDelta float64) error
}

type ProfileRepository interface {
	MergePurchasedByCustomer(ctx context.Context, shop, customerID string, productIDs []string) error
}

type Result struct {
	Attributed []string `json:"attributed"`
	Missed     bool     `json:"missed"`
}

type Service struct {
	eventRepo   EventRepository
	attrRepo    AttributionRepository
	simRepo     SimilarityRepository
	profileRepo ProfileRepository
	windowDays  int
	servedCap   int
}

func NewService(
	eventRepo EventRepository,
	attrRepo AttributionRepository,
	simRepo SimilarityRepository,
	profileRepo ProfileRepository,
	windowDays int,
	servedCap int,
) *Service {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	if servedCap <= 0 {
		servedCap = defaultServedCap
	}
	return &Service{
		eventRepo:   eventRepo,
		attrRepo:    attrRepo,
		simRepo:     simRepo,
		profileRepo: profileRepo,
		windowDays:  windowDays,
		servedCap:   servedCap,
	}
}

// AttributeOrder links the order's purchased products to prior
// recommendation impressions inside the attribution window, or records
// a missed-opportunity signal when nothing matches. Per-record failures
// are logged and skipped so the webhook can still acknowledge the order.
func (s *Service) AttributeOrder(ctx context.Context, shop string, order domain.Order) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context error: %w", err)
	}

	lineItems := make(map[string]domain.OrderLineItem)
	purchased := make([]string, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		pid := domain.NormalizeID(item.ProductID)
		if pid == "" {
			continue
		}
		if _, seen := lineItems[pid]; !seen {
			purchased = append(purchased, pid)
		}
		lineItems[pid] = item
	}
	if len(purchased) == 0 {
		return Result{}, nil
	}

	orderedAt := order.CreatedAt
	if orderedAt.IsZero() {
		orderedAt = time.Now()
	}

	since := orderedAt.AddDate(0, 0, -s.windowDays)
	served, err := s.eventRepo.RecentServed(ctx, shop, since, s.servedCap)
	if err != nil {
		return Result{}, fmt.Errorf("load served events: %w", err)
	}

	// per purchased product: contributing event ids and the most
	// recent matching serve time
	matchEvents := make(map[string][]uint64)
	matchTimes := make(map[string]time.Time)
	var lastAnchor string

	for i := range served {
		ev := &served[i]
		payload, err := ev.Served()
		if err != nil {
			logger.Debug("attribution_bad_metadata", "shop", shop, "event_id", ev.ID, "error", err)
			continue
		}

		// events arrive newest first, so the first anchor seen is
		// the most recent one
		if lastAnchor == "" && len(payload.Anchors) > 0 {
			lastAnchor = payload.Anchors[0]
		}

		recommended := make(map[string]struct{}, len(payload.RecommendationIDs))
		for _, rid := range payload.RecommendationIDs {
			recommended[rid] = struct{}{}
		}

		for _, pid := range purchased {
			if _, ok := recommended[pid]; !ok {
				continue
			}
			matchEvents[pid] = append(matchEvents[pid], ev.ID)
			if ev.CreatedAt.After(matchTimes[pid]) {
				matchTimes[pid] = ev.CreatedAt
			}
		}
	}

	if len(matchEvents) == 0 {
		missed := s.recordMissedOpportunity(ctx, shop, lastAnchor, purchased)
		s.mergeCustomerProfile(ctx, shop, order, purchased)
		metrics.AttributionOrdersTotal.WithLabelValues("missed").Inc()
		return Result{Missed: missed}, nil
	}

	result := Result{Attributed: make([]string, 0, len(matchEvents))}
	for _, pid := range purchased {
		eventIDs, ok := matchEvents[pid]
		if !ok {
			continue
		}

		item := lineItems[pid]
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		attributedRevenue := item.Price * float64(qty)
		conversionMinutes := int64(orderedAt.Sub(matchTimes[pid]).Minutes())

		rec := domain.AttributionRecord{
			Shop:                   shop,
			OrderID:                order.OrderID,
			ProductID:              pid,
			OrderNumber:            order.OrderNumber,
			OrderValue:             order.TotalPrice,
			CustomerID:             order.CustomerID,
			RecommendationEventIDs: eventIDs,
			AttributedRevenue:      attributedRevenue,
			ConversionTimeMinutes:  conversionMinutes,
		}

		if err := s.attrRepo.Upsert(ctx, rec); err != nil {
			logger.Warn("attribution_upsert_failed",
				"shop", shop,
				"order_id", order.OrderID,
				"product_id", pid,
				"error", err,
			)
			continue
		}

		metrics.AttributedRevenueTotal.Add(attributedRevenue)
		result.Attributed = append(result.Attributed, pid)
	}

	s.mergeCustomerProfile(ctx, shop, order, purchased)
	metrics.AttributionOrdersTotal.WithLabelValues("attributed").Inc()

	logger.Info("order_attributed",
		"shop", shop,
		"order_id", order.OrderID,
		"attributed", len(result.Attributed),
	)

	return result, nil
}

// recordMissedOpportunity nudges the similarity between the most recent
// recommendation's first anchor and each purchased product, letting
// organically discovered pairings feed back into the graph. Both
// directions are written so the table stays symmetric.
func (s *Service) recordMissedOpportunity(ctx context.Context, shop, anchor string, purchased []string) bool {
	if anchor == "" {
		return false
	}

	nudged := false
	for _, pid := range purchased {
		if pid == anchor {
			continue
		}
		if err := s.simRepo.Nudge(ctx, shop, anchor, pid, missedOpportunityNudge); err != nil {
			logger.Warn("missed_opportunity_nudge_failed", "shop", shop, "anchor", anchor, "product_id", pid, "error", err)
			continue
		}
		if err := s.simRepo.Nudge(ctx, shop, pid, anchor, missedOpportunityNudge); err != nil {
			logger.Warn("missed_opportunity_nudge_failed", "shop", shop, "anchor", pid, "product_id", anchor, "error", err)
		}
		nudged = true
	}

	if nudged {
		logger.Info("missed_opportunity", "shop", shop, "anchor", anchor, "products", len(purchased))
	}

	return nudged
}

// mergeCustomerProfile folds the purchased products into the customer's
// existing profiles, independent of the nightly profile rebuild.
func (s *Service) mergeCustomerProfile(ctx context.Context, shop string, order domain.Order, purchased []string) {
	if order.CustomerID == nil || *order.CustomerID == "" {
		return
	}
	if err := s.profileRepo.MergePurchasedByCustomer(ctx, shop, *order.CustomerID, purchased); err != nil {
		logger.Warn("profile_merge_failed", "shop", shop, "customer_id", *order.CustomerID, "error", err)
	}
}
