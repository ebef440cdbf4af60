package similarity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cartlift/domain"
	"cartlift/pkg/logger"
)

const (
	// pairs below either bound are dropped, not stored at low confidence
	minOverallScore   = 0.1
	minCoPurchases    = 2
	jaccardWeight     = 0.6
	frequencyWeight   = 0.4
	defaultWindowDays = 90
)

// EventRepository is the read-only event source.
type EventRepository interface {
	QueryEvents(ctx context.Context, shop string, kinds []string, since time.Time) ([]domain.InteractionEvent, error)
}

// SimilarityRepository persists the co-purchase graph. ReplaceForShop
// must be atomic: on error the previous snapshot stays intact.
type SimilarityRepository interface {
	ReplaceForShop(ctx context.Context, shop string, rows []domain.ProductSimilarity) error
}

type Stats struct {
	PairsEvaluated int `json:"pairs_evaluated"`
	RecordsWritten int `json:"records_written"`
}

type Service struct {
	eventRepo  EventRepository
	simRepo    SimilarityRepository
	windowDays int
}

func NewService(eventRepo EventRepository, simRepo SimilarityRepository, windowDays int) *Service {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	return &Service{
		eventRepo:  eventRepo,
		simRepo:    simRepo,
		windowDays: windowDays,
	}
}

type pairKey struct {
	a, b string
}

type pairStats struct {
	coPurchases int64
	orders      map[string]struct{}
}

// ComputeSimilarities rebuilds the shop's co-purchase similarity graph
// from completed orders in the trailing window and atomically replaces
// the stored snapshot.
func (s *Service) ComputeSimilarities(ctx context.Context, shop string, asOf time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("context error: %w", err)
	}

	since := asOf.AddDate(0, 0, -s.windowDays)
	events, err := s.eventRepo.QueryEvents(ctx, shop, []string{domain.EventPurchase}, since)
	if err != nil {
		return Stats{}, fmt.Errorf("load purchase events: %w", err)
	}
	if len(events) == 0 {
		logger.Info("similarity_no_events", "shop", shop)
		return Stats{}, nil
	}

	// group purchases into per-order product sets and track, per
	// product, the distinct orders containing it
	orderProducts := make(map[string]map[string]struct{})
	productOrders := make(map[string]map[string]struct{})
	for _, ev := range events {
		if ev.OrderID == nil || *ev.OrderID == "" || ev.ProductID == "" {
			continue
		}
		oid := *ev.OrderID
		if orderProducts[oid] == nil {
			orderProducts[oid] = make(map[string]struct{})
		}
		orderProducts[oid][ev.ProductID] = struct{}{}

		if productOrders[ev.ProductID] == nil {
			productOrders[ev.ProductID] = make(map[string]struct{})
		}
		productOrders[ev.ProductID][oid] = struct{}{}
	}

	// accumulate every unordered pair co-occurring in the same order
	pairs := make(map[pairKey]*pairStats)
	for oid, products := range orderProducts {
		ids := make([]string, 0, len(products))
		for pid := range products {
			ids = append(ids, pid)
		}
		sort.Strings(ids)

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				key := pairKey{a: ids[i], b: ids[j]}
				ps, ok := pairs[key]
				if !ok {
					ps = &pairStats{orders: make(map[string]struct{})}
					pairs[key] = ps
				}
				ps.coPurchases++
				ps.orders[oid] = struct{}{}
			}
		}
	}

	now := time.Now()
	rows := make([]domain.ProductSimilarity, 0, len(pairs)*2)
	for key, ps := range pairs {
		if ps.coPurchases < minCoPurchases {
			continue
		}

		ordersA := len(productOrders[key.a])
		ordersB := len(productOrders[key.b])
		both := len(ps.orders)
		union := ordersA + ordersB - both
		if union == 0 {
			continue
		}

		jaccard := float64(both) / float64(union)

		maxOrders := ordersA
		if ordersB > maxOrders {
			maxOrders = ordersB
		}
		frequency := float64(ps.coPurchases) / float64(maxOrders)

		overall := jaccardWeight*jaccard + frequencyWeight*frequency
		if overall <= minOverallScore {
			continue
		}

		// co-purchase is the only wired signal, so it carries the
		// same blended value as the overall score
		rows = append(rows,
			domain.ProductSimilarity{
				Shop:            shop,
				ProductID1:      key.a,
				ProductID2:      key.b,
				CoPurchaseScore: overall,
				OverallScore:    overall,
				SampleSize:      ps.coPurchases,
				UpdatedAt:       now,
			},
			domain.ProductSimilarity{
				Shop:            shop,
				ProductID1:      key.b,
				ProductID2:      key.a,
				CoPurchaseScore: overall,
				OverallScore:    overall,
				SampleSize:      ps.coPurchases,
				UpdatedAt:       now,
			},
		)
	}

	if err := s.simRepo.ReplaceForShop(ctx, shop, rows); err != nil {
		return Stats{}, fmt.Errorf("replace similarities: %w", err)
	}

	logger.Info("similarity_computed",
		"shop", shop,
		"orders", len(orderProducts),
		"pairs_evaluated", len(pairs),
		"records_written", len(rows),
	)

	return Stats{PairsEvaluated: len(pairs), RecordsWritten: len(rows)}, nil
}
