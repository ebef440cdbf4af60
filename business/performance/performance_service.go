package performance

import (
	"context"
	"fmt"
	"time"

	"cartlift/domain"
	"cartlift/pkg/logger"
)

const (
	minSampleImpressions = 10  // below this a product is not scored at all
	blacklistMinImps     = 100 // blacklist rules need a real sample
	blacklistCVR         = 0.005
	blacklistCTR         = 0.03
	boostCVR             = 0.02
	defaultWindowDays    = 30
)

type EventRepository interface {
	QueryEvents(ctx context.Context, shop string, kinds []string, since time.Time) ([]domain.InteractionEvent, error)
}

type AttributionRepository interface {
	ListSince(ctx context.Context, shop string, since time.Time) ([]domain.AttributionRecord, error)
}

type PerformanceRepository interface {
	Upsert(ctx context.Context, perf domain.ProductPerformance) error
}

// SkippedItem records one event or product the scorer could not use,
// so callers can assert on what was dropped and why.
type SkippedItem struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

type Report struct {
	Analyzed    int           `json:"analyzed"`
	Blacklisted int           `json:"blacklisted"`
	Boosted     int           `json:"boosted"`
	Skipped     []SkippedItem `json:"skipped,omitempty"`
}

type Service struct {
	eventRepo  EventRepository
	attrRepo   AttributionRepository
	perfRepo   PerformanceRepository
	windowDays int
}

func NewService(
	eventRepo EventRepository,
	attrRepo AttributionRepository,
	perfRepo PerformanceRepository,
	windowDays int,
) *Service {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	return &Service{
		eventRepo:  eventRepo,
		attrRepo:   attrRepo,
		perfRepo:   perfRepo,
		windowDays: windowDays,
	}
}

type productCounts struct {
	impressions int64
	clicks      int64
	purchases   int64
	revenue     float64
}

// ScoreProducts recomputes the 30-day performance snapshot for every
// product with enough impressions and applies the blacklist rules. Each
// upsert fully overwrites the prior row.
func (s *Service) ScoreProducts(ctx context.Context, shop string, asOf time.Time) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("context error: %w", err)
	}

	since := asOf.AddDate(0, 0, -s.windowDays)
	kinds := []string{domain.EventImpression, domain.EventClick, domain.EventRecoServed}
	events, err := s.eventRepo.QueryEvents(ctx, shop, kinds, since)
	if err != nil {
		return Report{}, fmt.Errorf("load interaction events: %w", err)
	}

	attributions, err := s.attrRepo.ListSince(ctx, shop, since)
	if err != nil {
		return Report{}, fmt.Errorf("load attribution records: %w", err)
	}

	report := Report{}
	counts := make(map[string]*productCounts)
	get := func(pid string) *productCounts {
		c, ok := counts[pid]
		if !ok {
			c = &productCounts{}
			counts[pid] = c
		}
		return c
	}

	for i := range events {
		ev := &events[i]
		switch ev.Kind {
		case domain.EventRecoServed:
			// a served event is a batch impression: every listed
			// recommendation counts once
			payload, err := ev.Served()
			if err != nil {
				logger.Warn("performance_bad_metadata", "shop", shop, "event_id", ev.ID, "error", err)
				report.Skipped = append(report.Skipped, SkippedItem{
					Ref:    fmt.Sprintf("event:%d", ev.ID),
					Reason: "malformed served metadata",
				})
				continue
			}
			for _, pid := range payload.RecommendationIDs {
				get(pid).impressions++
			}
		case domain.EventImpression:
			if ev.ProductID != "" {
				get(ev.ProductID).impressions++
			}
		case domain.EventClick:
			if ev.ProductID != "" {
				get(ev.ProductID).clicks++
			}
		}
	}

	for _, rec := range attributions {
		c := get(rec.ProductID)
		c.purchases++
		c.revenue += rec.AttributedRevenue
	}

	now := time.Now()
	for pid, c := range counts {
		if c.impressions < minSampleImpressions {
			continue
		}

		ctr := float64(c.clicks) / float64(c.impressions)
		cvr := float64(c.purchases) / float64(c.impressions)

		sample := float64(c.impressions) / float64(blacklistMinImps)
		if sample > 1 {
			sample = 1
		}
		confidence := 0.4*cvr + 0.4*ctr + 0.2*sample

		perf := domain.ProductPerformance{
			Shop:        shop,
			ProductID:   pid,
			Impressions: c.impressions,
			Clicks:      c.clicks,
			Purchases:   c.purchases,
			Revenue:     c.revenue,
			CTR:         ctr,
			CVR:         cvr,
			Confidence:  confidence,
			LastUpdated: now,
		}

		// CVR check takes precedence; only one reason is recorded
		if c.impressions >= blacklistMinImps {
			if cvr < blacklistCVR {
				reason := domain.BlacklistLowCVR
				perf.IsBlacklisted = true
				perf.BlacklistReason = &reason
			} else if ctr < blacklistCTR {
				reason := domain.BlacklistLowCTR
				perf.IsBlacklisted = true
				perf.BlacklistReason = &reason
			}
		}

		if err := s.perfRepo.Upsert(ctx, perf); err != nil {
			logger.Warn("performance_upsert_failed", "shop", shop, "product_id", pid, "error", err)
			report.Skipped = append(report.Skipped, SkippedItem{
				Ref:    fmt.Sprintf("product:%s", pid),
				Reason: "upsert failed",
			})
			continue
		}

		report.Analyzed++
		if perf.IsBlacklisted {
			report.Blacklisted++
		}
		if cvr > boostCVR {
			report.Boosted++
		}
	}

	logger.Info("performance_scored",
		"shop", shop,
		"analyzed", report.Analyzed,
		"blacklisted", report.Blacklisted,
		"boosted", report.Boosted,
		"skipped", len(report.Skipped),
	)

	return report, nil
}
