package profile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cartlift/domain"
	"cartlift/pkg/logger"

	"github.com/pobyzaarif/goshortcute"
)

const defaultWindowDays = 30

type EventRepository interface {
	QueryEvents(ctx context.Context, shop string, kinds []string, since time.Time) ([]domain.InteractionEvent, error)
}

// ProfileRepository upserts profiles by (shop, session). Upsert reports
// whether the row was created; updates must leave anonymous_id and
// data_retention_days untouched.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile domain.UserProfile) (created bool, err error)
}

type Report struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Skipped []SkippedSession `json:"skipped,omitempty"`
}

type SkippedSession struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type Service struct {
	eventRepo   EventRepository
	profileRepo ProfileRepository
	windowDays  int
	// AES key for pseudonymous ids under basic privacy
	pseudonymKey []byte
}

func NewService(eventRepo EventRepository, profileRepo ProfileRepository, windowDays int, pseudonymKey string) *Service {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	return &Service{
		eventRepo:    eventRepo,
		profileRepo:  profileRepo,
		windowDays:   windowDays,
		pseudonymKey: []byte(pseudonymKey),
	}
}

type sessionAgg struct {
	customerID   *string
	viewed       map[string]struct{}
	carted       map[string]struct{}
	purchased    map[string]struct{}
	pricePoints  []float64
	lastActivity time.Time
}

// UpdateProfiles aggregates the trailing window of events into one
// profile per session, gated by the shop's privacy level.
func (s *Service) UpdateProfiles(ctx context.Context, shop string, asOf time.Time, privacyLevel string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("context error: %w", err)
	}

	since := asOf.AddDate(0, 0, -s.windowDays)
	events, err := s.eventRepo.QueryEvents(ctx, shop, nil, since)
	if err != nil {
		return Report{}, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		logger.Info("profiles_no_events", "shop", shop)
		return Report{}, nil
	}

	sessions := make(map[string]*sessionAgg)
	order := make([]string, 0)
	for i := range events {
		ev := &events[i]
		if ev.SessionID == "" {
			continue
		}

		agg, ok := sessions[ev.SessionID]
		if !ok {
			agg = &sessionAgg{
				viewed:    make(map[string]struct{}),
				carted:    make(map[string]struct{}),
				purchased: make(map[string]struct{}),
			}
			sessions[ev.SessionID] = agg
			order = append(order, ev.SessionID)
		}

		switch ev.Kind {
		case domain.EventImpression, domain.EventClick:
			if ev.ProductID != "" {
				agg.viewed[ev.ProductID] = struct{}{}
			}
		case domain.EventAddToCart:
			if ev.ProductID != "" {
				agg.carted[ev.ProductID] = struct{}{}
			}
		case domain.EventPurchase:
			if ev.ProductID != "" {
				agg.purchased[ev.ProductID] = struct{}{}
			}
			if ev.RevenueCents != nil {
				agg.pricePoints = append(agg.pricePoints, float64(*ev.RevenueCents)/100)
			}
		}

		// last-write-wins across the session's events
		if privacyLevel == domain.PrivacyAdvanced && ev.CustomerID != nil && *ev.CustomerID != "" {
			agg.customerID = ev.CustomerID
		}

		if ev.CreatedAt.After(agg.lastActivity) {
			agg.lastActivity = ev.CreatedAt
		}
	}

	report := Report{}
	for _, sessionID := range order {
		agg := sessions[sessionID]

		prof := domain.UserProfile{
			Shop:              shop,
			SessionID:         sessionID,
			PrivacyLevel:      privacyLevel,
			ViewedProducts:    setToSlice(agg.viewed),
			CartedProducts:    setToSlice(agg.carted),
			PurchasedProducts: setToSlice(agg.purchased),
			PriceRange:        priceRangeOf(agg.pricePoints),
			LastActivity:      agg.lastActivity,
			DataRetentionDays: domain.RetentionDaysFor(privacyLevel),
		}

		switch privacyLevel {
		case domain.PrivacyBasic:
			anonID, err := s.pseudonymize(sessionID)
			if err != nil {
				logger.Warn("profile_pseudonym_failed", "shop", shop, "session_id", sessionID, "error", err)
				report.Skipped = append(report.Skipped, SkippedSession{SessionID: sessionID, Reason: "pseudonymization failed"})
				continue
			}
			prof.AnonymousID = &anonID
		case domain.PrivacyAdvanced:
			prof.CustomerID = agg.customerID
		}

		created, err := s.profileRepo.Upsert(ctx, prof)
		if err != nil {
			logger.Warn("profile_upsert_failed", "shop", shop, "session_id", sessionID, "error", err)
			report.Skipped = append(report.Skipped, SkippedSession{SessionID: sessionID, Reason: "upsert failed"})
			continue
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	logger.Info("profiles_updated",
		"shop", shop,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", len(report.Skipped),
	)

	return report, nil
}

// pseudonymize derives an opaque identifier from the session id. The
// result is only assigned on profile create, so IV randomness is fine.
func (s *Service) pseudonymize(sessionID string) (string, error) {
	encrypted, err := goshortcute.AESCBCEncrypt([]byte(sessionID), s.pseudonymKey)
	if err != nil {
		return "", fmt.Errorf("encrypt session id: %w", err)
	}
	return goshortcute.StringtoBase64Encode(encrypted), nil
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// priceRangeOf derives {min,max,avg,median} from the purchase price
// points. Median uses the lower-middle element for even-length lists.
func priceRangeOf(points []float64) *domain.PriceRange {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]float64, len(points))
	copy(sorted, points)
	sort.Float64s(sorted)

	sum := 0.0
	for _, p := range sorted {
		sum += p
	}

	return &domain.PriceRange{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Avg:    sum / float64(len(sorted)),
		Median: sorted[(len(sorted)-1)/2],
	}
}
