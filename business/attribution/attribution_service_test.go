//go:build !integration

package attribution

import (
	"context"
	"errors"
	"testing"
	"time"

	"cartlift/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeEventRepo struct {
	served []domain.InteractionEvent
	err    error
}

func (f *fakeEventRepo) RecentServed(_ context.Context, _ string, _ time.Time, limit int) ([]domain.InteractionEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.served) > limit {
		return f.served[:limit], nil
	}
	return f.served, nil
}

type fakeAttrRepo struct {
	records map[[2]string]domain.AttributionRecord
	failFor map[string]bool
}

func newFakeAttrRepo() *fakeAttrRepo {
	return &fakeAttrRepo{records: make(map[[2]string]domain.AttributionRecord), failFor: make(map[string]bool)}
}

func (f *fakeAttrRepo) Upsert(_ context.Context, rec domain.AttributionRecord) error {
	if f.failFor[rec.ProductID] {
		return errors.New("connection reset")
	}
	key := [2]string{rec.OrderID, rec.ProductID}
	if _, exists := f.records[key]; exists {
		// keyed upsert: first write wins
		return nil
	}
	f.records[key] = rec
	return nil
}

type nudge struct {
	p1, p2 string
	delta  float64
}

type fakeSimRepo struct {
	nudges []nudge
}

func (f *fakeSimRepo) Nudge(_ context.Context, _ string, p1, p2 string, delta float64) error {
	f.nudges = append(f.nudges, nudge{p1: p1, p2: p2, delta: delta})
	return nil
}

type fakeProfileRepo struct {
	merged map[string][]string
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{merged: make(map[string][]string)}
}

func (f *fakeProfileRepo) MergePurchasedByCustomer(_ context.Context, _ string, customerID string, productIDs []string) error {
	f.merged[customerID] = append(f.merged[customerID], productIDs...)
	return nil
}

func servedEvent(id uint64, at time.Time, recommendationIDs []any, anchors []any) domain.InteractionEvent {
	meta := datatypes.JSONMap{"recommendationIds": recommendationIDs}
	if anchors != nil {
		meta["anchors"] = anchors
	}
	return domain.InteractionEvent{
		ID:        id,
		Shop:      "shop-a",
		Kind:      domain.EventRecoServed,
		Metadata:  meta,
		CreatedAt: at,
	}
}

func newTestService(events *fakeEventRepo, attrs *fakeAttrRepo, sims *fakeSimRepo, profiles *fakeProfileRepo) *Service {
	return NewService(events, attrs, sims, profiles, 7, 100)
}

func TestAttributeOrder_EmptyOrderIsNoop(t *testing.T) {
	attrs := newFakeAttrRepo()
	svc := newTestService(&fakeEventRepo{}, attrs, &fakeSimRepo{}, newFakeProfileRepo())

	result, err := svc.AttributeOrder(context.Background(), "shop-a", domain.Order{OrderID: "o1"})
	require.NoError(t, err)
	assert.Empty(t, result.Attributed)
	assert.False(t, result.Missed)
	assert.Empty(t, attrs.records)
}

func TestAttributeOrder_MatchCreatesOneRecord(t *testing.T) {
	now := time.Now()
	events := &fakeEventRepo{served: []domain.InteractionEvent{
		servedEvent(7, now.Add(-45*time.Minute), []any{"p1", "p2"}, []any{"anchor"}),
	}}
	attrs := newFakeAttrRepo()
	svc := newTestService(events, attrs, &fakeSimRepo{}, newFakeProfileRepo())

	order := domain.Order{
		OrderID:     "o1",
		OrderNumber: "1001",
		TotalPrice:  79.97,
		CreatedAt:   now,
		LineItems: []domain.OrderLineItem{
			{ProductID: "p1", Quantity: 2, Price: 19.99},
			{ProductID: "p9", Quantity: 1, Price: 39.99},
		},
	}

	result, err := svc.AttributeOrder(context.Background(), "shop-a", order)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, result.Attributed)
	assert.False(t, result.Missed)

	require.Len(t, attrs.records, 1)
	rec := attrs.records[[2]string{"o1", "p1"}]
	assert.Equal(t, "1001", rec.OrderNumber)
	assert.InDelta(t, 39.98, rec.AttributedRevenue, 1e-9) // 19.99 × 2
	assert.Equal(t, []uint64{7}, rec.RecommendationEventIDs)
	assert.Equal(t, int64(45), rec.ConversionTimeMinutes)
}

func TestAttributeOrder_TypeTolerantIDMatching(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name        string
		recommended []any
		purchased   any
	}{
		{"numeric recommendation, string purchase", []any{float64(123)}, "123"},
		{"string recommendation, numeric purchase", []any{"123"}, float64(123)},
		{"string both", []any{"123"}, "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEventRepo{served: []domain.InteractionEvent{
				servedEvent(1, now.Add(-time.Hour), tt.recommended, nil),
			}}
			attrs := newFakeAttrRepo()
			svc := newTestService(events, attrs, &fakeSimRepo{}, newFakeProfileRepo())

			order := domain.Order{
				OrderID:   "o1",
				CreatedAt: now,
				LineItems: []domain.OrderLineItem{{ProductID: tt.purchased, Quantity: 1, Price: 10}},
			}

			result, err := svc.AttributeOrder(context.Background(), "shop-a", order)
			require.NoError(t, err)
			assert.Equal(t, []string{"123"}, result.Attributed)
		})
	}
}

func TestAttributeOrder_MostRecentMatchSetsConversionTime(t *testing.T) {
	now := time.Now()
	events := &fakeEventRepo{served: []domain.InteractionEvent{
		// newest first, as the repository returns them
		servedEvent(2, now.Add(-30*time.Minute), []any{"p1"}, nil),
		servedEvent(1, now.Add(-3*time.Hour), []any{"p1"}, nil),
	}}
	attrs := newFakeAttrRepo()
	svc := newTestService(events, attrs, &fakeSimRepo{}, newFakeProfileRepo())

	order := domain.Order{
		OrderID:   "o1",
		CreatedAt: now,
		LineItems: []domain.OrderLineItem{{ProductID: "p1", Quantity: 1, Price: 10}},
	}

	_, err := svc.AttributeOrder(context.Background(), "shop-a", order)
	require.NoError(t, err)

	rec := attrs.records[[2]string{"o1", "p1"}]
	assert.Equal(t, []uint64{2, 1}, rec.RecommendationEventIDs)
	assert.Equal(t, int64(30), rec.ConversionTimeMinutes)
}

func TestAttributeOrder_MissedOpportunityNudgesSimilarity(t *testing.T) {
	now := time.Now()
	events := &fakeEventRepo{served: []domain.InteractionEvent{
		servedEvent(3, now.Add(-time.Hour), []any{"p5", "p6"}, []any{"anchor-1", "anchor-2"}),
	}}
	attrs := newFakeAttrRepo()
	sims := &fakeSimRepo{}
	svc := newTestService(events, attrs, sims, newFakeProfileRepo())

	order := domain.Order{
		OrderID:   "o1",
		CreatedAt: now,
		LineItems: []domain.OrderLineItem{{ProductID: "p9", Quantity: 1, Price: 15}},
	}

	result, err := svc.AttributeOrder(context.Background(), "shop-a", order)
	require.NoError(t, err)
	assert.True(t, result.Missed)
	assert.Empty(t, result.Attributed)
	assert.Empty(t, attrs.records)

	// only the first anchor participates; both directions are seeded
	require.Len(t, sims.nudges, 2)
	assert.Equal(t, nudge{p1: "anchor-1", p2: "p9", delta: missedOpportunityNudge}, sims.nudges[0])
	assert.Equal(t, nudge{p1: "p9", p2: "anchor-1", delta: missedOpportunityNudge}, sims.nudges[1])
}

func TestAttributeOrder_NoServedEventsNoMiss(t *testing.T) {
	attrs := newFakeAttrRepo()
	sims := &fakeSimRepo{}
	svc := newTestService(&fakeEventRepo{}, attrs, sims, newFakeProfileRepo())

	order := domain.Order{
		OrderID:   "o1",
		CreatedAt: time.Now(),
		LineItems: []domain.OrderLineItem{{ProductID: "p1", Quantity: 1, Price: 10}},
	}

	result, err := svc.AttributeOrder(context.Background(), "shop-a", order)
	require.NoError(t, err)
	// nothing was served recently, so there is no anchor to credit
	assert.False(t, result.Missed)
	assert.Empty(t, sims.nudges)
}

func TestAttributeOrder_MergesCustomerProfile(t *testing.T) {
	now := time.Now()
	customer := "c-42"
	events := &fakeEventRepo{served: []domain.InteractionEvent{
		servedEvent(1, now.Add(-time.Hour), []any{"p1"}, nil),
	}}
	profiles := newFakeProfileRepo()
	svc := newTestService(events, newFakeAttrRepo(), &fakeSimRepo{}, profiles)

	order := domain.Order{
		OrderID:    "o1",
		CustomerID: &customer,
		CreatedAt:  now,
		LineItems: []domain.OrderLineItem{
			{ProductID: "p1", Quantity: 1, Price: 10},
			{ProductID: "p2", Quantity: 1, Price: 20},
		},
	}

	_, err := svc.AttributeOrder(context.Background(), "shop-a", order)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, profiles.merged[customer])
}

func TestAttributeOrder_UpsertFailureDoesNotAbort(t *testing.T) {
	now := time.Now()
	events := &fakeEventRepo{served: []domain.InteractionEvent{
		servedEvent(1, now.Add(-time.Hour), []any{"p1", "p2"}, nil),
	}}
	attrs := newFakeAttrRepo()
	attrs.failFor["p1"] = true
	svc := newTestService(events, attrs, &fakeSimRepo{}, newFakeProfileRepo())

	order := domain.Order{
		OrderID:   "o1",
		CreatedAt: now,
		LineItems: []domain.OrderLineItem{
			{ProductID: "p1", Quantity: 1, Price: 10},
			{ProductID: "p2", Quantity: 1, Price: 20},
		},
	}

	result, err := svc.AttributeOrder(context.Background(), "shop-a", order)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, result.Attributed)
}

func TestAttributeOrder_RedeliveryIsIdempotent(t *testing.T) {
	now := time.Now()
	events := &fakeEventRepo{served: []domain.InteractionEvent{
		servedEvent(1, now.Add(-time.Hour), []any{"p1"}, nil),
	}}
	attrs := newFakeAttrRepo()
	svc := newTestService(events, attrs, &fakeSimRepo{}, newFakeProfileRepo())

	order := domain.Order{
		OrderID:   "o1",
		CreatedAt: now,
		LineItems: []domain.OrderLineItem{{ProductID: "p1", Quantity: 1, Price: 10}},
	}

	_, err := svc.AttributeOrder(context.Background(), "shop-a", order)
	require.NoError(t, err)
	_, err = svc.AttributeOrder(context.Background(), "shop-a", order)
	require.NoError(t, err)

	assert.Len(t, attrs.records, 1)
}

func TestAttributeOrder_EventSourceUnreachable(t *testing.T) {
	events := &fakeEventRepo{err: errors.New("dial tcp: connection refused")}
	svc := newTestService(events, newFakeAttrRepo(), &fakeSimRepo{}, newFakeProfileRepo())

	order := domain.Order{
		OrderID:   "o1",
		CreatedAt: time.Now(),
		LineItems: []domain.OrderLineItem{{ProductID: "p1", Quantity: 1, Price: 10}},
	}

	_, err := svc.AttributeOrder(context.Background(), "shop-a", order)
	require.Error(t, err)
}
