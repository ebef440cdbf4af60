//go:build !integration

package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"cartlift/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPseudonymKey = "0123456789abcdef"

type fakeEventRepo struct {
	events []domain.InteractionEvent
	err    error
}

func (f *fakeEventRepo) QueryEvents(_ context.Context, _ string, _ []string, _ time.Time) ([]domain.InteractionEvent, error) {
	return f.events, f.err
}

type fakeProfileRepo struct {
	profiles map[string]domain.UserProfile
	failFor  map[string]bool
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[string]domain.UserProfile), failFor: make(map[string]bool)}
}

func (f *fakeProfileRepo) Upsert(_ context.Context, profile domain.UserProfile) (bool, error) {
	if f.failFor[profile.SessionID] {
		return false, errors.New("connection reset")
	}
	_, exists := f.profiles[profile.SessionID]
	if exists {
		// updates never touch anonymous id or retention days
		prev := f.profiles[profile.SessionID]
		profile.AnonymousID = prev.AnonymousID
		profile.DataRetentionDays = prev.DataRetentionDays
	}
	f.profiles[profile.SessionID] = profile
	return !exists, nil
}

func sessionEvent(session, kind, pid string, at time.Time) domain.InteractionEvent {
	return domain.InteractionEvent{
		Shop:      "shop-a",
		SessionID: session,
		ProductID: pid,
		Kind:      kind,
		CreatedAt: at,
	}
}

func TestUpdateProfiles_NoEvents(t *testing.T) {
	repo := newFakeProfileRepo()
	svc := NewService(&fakeEventRepo{}, repo, 30, testPseudonymKey)

	report, err := svc.UpdateProfiles(context.Background(), "shop-a", time.Now(), domain.PrivacyStandard)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Empty(t, repo.profiles)
}

func TestUpdateProfiles_AggregatesSessionSets(t *testing.T) {
	now := time.Now()
	cents := int64(2500)
	events := &fakeEventRepo{events: []domain.InteractionEvent{
		sessionEvent("s1", domain.EventImpression, "p1", now.Add(-3*time.Hour)),
		sessionEvent("s1", domain.EventClick, "p2", now.Add(-2*time.Hour)),
		sessionEvent("s1", domain.EventAddToCart, "p2", now.Add(-90*time.Minute)),
		{
			Shop: "shop-a", SessionID: "s1", ProductID: "p2",
			Kind: domain.EventPurchase, RevenueCents: &cents,
			CreatedAt: now.Add(-time.Hour),
		},
		// events without a session are discarded
		{Shop: "shop-a", ProductID: "p3", Kind: domain.EventImpression, CreatedAt: now},
	}}
	repo := newFakeProfileRepo()
	svc := NewService(events, repo, 30, testPseudonymKey)

	report, err := svc.UpdateProfiles(context.Background(), "shop-a", now, domain.PrivacyStandard)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Updated)

	prof := repo.profiles["s1"]
	assert.ElementsMatch(t, []string{"p1", "p2"}, prof.ViewedProducts)
	assert.ElementsMatch(t, []string{"p2"}, prof.CartedProducts)
	assert.ElementsMatch(t, []string{"p2"}, prof.PurchasedProducts)
	assert.Equal(t, now.Add(-time.Hour), prof.LastActivity)

	require.NotNil(t, prof.PriceRange)
	assert.InDelta(t, 25.0, prof.PriceRange.Min, 1e-9)
	assert.InDelta(t, 25.0, prof.PriceRange.Max, 1e-9)
}

func TestUpdateProfiles_MedianUsesLowerMiddle(t *testing.T) {
	now := time.Now()
	prices := []int64{1000, 2000, 3000, 4000}
	events := &fakeEventRepo{}
	for i, cents := range prices {
		c := cents
		events.events = append(events.events, domain.InteractionEvent{
			Shop: "shop-a", SessionID: "s1", ProductID: "p1",
			Kind: domain.EventPurchase, RevenueCents: &c,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
	}
	repo := newFakeProfileRepo()
	svc := NewService(events, repo, 30, testPseudonymKey)

	_, err := svc.UpdateProfiles(context.Background(), "shop-a", now, domain.PrivacyStandard)
	require.NoError(t, err)

	pr := repo.profiles["s1"].PriceRange
	require.NotNil(t, pr)
	assert.InDelta(t, 10.0, pr.Min, 1e-9)
	assert.InDelta(t, 40.0, pr.Max, 1e-9)
	assert.InDelta(t, 25.0, pr.Avg, 1e-9)
	assert.InDelta(t, 20.0, pr.Median, 1e-9)
}

func TestUpdateProfiles_NoPurchasesMeansNoPriceRange(t *testing.T) {
	now := time.Now()
	events := &fakeEventRepo{events: []domain.InteractionEvent{
		sessionEvent("s1", domain.EventImpression, "p1", now),
	}}
	repo := newFakeProfileRepo()
	svc := NewService(events, repo, 30, testPseudonymKey)

	_, err := svc.UpdateProfiles(context.Background(), "shop-a", now, domain.PrivacyStandard)
	require.NoError(t, err)
	assert.Nil(t, repo.profiles["s1"].PriceRange)
}

func TestUpdateProfiles_PrivacyLevels(t *testing.T) {
	now := time.Now()
	customer := "c-77"
	makeEvents := func() []domain.InteractionEvent {
		ev := sessionEvent("s1", domain.EventImpression, "p1", now)
		ev.CustomerID = &customer
		return []domain.InteractionEvent{ev}
	}

	tests := []struct {
		name         string
		privacyLevel string
		wantCustomer bool
		wantAnon     bool
		wantDays     int
	}{
		{"basic keeps only a pseudonym", domain.PrivacyBasic, false, true, 30},
		{"standard keeps session aggregates", domain.PrivacyStandard, false, false, 90},
		{"advanced links the customer", domain.PrivacyAdvanced, true, false, 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeProfileRepo()
			svc := NewService(&fakeEventRepo{events: makeEvents()}, repo, 30, testPseudonymKey)

			_, err := svc.UpdateProfiles(context.Background(), "shop-a", now, tt.privacyLevel)
			require.NoError(t, err)

			prof := repo.profiles["s1"]
			assert.Equal(t, tt.privacyLevel, prof.PrivacyLevel)
			assert.Equal(t, tt.wantDays, prof.DataRetentionDays)
			if tt.wantCustomer {
				require.NotNil(t, prof.CustomerID)
				assert.Equal(t, customer, *prof.CustomerID)
			} else {
				assert.Nil(t, prof.CustomerID)
			}
			if tt.wantAnon {
				require.NotNil(t, prof.AnonymousID)
				assert.NotEmpty(t, *prof.AnonymousID)
				assert.NotEqual(t, "s1", *prof.AnonymousID)
			} else {
				assert.Nil(t, prof.AnonymousID)
			}
		})
	}
}

func TestUpdateProfiles_CustomerLastWriteWins(t *testing.T) {
	now := time.Now()
	first, second := "c-1", "c-2"
	ev1 := sessionEvent("s1", domain.EventImpression, "p1", now.Add(-time.Hour))
	ev1.CustomerID = &first
	ev2 := sessionEvent("s1", domain.EventClick, "p1", now)
	ev2.CustomerID = &second

	repo := newFakeProfileRepo()
	svc := NewService(&fakeEventRepo{events: []domain.InteractionEvent{ev1, ev2}}, repo, 30, testPseudonymKey)

	_, err := svc.UpdateProfiles(context.Background(), "shop-a", now, domain.PrivacyAdvanced)
	require.NoError(t, err)

	prof := repo.profiles["s1"]
	require.NotNil(t, prof.CustomerID)
	assert.Equal(t, second, *prof.CustomerID)
}

func TestUpdateProfiles_UpsertFailureSkipsSession(t *testing.T) {
	now := time.Now()
	events := &fakeEventRepo{events: []domain.InteractionEvent{
		sessionEvent("s1", domain.EventImpression, "p1", now),
		sessionEvent("s2", domain.EventImpression, "p1", now),
	}}
	repo := newFakeProfileRepo()
	repo.failFor["s1"] = true
	svc := NewService(events, repo, 30, testPseudonymKey)

	report, err := svc.UpdateProfiles(context.Background(), "shop-a", now, domain.PrivacyStandard)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "s1", report.Skipped[0].SessionID)
	assert.Contains(t, repo.profiles, "s2")
}
