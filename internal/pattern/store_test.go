package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammattholland/escapebudget/internal/model"
)

// fakeRepo is an in-memory PatternRepository capturing saves.
type fakeRepo struct {
	payees     []model.PayeePattern
	categories []model.CategoryPattern
	transfers  []model.TransferPattern
	saves      int
}

func (r *fakeRepo) LoadPayeePatterns(_ context.Context) ([]model.PayeePattern, error) {
	return r.payees, nil
}

func (r *fakeRepo) SavePayeePattern(_ context.Context, _ *model.PayeePattern) error {
	r.saves++
	return nil
}

func (r *fakeRepo) DeletePayeePattern(_ context.Context, _ string) error { return nil }

func (r *fakeRepo) LoadCategoryPatterns(_ context.Context) ([]model.CategoryPattern, error) {
	return r.categories, nil
}

func (r *fakeRepo) SaveCategoryPattern(_ context.Context, _ *model.CategoryPattern) error {
	r.saves++
	return nil
}

func (r *fakeRepo) LoadTransferPatterns(_ context.Context) ([]model.TransferPattern, error) {
	return r.transfers, nil
}

func (r *fakeRepo) SaveTransferPattern(_ context.Context, _ *model.TransferPattern) error {
	r.saves++
	return nil
}

func newLoadedStore(t *testing.T, repo *fakeRepo) *Store {
	t.Helper()
	s := NewStore(repo)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestSuggestCategory(t *testing.T) {
	repo := &fakeRepo{
		categories: []model.CategoryPattern{
			{PayeeSubstring: "starbucks", Category: "Coffee", SuccessCount: 6},
			{PayeeSubstring: "star", Category: "Entertainment", SuccessCount: 2},
			{PayeeSubstring: "grocer", Category: "Groceries", SuccessCount: 10},
		},
	}
	s := newLoadedStore(t, repo)

	suggestion, ok := s.SuggestCategory("STARBUCKS #123")
	require.True(t, ok)
	assert.Equal(t, "Coffee", suggestion.Category)
	assert.True(t, suggestion.Reliable)
	assert.InDelta(t, 1.0, suggestion.Confidence, 1e-9)

	_, ok = s.SuggestCategory("SHELL OIL")
	assert.False(t, ok)

	_, ok = s.SuggestCategory("   ")
	assert.False(t, ok)
}

func TestSuggestCategoryExactnessBreaksTies(t *testing.T) {
	// Same counters, same confidence; the exact match must win.
	repo := &fakeRepo{
		categories: []model.CategoryPattern{
			{PayeeSubstring: "net", Category: "Utilities", SuccessCount: 3},
			{PayeeSubstring: "netflix", Category: "Streaming", SuccessCount: 3},
		},
	}
	s := newLoadedStore(t, repo)

	suggestion, ok := s.SuggestCategory("Netflix")
	require.True(t, ok)
	assert.Equal(t, "Streaming", suggestion.Category)
}

func TestRecordCategory(t *testing.T) {
	repo := &fakeRepo{}
	s := newLoadedStore(t, repo)
	ctx := context.Background()

	// Rejecting an unknown pairing learns nothing.
	require.NoError(t, s.RecordCategory(ctx, "STARBUCKS", "Coffee", false))
	assert.Empty(t, s.Categories())
	assert.Equal(t, 0, repo.saves)

	// Accepting creates the pattern.
	require.NoError(t, s.RecordCategory(ctx, "STARBUCKS", "Coffee", true))
	categories := s.Categories()
	require.Len(t, categories, 1)
	assert.Equal(t, 1, categories[0].SuccessCount)
	assert.Equal(t, 1, repo.saves)

	// A later rejection counts against the same pattern.
	require.NoError(t, s.RecordCategory(ctx, "STARBUCKS #999", "Coffee", false))
	categories = s.Categories()
	require.Len(t, categories, 1)
	assert.Equal(t, 1, categories[0].RejectCount)
}

func TestObserveCategory(t *testing.T) {
	repo := &fakeRepo{
		categories: []model.CategoryPattern{
			{PayeeSubstring: "grocer", Category: "Groceries", SuccessCount: 3},
		},
	}
	s := newLoadedStore(t, repo)

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.ObserveCategory(context.Background(), "CITY GROCER", "Groceries", decimal.NewFromInt(-42), date))

	categories := s.Categories()
	require.Len(t, categories, 1)
	require.NotNil(t, categories[0].AmountMin)
	assert.True(t, categories[0].AmountMin.Equal(decimal.NewFromInt(-42)))
	assert.Equal(t, 1, categories[0].WeekdayCounts[int(date.Weekday())])
}

func TestSuggestPayeeName(t *testing.T) {
	repo := &fakeRepo{
		payees: []model.PayeePattern{
			{CanonicalName: "Starbucks", Variants: []string{"starbucks #123"}, UseCount: 4},
		},
	}
	s := newLoadedStore(t, repo)

	suggestion, ok := s.SuggestPayeeName("STARBUCKS #123")
	require.True(t, ok)
	assert.Equal(t, "Starbucks", suggestion.CanonicalName)
	assert.InDelta(t, 4.0/6.0, suggestion.Confidence, 1e-9)

	_, ok = s.SuggestPayeeName("unknown payee")
	assert.False(t, ok)
}

func TestSuggestPayeeNameFullTieIsDeterministic(t *testing.T) {
	repo := &fakeRepo{
		payees: []model.PayeePattern{
			{CanonicalName: "Zeta Coffee", Variants: []string{"coffee shop #9"}, UseCount: 3},
			{CanonicalName: "Alpha Coffee", Variants: []string{"coffee shop #9"}, UseCount: 3},
		},
	}
	s := newLoadedStore(t, repo)

	for range 5 {
		suggestion, ok := s.SuggestPayeeName("COFFEE SHOP #9")
		require.True(t, ok)
		assert.Equal(t, "Alpha Coffee", suggestion.CanonicalName)
	}
}

func TestRecordPayeeVariantStealing(t *testing.T) {
	repo := &fakeRepo{
		payees: []model.PayeePattern{
			{CanonicalName: "Star Bar", Variants: []string{"starbucks #123"}, UseCount: 1},
		},
	}
	s := newLoadedStore(t, repo)
	ctx := context.Background()

	// Accepting the variant for Starbucks steals it from Star Bar.
	require.NoError(t, s.RecordPayee(ctx, "STARBUCKS #123", "Starbucks", true))

	suggestion, ok := s.SuggestPayeeName("starbucks #123")
	require.True(t, ok)
	assert.Equal(t, "Starbucks", suggestion.CanonicalName)

	for _, p := range s.Payees() {
		if p.CanonicalName == "Star Bar" {
			assert.Empty(t, p.Variants)
		}
	}
}

func TestRecordPayeeReject(t *testing.T) {
	repo := &fakeRepo{
		payees: []model.PayeePattern{
			{CanonicalName: "Starbucks", Variants: []string{"starbucks #123"}, UseCount: 3},
		},
	}
	s := newLoadedStore(t, repo)

	require.NoError(t, s.RecordPayee(context.Background(), "starbucks #123", "Starbucks", false))

	_, ok := s.SuggestPayeeName("starbucks #123")
	assert.False(t, ok, "rejected variant must no longer suggest")
}

func TestTransferPatternDefaults(t *testing.T) {
	s := newLoadedStore(t, &fakeRepo{})
	now := time.Now()

	p := s.TransferPattern("Checking", "Savings")
	assert.Equal(t, "checking|savings", p.PairKey)
	assert.InDelta(t, 0.5, p.Confidence(now), 1e-9)
	assert.False(t, p.Reliable(now))
}

func TestRecordTransfer(t *testing.T) {
	s := newLoadedStore(t, &fakeRepo{})
	ctx := context.Background()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	obs := &TransferObservation{
		Outflow: decimal.NewFromInt(-500),
		Inflow:  decimal.NewFromInt(500),
		Gap:     24 * time.Hour,
		Payees:  []string{"Transfer to Savings"},
		Date:    date,
	}
	for range 3 {
		require.NoError(t, s.RecordTransfer(ctx, "checking", "savings", true, obs))
	}

	p := s.TransferPattern("savings", "checking")
	assert.Equal(t, 3, p.SuccessCount)
	assert.True(t, p.Reliable(time.Now()))
	assert.True(t, p.HasHint("transfer to savings account"))

	// A rejection stamps the decay window.
	require.NoError(t, s.RecordTransfer(ctx, "checking", "savings", false, nil))
	p = s.TransferPattern("checking", "savings")
	require.NotNil(t, p.LastRejectedAt)
	assert.Less(t, p.Confidence(time.Now()), 0.7)
}
