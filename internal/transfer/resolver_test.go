package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammattholland/escapebudget/internal/model"
	"github.com/iammattholland/escapebudget/internal/pattern"
)

// fakeRepo is an in-memory pattern repository seeded with transfer
// patterns.
type fakeRepo struct {
	transfers []model.TransferPattern
}

func (r *fakeRepo) LoadPayeePatterns(_ context.Context) ([]model.PayeePattern, error) {
	return nil, nil
}
func (r *fakeRepo) SavePayeePattern(_ context.Context, _ *model.PayeePattern) error { return nil }
func (r *fakeRepo) DeletePayeePattern(_ context.Context, _ string) error            { return nil }
func (r *fakeRepo) LoadCategoryPatterns(_ context.Context) ([]model.CategoryPattern, error) {
	return nil, nil
}
func (r *fakeRepo) SaveCategoryPattern(_ context.Context, _ *model.CategoryPattern) error {
	return nil
}
func (r *fakeRepo) LoadTransferPatterns(_ context.Context) ([]model.TransferPattern, error) {
	return r.transfers, nil
}
func (r *fakeRepo) SaveTransferPattern(_ context.Context, _ *model.TransferPattern) error {
	return nil
}

func loadedStore(t *testing.T, repo *fakeRepo) *pattern.Store {
	t.Helper()
	s := pattern.NewStore(repo)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func leg(rowIndex int, account, payee string, amount float64, date time.Time) model.Candidate {
	c := model.NewCandidate(rowIndex)
	c.RawAccount = account
	c.Payee = payee
	c.RawPayee = payee
	c.Amount = decimal.NewFromFloat(amount)
	c.Date = date
	return c
}

func TestProposeNeutralPair(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	candidates := []model.Candidate{
		leg(0, "checking", "Transfer out", -500, day),
		leg(1, "savings", "Transfer in", 500, day),
	}

	r := NewResolver(loadedStore(t, &fakeRepo{}))
	proposals := r.Propose(candidates, "checking", nil)

	require.Len(t, proposals, 1)
	p := proposals[0]
	assert.Equal(t, 0, p.OutIndex)
	assert.Equal(t, 1, p.InIndex)
	// Exact amount and same day with no learned pattern: amount 1.0 and
	// time 1.0 components only.
	assert.InDelta(t, 0.8, p.Score, 1e-9)
	assert.InDelta(t, 0.5, p.Confidence, 1e-9)
	assert.False(t, p.AutoAccept, "unseen pair must be surfaced, never auto-accepted")
}

func TestProposeRejectsNonPairs(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		candidates []model.Candidate
	}{
		{
			name: "same account",
			candidates: []model.Candidate{
				leg(0, "checking", "a", -500, day),
				leg(1, "checking", "b", 500, day),
			},
		},
		{
			name: "same sign",
			candidates: []model.Candidate{
				leg(0, "checking", "a", -500, day),
				leg(1, "savings", "b", -500, day),
			},
		},
		{
			name: "amounts too far apart",
			candidates: []model.Candidate{
				leg(0, "checking", "a", -500, day),
				leg(1, "savings", "b", 400, day),
			},
		},
		{
			name: "outside the window",
			candidates: []model.Candidate{
				leg(0, "checking", "a", -500, day),
				leg(1, "savings", "b", 500, day.AddDate(0, 0, 10)),
			},
		},
	}

	r := NewResolver(loadedStore(t, &fakeRepo{}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, r.Propose(tt.candidates, "checking", nil))
		})
	}
}

func TestProposeFeeTolerance(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	candidates := []model.Candidate{
		leg(0, "checking", "wire out", -500, day),
		leg(1, "savings", "wire in", 497.50, day),
	}

	// Within the default 1% tolerance even with no learned fee delta.
	r := NewResolver(loadedStore(t, &fakeRepo{}))
	proposals := r.Propose(candidates, "checking", nil)
	require.Len(t, proposals, 1)
	assert.InDelta(t, 0.6, proposals[0].Score, 1e-9)

	// A learned fee delta upgrades the amount component.
	repo := &fakeRepo{transfers: []model.TransferPattern{
		{PairKey: model.TransferPairKey("checking", "savings"), FeeDelta: decimal.NewFromFloat(2.50)},
	}}
	r = NewResolver(loadedStore(t, repo))
	proposals = r.Propose(candidates, "checking", nil)
	require.Len(t, proposals, 1)
	assert.InDelta(t, 0.7, proposals[0].Score, 1e-9)
}

func TestProposeGreedyLegDedup(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	candidates := []model.Candidate{
		leg(0, "checking", "xfer out", -500, day),
		leg(1, "savings", "xfer in", 500, day),
		leg(2, "vacation", "xfer in", 500, day.AddDate(0, 0, 1)),
	}

	r := NewResolver(loadedStore(t, &fakeRepo{}))
	proposals := r.Propose(candidates, "checking", nil)

	// The same-day pairing wins the outflow leg; the later inflow is left
	// with a record-keeping hint instead of a proposal.
	require.Len(t, proposals, 1)
	assert.Equal(t, 1, proposals[0].InIndex)
	assert.Equal(t, "checking", candidates[2].IntendedTransferAccount)
}

func TestProposeAgainstExistingLeg(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	candidates := []model.Candidate{
		leg(0, "checking", "xfer out", -500, day),
	}
	unmatched := []model.Transaction{
		{ID: "txn-1", AccountID: "savings", Payee: "xfer in", Amount: decimal.NewFromInt(500), Date: day, Kind: model.KindTransfer},
	}

	r := NewResolver(loadedStore(t, &fakeRepo{}))
	proposals := r.Propose(candidates, "checking", unmatched)

	require.Len(t, proposals, 1)
	p := proposals[0]
	assert.Equal(t, 0, p.OutIndex)
	assert.Equal(t, -1, p.InIndex)
	require.NotNil(t, p.Existing)
	assert.Equal(t, "txn-1", p.Existing.ID)
}

func TestAcceptLinksLegs(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	candidates := []model.Candidate{
		leg(0, "checking", "xfer out", -500, day),
		leg(1, "savings", "xfer in", 500, day),
	}

	store := loadedStore(t, &fakeRepo{})
	r := NewResolver(store)
	proposals := r.Propose(candidates, "checking", nil)
	require.Len(t, proposals, 1)

	groupID, err := r.Accept(context.Background(), candidates, "checking", proposals[0])
	require.NoError(t, err)

	assert.Equal(t, model.KindTransfer, candidates[0].Kind)
	assert.Equal(t, model.KindTransfer, candidates[1].Kind)
	require.NotNil(t, candidates[0].TransferGroupID)
	require.NotNil(t, candidates[1].TransferGroupID)
	assert.Equal(t, groupID, *candidates[0].TransferGroupID)
	assert.Equal(t, groupID, *candidates[1].TransferGroupID)

	// The acceptance feeds the learned pattern.
	pat := store.TransferPattern("checking", "savings")
	assert.Equal(t, 1, pat.SuccessCount)
	assert.True(t, pat.HasHint("xfer out"))
}

func TestAcceptInflowAgainstExistingOutflow(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	candidates := []model.Candidate{
		leg(0, "checking", "wire in", 500, day),
	}
	unmatched := []model.Transaction{
		{ID: "txn-1", AccountID: "savings", Payee: "wire out", Amount: decimal.NewFromFloat(-502.50), Date: day, Kind: model.KindTransfer},
	}

	store := loadedStore(t, &fakeRepo{})
	r := NewResolver(store)
	proposals := r.Propose(candidates, "checking", unmatched)
	require.Len(t, proposals, 1)
	assert.Equal(t, 0, proposals[0].OutIndex, "the candidate fills the proposal's candidate slot even as the inflow leg")

	_, err := r.Accept(context.Background(), candidates, "checking", proposals[0])
	require.NoError(t, err)

	// The observation must be oriented by sign: amount bounds follow the
	// outflow leg's magnitude, not the candidate's.
	pat := store.TransferPattern("checking", "savings")
	require.NotNil(t, pat.AmountMin)
	require.NotNil(t, pat.AmountMax)
	assert.True(t, pat.AmountMin.Equal(decimal.NewFromFloat(502.50)), "got %s", pat.AmountMin)
	assert.True(t, pat.AmountMax.Equal(decimal.NewFromFloat(502.50)), "got %s", pat.AmountMax)
	assert.True(t, pat.FeeDelta.Equal(decimal.NewFromFloat(2.50)))
}

func TestRejectRecordsOutcome(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	candidates := []model.Candidate{
		leg(0, "checking", "xfer out", -500, day),
		leg(1, "savings", "xfer in", 500, day),
	}

	store := loadedStore(t, &fakeRepo{})
	r := NewResolver(store)
	proposals := r.Propose(candidates, "checking", nil)
	require.Len(t, proposals, 1)

	require.NoError(t, r.Reject(context.Background(), candidates, "checking", proposals[0]))

	// Legs stay standard transactions.
	assert.Equal(t, model.KindStandard, candidates[0].Kind)
	assert.Nil(t, candidates[0].TransferGroupID)

	pat := store.TransferPattern("checking", "savings")
	assert.Equal(t, 1, pat.RejectCount)
	require.NotNil(t, pat.LastRejectedAt)
}
