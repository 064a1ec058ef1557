package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferPairKey(t *testing.T) {
	assert.Equal(t, "checking|savings", TransferPairKey("checking", "savings"))
	assert.Equal(t, "checking|savings", TransferPairKey("savings", "checking"))
	assert.Equal(t, "checking|savings", TransferPairKey("  Savings ", "Checking"))
}

func TestTransferPatternConfidence(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	recentReject := now.Add(-24 * time.Hour)
	staleReject := now.Add(-8 * 24 * time.Hour)

	tests := []struct {
		name           string
		lastRejectedAt *time.Time
		successCount   int
		rejectCount    int
		wantConfidence float64
	}{
		{
			name:           "unseen pair is neutral",
			wantConfidence: 0.5,
		},
		{
			name:           "plain success rate below high use",
			successCount:   3,
			rejectCount:    1,
			wantConfidence: 0.75,
		},
		{
			name:           "high use earns a boost",
			successCount:   5,
			rejectCount:    5,
			wantConfidence: 0.55,
		},
		{
			name:           "boost is capped at 1",
			successCount:   20,
			wantConfidence: 1.0,
		},
		{
			name:           "recent rejection decays confidence",
			successCount:   4,
			lastRejectedAt: &recentReject,
			wantConfidence: 0.8,
		},
		{
			name:           "stale rejection does not decay",
			successCount:   4,
			lastRejectedAt: &staleReject,
			wantConfidence: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := TransferPattern{
				PairKey:        "a|b",
				SuccessCount:   tt.successCount,
				RejectCount:    tt.rejectCount,
				LastRejectedAt: tt.lastRejectedAt,
			}
			assert.InDelta(t, tt.wantConfidence, p.Confidence(now), 1e-9)
		})
	}
}

func TestTransferPatternReliable(t *testing.T) {
	now := time.Now()

	// Two successes have full rate but not enough history.
	p := TransferPattern{SuccessCount: 2}
	assert.False(t, p.Reliable(now))

	// Three clean successes: rate 1.0 clears the strict 0.7 gate.
	p = TransferPattern{SuccessCount: 3}
	assert.True(t, p.Reliable(now))

	// Confidence exactly at the threshold is not enough, the gate is strict.
	p = TransferPattern{SuccessCount: 7, RejectCount: 3}
	assert.InDelta(t, 0.77, p.Confidence(now), 1e-9) // high-use boost applies
	assert.True(t, p.Reliable(now))

	p = TransferPattern{SuccessCount: 3, RejectCount: 2}
	assert.InDelta(t, 0.6, p.Confidence(now), 1e-9)
	assert.False(t, p.Reliable(now))
}

func TestTransferPatternObserve(t *testing.T) {
	p := TransferPattern{PairKey: "checking|savings"}

	first := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	p.Observe(decimal.NewFromInt(-500), decimal.NewFromInt(500), 0, []string{"Transfer to Savings"}, first)
	p.Observe(decimal.NewFromFloat(-250.00), decimal.NewFromFloat(247.50), 48*time.Hour, []string{"TRANSFER TO SAVINGS", "xfer"}, first.AddDate(0, 1, 0))

	require.NotNil(t, p.AmountMin)
	require.NotNil(t, p.AmountMax)
	assert.True(t, p.AmountMin.Equal(decimal.NewFromInt(250)))
	assert.True(t, p.AmountMax.Equal(decimal.NewFromInt(500)))
	assert.True(t, p.FeeDelta.Equal(decimal.NewFromFloat(2.50)))
	assert.Equal(t, 2, p.WindowDays)
	assert.Equal(t, []string{"transfer to savings", "xfer"}, p.PayeeHints)

	// Both observations landed on the 15th.
	assert.Equal(t, 15, p.DayOfMonth)
	assert.Equal(t, 2, p.DayOfMonthMatch)
	assert.Equal(t, 2, p.DayOfMonthSample)

	assert.True(t, p.HasHint("Monthly XFER out"))
	assert.False(t, p.HasHint("paycheck"))
}
