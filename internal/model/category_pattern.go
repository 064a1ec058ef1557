package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Thresholds gating when a category pattern may be applied without review.
const (
	categoryReliableConfidence = 0.7
	categoryReliableSuccesses  = 3
)

// CategoryPattern is a learned association between a payee substring and a
// category, with accept/reject history driving its confidence.
type CategoryPattern struct {
	LastUsedAt     time.Time
	PayeeSubstring string // matched case-insensitively against payee text
	Category       string
	AmountMin      *decimal.Decimal // learned amount range, nil until observed
	AmountMax      *decimal.Decimal
	WeekdayCounts  [7]int // affinity: commit weekday histogram
	SuccessCount   int
	RejectCount    int
	ID             int64
}

// SuccessRate is the fraction of recorded outcomes that were accepted.
func (p *CategoryPattern) SuccessRate() float64 {
	total := p.SuccessCount + p.RejectCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// Confidence is successRate scaled down until the pattern has at least
// three successful matches. It is a pure function of the stored counters.
func (p *CategoryPattern) Confidence() float64 {
	return p.SuccessRate() * math.Min(1, float64(p.SuccessCount)/float64(categoryReliableSuccesses))
}

// Reliable reports whether the pattern may be auto-applied. Both the
// confidence floor and the sample-size floor are required; neither alone
// suffices. The boundaries are inclusive.
func (p *CategoryPattern) Reliable() bool {
	return p.Confidence() >= categoryReliableConfidence && p.SuccessCount >= categoryReliableSuccesses
}

// Observe folds a committed transaction's amount and weekday into the
// learned range and affinity.
func (p *CategoryPattern) Observe(amount decimal.Decimal, date time.Time) {
	if p.AmountMin == nil || amount.LessThan(*p.AmountMin) {
		a := amount
		p.AmountMin = &a
	}
	if p.AmountMax == nil || amount.GreaterThan(*p.AmountMax) {
		a := amount
		p.AmountMax = &a
	}
	if !date.IsZero() {
		p.WeekdayCounts[int(date.Weekday())]++
	}
}
