package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transfer pattern tuning. The boost and penalty are flat multipliers on
// the success rate rather than a Bayesian update; the thresholds below are
// what gate auto-acceptance.
const (
	transferNeutralConfidence = 0.5
	transferReliableThreshold = 0.7
	transferReliableSuccesses = 3
	transferHighUseCount      = 5
	transferHighUseBoost      = 1.1
	transferRecentRejectDecay = 0.8
	transferRejectWindow      = 7 * 24 * time.Hour
)

// TransferPattern holds the learned signature of transfers between one
// unordered pair of accounts.
type TransferPattern struct {
	LastUsedAt       time.Time
	LastRejectedAt   *time.Time
	PairKey          string // canonical unordered account-pair key, see TransferPairKey
	PayeeHints       []string
	AmountMin        *decimal.Decimal
	AmountMax        *decimal.Decimal
	FeeDelta         decimal.Decimal // largest absolute fee gap seen between legs
	WindowDays       int             // learned max days between legs
	DayOfMonth       int             // first observed day of month
	DayOfMonthMatch  int             // legs landing on that day
	DayOfMonthSample int
	SuccessCount     int
	RejectCount      int
}

// TransferPairKey builds the canonical key for an unordered account pair.
func TransferPairKey(accountA, accountB string) string {
	a := strings.ToLower(strings.TrimSpace(accountA))
	b := strings.ToLower(strings.TrimSpace(accountB))
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Confidence starts neutral for unseen pairs, then follows the success
// rate with a flat boost for well-used patterns and a flat penalty when a
// rejection happened within the last seven days.
func (p *TransferPattern) Confidence(now time.Time) float64 {
	total := p.SuccessCount + p.RejectCount
	if total == 0 {
		return transferNeutralConfidence
	}
	c := float64(p.SuccessCount) / float64(total)
	if p.SuccessCount >= transferHighUseCount {
		c *= transferHighUseBoost
	}
	if p.LastRejectedAt != nil && now.Sub(*p.LastRejectedAt) < transferRejectWindow {
		c *= transferRecentRejectDecay
	}
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

// Reliable reports whether pairings for this account pair may be accepted
// without review. Requires both at least three successes and confidence
// strictly above 0.7.
func (p *TransferPattern) Reliable(now time.Time) bool {
	return p.SuccessCount >= transferReliableSuccesses && p.Confidence(now) > transferReliableThreshold
}

// HasHint reports whether any learned payee substring appears in the text.
func (p *TransferPattern) HasHint(payee string) bool {
	payee = strings.ToLower(payee)
	for _, h := range p.PayeeHints {
		if h != "" && strings.Contains(payee, h) {
			return true
		}
	}
	return false
}

// Observe folds an accepted pairing's legs into the learned signature:
// amount bounds, fee delta, leg gap window, payee hints, and day-of-month
// affinity.
func (p *TransferPattern) Observe(outflow, inflow decimal.Decimal, gap time.Duration, payees []string, date time.Time) {
	amt := outflow.Abs()
	if p.AmountMin == nil || amt.LessThan(*p.AmountMin) {
		a := amt
		p.AmountMin = &a
	}
	if p.AmountMax == nil || amt.GreaterThan(*p.AmountMax) {
		a := amt
		p.AmountMax = &a
	}
	if fee := outflow.Abs().Sub(inflow.Abs()).Abs(); fee.GreaterThan(p.FeeDelta) {
		p.FeeDelta = fee
	}
	if days := int(gap.Hours() / 24); days > p.WindowDays {
		p.WindowDays = days
	}
	for _, raw := range payees {
		hint := strings.ToLower(strings.TrimSpace(raw))
		if hint == "" || p.HasHint(hint) {
			continue
		}
		p.PayeeHints = append(p.PayeeHints, hint)
	}
	if !date.IsZero() {
		p.DayOfMonthSample++
		if p.DayOfMonthSample == 1 {
			p.DayOfMonth = date.Day()
		}
		if date.Day() == p.DayOfMonth {
			p.DayOfMonthMatch++
		}
	}
}
