// Package dedupe flags candidates that look like transactions already in
// the ledger or earlier in the same batch. Detection is advisory: flagged
// rows stay visible and user-overridable, never silently dropped.
package dedupe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/iammattholland/escapebudget/internal/model"
	"github.com/iammattholland/escapebudget/internal/service"
)

// Defaults for the match window and payee similarity floor.
const (
	DefaultDateWindowDays      = 3
	DefaultSimilarityThreshold = 0.75
)

// Detector compares candidates against the ledger and against earlier
// candidates in the same batch.
type Detector struct {
	ledger     service.Ledger
	windowDays int
	threshold  float64
}

// NewDetector builds a detector with the default window and threshold.
func NewDetector(ledger service.Ledger) *Detector {
	return &Detector{
		ledger:     ledger,
		windowDays: DefaultDateWindowDays,
		threshold:  DefaultSimilarityThreshold,
	}
}

// Annotate flags duplicates across the whole batch. A flagged candidate is
// excluded from commit by default but remains in the batch. Candidates are
// checked in row order so the first of two in-batch twins stays included.
func (d *Detector) Annotate(ctx context.Context, candidates []model.Candidate, accountID string) error {
	for i := range candidates {
		c := &candidates[i]
		if c.Kind == model.KindIgnored {
			continue
		}

		if reason, ok := d.matchesEarlierCandidate(candidates[:i], c, accountID); ok {
			markDuplicate(c, reason)
			continue
		}

		existing, err := d.ledger.FindPotentialDuplicates(ctx, candidateAccount(c, accountID), c.Date, c.Amount, c.Payee)
		if err != nil {
			return fmt.Errorf("failed to query ledger for duplicates: %w", err)
		}
		if reason, ok := d.matchesExisting(existing, c); ok {
			markDuplicate(c, reason)
		}
	}
	return nil
}

func markDuplicate(c *model.Candidate, reason string) {
	c.IsDuplicate = true
	c.DuplicateReason = reason
	c.Include = false
}

func candidateAccount(c *model.Candidate, fallback string) string {
	if c.RawAccount != "" {
		return c.RawAccount
	}
	return fallback
}

func (d *Detector) matchesEarlierCandidate(earlier []model.Candidate, c *model.Candidate, accountID string) (string, bool) {
	for i := range earlier {
		prev := &earlier[i]
		if prev.Kind == model.KindIgnored {
			continue
		}
		if candidateAccount(prev, accountID) != candidateAccount(c, accountID) {
			continue
		}
		if !prev.Amount.Equal(c.Amount) {
			continue
		}
		days := daysApart(prev.Date, c.Date)
		if days > d.windowDays {
			continue
		}
		if reason, ok := d.describeMatch(prev.Payee, prev.Date, c, days, fmt.Sprintf("row %d", prev.RowIndex)); ok {
			return reason, true
		}
	}
	return "", false
}

func (d *Detector) matchesExisting(existing []model.Transaction, c *model.Candidate) (string, bool) {
	for i := range existing {
		txn := &existing[i]
		if txn.Voided {
			continue
		}
		if !txn.Amount.Equal(c.Amount) {
			continue
		}
		days := daysApart(txn.Date, c.Date)
		if days > d.windowDays {
			continue
		}
		if reason, ok := d.describeMatch(txn.Payee, txn.Date, c, days, txn.Date.Format("2006-01-02")); ok {
			return reason, true
		}
	}
	return "", false
}

// describeMatch decides whether the payees are close enough and builds the
// human-readable reason: exact for same-day identical payees, fuzzy
// otherwise.
func (d *Detector) describeMatch(otherPayee string, otherDate time.Time, c *model.Candidate, days int, ref string) (string, bool) {
	a := strings.ToUpper(strings.TrimSpace(otherPayee))
	b := strings.ToUpper(strings.TrimSpace(c.Payee))

	if days == 0 && a == b {
		return fmt.Sprintf("exact duplicate of %q (%s)", otherPayee, ref), true
	}
	if Similarity(a, b) >= d.threshold {
		return fmt.Sprintf("possible duplicate of %q (%s, similar payee, %d day(s) apart)", otherPayee, ref, days), true
	}
	return "", false
}

// Similarity is 1 minus the normalized edit distance between two strings.
// Identical strings score 1.0; entirely different strings approach 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
