// Package transfer proposes that two opposite-signed transactions on
// different accounts are the two legs of one movement of money between
// the user's own accounts.
package transfer

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iammattholland/escapebudget/internal/model"
	"github.com/iammattholland/escapebudget/internal/pattern"
)

// Resolver tuning. A pairing scoring below MinScore is not proposed.
const (
	DefaultWindowDays = 3
	MinScore          = 0.4

	weightAmount     = 0.5
	weightTime       = 0.3
	weightPayeeHint  = 0.15
	weightDayOfMonth = 0.05
)

// fallbackTolerance is the relative amount gap allowed when no fee delta
// has been learned for the pair.
var fallbackTolerance = decimal.NewFromFloat(0.01)

// Proposal is one suggested pairing. OutIndex is always a candidate;
// the inflow side is either another candidate (InIndex >= 0) or an
// existing unmatched ledger transaction.
type Proposal struct {
	Existing   *model.Transaction
	Score      float64
	Confidence float64
	OutIndex   int
	InIndex    int
	AutoAccept bool // only when the pair's learned pattern is reliable
}

// Resolver scores candidate pairings against learned transfer patterns.
type Resolver struct {
	store *pattern.Store
	now   func() time.Time
}

// NewResolver builds a resolver over the pattern store.
func NewResolver(store *pattern.Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Propose scans the batch (and unmatched ledger transfers) for pairings.
// Each leg appears in at most one returned proposal; when two proposals
// compete for a leg the higher score wins and the loser's counterpart is
// annotated with the intended transfer account as a record-keeping hint.
func (r *Resolver) Propose(candidates []model.Candidate, accountID string, unmatched []model.Transaction) []Proposal {
	var all []Proposal

	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			if p, ok := r.scorePair(&candidates[i], &candidates[j], accountID, i, j); ok {
				all = append(all, p)
			}
		}
		for k := range unmatched {
			if p, ok := r.scoreAgainstExisting(&candidates[i], accountID, i, &unmatched[k]); ok {
				all = append(all, p)
			}
		}
	}

	sort.SliceStable(all, func(a, b int) bool { return all[a].Score > all[b].Score })

	usedCandidate := make(map[int]bool)
	usedExisting := make(map[string]bool)
	var accepted []Proposal
	for _, p := range all {
		inUsed := p.InIndex >= 0 && usedCandidate[p.InIndex]
		exUsed := p.Existing != nil && usedExisting[p.Existing.ID]
		if usedCandidate[p.OutIndex] || inUsed || exUsed {
			// The stronger pairing won this leg; leave a hint on the loser.
			annotateLoser(candidates, accountID, p, usedCandidate)
			continue
		}
		usedCandidate[p.OutIndex] = true
		if p.InIndex >= 0 {
			usedCandidate[p.InIndex] = true
		}
		if p.Existing != nil {
			usedExisting[p.Existing.ID] = true
		}
		accepted = append(accepted, p)
	}
	return accepted
}

func annotateLoser(candidates []model.Candidate, accountID string, p Proposal, used map[int]bool) {
	for _, idx := range []int{p.OutIndex, p.InIndex} {
		if idx < 0 || used[idx] {
			continue
		}
		c := &candidates[idx]
		if c.IntendedTransferAccount != "" {
			continue
		}
		other := otherAccount(candidates, accountID, p, idx)
		c.IntendedTransferAccount = other
	}
}

func otherAccount(candidates []model.Candidate, accountID string, p Proposal, idx int) string {
	if p.Existing != nil {
		return p.Existing.AccountID
	}
	other := p.OutIndex
	if idx == p.OutIndex {
		other = p.InIndex
	}
	return legAccount(&candidates[other], accountID)
}

func legAccount(c *model.Candidate, fallback string) string {
	if c.RawAccount != "" {
		return c.RawAccount
	}
	return fallback
}

// scorePair evaluates two candidates as transfer legs.
func (r *Resolver) scorePair(a, b *model.Candidate, accountID string, ai, bi int) (Proposal, bool) {
	accA := legAccount(a, accountID)
	accB := legAccount(b, accountID)
	if accA == accB {
		return Proposal{}, false
	}
	out, in, outIdx, inIdx := orientLegs(a, b, ai, bi)
	if out == nil {
		return Proposal{}, false
	}

	pat := r.store.TransferPattern(accA, accB)
	score, ok := r.score(&pat, out.Amount, in.Amount, out.Date, in.Date, out.Payee, in.Payee)
	if !ok {
		return Proposal{}, false
	}
	now := r.now()
	return Proposal{
		OutIndex:   outIdx,
		InIndex:    inIdx,
		Score:      score,
		Confidence: pat.Confidence(now),
		AutoAccept: pat.Reliable(now),
	}, true
}

// scoreAgainstExisting evaluates a candidate against an unmatched ledger
// transfer on another account.
func (r *Resolver) scoreAgainstExisting(c *model.Candidate, accountID string, ci int, txn *model.Transaction) (Proposal, bool) {
	accC := legAccount(c, accountID)
	if accC == txn.AccountID || txn.Voided {
		return Proposal{}, false
	}
	if c.Amount.Sign() == txn.Amount.Sign() || c.Amount.Sign() == 0 {
		return Proposal{}, false
	}

	pat := r.store.TransferPattern(accC, txn.AccountID)
	var score float64
	var ok bool
	if c.Amount.Sign() < 0 {
		score, ok = r.score(&pat, c.Amount, txn.Amount, c.Date, txn.Date, c.Payee, txn.Payee)
	} else {
		score, ok = r.score(&pat, txn.Amount, c.Amount, txn.Date, c.Date, txn.Payee, c.Payee)
	}
	if !ok {
		return Proposal{}, false
	}
	now := r.now()
	return Proposal{
		OutIndex:   ci,
		InIndex:    -1,
		Existing:   txn,
		Score:      score,
		Confidence: pat.Confidence(now),
		AutoAccept: pat.Reliable(now),
	}, true
}

func orientLegs(a, b *model.Candidate, ai, bi int) (out, in *model.Candidate, outIdx, inIdx int) {
	switch {
	case a.Amount.Sign() < 0 && b.Amount.Sign() > 0:
		return a, b, ai, bi
	case b.Amount.Sign() < 0 && a.Amount.Sign() > 0:
		return b, a, bi, ai
	default:
		return nil, nil, 0, 0
	}
}

// score combines amount closeness (exact beats fee-adjusted), time
// closeness, learned payee hints, and day-of-month affinity.
func (r *Resolver) score(pat *model.TransferPattern, outAmt, inAmt decimal.Decimal, outDate, inDate time.Time, outPayee, inPayee string) (float64, bool) {
	amountScore, ok := scoreAmount(pat, outAmt, inAmt)
	if !ok {
		return 0, false
	}

	window := pat.WindowDays
	if window <= 0 {
		window = DefaultWindowDays
	}
	days := daysApart(outDate, inDate)
	if days > window {
		return 0, false
	}
	timeScore := 1 - float64(days)/float64(window+1)

	hintScore := 0.0
	if pat.HasHint(outPayee) {
		hintScore += 0.5
	}
	if pat.HasHint(inPayee) {
		hintScore += 0.5
	}

	domScore := 0.0
	if pat.DayOfMonthSample >= 3 &&
		float64(pat.DayOfMonthMatch)/float64(pat.DayOfMonthSample) >= 0.6 &&
		outDate.Day() == pat.DayOfMonth {
		domScore = 1.0
	}

	score := weightAmount*amountScore + weightTime*timeScore +
		weightPayeeHint*hintScore + weightDayOfMonth*domScore
	if score < MinScore {
		return 0, false
	}
	return score, true
}

// scoreAmount requires opposite-signed amounts within the learned or
// default tolerance. An exact magnitude match beats a fee-adjusted one.
func scoreAmount(pat *model.TransferPattern, outAmt, inAmt decimal.Decimal) (float64, bool) {
	outMag := outAmt.Abs()
	inMag := inAmt.Abs()
	diff := outMag.Sub(inMag).Abs()

	if diff.IsZero() {
		return 1.0, true
	}
	if pat.FeeDelta.Sign() > 0 && diff.LessThanOrEqual(pat.FeeDelta) {
		return 0.8, true
	}
	larger := outMag
	if inMag.GreaterThan(larger) {
		larger = inMag
	}
	if diff.LessThanOrEqual(larger.Mul(fallbackTolerance)) {
		return 0.6, true
	}
	return 0, false
}

// Accept links both legs of a proposal under one shared transfer group id
// and feeds the acceptance back into the pattern store. It returns the id
// so callers can link an existing ledger leg during saving.
func (r *Resolver) Accept(ctx context.Context, candidates []model.Candidate, accountID string, p Proposal) (uuid.UUID, error) {
	groupID := uuid.New()
	out := &candidates[p.OutIndex]
	out.Kind = model.KindTransfer
	out.TransferGroupID = &groupID

	var inAmt decimal.Decimal
	var inDate time.Time
	var inPayee, inAccount string
	if p.InIndex >= 0 {
		in := &candidates[p.InIndex]
		in.Kind = model.KindTransfer
		in.TransferGroupID = &groupID
		inAmt, inDate, inPayee, inAccount = in.Amount, in.Date, in.Payee, legAccount(in, accountID)
	} else {
		inAmt, inDate, inPayee, inAccount = p.Existing.Amount, p.Existing.Date, p.Existing.Payee, p.Existing.AccountID
	}

	// Against an existing ledger leg the candidate may be the inflow side,
	// so orient the observation by sign, not by proposal role.
	obsOut, obsIn := out.Amount, inAmt
	obsDate := out.Date
	if obsOut.Sign() > 0 {
		obsOut, obsIn = obsIn, obsOut
		obsDate = inDate
	}

	obs := &pattern.TransferObservation{
		Outflow: obsOut,
		Inflow:  obsIn,
		Gap:     absDuration(out.Date.Sub(inDate)),
		Payees:  []string{out.Payee, inPayee},
		Date:    obsDate,
	}
	err := r.store.RecordTransfer(ctx, legAccount(out, accountID), inAccount, true, obs)
	return groupID, err
}

// Reject feeds a declined pairing back into the pattern store. The legs
// remain standard transactions.
func (r *Resolver) Reject(ctx context.Context, candidates []model.Candidate, accountID string, p Proposal) error {
	outAccount := legAccount(&candidates[p.OutIndex], accountID)
	inAccount := ""
	if p.InIndex >= 0 {
		inAccount = legAccount(&candidates[p.InIndex], accountID)
	} else {
		inAccount = p.Existing.AccountID
	}
	return r.store.RecordTransfer(ctx, outAccount, inAccount, false, nil)
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
