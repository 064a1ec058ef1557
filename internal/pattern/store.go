// Package pattern implements the learned-association store that improves
// imports over time: payee→category, payee→canonical-name, and
// account-pair→transfer-signature tables with accept/reject confidence.
package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iammattholland/escapebudget/internal/model"
	"github.com/iammattholland/escapebudget/internal/service"
)

// Store holds the three learned tables in memory and writes changes
// through to the repository. It is mutated only by the batch coordinator
// during saving; concurrent batches are serialized by the caller.
type Store struct {
	repo       service.PatternRepository
	now        func() time.Time
	payees     map[string]*model.PayeePattern // keyed by lowercase canonical name
	transfers  map[string]*model.TransferPattern
	categories []*model.CategoryPattern
}

// NewStore builds an empty store over the repository. Call Load before
// suggesting.
func NewStore(repo service.PatternRepository) *Store {
	return &Store{
		repo:      repo,
		now:       time.Now,
		payees:    make(map[string]*model.PayeePattern),
		transfers: make(map[string]*model.TransferPattern),
	}
}

// Load pulls all three tables into memory.
func (s *Store) Load(ctx context.Context) error {
	payees, err := s.repo.LoadPayeePatterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load payee patterns: %w", err)
	}
	for i := range payees {
		p := payees[i]
		s.payees[strings.ToLower(p.CanonicalName)] = &p
	}

	categories, err := s.repo.LoadCategoryPatterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load category patterns: %w", err)
	}
	s.categories = make([]*model.CategoryPattern, 0, len(categories))
	for i := range categories {
		p := categories[i]
		s.categories = append(s.categories, &p)
	}

	transfers, err := s.repo.LoadTransferPatterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load transfer patterns: %w", err)
	}
	for i := range transfers {
		p := transfers[i]
		s.transfers[p.PairKey] = &p
	}

	return nil
}

// matchRank orders how specifically a pattern matched: exact equality
// beats prefix beats substring when confidence ties.
type matchRank int

const (
	rankSubstring matchRank = iota
	rankPrefix
	rankExact
)

func rankMatch(payee, needle string) (matchRank, bool) {
	switch {
	case payee == needle:
		return rankExact, true
	case strings.HasPrefix(payee, needle):
		return rankPrefix, true
	case strings.Contains(payee, needle):
		return rankSubstring, true
	default:
		return rankSubstring, false
	}
}

// CategorySuggestion is a confidence-scored category lookup result.
type CategorySuggestion struct {
	Category   string
	Confidence float64
	Reliable   bool
}

// SuggestCategory finds the best category pattern for the payee text.
// Highest confidence wins; a more exact match wins ties.
func (s *Store) SuggestCategory(payee string) (CategorySuggestion, bool) {
	needle := strings.ToLower(strings.TrimSpace(payee))
	if needle == "" {
		return CategorySuggestion{}, false
	}

	var best *model.CategoryPattern
	var bestRank matchRank
	for _, p := range s.categories {
		rank, ok := rankMatch(needle, strings.ToLower(p.PayeeSubstring))
		if !ok {
			continue
		}
		if best == nil || p.Confidence() > best.Confidence() ||
			(p.Confidence() == best.Confidence() && rank > bestRank) {
			best = p
			bestRank = rank
		}
	}
	if best == nil {
		return CategorySuggestion{}, false
	}
	return CategorySuggestion{
		Category:   best.Category,
		Confidence: best.Confidence(),
		Reliable:   best.Reliable(),
	}, true
}

// PayeeSuggestion is a canonical-name lookup result.
type PayeeSuggestion struct {
	CanonicalName string
	Confidence    float64
}

// SuggestPayeeName finds the canonical name owning the raw payee variant.
// A full tie on confidence and rank resolves to the lexicographically first
// canonical name so repeated lookups agree.
func (s *Store) SuggestPayeeName(rawPayee string) (PayeeSuggestion, bool) {
	needle := strings.ToLower(strings.TrimSpace(rawPayee))
	if needle == "" {
		return PayeeSuggestion{}, false
	}

	keys := make([]string, 0, len(s.payees))
	for key := range s.payees {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var best *model.PayeePattern
	var bestRank matchRank
	for _, key := range keys {
		p := s.payees[key]
		for _, variant := range p.Variants {
			rank, ok := rankMatch(needle, variant)
			if !ok {
				continue
			}
			if best == nil || p.Confidence() > best.Confidence() ||
				(p.Confidence() == best.Confidence() && rank > bestRank) {
				best = p
				bestRank = rank
			}
			break
		}
	}
	if best == nil {
		return PayeeSuggestion{}, false
	}
	return PayeeSuggestion{CanonicalName: best.CanonicalName, Confidence: best.Confidence()}, true
}

// TransferPattern returns a copy of the learned pattern for the unordered
// account pair. Unseen pairs get a zero-history pattern whose confidence
// is the neutral 0.5.
func (s *Store) TransferPattern(accountA, accountB string) model.TransferPattern {
	key := model.TransferPairKey(accountA, accountB)
	if p, ok := s.transfers[key]; ok {
		return *p
	}
	return model.TransferPattern{PairKey: key}
}

// RecordCategory folds one accept/reject outcome into the category table.
// Accepting an unseen (payee, category) association creates its pattern.
func (s *Store) RecordCategory(ctx context.Context, payee, category string, accepted bool) error {
	needle := strings.ToLower(strings.TrimSpace(payee))
	if needle == "" || category == "" {
		return nil
	}

	var target *model.CategoryPattern
	for _, p := range s.categories {
		if p.Category != category {
			continue
		}
		if _, ok := rankMatch(needle, strings.ToLower(p.PayeeSubstring)); ok {
			target = p
			break
		}
	}
	if target == nil {
		if !accepted {
			return nil // nothing learned from rejecting an unknown pairing
		}
		target = &model.CategoryPattern{PayeeSubstring: needle, Category: category}
		s.categories = append(s.categories, target)
	}

	if accepted {
		target.SuccessCount++
	} else {
		target.RejectCount++
	}
	target.LastUsedAt = s.now()

	if err := s.repo.SaveCategoryPattern(ctx, target); err != nil {
		return fmt.Errorf("failed to save category pattern: %w", err)
	}
	return nil
}

// ObserveCategory folds a committed transaction into the matched pattern's
// learned amount range and weekday affinity.
func (s *Store) ObserveCategory(ctx context.Context, payee, category string, amount decimal.Decimal, date time.Time) error {
	needle := strings.ToLower(strings.TrimSpace(payee))
	for _, p := range s.categories {
		if p.Category != category {
			continue
		}
		if _, ok := rankMatch(needle, strings.ToLower(p.PayeeSubstring)); !ok {
			continue
		}
		p.Observe(amount, date)
		if err := s.repo.SaveCategoryPattern(ctx, p); err != nil {
			return fmt.Errorf("failed to save category pattern: %w", err)
		}
		return nil
	}
	return nil
}

// RecordPayee folds one accept/reject outcome into the canonical-name
// table. A variant belongs to at most one canonical name: accepting it for
// one steals it from any other.
func (s *Store) RecordPayee(ctx context.Context, rawPayee, canonicalName string, accepted bool) error {
	variant := strings.ToLower(strings.TrimSpace(rawPayee))
	key := strings.ToLower(strings.TrimSpace(canonicalName))
	if variant == "" || key == "" {
		return nil
	}

	target := s.payees[key]

	if !accepted {
		if target != nil && target.RemoveVariant(variant) {
			if err := s.repo.SavePayeePattern(ctx, target); err != nil {
				return fmt.Errorf("failed to save payee pattern: %w", err)
			}
		}
		return nil
	}

	for otherKey, other := range s.payees {
		if otherKey == key {
			continue
		}
		if other.RemoveVariant(variant) {
			if err := s.repo.SavePayeePattern(ctx, other); err != nil {
				return fmt.Errorf("failed to save payee pattern: %w", err)
			}
		}
	}

	if target == nil {
		target = &model.PayeePattern{CanonicalName: canonicalName}
		s.payees[key] = target
	}
	target.AddVariant(variant)
	target.UseCount++
	target.LastUsedAt = s.now()

	if err := s.repo.SavePayeePattern(ctx, target); err != nil {
		return fmt.Errorf("failed to save payee pattern: %w", err)
	}
	return nil
}

// TransferObservation carries the accepted pairing's details for the
// pattern to learn from.
type TransferObservation struct {
	Outflow decimal.Decimal
	Inflow  decimal.Decimal
	Gap     time.Duration
	Payees  []string
	Date    time.Time
}

// RecordTransfer folds one accept/reject outcome into the transfer table
// for the unordered account pair. The observation is folded in only on
// accept and may be nil.
func (s *Store) RecordTransfer(ctx context.Context, accountA, accountB string, accepted bool, obs *TransferObservation) error {
	key := model.TransferPairKey(accountA, accountB)
	target, ok := s.transfers[key]
	if !ok {
		target = &model.TransferPattern{PairKey: key}
		s.transfers[key] = target
	}

	now := s.now()
	if accepted {
		target.SuccessCount++
		target.LastUsedAt = now
		if obs != nil {
			target.Observe(obs.Outflow, obs.Inflow, obs.Gap, obs.Payees, obs.Date)
		}
	} else {
		target.RejectCount++
		rejectedAt := now
		target.LastRejectedAt = &rejectedAt
	}

	if err := s.repo.SaveTransferPattern(ctx, target); err != nil {
		return fmt.Errorf("failed to save transfer pattern: %w", err)
	}
	return nil
}

// Categories returns the loaded category patterns, for inspection commands.
func (s *Store) Categories() []model.CategoryPattern {
	out := make([]model.CategoryPattern, 0, len(s.categories))
	for _, p := range s.categories {
		out = append(out, *p)
	}
	return out
}

// Payees returns the loaded payee patterns, for inspection commands.
func (s *Store) Payees() []model.PayeePattern {
	out := make([]model.PayeePattern, 0, len(s.payees))
	for _, p := range s.payees {
		out = append(out, *p)
	}
	return out
}

// Transfers returns the loaded transfer patterns, for inspection commands.
func (s *Store) Transfers() []model.TransferPattern {
	out := make([]model.TransferPattern, 0, len(s.transfers))
	for _, p := range s.transfers {
		out = append(out, *p)
	}
	return out
}
