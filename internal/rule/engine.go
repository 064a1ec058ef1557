// Package rule evaluates user-authored auto rules against candidates
// during import.
package rule

import (
	"sort"
	"strings"
	"time"

	"github.com/iammattholland/escapebudget/internal/model"
)

// Engine applies auto rules in ascending order. Every enabled, matching
// rule applies; later rules overwrite earlier ones for the same field,
// except memo-append which concatenates.
type Engine struct {
	now   func() time.Time
	rules []model.AutoRule
}

// NewEngine builds an engine over the rules, sorted into application
// order. The rule list is read-only during a batch; counters accumulate on
// the engine's copy and are read back via Rules.
func NewEngine(rules []model.AutoRule) *Engine {
	sorted := make([]model.AutoRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return &Engine{rules: sorted, now: time.Now}
}

// Rules returns the engine's rules with their updated application counters.
func (e *Engine) Rules() []model.AutoRule {
	out := make([]model.AutoRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Apply runs every enabled rule against the candidate in order and mutates
// it in place. One application record is produced per changed field, for
// later override tracking.
func (e *Engine) Apply(c *model.Candidate, accountID string) []model.RuleApplication {
	var applications []model.RuleApplication

	for i := range e.rules {
		r := &e.rules[i]
		if !r.Enabled {
			continue
		}
		if !Matches(r.Conditions, c, accountID) {
			continue
		}

		changes := applyActions(r.Actions, c)
		now := e.now()
		r.TimesApplied++
		r.LastAppliedAt = &now
		for _, ch := range changes {
			applications = append(applications, model.RuleApplication{
				RuleID:    r.ID,
				RowIndex:  c.RowIndex,
				Field:     ch.field,
				OldValue:  ch.old,
				NewValue:  ch.new,
				AppliedAt: now,
			})
		}
	}

	return applications
}

// Matches evaluates the rule's conditions as a pure conjunction: every
// present condition must hold, and an absent condition means "don't care".
// A rule with no conditions matches everything; ordering such rules last
// is the author's responsibility.
func Matches(conds model.RuleConditions, c *model.Candidate, accountID string) bool {
	if conds.Payee != nil && !matchesPayee(conds.Payee, c.Payee) {
		return false
	}
	if conds.Account != nil {
		account := c.RawAccount
		if account == "" {
			account = accountID
		}
		if !strings.EqualFold(conds.Account.Account, account) {
			return false
		}
	}
	if conds.Amount != nil && !matchesAmount(conds.Amount, c) {
		return false
	}
	return true
}

func matchesPayee(cond *model.PayeeCondition, payee string) bool {
	text := strings.ToLower(cond.Text)
	payee = strings.ToLower(payee)
	switch cond.Mode {
	case model.PayeeEquals:
		return payee == text
	case model.PayeePrefix:
		return strings.HasPrefix(payee, text)
	case model.PayeeSuffix:
		return strings.HasSuffix(payee, text)
	default:
		return strings.Contains(payee, text)
	}
}

func matchesAmount(cond *model.AmountCondition, c *model.Candidate) bool {
	switch cond.Mode {
	case model.AmountLessThan:
		return c.Amount.LessThan(cond.Value)
	case model.AmountGreaterThan:
		return c.Amount.GreaterThan(cond.Value)
	case model.AmountAtLeast:
		return c.Amount.GreaterThanOrEqual(cond.Value)
	case model.AmountBetween:
		return c.Amount.GreaterThanOrEqual(cond.Value) && c.Amount.LessThanOrEqual(cond.High)
	default:
		return c.Amount.Equal(cond.Value)
	}
}

type fieldChange struct {
	field string
	old   string
	new   string
}

func applyActions(a model.RuleActions, c *model.Candidate) []fieldChange {
	var changes []fieldChange

	if a.RenamePayee != "" && c.Payee != a.RenamePayee {
		changes = append(changes, fieldChange{"payee", c.Payee, a.RenamePayee})
		c.Payee = a.RenamePayee
	}
	if a.SetCategory != "" && c.SuggestedCategory != a.SetCategory {
		changes = append(changes, fieldChange{"category", c.SuggestedCategory, a.SetCategory})
		c.SuggestedCategory = a.SetCategory
		c.CategoryConfidence = 1.0 // user-authored rules are authoritative
	}
	if a.SetTags != nil {
		old := strings.Join(c.RawTags, ",")
		newTags := strings.Join(a.SetTags, ",")
		if old != newTags {
			changes = append(changes, fieldChange{"tags", old, newTags})
			c.RawTags = append([]string(nil), a.SetTags...)
		}
	}
	if a.Memo != "" {
		newMemo := a.Memo
		if a.AppendMemo && c.Memo != "" {
			newMemo = c.Memo + "; " + a.Memo
		}
		if c.Memo != newMemo {
			changes = append(changes, fieldChange{"memo", c.Memo, newMemo})
			c.Memo = newMemo
		}
	}
	if a.SetStatus != nil && c.Status != *a.SetStatus {
		changes = append(changes, fieldChange{"status", c.Status.String(), a.SetStatus.String()})
		c.Status = *a.SetStatus
	}

	return changes
}
