package rule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammattholland/escapebudget/internal/model"
)

func coffeeCandidate() *model.Candidate {
	c := model.NewCandidate(0)
	c.Payee = "STARBUCKS #123"
	c.Amount = decimal.NewFromFloat(-4.75)
	return &c
}

func TestMatchesPayeeModes(t *testing.T) {
	tests := []struct {
		name string
		text string
		mode model.PayeeMatchMode
		want bool
	}{
		{name: "contains case-insensitive", text: "starbucks", mode: model.PayeeContains, want: true},
		{name: "contains miss", text: "dunkin", mode: model.PayeeContains, want: false},
		{name: "equals full string", text: "starbucks #123", mode: model.PayeeEquals, want: true},
		{name: "equals partial misses", text: "starbucks", mode: model.PayeeEquals, want: false},
		{name: "prefix", text: "STAR", mode: model.PayeePrefix, want: true},
		{name: "suffix", text: "#123", mode: model.PayeeSuffix, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds := model.RuleConditions{Payee: &model.PayeeCondition{Text: tt.text, Mode: tt.mode}}
			assert.Equal(t, tt.want, Matches(conds, coffeeCandidate(), "checking"))
		})
	}
}

func TestMatchesAmountModes(t *testing.T) {
	amount := func(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

	tests := []struct {
		name string
		cond model.AmountCondition
		want bool
	}{
		{name: "eq", cond: model.AmountCondition{Mode: model.AmountEquals, Value: amount(-4.75)}, want: true},
		{name: "eq miss", cond: model.AmountCondition{Mode: model.AmountEquals, Value: amount(-4)}, want: false},
		{name: "lt", cond: model.AmountCondition{Mode: model.AmountLessThan, Value: amount(0)}, want: true},
		{name: "gt", cond: model.AmountCondition{Mode: model.AmountGreaterThan, Value: amount(-10)}, want: true},
		{name: "ge at boundary", cond: model.AmountCondition{Mode: model.AmountAtLeast, Value: amount(-4.75)}, want: true},
		{name: "between inclusive low end", cond: model.AmountCondition{Mode: model.AmountBetween, Value: amount(-4.75), High: amount(0)}, want: true},
		{name: "between inclusive high end", cond: model.AmountCondition{Mode: model.AmountBetween, Value: amount(-10), High: amount(-4.75)}, want: true},
		{name: "between miss", cond: model.AmountCondition{Mode: model.AmountBetween, Value: amount(-3), High: amount(0)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds := model.RuleConditions{Amount: &tt.cond}
			assert.Equal(t, tt.want, Matches(conds, coffeeCandidate(), "checking"))
		})
	}
}

func TestMatchesAccountAndConjunction(t *testing.T) {
	conds := model.RuleConditions{
		Payee:   &model.PayeeCondition{Text: "starbucks", Mode: model.PayeeContains},
		Account: &model.AccountCondition{Account: "Checking"},
	}

	// Account falls back to the batch account when the row has none.
	assert.True(t, Matches(conds, coffeeCandidate(), "checking"))
	assert.False(t, Matches(conds, coffeeCandidate(), "savings"))

	// Every present condition must hold.
	c := coffeeCandidate()
	c.RawAccount = "savings"
	assert.False(t, Matches(conds, c, "checking"))

	// No conditions matches everything.
	assert.True(t, Matches(model.RuleConditions{}, coffeeCandidate(), "anything"))
}

func TestApplyOrderAndOverwrite(t *testing.T) {
	rules := []model.AutoRule{
		{
			ID:         2,
			Order:      20,
			Enabled:    true,
			Conditions: model.RuleConditions{Payee: &model.PayeeCondition{Text: "starbucks", Mode: model.PayeeContains}},
			Actions:    model.RuleActions{SetCategory: "Dining Out"},
		},
		{
			ID:         1,
			Order:      10,
			Enabled:    true,
			Conditions: model.RuleConditions{Payee: &model.PayeeCondition{Text: "starbucks", Mode: model.PayeeContains}},
			Actions:    model.RuleActions{SetCategory: "Coffee", RenamePayee: "Starbucks"},
		},
	}
	e := NewEngine(rules)
	c := coffeeCandidate()

	applications := e.Apply(c, "checking")

	// Rule 1 (order 10) runs first; rule 2 overwrites the category.
	assert.Equal(t, "Starbucks", c.Payee)
	assert.Equal(t, "Dining Out", c.SuggestedCategory)
	assert.InDelta(t, 1.0, c.CategoryConfidence, 1e-9)

	require.Len(t, applications, 3)
	assert.Equal(t, int64(1), applications[0].RuleID)
	assert.Equal(t, int64(2), applications[2].RuleID)
	assert.Equal(t, "category", applications[2].Field)
	assert.Equal(t, "Coffee", applications[2].OldValue)
	assert.Equal(t, "Dining Out", applications[2].NewValue)

	for _, r := range e.Rules() {
		assert.Equal(t, 1, r.TimesApplied)
		assert.NotNil(t, r.LastAppliedAt)
	}
}

func TestApplyAppendMemo(t *testing.T) {
	rules := []model.AutoRule{
		{ID: 1, Order: 1, Enabled: true, Actions: model.RuleActions{Memo: "imported"}},
		{ID: 2, Order: 2, Enabled: true, Actions: model.RuleActions{Memo: "reviewed", AppendMemo: true}},
	}
	e := NewEngine(rules)
	c := coffeeCandidate()

	e.Apply(c, "checking")
	assert.Equal(t, "imported; reviewed", c.Memo)
}

func TestApplySkipsDisabledRules(t *testing.T) {
	rules := []model.AutoRule{
		{ID: 1, Order: 1, Enabled: false, Actions: model.RuleActions{SetCategory: "Nope"}},
	}
	e := NewEngine(rules)
	c := coffeeCandidate()

	applications := e.Apply(c, "checking")
	assert.Empty(t, applications)
	assert.Empty(t, c.SuggestedCategory)
	assert.Equal(t, 0, e.Rules()[0].TimesApplied)
}

func TestApplySetStatusAndTags(t *testing.T) {
	cleared := model.StatusCleared
	rules := []model.AutoRule{
		{ID: 1, Order: 1, Enabled: true, Actions: model.RuleActions{
			SetTags:   []string{"coffee", "work"},
			SetStatus: &cleared,
		}},
	}
	e := NewEngine(rules)
	c := coffeeCandidate()

	applications := e.Apply(c, "checking")
	require.Len(t, applications, 2)
	assert.Equal(t, []string{"coffee", "work"}, c.RawTags)
	assert.Equal(t, model.StatusCleared, c.Status)
}
