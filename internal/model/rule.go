package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PayeeMatchMode selects how a rule's payee condition compares text.
type PayeeMatchMode int

// Payee match modes. All comparisons are case-insensitive.
const (
	PayeeContains PayeeMatchMode = iota
	PayeeEquals
	PayeePrefix
	PayeeSuffix
)

var payeeModeNames = map[PayeeMatchMode]string{
	PayeeContains: "contains",
	PayeeEquals:   "equals",
	PayeePrefix:   "prefix",
	PayeeSuffix:   "suffix",
}

// String returns the storage representation of the mode.
func (m PayeeMatchMode) String() string { return payeeModeNames[m] }

// ParsePayeeMatchMode decodes a stored payee mode string.
func ParsePayeeMatchMode(s string) (PayeeMatchMode, error) {
	for mode, name := range payeeModeNames {
		if name == s {
			return mode, nil
		}
	}
	return PayeeContains, fmt.Errorf("unknown payee match mode %q", s)
}

// AmountMatchMode selects how a rule's amount condition compares values.
type AmountMatchMode int

// Amount match modes.
const (
	AmountEquals AmountMatchMode = iota
	AmountLessThan
	AmountGreaterThan
	AmountAtLeast
	AmountBetween
)

var amountModeNames = map[AmountMatchMode]string{
	AmountEquals:      "eq",
	AmountLessThan:    "lt",
	AmountGreaterThan: "gt",
	AmountAtLeast:     "ge",
	AmountBetween:     "between",
}

// String returns the storage representation of the mode.
func (m AmountMatchMode) String() string { return amountModeNames[m] }

// ParseAmountMatchMode decodes a stored amount mode string.
func ParseAmountMatchMode(s string) (AmountMatchMode, error) {
	for mode, name := range amountModeNames {
		if name == s {
			return mode, nil
		}
	}
	return AmountEquals, fmt.Errorf("unknown amount match mode %q", s)
}

// RuleConditions is the conjunction a rule must satisfy. A nil condition
// means "don't care", never "must be absent"; a rule with no conditions at
// all matches every candidate.
type RuleConditions struct {
	Payee   *PayeeCondition
	Account *AccountCondition
	Amount  *AmountCondition
}

// PayeeCondition matches candidate payee text.
type PayeeCondition struct {
	Text string
	Mode PayeeMatchMode
}

// AccountCondition matches the candidate's account exactly.
type AccountCondition struct {
	Account string
}

// AmountCondition matches the candidate amount. High is used only by the
// two-sided between mode, which is inclusive on both ends.
type AmountCondition struct {
	Value decimal.Decimal
	High  decimal.Decimal
	Mode  AmountMatchMode
}

// RuleActions is what a matching rule does to a candidate. Zero-valued
// fields are skipped; SetTags applies when Tags is non-nil.
type RuleActions struct {
	RenamePayee string
	SetCategory string
	SetTags     []string
	Memo        string
	AppendMemo  bool // concatenate Memo instead of replacing
	SetStatus   *TransactionStatus
}

// AutoRule is a user-authored conditional rule applied during import.
// Order is a total order used as the application priority.
type AutoRule struct {
	CreatedAt     time.Time
	LastAppliedAt *time.Time
	Name          string
	Conditions    RuleConditions
	Actions       RuleActions
	ID            int64
	Order         int
	TimesApplied  int
	Enabled       bool
}

// RuleApplication records one field change made by a rule, used to track
// whether the user later overrode it.
type RuleApplication struct {
	AppliedAt time.Time
	Field     string
	OldValue  string
	NewValue  string
	RuleID    int64
	RowIndex  int
}

// Storage representation. Conditions and actions are persisted as JSON
// documents with string type tags and decoded into the variants above once
// on load, not on every access.

type storedConditions struct {
	PayeeText   string `json:"payee_text,omitempty"`
	PayeeMode   string `json:"payee_mode,omitempty"`
	Account     string `json:"account,omitempty"`
	AmountMode  string `json:"amount_mode,omitempty"`
	AmountValue string `json:"amount_value,omitempty"`
	AmountHigh  string `json:"amount_high,omitempty"`
}

type storedActions struct {
	RenamePayee string   `json:"rename_payee,omitempty"`
	SetCategory string   `json:"set_category,omitempty"`
	SetTags     []string `json:"set_tags,omitempty"`
	Memo        string   `json:"memo,omitempty"`
	AppendMemo  bool     `json:"append_memo,omitempty"`
	SetStatus   string   `json:"set_status,omitempty"`
}

// EncodeConditions serializes rule conditions for storage.
func EncodeConditions(c RuleConditions) (string, error) {
	var s storedConditions
	if c.Payee != nil {
		s.PayeeText = c.Payee.Text
		s.PayeeMode = c.Payee.Mode.String()
	}
	if c.Account != nil {
		s.Account = c.Account.Account
	}
	if c.Amount != nil {
		s.AmountMode = c.Amount.Mode.String()
		s.AmountValue = c.Amount.Value.String()
		if c.Amount.Mode == AmountBetween {
			s.AmountHigh = c.Amount.High.String()
		}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	return string(data), nil
}

// DecodeConditions parses stored rule conditions into tagged variants.
func DecodeConditions(raw string) (RuleConditions, error) {
	var s storedConditions
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return RuleConditions{}, fmt.Errorf("failed to decode rule conditions: %w", err)
		}
	}
	var c RuleConditions
	if s.PayeeText != "" || s.PayeeMode != "" {
		mode, err := ParsePayeeMatchMode(s.PayeeMode)
		if err != nil {
			return RuleConditions{}, err
		}
		c.Payee = &PayeeCondition{Text: s.PayeeText, Mode: mode}
	}
	if s.Account != "" {
		c.Account = &AccountCondition{Account: s.Account}
	}
	if s.AmountMode != "" {
		mode, err := ParseAmountMatchMode(s.AmountMode)
		if err != nil {
			return RuleConditions{}, err
		}
		value, err := decimal.NewFromString(s.AmountValue)
		if err != nil {
			return RuleConditions{}, fmt.Errorf("invalid amount condition value %q: %w", s.AmountValue, err)
		}
		cond := &AmountCondition{Mode: mode, Value: value}
		if mode == AmountBetween {
			high, highErr := decimal.NewFromString(s.AmountHigh)
			if highErr != nil {
				return RuleConditions{}, fmt.Errorf("invalid amount condition high %q: %w", s.AmountHigh, highErr)
			}
			cond.High = high
		}
		c.Amount = cond
	}
	return c, nil
}

// EncodeActions serializes rule actions for storage.
func EncodeActions(a RuleActions) (string, error) {
	s := storedActions{
		RenamePayee: a.RenamePayee,
		SetCategory: a.SetCategory,
		SetTags:     a.SetTags,
		Memo:        a.Memo,
		AppendMemo:  a.AppendMemo,
	}
	if a.SetStatus != nil {
		s.SetStatus = a.SetStatus.String()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode rule actions: %w", err)
	}
	return string(data), nil
}

// DecodeActions parses stored rule actions into tagged variants.
func DecodeActions(raw string) (RuleActions, error) {
	var s storedActions
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return RuleActions{}, fmt.Errorf("failed to decode rule actions: %w", err)
		}
	}
	a := RuleActions{
		RenamePayee: s.RenamePayee,
		SetCategory: s.SetCategory,
		SetTags:     s.SetTags,
		Memo:        s.Memo,
		AppendMemo:  s.AppendMemo,
	}
	if s.SetStatus != "" {
		status := ParseTransactionStatus(s.SetStatus)
		a.SetStatus = &status
	}
	return a, nil
}
