package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is a durable ledger transaction. The amount sign convention
// is fixed once the owning account is fixed: positive is money into the
// account, negative is money out.
type Transaction struct {
	Date       time.Time
	CreatedAt  time.Time
	ID         string
	AccountID  string
	Payee      string
	RawPayee   string
	Memo       string
	Category   string
	Tags       []string
	Amount     decimal.Decimal
	Status     TransactionStatus
	Kind       TransactionKind
	TransferID *uuid.UUID // shared with exactly one paired transaction, nil when unmatched
	Voided     bool       // logical delete; history is preserved
}

// FromCandidate converts a reviewed candidate into a ledger transaction
// for the given account. The candidate's transfer group id carries over as
// the durable transfer id.
func FromCandidate(c Candidate, accountID string, now time.Time) Transaction {
	account := accountID
	if c.RawAccount != "" {
		account = c.RawAccount
	}
	return Transaction{
		ID:         uuid.NewString(),
		AccountID:  account,
		Date:       c.Date,
		Payee:      c.Payee,
		RawPayee:   c.RawPayee,
		Memo:       c.Memo,
		Category:   c.SuggestedCategory,
		Tags:       c.RawTags,
		Amount:     c.Amount,
		Status:     c.Status,
		Kind:       c.Kind,
		TransferID: c.TransferGroupID,
		CreatedAt:  now,
	}
}
