// Package model defines the domain types shared across the import
// pipeline: staged candidates, durable transactions, learned patterns,
// auto rules, and the batch report.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind classifies what a transaction represents.
type TransactionKind int

const (
	KindStandard TransactionKind = iota
	KindTransfer
	KindAdjustment
	KindIgnored
)

var kindNames = map[TransactionKind]string{
	KindStandard:   "standard",
	KindTransfer:   "transfer",
	KindAdjustment: "adjustment",
	KindIgnored:    "ignored",
}

func (k TransactionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "standard"
}

// ParseTransactionKind maps a stored tag back to its kind. Unknown tags
// fall back to standard so old rows stay readable after a schema change.
func ParseTransactionKind(s string) TransactionKind {
	for kind, name := range kindNames {
		if name == s {
			return kind
		}
	}
	return KindStandard
}

// TransactionStatus tracks reconciliation progress.
type TransactionStatus int

const (
	StatusPending TransactionStatus = iota
	StatusCleared
	StatusReconciled
)

var statusNames = map[TransactionStatus]string{
	StatusPending:    "pending",
	StatusCleared:    "cleared",
	StatusReconciled: "reconciled",
}

func (s TransactionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "pending"
}

// ParseTransactionStatus maps a stored tag back to its status. Unknown
// tags fall back to pending.
func ParseTransactionStatus(s string) TransactionStatus {
	for status, name := range statusNames {
		if name == s {
			return status
		}
	}
	return StatusPending
}

// Candidate is one normalized staged row, annotated through the pipeline
// and not yet committed to the ledger. The amount is negative for money
// out of the account and positive for money in.
type Candidate struct {
	Date                    time.Time
	RawPayee                string
	Payee                   string
	Memo                    string
	RawCategory             string
	RawAccount              string
	RawTags                 []string
	Amount                  decimal.Decimal
	Status                  TransactionStatus
	Kind                    TransactionKind
	TransferGroupID         *uuid.UUID
	IntendedTransferAccount string // hint left when a competing pairing won the other leg
	SuggestedCategory       string
	CategoryConfidence      float64
	DuplicateReason         string
	RowIndex                int
	IsDuplicate             bool
	Include                 bool
}

// NewCandidate returns a candidate included by default, before any
// annotation has run.
func NewCandidate(rowIndex int) Candidate {
	return Candidate{
		RowIndex: rowIndex,
		Include:  true,
	}
}

// Selected reports whether the candidate will be committed: included by
// the reviewer and not an ignored row.
func (c *Candidate) Selected() bool {
	return c.Include && c.Kind != KindIgnored
}
