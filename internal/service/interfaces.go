// Package service defines the interfaces shared across application components.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iammattholland/escapebudget/internal/model"
)

// Ledger is the data access layer the import pipeline runs against. Chunk
// commits are assumed transactional at chunk granularity.
type Ledger interface {
	// FindPotentialDuplicates returns existing transactions on the account
	// near the given date with the same amount, for the duplicate detector
	// to score.
	FindPotentialDuplicates(ctx context.Context, accountID string, date time.Time, amount decimal.Decimal, payee string) ([]model.Transaction, error)

	// UnmatchedTransfersFor returns transfer-kind transactions on other
	// accounts that have no paired leg yet.
	UnmatchedTransfersFor(ctx context.Context, accountID string) ([]model.Transaction, error)

	// CommitChunk persists one chunk of transactions as a single unit:
	// either all rows land or none do.
	CommitChunk(ctx context.Context, transactions []model.Transaction) error

	// LinkTransfer marks an existing transaction as one leg of a transfer
	// pair, used when a candidate pairs with an unmatched ledger leg.
	LinkTransfer(ctx context.Context, transactionID string, transferID uuid.UUID) error
}

// RuleSource supplies the ordered list of enabled auto rules. It is
// read-only during a batch.
type RuleSource interface {
	EnabledRules(ctx context.Context) ([]model.AutoRule, error)
	RecordRuleApplications(ctx context.Context, applications []model.RuleApplication) error
	UpdateRuleCounters(ctx context.Context, rules []model.AutoRule) error
}

// PatternRepository persists the three learned-pattern tables.
type PatternRepository interface {
	LoadPayeePatterns(ctx context.Context) ([]model.PayeePattern, error)
	SavePayeePattern(ctx context.Context, pattern *model.PayeePattern) error
	DeletePayeePattern(ctx context.Context, canonicalName string) error

	LoadCategoryPatterns(ctx context.Context) ([]model.CategoryPattern, error)
	SaveCategoryPattern(ctx context.Context, pattern *model.CategoryPattern) error

	LoadTransferPatterns(ctx context.Context) ([]model.TransferPattern, error)
	SaveTransferPattern(ctx context.Context, pattern *model.TransferPattern) error
}

// ProgressUpdate is one observable step of a running batch.
type ProgressUpdate struct {
	Title   string
	Phase   model.BatchState
	Message string
	Current int
	Total   int // zero when the total is not yet known
}

// ProgressResult is the terminal event for a batch.
type ProgressResult struct {
	Err    error
	Report *model.ImportReport
	State  model.BatchState
}

// ProgressSink receives progress updates and the terminal event for a
// batch. Updates arrive in order; Done is called exactly once.
type ProgressSink interface {
	Update(update ProgressUpdate)
	Done(result ProgressResult)
}
