// Package engine drives the import pipeline over a staged batch: it
// normalizes rows, annotates candidates, and commits the reviewed result
// into the ledger in atomic chunks with progress reporting and cooperative
// cancellation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iammattholland/escapebudget/internal/common"
	"github.com/iammattholland/escapebudget/internal/dedupe"
	"github.com/iammattholland/escapebudget/internal/importer"
	"github.com/iammattholland/escapebudget/internal/model"
	"github.com/iammattholland/escapebudget/internal/pattern"
	"github.com/iammattholland/escapebudget/internal/rule"
	"github.com/iammattholland/escapebudget/internal/service"
	"github.com/iammattholland/escapebudget/internal/transfer"
)

// Defaults for the batch tunables. Neither is a correctness parameter.
const (
	DefaultChunkSize        = 100
	DefaultProgressInterval = 25
)

// payeeRenameConfidence gates applying a learned canonical payee name.
const payeeRenameConfidence = 0.5

// Config holds configuration options for one import batch.
type Config struct {
	Mapping          importer.ColumnMapping
	AccountID        string
	Title            string
	DateFormat       string // empty means auto-detect
	Sign             importer.SignConvention
	ChunkSize        int
	ProgressInterval int
	DryRun           bool
}

// Reviewer is the external review/selection step between annotation and
// commit. It may mutate candidates in place (toggle inclusion, override
// categories or payees) and decides each transfer proposal's fate;
// proposals in neither set stay unpaired.
type Reviewer interface {
	Review(ctx context.Context, candidates []model.Candidate, proposals []transfer.Proposal) (ReviewDecision, error)
}

// ReviewDecision selects accepted and rejected transfer proposals by index.
type ReviewDecision struct {
	AcceptedProposals []int
	RejectedProposals []int
}

// AutoReviewer accepts only pairings whose learned pattern is reliable and
// leaves everything else for a later run. It never rejects, so neutral
// proposals stay surfaced without a confidence penalty.
type AutoReviewer struct{}

// Review implements Reviewer.
func (AutoReviewer) Review(_ context.Context, _ []model.Candidate, proposals []transfer.Proposal) (ReviewDecision, error) {
	var decision ReviewDecision
	for i, p := range proposals {
		if p.AutoAccept {
			decision.AcceptedProposals = append(decision.AcceptedProposals, i)
		}
	}
	return decision, nil
}

// Coordinator owns one batch end to end. The pattern store and the ledger
// are mutated only during saving; concurrent batches against the same
// ledger must be serialized by the caller.
type Coordinator struct {
	ledger   service.Ledger
	rules    service.RuleSource
	patterns *pattern.Store
	sink     service.ProgressSink
	reviewer Reviewer
	cfg      Config
	state    atomic.Int32

	pendingApplications []model.RuleApplication
}

// New creates a coordinator. A nil reviewer gets the AutoReviewer; a nil
// sink gets a no-op one.
func New(ledger service.Ledger, rules service.RuleSource, patterns *pattern.Store, sink service.ProgressSink, reviewer Reviewer, cfg Config) *Coordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.Title == "" {
		cfg.Title = "Importing transactions"
	}
	if reviewer == nil {
		reviewer = AutoReviewer{}
	}
	if sink == nil {
		sink = noopSink{}
	}
	return &Coordinator{
		ledger:   ledger,
		rules:    rules,
		patterns: patterns,
		sink:     sink,
		reviewer: reviewer,
		cfg:      cfg,
	}
}

// State is the coordinator's observable phase.
func (c *Coordinator) State() model.BatchState {
	return model.BatchState(c.state.Load())
}

func (c *Coordinator) setState(s model.BatchState) {
	c.state.Store(int32(s))
}

// Run executes the batch over the staged rows. The report is always
// populated, whether the batch completed, was cancelled, or failed; the
// error is non-nil only for failures. Cancellation is cooperative: the
// context is checked at phase boundaries and between chunks, never
// mid-chunk.
func (c *Coordinator) Run(ctx context.Context, rows [][]string) (*model.ImportReport, error) {
	report := &model.ImportReport{RowsRead: len(rows)}
	c.pendingApplications = nil

	run := func() error {
		candidates, err := c.prepare(ctx, rows, report)
		if err != nil {
			return err
		}
		proposals, engine, err := c.process(ctx, candidates, report)
		if err != nil {
			return err
		}
		return c.save(ctx, candidates, proposals, engine, report)
	}

	err := run()
	switch {
	case err == nil:
		c.setState(model.BatchCompleted)
		report.State = model.BatchCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, common.ErrBatchCancelled):
		c.setState(model.BatchCancelled)
		report.State = model.BatchCancelled
		err = nil
	default:
		c.setState(model.BatchFailed)
		report.State = model.BatchFailed
	}

	slog.Info("Batch finished", "summary", report.Summary())
	c.sink.Done(service.ProgressResult{State: report.State, Err: err, Report: report})
	if err != nil {
		return report, err
	}
	return report, nil
}

// prepare runs normalization across all rows. Row-level parse errors are
// collected and surfaced in aggregate, never aborting the batch; a mapping
// error is fatal before processing starts.
func (c *Coordinator) prepare(ctx context.Context, rows [][]string, report *model.ImportReport) ([]model.Candidate, error) {
	c.setState(model.BatchPreparing)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.update(model.BatchPreparing, "normalizing rows", 0, len(rows))

	if err := c.cfg.Mapping.Validate(); err != nil {
		return nil, err
	}

	normalizer := importer.NewNormalizer(c.cfg.Mapping, c.cfg.DateFormat, c.cfg.Sign)
	candidates := make([]model.Candidate, 0, len(rows))
	for i, row := range rows {
		candidate, err := normalizer.NormalizeRow(row, i)
		if err != nil {
			var rowErr *common.RowParseError
			if errors.As(err, &rowErr) {
				report.Skipped = append(report.Skipped, model.SkippedRow{Row: i, Reason: rowErr.Error()})
				slog.Warn("Skipping row", "row", i, "error", err)
				continue
			}
			return nil, err
		}
		candidates = append(candidates, candidate)
	}

	slog.Info("Prepared batch",
		"rows", len(rows),
		"candidates", len(candidates),
		"skipped", len(report.Skipped))
	return candidates, nil
}

// process annotates every candidate: duplicate detection, learned pattern
// lookups, rule application, and transfer resolution. Progress is reported
// every ProgressInterval candidates to bound UI churn.
func (c *Coordinator) process(ctx context.Context, candidates []model.Candidate, report *model.ImportReport) ([]transfer.Proposal, *rule.Engine, error) {
	c.setState(model.BatchProcessing)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	total := len(candidates)
	c.update(model.BatchProcessing, "detecting duplicates", 0, total)

	detector := dedupe.NewDetector(c.ledger)
	if err := detector.Annotate(ctx, candidates, c.cfg.AccountID); err != nil {
		return nil, nil, err
	}

	enabledRules, err := c.rules.EnabledRules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rules: %w", err)
	}
	engine := rule.NewEngine(enabledRules)

	for i := range candidates {
		cand := &candidates[i]

		if suggestion, ok := c.patterns.SuggestPayeeName(cand.RawPayee); ok &&
			suggestion.Confidence >= payeeRenameConfidence {
			cand.Payee = suggestion.CanonicalName
		}
		if suggestion, ok := c.patterns.SuggestCategory(cand.Payee); ok {
			cand.SuggestedCategory = suggestion.Category
			cand.CategoryConfidence = suggestion.Confidence
		}

		applications := engine.Apply(cand, c.cfg.AccountID)
		report.RulesApplied += len(applications)
		c.pendingApplications = append(c.pendingApplications, applications...)

		if (i+1)%c.cfg.ProgressInterval == 0 || i+1 == total {
			c.update(model.BatchProcessing, "matching patterns and rules", i+1, total)
		}
	}

	unmatched, err := c.ledger.UnmatchedTransfersFor(ctx, c.cfg.AccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load unmatched transfers: %w", err)
	}
	resolver := transfer.NewResolver(c.patterns)
	proposals := resolver.Propose(candidates, c.cfg.AccountID, unmatched)

	slog.Info("Processed batch",
		"candidates", total,
		"transfer_proposals", len(proposals),
		"rule_applications", report.RulesApplied)
	return proposals, engine, nil
}

// save runs review, resolves transfer proposals, and persists the selected
// candidates in fixed-size chunks, each committed as one unit. A chunk
// failure rolls back only that chunk and abandons the rest; prior chunks
// stay committed. Cancellation is honored between chunks.
func (c *Coordinator) save(ctx context.Context, candidates []model.Candidate, proposals []transfer.Proposal, engine *rule.Engine, report *model.ImportReport) error {
	// Snapshot suggestions before review so overrides feed rejections back
	// into the learning store.
	suggested := make(map[int]string, len(candidates))
	for i := range candidates {
		suggested[candidates[i].RowIndex] = candidates[i].SuggestedCategory
	}

	decision, err := c.reviewer.Review(ctx, candidates, proposals)
	if err != nil {
		return fmt.Errorf("review failed: %w", err)
	}

	c.setState(model.BatchSaving)
	if err := ctx.Err(); err != nil {
		return err
	}

	resolver := transfer.NewResolver(c.patterns)
	linkExisting := make(map[string]uuid.UUID) // transaction id -> transfer group id
	for _, idx := range decision.AcceptedProposals {
		p := proposals[idx]
		groupID, acceptErr := resolver.Accept(ctx, candidates, c.cfg.AccountID, p)
		if acceptErr != nil {
			return acceptErr
		}
		if p.Existing != nil {
			linkExisting[p.Existing.ID] = groupID
		}
		report.TransfersPaired++
	}
	for _, idx := range decision.RejectedProposals {
		if rejectErr := resolver.Reject(ctx, candidates, c.cfg.AccountID, proposals[idx]); rejectErr != nil {
			return rejectErr
		}
	}

	var selected []model.Candidate
	for i := range candidates {
		cand := &candidates[i]
		if cand.IsDuplicate && !cand.Include {
			report.DuplicatesExcluded++
			continue
		}
		if !cand.Selected() {
			continue
		}
		selected = append(selected, *cand)
	}

	if c.cfg.DryRun {
		slog.Info("Dry run, skipping commit", "selected", len(selected))
		return nil
	}

	total := len(selected)
	now := time.Now()
	for start := 0; start < total; start += c.cfg.ChunkSize {
		if err := ctx.Err(); err != nil {
			slog.Info("Batch cancelled between chunks",
				"chunks_committed", report.ChunksCommitted,
				"rows_committed", report.RowsCommitted)
			return err
		}

		end := start + c.cfg.ChunkSize
		if end > total {
			end = total
		}
		chunk := make([]model.Transaction, 0, end-start)
		for _, cand := range selected[start:end] {
			chunk = append(chunk, model.FromCandidate(cand, c.cfg.AccountID, now))
		}

		commitErr := common.WithRetry(ctx, func() error {
			if err := c.ledger.CommitChunk(ctx, chunk); err != nil {
				return &common.RetryableError{Err: err, Retryable: common.IsRetryable(err)}
			}
			return nil
		}, common.RetryOptions{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond})
		if commitErr != nil {
			return &common.CommitError{
				Chunk:     report.ChunksCommitted,
				Committed: report.RowsCommitted,
				Err:       commitErr,
			}
		}

		report.ChunksCommitted++
		report.RowsCommitted += len(chunk)
		c.update(model.BatchSaving, "committing chunks", report.RowsCommitted, total)
	}

	for txnID, groupID := range linkExisting {
		if err := c.ledger.LinkTransfer(ctx, txnID, groupID); err != nil {
			return err
		}
	}

	return c.feedback(ctx, selected, suggested, engine)
}

// feedback closes the learning loop after commit: accepted suggestions
// reinforce their patterns, overridden ones count as rejections, and rule
// counters plus application history are written back.
func (c *Coordinator) feedback(ctx context.Context, committed []model.Candidate, suggested map[int]string, engine *rule.Engine) error {
	for i := range committed {
		cand := &committed[i]
		if cand.SuggestedCategory == "" {
			continue
		}
		before := suggested[cand.RowIndex]
		if before != "" && before != cand.SuggestedCategory {
			if err := c.patterns.RecordCategory(ctx, cand.Payee, before, false); err != nil {
				return err
			}
		}
		if err := c.patterns.RecordCategory(ctx, cand.Payee, cand.SuggestedCategory, true); err != nil {
			return err
		}
		if err := c.patterns.ObserveCategory(ctx, cand.Payee, cand.SuggestedCategory, cand.Amount, cand.Date); err != nil {
			return err
		}
		if cand.Payee != "" && cand.RawPayee != "" && cand.Payee != importer.NormalizePayee(cand.RawPayee) {
			if err := c.patterns.RecordPayee(ctx, cand.RawPayee, cand.Payee, true); err != nil {
				return err
			}
		}
	}

	if err := c.rules.UpdateRuleCounters(ctx, engine.Rules()); err != nil {
		return err
	}
	if err := c.rules.RecordRuleApplications(ctx, c.pendingApplications); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) update(phase model.BatchState, message string, current, total int) {
	c.sink.Update(service.ProgressUpdate{
		Title:   c.cfg.Title,
		Phase:   phase,
		Message: message,
		Current: current,
		Total:   total,
	})
}

type noopSink struct{}

func (noopSink) Update(service.ProgressUpdate) {}
func (noopSink) Done(service.ProgressResult)   {}
