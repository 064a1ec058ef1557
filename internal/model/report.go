package model

import "fmt"

// BatchState is the coordinator's observable phase.
type BatchState int

// Batch states. A batch moves Idle → Preparing → Processing → Saving and
// terminates in exactly one of Completed, Cancelled, or Failed.
const (
	BatchIdle BatchState = iota
	BatchPreparing
	BatchProcessing
	BatchSaving
	BatchCompleted
	BatchCancelled
	BatchFailed
)

// String returns a human-readable state name.
func (s BatchState) String() string {
	switch s {
	case BatchPreparing:
		return "preparing"
	case BatchProcessing:
		return "processing"
	case BatchSaving:
		return "saving"
	case BatchCompleted:
		return "completed"
	case BatchCancelled:
		return "cancelled"
	case BatchFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Terminal reports whether the state is one of the three end states.
func (s BatchState) Terminal() bool {
	return s == BatchCompleted || s == BatchCancelled || s == BatchFailed
}

// SkippedRow records one row excluded from the batch with its reason.
type SkippedRow struct {
	Reason string
	Row    int
}

// ImportReport is the final accounting for a batch. It is produced whether
// the batch completed, was cancelled, or failed partway.
type ImportReport struct {
	State              BatchState
	Skipped            []SkippedRow
	RowsRead           int
	RowsCommitted      int
	DuplicatesExcluded int
	TransfersPaired    int
	RulesApplied       int
	ChunksCommitted    int
}

// RowsSkipped is the number of rows excluded with reasons.
func (r *ImportReport) RowsSkipped() int { return len(r.Skipped) }

// Summary renders the one-line accounting shown at the end of every batch.
func (r *ImportReport) Summary() string {
	return fmt.Sprintf("%s: %d read, %d committed, %d skipped, %d duplicates excluded, %d transfers paired, %d rules applied",
		r.State, r.RowsRead, r.RowsCommitted, r.RowsSkipped(), r.DuplicatesExcluded, r.TransfersPaired, r.RulesApplied)
}
