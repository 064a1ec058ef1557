package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/iammattholland/escapebudget/internal/model"
	"github.com/iammattholland/escapebudget/internal/service"
)

// BarSink renders batch progress as a terminal progress bar, one bar per
// phase. Safe for a single producer; updates arrive in order.
type BarSink struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	phase  model.BatchState
	total  int
	mu     sync.Mutex
}

// NewBarSink builds a progress bar sink writing to w.
func NewBarSink(w io.Writer) *BarSink {
	return &BarSink{writer: w}
}

// Update implements service.ProgressSink.
func (s *BarSink) Update(update service.ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bar == nil || update.Phase != s.phase || update.Total != s.total {
		s.finishBar()
		s.phase = update.Phase
		s.total = update.Total
		s.bar = progressbar.NewOptions(max(update.Total, 1),
			progressbar.OptionSetWriter(s.writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan][bold]%s: %s[reset]", update.Phase, update.Message)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]█[reset]",
				SaucerHead:    "[green]█[reset]",
				SaucerPadding: "░",
				BarStart:      "▐",
				BarEnd:        "▌",
			}),
		)
	}

	_ = s.bar.Set(update.Current)
}

// Done implements service.ProgressSink. It closes the active bar and
// prints the batch summary.
func (s *BarSink) Done(result service.ProgressResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishBar()

	var line string
	switch result.State {
	case model.BatchCompleted:
		line = FormatSuccess(result.Report.Summary())
	case model.BatchCancelled:
		line = FormatWarning(result.Report.Summary())
	default:
		line = FormatError(result.Report.Summary())
		if result.Err != nil {
			line += "\n" + FormatSubtle(result.Err.Error())
		}
	}
	fmt.Fprintln(s.writer, line)

	if len(result.Report.Skipped) > 0 {
		var b strings.Builder
		for i, skipped := range result.Report.Skipped {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "row %d: %s", skipped.Row, skipped.Reason)
		}
		fmt.Fprintln(s.writer, RenderBox("Skipped rows", b.String()))
	}
}

func (s *BarSink) finishBar() {
	if s.bar != nil {
		_ = s.bar.Finish()
		fmt.Fprintln(s.writer)
		s.bar = nil
	}
}

// WriterSink reports progress as plain text lines, for non-interactive
// output or piped logs.
type WriterSink struct {
	writer io.Writer
}

// NewWriterSink builds a plain text sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{writer: w}
}

// Update implements service.ProgressSink.
func (s *WriterSink) Update(update service.ProgressUpdate) {
	if update.Total > 0 {
		fmt.Fprintf(s.writer, "%s: %s (%d/%d)\n", update.Phase, update.Message, update.Current, update.Total)
		return
	}
	fmt.Fprintf(s.writer, "%s: %s\n", update.Phase, update.Message)
}

// Done implements service.ProgressSink.
func (s *WriterSink) Done(result service.ProgressResult) {
	fmt.Fprintln(s.writer, result.Report.Summary())
	if result.Err != nil {
		fmt.Fprintln(s.writer, result.Err.Error())
	}
}
