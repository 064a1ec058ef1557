package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iammattholland/escapebudget/internal/pattern"
	"github.com/iammattholland/escapebudget/internal/storage"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Inspect and manage learned patterns",
		Long: `Inspect the learned tables that drive import suggestions: payee
canonical names, payee-to-category associations, and transfer pair
signatures. Patterns are learned from accepted and rejected suggestions
during imports.`,
	}

	cmd.AddCommand(patternsPayeesCmd())
	cmd.AddCommand(patternsCategoriesCmd())
	cmd.AddCommand(patternsTransfersCmd())
	cmd.AddCommand(patternsForgetCmd())

	return cmd
}

// loadPatterns opens storage and pulls the learned tables into memory.
func loadPatterns(cmd *cobra.Command) (*pattern.Store, *storage.SQLiteStorage, error) {
	ctx := cmd.Context()
	store, err := openStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	patterns := pattern.NewStore(store)
	if err := patterns.Load(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return patterns, store, nil
}

func patternsPayeesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "payees",
		Short: "List learned payee canonical names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			patterns, store, err := loadPatterns(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			payees := patterns.Payees()
			if len(payees) == 0 {
				slog.Info("No payee patterns learned yet")
				return nil
			}
			sort.Slice(payees, func(i, j int) bool { return payees[i].UseCount > payees[j].UseCount })

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "CANONICAL NAME\tVARIANTS\tUSES\tCONFIDENCE\tLAST USED")
			for _, p := range payees {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.0f%%\t%s\n",
					p.CanonicalName,
					truncateString(strings.Join(p.Variants, ", "), 48),
					p.UseCount,
					p.Confidence()*100,
					formatLastUsed(p.LastUsedAt))
			}
			return w.Flush()
		},
	}
}

func patternsCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List learned payee to category associations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			patterns, store, err := loadPatterns(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			categories := patterns.Categories()
			if len(categories) == 0 {
				slog.Info("No category patterns learned yet")
				return nil
			}
			sort.Slice(categories, func(i, j int) bool {
				return categories[i].Confidence() > categories[j].Confidence()
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PAYEE MATCH\tCATEGORY\tACCEPTED\tREJECTED\tCONFIDENCE\tRELIABLE")
			for _, p := range categories {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f%%\t%t\n",
					truncateString(p.PayeeSubstring, 32),
					p.Category,
					p.SuccessCount,
					p.RejectCount,
					p.Confidence()*100,
					p.Reliable())
			}
			return w.Flush()
		},
	}
}

func patternsTransfersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfers",
		Short: "List learned transfer pair signatures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			patterns, store, err := loadPatterns(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			transfers := patterns.Transfers()
			if len(transfers) == 0 {
				slog.Info("No transfer patterns learned yet")
				return nil
			}
			sort.Slice(transfers, func(i, j int) bool { return transfers[i].PairKey < transfers[j].PairKey })

			now := time.Now()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ACCOUNT PAIR\tACCEPTED\tREJECTED\tCONFIDENCE\tRELIABLE\tWINDOW")
			for _, p := range transfers {
				window := p.WindowDays
				if window <= 0 {
					window = 3
				}
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\t%t\t%dd\n",
					p.PairKey,
					p.SuccessCount,
					p.RejectCount,
					p.Confidence(now)*100,
					p.Reliable(now),
					window)
			}
			return w.Flush()
		},
	}
}

func patternsForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <canonical-name>",
		Short: "Delete a learned payee pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeletePayeePattern(ctx, args[0]); err != nil {
				return err
			}
			slog.Info("Payee pattern deleted", "canonical_name", args[0])
			return nil
		},
	}
}

func formatLastUsed(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02")
}
