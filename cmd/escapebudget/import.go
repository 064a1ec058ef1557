package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iammattholland/escapebudget/internal/cli"
	"github.com/iammattholland/escapebudget/internal/common"
	"github.com/iammattholland/escapebudget/internal/config"
	"github.com/iammattholland/escapebudget/internal/engine"
	"github.com/iammattholland/escapebudget/internal/importer"
	"github.com/iammattholland/escapebudget/internal/model"
	"github.com/iammattholland/escapebudget/internal/pattern"
	"github.com/iammattholland/escapebudget/internal/service"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import transactions from a CSV or OFX export",
		Long: `Import a bank export into the ledger. Rows are normalized, checked
against existing transactions for duplicates, matched against learned
payee and category patterns, run through auto rules, and paired into
transfers before being committed in chunks.

CSV files need a column mapping; OFX and QFX files carry their own.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().StringP("account", "a", "", "account id the import belongs to (required)")
	cmd.Flags().StringP("mapping", "m", "", "comma-separated field per column, e.g. date,payee,amount,memo")
	cmd.Flags().String("date-format", "", "explicit date format, yyyy-MM-dd style tokens or a Go layout")
	cmd.Flags().Bool("positive-is-expense", false, "negate source amounts (card exports where positive means spent)")
	cmd.Flags().Int("chunk-size", engine.DefaultChunkSize, "transactions per commit chunk")
	cmd.Flags().Int("progress-interval", engine.DefaultProgressInterval, "candidates between progress updates")
	cmd.Flags().Bool("dry-run", false, "annotate and report without committing")
	cmd.Flags().Bool("no-header", false, "the CSV file has no header row")
	cmd.Flags().String("delimiter", ",", "CSV field delimiter")
	cmd.Flags().Bool("plain", false, "plain line progress instead of a progress bar")

	_ = viper.BindPFlag("import.account", cmd.Flags().Lookup("account"))
	_ = viper.BindPFlag("import.mapping", cmd.Flags().Lookup("mapping"))
	_ = viper.BindPFlag("import.date_format", cmd.Flags().Lookup("date-format"))
	_ = viper.BindPFlag("import.positive_is_expense", cmd.Flags().Lookup("positive-is-expense"))
	_ = viper.BindPFlag("import.chunk_size", cmd.Flags().Lookup("chunk-size"))
	_ = viper.BindPFlag("import.progress_interval", cmd.Flags().Lookup("progress-interval"))
	_ = viper.BindPFlag("import.dry_run", cmd.Flags().Lookup("dry-run"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	settings, err := config.LoadImportSettings()
	if err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer func() { _ = file.Close() }()

	rows, mapping, dateFormat, err := stageRows(cmd, file, args[0], settings)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s: %w", filepath.Base(args[0]), common.ErrNoRows)
	}

	slog.Info(cli.FormatTitle("Importing transactions"))
	slog.Info("Staged rows", "file", filepath.Base(args[0]), "rows", len(rows), "account", settings.AccountID)

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	patterns := pattern.NewStore(store)
	if err := patterns.Load(ctx); err != nil {
		return err
	}

	plain, _ := cmd.Flags().GetBool("plain")
	var sink service.ProgressSink
	if plain || viper.GetString("logging.format") == "json" {
		sink = cli.NewWriterSink(os.Stdout)
	} else {
		sink = cli.NewBarSink(os.Stdout)
	}

	coordinator := engine.New(store, store, patterns, sink, nil, engine.Config{
		Mapping:          mapping,
		AccountID:        settings.AccountID,
		DateFormat:       dateFormat,
		Sign:             settings.Sign,
		ChunkSize:        settings.ChunkSize,
		ProgressInterval: settings.ProgressInterval,
		DryRun:           settings.DryRun,
	})

	report, err := coordinator.Run(ctx, rows)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	if report.State == model.BatchCancelled {
		slog.Info("Import cancelled", "rows_committed", report.RowsCommitted)
	}
	return nil
}

// stageRows reads the whole source into staged rows and resolves the
// mapping and date format, honoring an OFX source's implied layout.
func stageRows(cmd *cobra.Command, file *os.File, path string, settings config.ImportSettings) ([][]string, importer.ColumnMapping, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		source := importer.NewOFXSource(file)
		rows, err := source.Rows()
		if err != nil {
			return nil, nil, "", err
		}
		return rows, source.Mapping(), source.DateFormat(), nil
	default:
		if settings.Mapping == nil {
			return nil, nil, "", common.NewUserError(
				"CSV imports need --mapping, a comma-separated field per column", common.ErrMissingConfig)
		}
		delimiter, _ := cmd.Flags().GetString("delimiter")
		noHeader, _ := cmd.Flags().GetBool("no-header")

		opts := []importer.CSVOption{}
		if !noHeader {
			opts = append(opts, importer.WithHeaderRow())
		}
		if delimiter != "" {
			opts = append(opts, importer.WithComma([]rune(delimiter)[0]))
		}
		rows, err := importer.NewCSVSource(file, opts...).Rows()
		if err != nil {
			return nil, nil, "", err
		}
		return rows, settings.Mapping, settings.DateFormat, nil
	}
}
