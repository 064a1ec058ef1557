// Package config resolves application paths and import settings from
// Viper configuration and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/iammattholland/escapebudget/internal/common"
	"github.com/iammattholland/escapebudget/internal/importer"
)

// ExpandPath expands a leading ~ and $VAR style environment variables in
// a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// DatabasePath resolves the SQLite database path. Precedence: viper
// configuration (config file or ESCAPEBUDGET_ env vars), then the default
// under the user config directory.
func DatabasePath() (string, error) {
	if v := viper.GetString("database.path"); v != "" {
		return ExpandPath(v), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "escapebudget", "escapebudget.db"), nil
}

// ImportSettings is the per-batch import configuration loaded from Viper.
type ImportSettings struct {
	AccountID        string
	DateFormat       string
	Mapping          importer.ColumnMapping
	Sign             importer.SignConvention
	ChunkSize        int
	ProgressInterval int
	DryRun           bool
}

// LoadImportSettings reads import configuration from Viper. The account
// id is required; the mapping spec is optional for sources that imply
// their own mapping.
func LoadImportSettings() (ImportSettings, error) {
	settings := ImportSettings{
		AccountID:        viper.GetString("import.account"),
		DateFormat:       viper.GetString("import.date_format"),
		ChunkSize:        viper.GetInt("import.chunk_size"),
		ProgressInterval: viper.GetInt("import.progress_interval"),
		DryRun:           viper.GetBool("import.dry_run"),
	}
	if settings.AccountID == "" {
		return ImportSettings{}, fmt.Errorf("%w: import.account", common.ErrMissingConfig)
	}

	if viper.GetBool("import.positive_is_expense") {
		settings.Sign = importer.PositiveIsExpense
	}

	if spec := viper.GetString("import.mapping"); spec != "" {
		mapping, err := importer.ParseMapping(strings.Split(spec, ","))
		if err != nil {
			return ImportSettings{}, fmt.Errorf("%w: import.mapping: %v", common.ErrInvalidConfig, err)
		}
		settings.Mapping = mapping
	}

	return settings, nil
}
