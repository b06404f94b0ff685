package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kurihiro0119/github-org-backup/internal/config"
	"github.com/kurihiro0119/github-org-backup/internal/logging"
	"github.com/kurihiro0119/github-org-backup/internal/storage"
	"github.com/kurihiro0119/github-org-backup/internal/storage/postgres"
	"github.com/kurihiro0119/github-org-backup/internal/storage/sqlite"
)

var (
	cfgFile    string
	outputJSON bool
	logLevel   string
)

// errBackupFailed is returned after the result has been reported, so main only sets the exit code
var errBackupFailed = errors.New("backup finished with failed batches")

var rootCmd = &cobra.Command{
	Use:   "github-org-backup",
	Short: "GitHub organization backup tool",
	Long: `A CLI tool for backing up every repository of a GitHub organization.

Repositories are exported in batches through the GitHub migration API,
every batch runs concurrently, and the resulting archives are written into
one timestamped directory. Finished runs are recorded in a history store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errBackupFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var files []string
	if cfgFile != "" {
		files = append(files, cfgFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "none":
		return storage.Nop{}, nil
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
