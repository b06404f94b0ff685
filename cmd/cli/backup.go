package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kurihiro0119/github-org-backup/internal/backup"
	"github.com/kurihiro0119/github-org-backup/internal/config"
	"github.com/kurihiro0119/github-org-backup/internal/downloader"
	"github.com/kurihiro0119/github-org-backup/internal/migration"
	"github.com/kurihiro0119/github-org-backup/internal/provider"
)

var (
	repository  string
	reposPerJob int
	outputDir   string
)

var backupCmd = &cobra.Command{
	Use:   "backup [org]",
	Short: "Back up an organization",
	Long: `Export every repository of a GitHub organization through the migration API
and download the archives into a timestamped directory.

The organization defaults to BACKUP_ORGANIZATION. The command exits with
status 1 when any batch failed; archives of the other batches are kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&repository, "repository", "", "back up a single repository instead of the whole organization")
	backupCmd.Flags().IntVar(&reposPerJob, "repos-per-job", 0, fmt.Sprintf("repositories per migration (1-%d, default from REPOS_PER_JOB)", config.MaxReposPerJob))
	backupCmd.Flags().StringVar(&outputDir, "output", "", "output root directory (default from BACKUP_OUTPUT_DIR)")
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBackupFlags(cmd, cfg, args)

	if err := cfg.ValidateBackup(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	coordinator, err := buildCoordinator(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := coordinator.Run(ctx, backup.Request{
		Org:         cfg.Organization,
		Repository:  cfg.Repository,
		ReposPerJob: cfg.ReposPerJob,
		OutputRoot:  cfg.OutputDir,
	})
	if err != nil {
		return fmt.Errorf("backup of %s failed: %w", cfg.Organization, err)
	}

	// Record the run even when the backup was interrupted
	if err := store.SaveRun(context.Background(), result.BackupRun(), result.Outcomes); err != nil {
		logger.Warn("failed to record backup run", zap.String("run_id", result.RunID), zap.Error(err))
	}

	if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
		if err := writeGitHubOutput(path, result); err != nil {
			logger.Warn("failed to write GitHub Actions outputs", zap.String("path", path), zap.Error(err))
		}
	}

	if err := printResult(result); err != nil {
		return err
	}
	if result.Failed() {
		fmt.Fprintf(os.Stderr, "Error: %d of %d batches failed\n", result.FailedBatches, len(result.Outcomes))
		return errBackupFailed
	}
	return nil
}

func applyBackupFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	if len(args) == 1 {
		cfg.Organization = args[0]
	}
	if cmd.Flags().Changed("repository") {
		cfg.Repository = repository
	}
	if cmd.Flags().Changed("repos-per-job") {
		cfg.ReposPerJob = reposPerJob
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputDir = outputDir
	}
}

func buildCoordinator(cfg *config.Config, logger *zap.Logger) (*backup.Coordinator, error) {
	opts := []provider.Option{provider.WithLogger(logger)}
	if cfg.GitHubAPIURL != "" {
		opts = append(opts, provider.WithBaseURL(cfg.GitHubAPIURL))
	}
	prov, err := provider.NewGitHubProvider(cfg.GitHubToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GitHub client: %w", err)
	}

	dl := downloader.New(
		downloader.WithMaxRetries(cfg.DownloadMaxRetries),
		downloader.WithBackoffUnit(cfg.DownloadBackoff),
		downloader.WithLogger(logger),
	)
	driver := migration.NewDriver(prov, dl,
		migration.WithPollInterval(cfg.PollInterval),
		migration.WithMaxPollAttempts(cfg.MaxPollAttempts),
		migration.WithLogger(logger),
	)
	return backup.NewCoordinator(prov, driver, backup.WithLogger(logger)), nil
}

func printResult(result *backup.Result) error {
	if outputJSON {
		return printJSON(struct {
			Run     any `json:"run"`
			Batches any `json:"batches"`
		}{result.BackupRun(), result.Outcomes})
	}

	fmt.Printf("\nBackup of %s (run %s)\n", result.Org, result.RunID)
	fmt.Printf("Directory: %s\n\n", result.Directory)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Batch", "Repositories", "State", "Archive / Error"})
	for _, outcome := range result.Outcomes {
		detail := outcome.ArchivePath
		if !outcome.Succeeded() {
			detail = outcome.ErrorMessage
		} else if outcome.CleanupWarning != "" {
			detail += " (cleanup: " + outcome.CleanupWarning + ")"
		}
		table.Append([]string{
			fmt.Sprintf("%d", outcome.Index),
			strings.Join(outcome.Repositories, ", "),
			string(outcome.State),
			detail,
		})
	}
	table.Render()

	fmt.Printf("\n%d archives written, %d batches failed\n", len(result.Files), result.FailedBatches)
	return nil
}
