package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/github-org-backup/internal/aggregator"
	"github.com/kurihiro0119/github-org-backup/internal/domain"
	"github.com/kurihiro0119/github-org-backup/pkg/client"
)

var (
	remote    bool
	runsLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded backup runs",
	Long: `Read backup runs from the local history store, or from the history API
server at API_ENDPOINT when --remote is set.`,
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs [org]",
	Short: "List recent runs of an organization",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRuns,
}

var historyRunCmd = &cobra.Command{
	Use:   "run [id]",
	Short: "Show one run with its batches",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRun,
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary [org]",
	Short: "Summarize recent runs of an organization",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistorySummary,
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&remote, "remote", false, "query the history API server instead of the local store")
	historyRunsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")

	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historyRunCmd)
	historyCmd.AddCommand(historySummaryCmd)
}

// remoteHistory serves history queries through the API client
type remoteHistory struct {
	client *client.Client
}

func (r remoteHistory) Summarize(ctx context.Context, org string) (*domain.BackupSummary, error) {
	return r.client.GetSummary(ctx, org)
}

func (r remoteHistory) ListRuns(ctx context.Context, org string, limit int) ([]*domain.BackupRun, error) {
	return r.client.GetRuns(ctx, org, limit)
}

func (r remoteHistory) GetRun(ctx context.Context, id string) (*domain.RunDetails, error) {
	return r.client.GetRun(ctx, id)
}

// openHistory returns the history source and a function releasing it
func openHistory() (aggregator.Aggregator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if remote {
		return remoteHistory{client: client.NewClient(cfg.APIEndpoint)}, func() {}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	store, err := getStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return aggregator.NewAggregator(store), func() { store.Close() }, nil
}

func runHistoryRuns(cmd *cobra.Command, args []string) error {
	org := args[0]

	history, closeFn, err := openHistory()
	if err != nil {
		return err
	}
	defer closeFn()

	runs, err := history.ListRuns(cmd.Context(), org, runsLimit)
	if err != nil {
		return fmt.Errorf("failed to get runs: %w", err)
	}

	if outputJSON {
		return printJSON(runs)
	}

	fmt.Printf("\nBackup Runs: %s\n\n", org)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Run", "Started", "Status", "Batches", "Failed", "Directory"})
	for _, run := range runs {
		table.Append([]string{
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			string(run.Status),
			fmt.Sprintf("%d", run.TotalBatches),
			fmt.Sprintf("%d", run.FailedBatches),
			run.Directory,
		})
	}
	table.Render()

	return nil
}

func runHistoryRun(cmd *cobra.Command, args []string) error {
	history, closeFn, err := openHistory()
	if err != nil {
		return err
	}
	defer closeFn()

	details, err := history.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if outputJSON {
		return printJSON(details)
	}

	run := details.Run
	fmt.Printf("\nRun %s (%s)\n", run.ID, run.Org)
	fmt.Printf("Status: %s, started %s, finished %s\n", run.Status,
		run.StartedAt.Format("2006-01-02 15:04:05"), run.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Directory: %s\n\n", run.Directory)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Batch", "Migration", "Repositories", "State", "Archive / Error"})
	for _, b := range details.Batches {
		detail := b.ArchivePath
		if b.ErrorMessage != "" {
			detail = b.ErrorMessage
		}
		table.Append([]string{
			fmt.Sprintf("%d", b.Index),
			fmt.Sprintf("%d", b.MigrationID),
			strings.Join(b.Repositories, ", "),
			string(b.State),
			detail,
		})
	}
	table.Render()

	return nil
}

func runHistorySummary(cmd *cobra.Command, args []string) error {
	org := args[0]

	history, closeFn, err := openHistory()
	if err != nil {
		return err
	}
	defer closeFn()

	summary, err := history.Summarize(cmd.Context(), org)
	if err != nil {
		return fmt.Errorf("failed to get summary: %w", err)
	}

	if outputJSON {
		return printJSON(summary)
	}

	lastRun := "never"
	if summary.LastRunAt != nil {
		lastRun = fmt.Sprintf("%s (%s)", summary.LastRunAt.Format("2006-01-02 15:04:05"), summary.LastStatus)
	}

	fmt.Printf("\nBackup Summary: %s\n\n", org)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Total Runs", fmt.Sprintf("%d", summary.TotalRuns)})
	table.Append([]string{"Successful Runs", fmt.Sprintf("%d", summary.SuccessfulRuns)})
	table.Append([]string{"Failed Runs", fmt.Sprintf("%d", summary.FailedRuns)})
	table.Append([]string{"Archives", fmt.Sprintf("%d", summary.TotalArchives)})
	table.Append([]string{"Failed Batches", fmt.Sprintf("%d", summary.FailedBatches)})
	table.Append([]string{"Last Run", lastRun})
	table.Render()

	return nil
}
