package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kurihiro0119/github-org-backup/internal/backup"
)

// writeGitHubOutput appends the run outputs to the GitHub Actions output file
func writeGitHubOutput(path string, result *backup.Result) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	outputs := [][2]string{
		{"backup_dir", result.Directory},
		{"archive_files", strings.Join(result.Files, ",")},
		{"failed_batches", fmt.Sprintf("%d", result.FailedBatches)},
		{"run_id", result.RunID},
	}
	for _, kv := range outputs {
		if _, err := fmt.Fprintf(f, "%s=%s\n", kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}
