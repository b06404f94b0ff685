package backup

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Timestamp formats t as RFC 3339 with colons replaced so it is safe in file names
func Timestamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "-")
}

// DirectoryPath returns the run directory: <root>/<org>-backup-<timestamp>
func DirectoryPath(root, org, stamp string) string {
	return filepath.Join(root, fmt.Sprintf("%s-backup-%s", org, stamp))
}

// ArchivePath returns the archive file of a batch: <dir>/<org>-backup-<index>-<timestamp>.tar.gz
func ArchivePath(dir, org string, index int, stamp string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-backup-%d-%s.tar.gz", org, index, stamp))
}
