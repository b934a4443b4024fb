// Package upload publishes run artifacts (console logs and summaries) to
// object storage and returns their public URLs.
package upload

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BatchKeyFormat is the layout of a batch key, e.g. "2024-03-09,14-05-06".
const BatchKeyFormat = "2006-01-02,15-04-05"

// Uploader uploads single files to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// UploadFile uploads localPath under key and returns its public URL.
	UploadFile(ctx context.Context, localPath, key string) (string, error)
}

// SubKey converts a batch key into the folder name used for the batch's
// artifacts, e.g. "2024-03-09_14_05".
func SubKey(batch string) (string, error) {
	t, err := time.Parse(BatchKeyFormat, batch)
	if err != nil {
		return "", fmt.Errorf("parsing batch key %q: %w", batch, err)
	}

	return t.Format("2006-01-02_15_04"), nil
}

// LogKey returns the object key of a run's console log:
// <HOST>/<sub>/(<YYYYMMDDHHMMSS>)<short>_Log.txt.
func LogKey(host, sub string, started time.Time, short string) string {
	return fmt.Sprintf("%s/%s/(%s)%s_Log.txt", strings.ToUpper(host), sub, started.Format("20060102150405"), short)
}

// SummaryKey returns the object key of a run's summary file.
func SummaryKey(host, sub, short string) string {
	return fmt.Sprintf("%s/%s/%s.txt", strings.ToUpper(host), sub, short)
}
