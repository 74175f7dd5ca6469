// Package notify delivers post-ingestion notifications. Notification
// failures never affect pipeline outcomes; callers log and move on.
package notify

import (
	"context"
	"errors"

	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"go.uber.org/zap"
)

// Summary describes one successfully ingested directory.
type Summary struct {
	Dirname   string
	FileCount int
	TotalSize int64
	Files     []claim.FileRecord
}

// Notifier receives a summary after a directory completes.
type Notifier interface {
	DirectoryProcessed(ctx context.Context, summary Summary) error
}

// LogNotifier writes the summary to the structured log.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.L()
	}
	return &LogNotifier{logger: log}
}

// DirectoryProcessed logs the ingestion summary
func (n *LogNotifier) DirectoryProcessed(_ context.Context, summary Summary) error {
	n.logger.Info("directory processed",
		zap.String("dirname", summary.Dirname),
		zap.Int("file_count", summary.FileCount),
		zap.Int64("total_size", summary.TotalSize),
	)
	return nil
}

// Multi fans a summary out to several notifiers and joins their errors.
type Multi []Notifier

// DirectoryProcessed delivers to every notifier, collecting failures
func (m Multi) DirectoryProcessed(ctx context.Context, summary Summary) error {
	var errs []error
	for _, n := range m {
		if err := n.DirectoryProcessed(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
