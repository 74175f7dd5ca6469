// Package ingest runs the per-directory pipeline: upload every file to
// object storage, record the metadata row, remove the source directory,
// and notify.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/notify"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"github.com/klangscribe/collector/internal/poller"
	"go.uber.org/zap"
)

// ObjectStore uploads local files and reports their storage paths.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectKey, filePath string) (string, error)
}

// ClaimStore is the subset of the claim store the pipeline needs.
type ClaimStore interface {
	Complete(ctx context.Context, name string) error
	Fail(ctx context.Context, name string) error
	StoreMetadata(ctx context.Context, meta *claim.DirectoryMetadata) error
}

// Pipeline ingests one claimed directory at a time.
type Pipeline struct {
	objects  ObjectStore
	claims   ClaimStore
	notifier notify.Notifier
	logger   *logger.Logger
}

// New creates a pipeline. notifier may be nil to disable notifications.
func New(objects ObjectStore, claims ClaimStore, notifier notify.Notifier, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.L()
	}
	return &Pipeline{
		objects:  objects,
		claims:   claims,
		notifier: notifier,
		logger:   log,
	}
}

// Run processes one claimed work unit through upload, cleanup, and
// notification. Upload failure marks the claim failed and returns the
// error. Once the claim is completed it stays completed: cleanup
// failure is returned so the run is visibly broken, and notification
// failure is only logged.
func (p *Pipeline) Run(ctx context.Context, unit poller.WorkUnit) error {
	meta, err := p.upload(ctx, unit)
	if err != nil {
		if failErr := p.claims.Fail(ctx, unit.Dirname); failErr != nil {
			p.logger.Error("failed to mark claim failed",
				zap.String("dirname", unit.Dirname),
				zap.Error(failErr),
			)
		}
		return fmt.Errorf("failed to ingest directory %q: %w", unit.Dirname, err)
	}

	if err := p.claims.StoreMetadata(ctx, meta); err != nil {
		if failErr := p.claims.Fail(ctx, unit.Dirname); failErr != nil {
			p.logger.Error("failed to mark claim failed",
				zap.String("dirname", unit.Dirname),
				zap.Error(failErr),
			)
		}
		return fmt.Errorf("failed to ingest directory %q: %w", unit.Dirname, err)
	}

	if err := p.claims.Complete(ctx, unit.Dirname); err != nil {
		return fmt.Errorf("failed to ingest directory %q: %w", unit.Dirname, err)
	}

	p.logger.Info("directory ingested",
		zap.String("dirname", unit.Dirname),
		zap.Int("file_count", meta.FileCount),
		zap.Int64("total_size", meta.TotalSize),
	)

	if err := os.RemoveAll(unit.Path); err != nil {
		return fmt.Errorf("failed to remove ingested directory %q: %w", unit.Path, err)
	}

	if p.notifier != nil {
		summary := notify.Summary{
			Dirname:   unit.Dirname,
			FileCount: meta.FileCount,
			TotalSize: meta.TotalSize,
			Files:     meta.Files,
		}
		if err := p.notifier.DirectoryProcessed(ctx, summary); err != nil {
			p.logger.Warn("notification failed",
				zap.String("dirname", unit.Dirname),
				zap.Error(err),
			)
		}
	}

	return nil
}

// upload copies every regular file in the directory to object storage
// under collected/<dirname>/<filename> and builds the metadata row.
// Subdirectories are not descended into. Any single failure aborts the
// whole directory; already uploaded objects are left in place and the
// retry path overwrites them.
func (p *Pipeline) upload(ctx context.Context, unit poller.WorkUnit) (*claim.DirectoryMetadata, error) {
	entries, err := os.ReadDir(unit.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files claim.FileRecords
	var totalSize int64

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %q: %w", entry.Name(), err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		objectKey := "collected/" + unit.Dirname + "/" + entry.Name()
		storagePath, err := p.objects.UploadFile(ctx, objectKey, filepath.Join(unit.Path, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to upload %q: %w", entry.Name(), err)
		}

		files = append(files, claim.FileRecord{
			Filename:    entry.Name(),
			StoragePath: storagePath,
			FileSize:    info.Size(),
		})
		totalSize += info.Size()
	}

	return &claim.DirectoryMetadata{
		Dirname:   unit.Dirname,
		FileCount: len(files),
		TotalSize: totalSize,
		Files:     files,
	}, nil
}
