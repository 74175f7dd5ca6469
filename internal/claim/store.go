package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/klangscribe/collector/internal/pkg/database"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"go.uber.org/zap"
)

// Store provides the directory claim state machine on top of the
// relational database. All mutations are single-row, single-statement
// operations; the primary key on dirname is the only coordination
// between concurrent pollers.
type Store struct {
	db     *database.DB
	logger *logger.Logger
}

// NewStore creates a claim store
func NewStore(db *database.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.L()
	}
	return &Store{
		db:     db,
		logger: log,
	}
}

// Migrate creates the state and metadata tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ClaimRecord{}, &DirectoryMetadata{})
}

// Claim attempts to take ownership of a directory by inserting its
// record in the processing state. Returns true when the insert
// succeeded and the caller owns the work. A duplicate-key violation
// means another caller got there first (now or in any previous run)
// and yields (false, nil) rather than an error. The insert itself is
// the lock; there is deliberately no existence check beforehand.
func (s *Store) Claim(ctx context.Context, name, runID string) (bool, error) {
	record := &ClaimRecord{
		Dirname:   name,
		StartedAt: time.Now().UTC(),
		Status:    StatusProcessing,
		RunID:     runID,
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim directory %q: %w", name, err)
	}

	return true, nil
}

// Complete transitions a claim to completed
func (s *Store) Complete(ctx context.Context, name string) error {
	return s.transition(ctx, name, StatusCompleted)
}

// Fail transitions a claim to failed
func (s *Store) Fail(ctx context.Context, name string) error {
	return s.transition(ctx, name, StatusFailed)
}

func (s *Store) transition(ctx context.Context, name string, status Status) error {
	result := s.db.WithContext(ctx).Model(&ClaimRecord{}).
		Where("dirname = ?", name).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark directory %q as %s: %w", name, status, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no claim record for directory %q", name)
	}
	return nil
}

// KnownNames returns every directory name with a claim record in any
// status. The poller diffs the watch root against this set.
func (s *Store) KnownNames(ctx context.Context) (map[string]struct{}, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&ClaimRecord{}).Pluck("dirname", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list known directories: %w", err)
	}

	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		known[name] = struct{}{}
	}
	return known, nil
}

// Stuck returns claims still in processing whose started_at is older
// than the given timeout.
func (s *Store) Stuck(ctx context.Context, timeout time.Duration) ([]ClaimRecord, error) {
	cutoff := time.Now().UTC().Add(-timeout)

	var records []ClaimRecord
	if err := s.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", StatusProcessing, cutoff).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list stuck directories: %w", err)
	}
	return records, nil
}

// Sweep marks all stuck claims as failed and returns how many records
// were affected. Safe to invoke repeatedly; a record is only swept
// once because the update moves it out of the processing status.
func (s *Store) Sweep(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)

	result := s.db.WithContext(ctx).Model(&ClaimRecord{}).
		Where("status = ? AND started_at < ?", StatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":       StatusFailed,
			"completed_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep stuck directories: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Warn("swept stuck directory claims",
			zap.Int64("count", result.RowsAffected),
			zap.Duration("timeout", timeout),
		)
	}

	return result.RowsAffected, nil
}

// StoreMetadata persists the metadata row for a fully uploaded directory
func (s *Store) StoreMetadata(ctx context.Context, meta *DirectoryMetadata) error {
	if meta.UploadedAt.IsZero() {
		meta.UploadedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(meta).Error; err != nil {
		return fmt.Errorf("failed to store metadata for directory %q: %w", meta.Dirname, err)
	}
	return nil
}

// MetadataFor returns the metadata rows recorded for one directory
func (s *Store) MetadataFor(ctx context.Context, name string) ([]DirectoryMetadata, error) {
	var metas []DirectoryMetadata
	if err := s.db.WithContext(ctx).
		Where("dirname = ?", name).
		Find(&metas).Error; err != nil {
		return nil, fmt.Errorf("failed to get metadata for directory %q: %w", name, err)
	}
	return metas, nil
}

// AllMetadata returns every metadata row, newest upload first
func (s *Store) AllMetadata(ctx context.Context) ([]DirectoryMetadata, error) {
	var metas []DirectoryMetadata
	if err := s.db.WithContext(ctx).
		Order("uploaded_at DESC").
		Find(&metas).Error; err != nil {
		return nil, fmt.Errorf("failed to list directory metadata: %w", err)
	}
	return metas, nil
}

// Stats summarizes directory processing state
type Stats struct {
	Processing     int64 `json:"processing"`
	Completed      int64 `json:"completed"`
	Failed         int64 `json:"failed"`
	TotalProcessed int64 `json:"total_processed"`
}

// Stats returns claim counts grouped by status plus the total number
// of recorded metadata rows.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&ClaimRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get processing stats: %w", err)
	}

	stats := &Stats{}
	for _, row := range rows {
		switch row.Status {
		case StatusProcessing:
			stats.Processing = row.Count
		case StatusCompleted:
			stats.Completed = row.Count
		case StatusFailed:
			stats.Failed = row.Count
		}
	}

	if err := s.db.WithContext(ctx).Model(&DirectoryMetadata{}).
		Count(&stats.TotalProcessed).Error; err != nil {
		return nil, fmt.Errorf("failed to count metadata rows: %w", err)
	}

	return stats, nil
}
