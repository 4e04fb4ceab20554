package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/planora/calsync-worker/internal/models"
)

// SyncLogRepository stores the append-only audit records of sync runs.
type SyncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Create inserts the log row opened by a run
func (r *SyncLogRepository) Create(ctx context.Context, log *models.SyncLog) error {
	result := r.db.WithContext(ctx).Create(log)
	if result.Error != nil {
		return fmt.Errorf("failed to create sync log: %w", result.Error)
	}
	return nil
}

// Close writes the terminal status, counts and completion time. Only the run
// that opened the log calls this, exactly once.
func (r *SyncLogRepository) Close(ctx context.Context, log *models.SyncLog) error {
	result := r.db.WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]interface{}{
			"status":           log.Status,
			"completed_at":     log.CompletedAt,
			"events_processed": log.EventsProcessed,
			"events_created":   log.EventsCreated,
			"events_updated":   log.EventsUpdated,
			"events_deleted":   log.EventsDeleted,
			"error":            log.Error,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to close sync log: %w", result.Error)
	}
	return nil
}

// PurgeOlderThan enforces the rolling retention window, deleting logs whose
// run started before the cutoff. Returns the number of deleted rows.
func (r *SyncLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("started_at < ?", cutoff).
		Delete(&models.SyncLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge sync logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
