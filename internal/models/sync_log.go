package models

import "time"

type SyncType string

const (
	SyncTypeFull        SyncType = "full"
	SyncTypeIncremental SyncType = "incremental"
	SyncTypeManual      SyncType = "manual"
)

type SyncStatus string

const (
	// SyncStatusRunning is the transient state between opening and closing a
	// log; a run always closes its own log with one of the terminal statuses.
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
	SyncStatusPartial SyncStatus = "partial"
)

// SyncLogRetentionDays is the rolling window after which logs are purged.
const SyncLogRetentionDays = 30

// SyncLog is the append-only audit record of one orchestration run. It is
// written only by the run that opened it.
type SyncLog struct {
	ID              string     `gorm:"column:id;primaryKey"`
	ConnectionID    string     `gorm:"column:connection_id;index"`
	SyncType        SyncType   `gorm:"column:sync_type"`
	Status          SyncStatus `gorm:"column:status;index"`
	StartedAt       time.Time  `gorm:"column:started_at;index"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
	EventsProcessed int        `gorm:"column:events_processed"`
	EventsCreated   int        `gorm:"column:events_created"`
	EventsUpdated   int        `gorm:"column:events_updated"`
	EventsDeleted   int        `gorm:"column:events_deleted"`
	Error           *string    `gorm:"column:error"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (SyncLog) TableName() string {
	return "calendar_sync_logs"
}
