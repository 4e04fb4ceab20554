package models

import "time"

// Calendar mirrors one external calendar, keyed by (provider, external_id)
// for provider-sourced calendars. Locally owned calendars have no provider.
type Calendar struct {
	ID          string    `gorm:"column:id;primaryKey"`
	UserID      string    `gorm:"column:user_id;index"`
	Provider    *string   `gorm:"column:provider"`
	ExternalID  *string   `gorm:"column:external_id"`
	Name        string    `gorm:"column:name"`
	Description *string   `gorm:"column:description"`
	Color       *string   `gorm:"column:color"`
	TimeZone    string    `gorm:"column:time_zone"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Calendar) TableName() string {
	return "calendars"
}
