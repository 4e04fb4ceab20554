package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Notification priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification delivery methods; delivery itself is owned by a separate
// collaborator that consumes these rows.
const (
	MethodInApp = "in_app"
	MethodEmail = "email"
	MethodPush  = "push"
)

// StringList is stored as a jsonb column.
type StringList []string

// Value implements driver.Valuer for StringList
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for StringList
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Notification is the event handed to the notification collaborator after a
// manual sync completes.
type Notification struct {
	ID                string     `gorm:"column:id;primaryKey"`
	UserID            string     `gorm:"column:user_id;index"`
	Priority          string     `gorm:"column:priority"`
	Title             string     `gorm:"column:title"`
	Message           string     `gorm:"column:message"`
	RelatedEntityType *string    `gorm:"column:related_entity_type"`
	RelatedEntityID   *string    `gorm:"column:related_entity_id"`
	Methods           StringList `gorm:"column:methods;type:jsonb"`
	IsRead            bool       `gorm:"column:is_read"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}
