package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Canonical event status values
const (
	EventStatusConfirmed = "confirmed"
	EventStatusTentative = "tentative"
	EventStatusCancelled = "cancelled"
)

// Attendee response states, normalized across providers
const (
	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
	ResponseTentative   = "tentative"
	ResponseNeedsAction = "needsAction"
)

// Attendee is one participant of a canonical event.
type Attendee struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
	Organizer      bool   `json:"organizer,omitempty"`
}

// AttendeeList is stored as a jsonb column.
type AttendeeList []Attendee

// Value implements driver.Valuer for AttendeeList
func (a AttendeeList) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for AttendeeList
func (a *AttendeeList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, a)
}

// Reminder is one reminder override on a canonical event.
type Reminder struct {
	Method        string `json:"method"`
	MinutesBefore int    `json:"minutesBefore"`
}

// ReminderList is stored as a jsonb column.
type ReminderList []Reminder

// Value implements driver.Valuer for ReminderList
func (r ReminderList) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for ReminderList
func (r *ReminderList) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, r)
}

// CalendarEvent is the canonical internal representation of a calendar event.
// Provider-sourced events are keyed by (calendar_id, external_id) and are
// created and updated only by reconciliation. UpdatedAt doubles as the
// reconciliation clock compared against the provider's last-modified marker.
type CalendarEvent struct {
	ID          string       `gorm:"column:id;primaryKey"`
	CalendarID  string       `gorm:"column:calendar_id;index"`
	ExternalID  *string      `gorm:"column:external_id"`
	Title       string       `gorm:"column:title"`
	Description *string      `gorm:"column:description"`
	Location    *string      `gorm:"column:location"`
	StartTime   time.Time    `gorm:"column:start_time;index"`
	EndTime     time.Time    `gorm:"column:end_time"`
	AllDay      bool         `gorm:"column:all_day"`
	Status      string       `gorm:"column:status"`
	Organizer   *string      `gorm:"column:organizer"`
	Attendees   AttendeeList `gorm:"column:attendees;type:jsonb"`
	Reminders   ReminderList `gorm:"column:reminders;type:jsonb"`
	RawPayload  JSONB        `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt   time.Time    `gorm:"column:created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (CalendarEvent) TableName() string {
	return "calendar_events"
}
