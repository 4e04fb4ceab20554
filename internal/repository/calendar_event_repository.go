package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/planora/calsync-worker/internal/models"
)

var ErrEventNotFound = errors.New("calendar event not found")

// CalendarEventRepository stores canonical calendar events.
type CalendarEventRepository struct {
	db *gorm.DB
}

func NewCalendarEventRepository(db *gorm.DB) *CalendarEventRepository {
	return &CalendarEventRepository{db: db}
}

// GetByExternalID retrieves a provider-sourced event keyed by
// (calendar_id, external_id).
func (r *CalendarEventRepository) GetByExternalID(ctx context.Context, calendarID, externalID string) (*models.CalendarEvent, error) {
	var event models.CalendarEvent
	result := r.db.WithContext(ctx).
		Where("calendar_id = ? AND external_id = ?", calendarID, externalID).
		First(&event)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", result.Error)
	}
	return &event, nil
}

// Create inserts a new event
func (r *CalendarEventRepository) Create(ctx context.Context, event *models.CalendarEvent) error {
	result := r.db.WithContext(ctx).Create(event)
	if result.Error != nil {
		return fmt.Errorf("failed to create event: %w", result.Error)
	}
	return nil
}

// Update overwrites the canonical fields and the raw payload of an event.
// The updated_at reconciliation clock is taken from the struct, not the wall
// clock, so the stored value stays comparable to provider markers.
func (r *CalendarEventRepository) Update(ctx context.Context, event *models.CalendarEvent) error {
	result := r.db.WithContext(ctx).Model(&models.CalendarEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"title":       event.Title,
			"description": event.Description,
			"location":    event.Location,
			"start_time":  event.StartTime,
			"end_time":    event.EndTime,
			"all_day":     event.AllDay,
			"status":      event.Status,
			"organizer":   event.Organizer,
			"attendees":   event.Attendees,
			"reminders":   event.Reminders,
			"raw_payload": event.RawPayload,
			"updated_at":  event.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update event: %w", result.Error)
	}
	return nil
}
