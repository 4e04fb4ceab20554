package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/planora/calsync-worker/internal/models"
)

var ErrCalendarNotFound = errors.New("calendar not found")

// CalendarRepository stores internal calendars mirroring external ones.
type CalendarRepository struct {
	db *gorm.DB
}

func NewCalendarRepository(db *gorm.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// GetByExternalID retrieves the internal mirror keyed by (provider, external_id)
// for the given owner.
func (r *CalendarRepository) GetByExternalID(ctx context.Context, userID, provider, externalID string) (*models.Calendar, error) {
	var cal models.Calendar
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND external_id = ?", userID, provider, externalID).
		First(&cal)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCalendarNotFound
		}
		return nil, fmt.Errorf("failed to get calendar: %w", result.Error)
	}
	return &cal, nil
}

// Create inserts a new calendar
func (r *CalendarRepository) Create(ctx context.Context, cal *models.Calendar) error {
	result := r.db.WithContext(ctx).Create(cal)
	if result.Error != nil {
		return fmt.Errorf("failed to create calendar: %w", result.Error)
	}
	return nil
}

// UpdateMirror overwrites the display metadata mirrored from the provider.
func (r *CalendarRepository) UpdateMirror(ctx context.Context, cal *models.Calendar) error {
	result := r.db.WithContext(ctx).Model(&models.Calendar{}).
		Where("id = ?", cal.ID).
		Updates(map[string]interface{}{
			"name":        cal.Name,
			"description": cal.Description,
			"color":       cal.Color,
			"time_zone":   cal.TimeZone,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update calendar: %w", result.Error)
	}
	return nil
}
