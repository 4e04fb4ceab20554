package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/planora/calsync-worker/internal/models"
)

// NotificationRepository persists notification events for the delivery
// collaborator.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	result := r.db.WithContext(ctx).Create(notification)
	if result.Error != nil {
		return fmt.Errorf("failed to create notification: %w", result.Error)
	}
	return nil
}
