package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planora/calsync-worker/internal/models"
	"github.com/planora/calsync-worker/internal/provider"
	"github.com/planora/calsync-worker/internal/repository"
)

// Outcome is the per-event reconciliation decision.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// EventStore is the slice of event persistence the reconciler needs.
type EventStore interface {
	GetByExternalID(ctx context.Context, calendarID, externalID string) (*models.CalendarEvent, error)
	Create(ctx context.Context, event *models.CalendarEvent) error
	Update(ctx context.Context, event *models.CalendarEvent) error
}

// Reconciler converts externally-sourced events into create/update/skip
// decisions against the internal store. It never deletes: an internal event
// whose external counterpart disappeared upstream is left in place.
type Reconciler struct {
	events EventStore
}

func NewReconciler(events EventStore) *Reconciler {
	return &Reconciler{events: events}
}

// Reconcile applies one external event to the internal calendar. An existing
// internal event is overwritten only when the provider's last-modified marker
// is strictly newer than the internal updated_at clock; when the provider
// exposes no marker the internal event always wins.
func (r *Reconciler) Reconcile(ctx context.Context, cal *models.Calendar, ext *provider.Event) (Outcome, error) {
	if ext.ID == "" {
		return "", fmt.Errorf("external event missing id")
	}

	existing, err := r.events.GetByExternalID(ctx, cal.ID, ext.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrEventNotFound) {
			return "", fmt.Errorf("failed to look up event: %w", err)
		}

		now := time.Now()
		event := &models.CalendarEvent{
			ID:         uuid.New().String(),
			CalendarID: cal.ID,
			ExternalID: &ext.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		applyCanonical(event, ext)
		// Adopt the provider marker as the stored clock so the next pass
		// compares against the provider's own timeline.
		if ext.UpdatedAt != nil {
			event.UpdatedAt = *ext.UpdatedAt
		}

		if err := r.events.Create(ctx, event); err != nil {
			return "", fmt.Errorf("failed to create event: %w", err)
		}
		return OutcomeCreated, nil
	}

	if ext.UpdatedAt == nil || !ext.UpdatedAt.After(existing.UpdatedAt) {
		return OutcomeSkipped, nil
	}

	applyCanonical(existing, ext)
	existing.UpdatedAt = *ext.UpdatedAt

	if err := r.events.Update(ctx, existing); err != nil {
		return "", fmt.Errorf("failed to update event: %w", err)
	}
	return OutcomeUpdated, nil
}

// applyCanonical overwrites the canonical fields and the raw payload. The raw
// payload is kept for diagnostics only and never consulted by the decision.
func applyCanonical(event *models.CalendarEvent, ext *provider.Event) {
	event.Title = ext.Title
	event.Description = optional(ext.Description)
	event.Location = optional(ext.Location)
	event.StartTime = ext.Start
	event.EndTime = ext.End
	event.AllDay = ext.AllDay
	event.Status = normalizeStatus(ext.Status)
	event.Organizer = optional(ext.Organizer)
	event.Attendees = models.AttendeeList(ext.Attendees)
	event.Reminders = models.ReminderList(ext.Reminders)
	event.RawPayload = models.JSONB(ext.Raw)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizeStatus(status string) string {
	switch status {
	case models.EventStatusConfirmed, models.EventStatusTentative, models.EventStatusCancelled:
		return status
	default:
		return models.EventStatusConfirmed
	}
}
