package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/planora/calsync-worker/internal/models"
)

// ErrNotOwned is returned when a caller addresses a connection belonging to
// another user.
var ErrNotOwned = errors.New("connection does not belong to user")

// Runner executes manual sync cycles; satisfied by the Orchestrator.
type Runner interface {
	RunManualSync(ctx context.Context, conn *models.Connection) (*models.SyncLog, error)
}

// Notifier hands notification events to the delivery collaborator.
type Notifier interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// TestResult is the outcome of a connection probe.
type TestResult struct {
	Connected     bool
	CalendarCount int
	Message       string
}

// Service is the sync engine surface consumed by the API layer: manual sync,
// error reset, disconnect and connection probing.
type Service struct {
	connections     ConnectionStore
	runner          Runner
	adapters        AdapterResolver
	notifications   Notifier
	providerTimeout time.Duration
}

func NewService(
	connections ConnectionStore,
	runner Runner,
	adapters AdapterResolver,
	notifications Notifier,
	providerTimeout time.Duration,
) *Service {
	return &Service{
		connections:     connections,
		runner:          runner,
		adapters:        adapters,
		notifications:   notifications,
		providerTimeout: providerTimeout,
	}
}

// owned loads the connection and verifies the caller owns it.
func (s *Service) owned(ctx context.Context, connectionID, userID string) (*models.Connection, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID {
		return nil, ErrNotOwned
	}
	return conn, nil
}

// ManualSync runs a user-triggered sync cycle and notifies the user about the
// outcome. The due predicate is bypassed on purpose.
func (s *Service) ManualSync(ctx context.Context, connectionID, userID string) (*models.SyncLog, error) {
	conn, err := s.owned(ctx, connectionID, userID)
	if err != nil {
		return nil, err
	}

	syncLog, runErr := s.runner.RunManualSync(ctx, conn)

	if runErr != nil {
		s.notify(ctx, conn, models.PriorityHigh, "Calendar sync failed",
			fmt.Sprintf("Manual sync of your %s calendar failed: %v", conn.Provider, runErr))
		return syncLog, runErr
	}

	var summary string
	if syncLog != nil {
		summary = fmt.Sprintf("%d events processed, %d created, %d updated",
			syncLog.EventsProcessed, syncLog.EventsCreated, syncLog.EventsUpdated)
	}
	s.notify(ctx, conn, models.PriorityMedium, "Calendar sync completed",
		fmt.Sprintf("Manual sync of your %s calendar finished: %s", conn.Provider, summary))

	return syncLog, nil
}

// ResetErrors clears the error state and re-enables sync. This is the only
// recovery path once the breaker has tripped.
func (s *Service) ResetErrors(ctx context.Context, connectionID, userID string) error {
	conn, err := s.owned(ctx, connectionID, userID)
	if err != nil {
		return err
	}
	return s.connections.ResetErrors(ctx, conn)
}

// Disconnect soft-deletes the connection: it stays on record but loses its
// credentials and is excluded from all future sync passes.
func (s *Service) Disconnect(ctx context.Context, connectionID, userID string) error {
	conn, err := s.owned(ctx, connectionID, userID)
	if err != nil {
		return err
	}
	return s.connections.Deactivate(ctx, conn)
}

// TestConnection probes the provider with a single calendar listing. The
// probe never mutates health state.
func (s *Service) TestConnection(ctx context.Context, connectionID, userID string) (*TestResult, error) {
	conn, err := s.owned(ctx, connectionID, userID)
	if err != nil {
		return nil, err
	}

	adapter, err := s.adapters.ForProvider(conn.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	calendars, err := adapter.ListCalendars(callCtx, conn)
	if err != nil {
		return &TestResult{Connected: false, Message: err.Error()}, nil
	}
	return &TestResult{
		Connected:     true,
		CalendarCount: len(calendars),
		Message:       fmt.Sprintf("found %d calendars", len(calendars)),
	}, nil
}

// notify emits a sync outcome event; delivery is owned by the notification
// collaborator, so a failed insert is logged and swallowed.
func (s *Service) notify(ctx context.Context, conn *models.Connection, priority, title, message string) {
	entityType := "calendar_connection"
	notification := &models.Notification{
		ID:                uuid.New().String(),
		UserID:            conn.UserID,
		Priority:          priority,
		Title:             title,
		Message:           message,
		RelatedEntityType: &entityType,
		RelatedEntityID:   &conn.ID,
		Methods:           models.StringList{models.MethodInApp},
		CreatedAt:         time.Now(),
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		log.Printf("Warning: failed to create notification for user %s: %v", conn.UserID, err)
	}
}
