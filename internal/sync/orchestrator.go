package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planora/calsync-worker/internal/models"
	"github.com/planora/calsync-worker/internal/provider"
	"github.com/planora/calsync-worker/internal/repository"
)

// ConnectionStore is the slice of connection persistence the engine needs.
type ConnectionStore interface {
	GetByID(ctx context.Context, connectionID string) (*models.Connection, error)
	RecordSuccess(ctx context.Context, conn *models.Connection, syncedAt time.Time) error
	RecordError(ctx context.Context, conn *models.Connection, message string) error
	ResetErrors(ctx context.Context, conn *models.Connection) error
	Deactivate(ctx context.Context, conn *models.Connection) error
}

// CalendarStore is the slice of calendar persistence the engine needs.
type CalendarStore interface {
	GetByExternalID(ctx context.Context, userID, provider, externalID string) (*models.Calendar, error)
	Create(ctx context.Context, cal *models.Calendar) error
	UpdateMirror(ctx context.Context, cal *models.Calendar) error
}

// SyncLogStore is the slice of audit persistence the engine needs.
type SyncLogStore interface {
	Create(ctx context.Context, log *models.SyncLog) error
	Close(ctx context.Context, log *models.SyncLog) error
}

// AdapterResolver selects the provider adapter for a connection.
type AdapterResolver interface {
	ForProvider(provider string) (provider.Adapter, error)
}

// Orchestrator drives one connection's sync cycle: fetch calendars, mirror
// their metadata, fetch events inside the sync window and reconcile them.
type Orchestrator struct {
	connections     ConnectionStore
	calendars       CalendarStore
	syncLogs        SyncLogStore
	reconciler      *Reconciler
	adapters        AdapterResolver
	providerTimeout time.Duration
}

func NewOrchestrator(
	connections ConnectionStore,
	calendars CalendarStore,
	syncLogs SyncLogStore,
	reconciler *Reconciler,
	adapters AdapterResolver,
	providerTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		connections:     connections,
		calendars:       calendars,
		syncLogs:        syncLogs,
		reconciler:      reconciler,
		adapters:        adapters,
		providerTimeout: providerTimeout,
	}
}

// RunSync performs a scheduled sync: full when the connection never synced,
// incremental otherwise.
func (o *Orchestrator) RunSync(ctx context.Context, conn *models.Connection) (*models.SyncLog, error) {
	syncType := models.SyncTypeIncremental
	if conn.LastSyncAt == nil {
		syncType = models.SyncTypeFull
	}
	return o.run(ctx, conn, syncType)
}

// RunManualSync performs the same cycle on demand, bypassing the due predicate.
func (o *Orchestrator) RunManualSync(ctx context.Context, conn *models.Connection) (*models.SyncLog, error) {
	return o.run(ctx, conn, models.SyncTypeManual)
}

func (o *Orchestrator) run(ctx context.Context, conn *models.Connection, syncType models.SyncType) (*models.SyncLog, error) {
	syncLog := &models.SyncLog{
		ID:           uuid.New().String(),
		ConnectionID: conn.ID,
		SyncType:     syncType,
		Status:       models.SyncStatusRunning,
		StartedAt:    time.Now(),
		CreatedAt:    time.Now(),
	}
	if err := o.syncLogs.Create(ctx, syncLog); err != nil {
		return nil, fmt.Errorf("failed to open sync log: %w", err)
	}

	log.Printf("Starting %s sync for connection %s (provider: %s)", syncType, conn.ID, conn.Provider)

	adapter, err := o.adapters.ForProvider(conn.Provider)
	if err != nil {
		return syncLog, o.fail(ctx, conn, syncLog, err)
	}

	externalCalendars, err := o.listCalendars(ctx, adapter, conn)
	if err != nil {
		return syncLog, o.fail(ctx, conn, syncLog, err)
	}

	conn.Settings.Normalize()
	from := time.Now().AddDate(0, 0, -conn.Settings.SyncPastDays)
	to := time.Now().AddDate(0, 0, conn.Settings.SyncFutureDays)

	var calendarErrs []string
	synced := 0
	for _, extCal := range externalCalendars {
		if err := o.syncCalendar(ctx, adapter, conn, extCal, from, to, syncLog); err != nil {
			// One calendar failing must not abort the rest of the run;
			// events already reconciled for earlier calendars stay persisted.
			log.Printf("Calendar %s sync failed for connection %s: %v", extCal.ID, conn.ID, err)
			calendarErrs = append(calendarErrs, fmt.Sprintf("%s: %v", extCal.ID, err))
			continue
		}
		synced++
	}

	now := time.Now()
	syncLog.CompletedAt = &now

	switch {
	case len(calendarErrs) == 0:
		syncLog.Status = models.SyncStatusSuccess
		if err := o.connections.RecordSuccess(ctx, conn, syncLog.StartedAt); err != nil {
			log.Printf("Warning: failed to record sync success for connection %s: %v", conn.ID, err)
		}
	case synced == 0:
		syncLog.Status = models.SyncStatusError
		msg := strings.Join(calendarErrs, "; ")
		syncLog.Error = &msg
		if err := o.connections.RecordError(ctx, conn, msg); err != nil {
			log.Printf("Warning: failed to record sync error for connection %s: %v", conn.ID, err)
		}
	default:
		syncLog.Status = models.SyncStatusPartial
		msg := strings.Join(calendarErrs, "; ")
		syncLog.Error = &msg
		if err := o.connections.RecordError(ctx, conn, msg); err != nil {
			log.Printf("Warning: failed to record sync error for connection %s: %v", conn.ID, err)
		}
	}

	if err := o.syncLogs.Close(ctx, syncLog); err != nil {
		log.Printf("Warning: failed to close sync log %s: %v", syncLog.ID, err)
	}

	log.Printf("Finished %s sync for connection %s: status=%s processed=%d created=%d updated=%d",
		syncType, conn.ID, syncLog.Status, syncLog.EventsProcessed, syncLog.EventsCreated, syncLog.EventsUpdated)

	if syncLog.Status == models.SyncStatusError {
		return syncLog, errors.New(*syncLog.Error)
	}
	return syncLog, nil
}

// fail records an adapter-level failure that aborted the whole run.
func (o *Orchestrator) fail(ctx context.Context, conn *models.Connection, syncLog *models.SyncLog, cause error) error {
	msg := cause.Error()
	now := time.Now()
	syncLog.Status = models.SyncStatusError
	syncLog.Error = &msg
	syncLog.CompletedAt = &now

	if err := o.connections.RecordError(ctx, conn, msg); err != nil {
		log.Printf("Warning: failed to record sync error for connection %s: %v", conn.ID, err)
	}
	if err := o.syncLogs.Close(ctx, syncLog); err != nil {
		log.Printf("Warning: failed to close sync log %s: %v", syncLog.ID, err)
	}
	return cause
}

// syncCalendar mirrors one external calendar and reconciles its events.
func (o *Orchestrator) syncCalendar(
	ctx context.Context,
	adapter provider.Adapter,
	conn *models.Connection,
	extCal provider.Calendar,
	from, to time.Time,
	syncLog *models.SyncLog,
) error {
	cal, err := o.upsertCalendar(ctx, conn, extCal)
	if err != nil {
		return err
	}

	if !conn.Settings.ImportEvents {
		return nil
	}

	events, err := o.listEvents(ctx, adapter, conn, extCal.ID, from, to)
	if err != nil {
		return err
	}

	for i := range events {
		outcome, err := o.reconciler.Reconcile(ctx, cal, &events[i])
		if err != nil {
			// Per-event failures are swallowed so the batch continues.
			log.Printf("Warning: failed to reconcile event %s on calendar %s: %v", events[i].ID, cal.ID, err)
			continue
		}
		syncLog.EventsProcessed++
		switch outcome {
		case OutcomeCreated:
			syncLog.EventsCreated++
		case OutcomeUpdated:
			syncLog.EventsUpdated++
		}
	}
	return nil
}

// upsertCalendar creates the internal mirror keyed by (provider, external id)
// or overwrites its mirrored metadata.
func (o *Orchestrator) upsertCalendar(ctx context.Context, conn *models.Connection, extCal provider.Calendar) (*models.Calendar, error) {
	cal, err := o.calendars.GetByExternalID(ctx, conn.UserID, conn.Provider, extCal.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrCalendarNotFound) {
			return nil, fmt.Errorf("failed to look up calendar: %w", err)
		}

		now := time.Now()
		cal = &models.Calendar{
			ID:          uuid.New().String(),
			UserID:      conn.UserID,
			Provider:    &conn.Provider,
			ExternalID:  &extCal.ID,
			Name:        extCal.Name,
			Description: optional(extCal.Description),
			Color:       optional(extCal.Color),
			TimeZone:    calendarTimeZone(extCal),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := o.calendars.Create(ctx, cal); err != nil {
			return nil, fmt.Errorf("failed to create calendar: %w", err)
		}
		return cal, nil
	}

	cal.Name = extCal.Name
	cal.Description = optional(extCal.Description)
	cal.Color = optional(extCal.Color)
	cal.TimeZone = calendarTimeZone(extCal)
	if err := o.calendars.UpdateMirror(ctx, cal); err != nil {
		return nil, fmt.Errorf("failed to update calendar: %w", err)
	}
	return cal, nil
}

// listCalendars is the adapter call bounded by the provider timeout.
func (o *Orchestrator) listCalendars(ctx context.Context, adapter provider.Adapter, conn *models.Connection) ([]provider.Calendar, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()
	return adapter.ListCalendars(callCtx, conn)
}

// listEvents is the adapter call bounded by the provider timeout.
func (o *Orchestrator) listEvents(ctx context.Context, adapter provider.Adapter, conn *models.Connection, calendarID string, from, to time.Time) ([]provider.Event, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()
	return adapter.ListEvents(callCtx, conn, calendarID, from, to)
}

func calendarTimeZone(extCal provider.Calendar) string {
	if extCal.TimeZone != "" {
		return extCal.TimeZone
	}
	return "UTC"
}
