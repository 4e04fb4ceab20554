package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/planora/calsync-worker/internal/models"
	"github.com/planora/calsync-worker/internal/provider"
)

// ConnectionStore is the slice of connection persistence the scheduler needs.
type ConnectionStore interface {
	FindDueForSync(ctx context.Context) ([]models.Connection, error)
	FindWithExpiredCredentials(ctx context.Context) ([]models.Connection, error)
	UpdateCredentials(ctx context.Context, conn *models.Connection, accessToken string, refreshToken *string, expiresIn *int64) error
	RecordError(ctx context.Context, conn *models.Connection, message string) error
}

// Runner executes scheduled sync cycles; satisfied by the sync Orchestrator.
type Runner interface {
	RunSync(ctx context.Context, conn *models.Connection) (*models.SyncLog, error)
}

// LogStore is the slice of audit persistence the scheduler needs.
type LogStore interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AdapterResolver selects the provider adapter for a connection.
type AdapterResolver interface {
	ForProvider(provider string) (provider.Adapter, error)
}

// Notifier hands notification events to the delivery collaborator.
type Notifier interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Options holds the trigger intervals.
type Options struct {
	SyncInterval    time.Duration
	RefreshInterval time.Duration
}

// Scheduler drives the two periodic triggers of the sync engine: the sync
// pass over due connections and the credential-refresh pass over expired
// ones, plus the daily sync-log retention purge. It owns its cron lifecycle
// and carries no global state.
type Scheduler struct {
	cron          *cron.Cron
	opts          Options
	connections   ConnectionStore
	runner        Runner
	adapters      AdapterResolver
	syncLogs      LogStore
	notifications Notifier
}

func New(opts Options, connections ConnectionStore, runner Runner, adapters AdapterResolver, syncLogs LogStore, notifications Notifier) *Scheduler {
	// A pass that outlasts its interval must not overlap the next firing:
	// two concurrent sync passes would pull the same still-unstamped
	// connection and race on its health columns.
	return &Scheduler{
		cron:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		opts:          opts,
		connections:   connections,
		runner:        runner,
		adapters:      adapters,
		syncLogs:      syncLogs,
		notifications: notifications,
	}
}

// Start registers the triggers and starts the cron loop.
func (s *Scheduler) Start() error {
	syncSpec := fmt.Sprintf("@every %s", s.opts.SyncInterval)
	if _, err := s.cron.AddFunc(syncSpec, func() {
		s.RunSyncPass(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register sync trigger: %w", err)
	}

	refreshSpec := fmt.Sprintf("@every %s", s.opts.RefreshInterval)
	if _, err := s.cron.AddFunc(refreshSpec, func() {
		s.RunRefreshPass(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register refresh trigger: %w", err)
	}

	if _, err := s.cron.AddFunc("@daily", func() {
		s.RunLogPurge(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register log purge: %w", err)
	}

	log.Printf("Starting scheduler (sync every %s, refresh every %s)", s.opts.SyncInterval, s.opts.RefreshInterval)
	s.cron.Start()
	return nil
}

// Stop halts the triggers and waits for any in-flight pass to finish, bounded
// by the given context. A run in progress is never hard-killed.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		log.Println("Scheduler stopped")
	case <-ctx.Done():
		log.Println("Scheduler stop timed out with a pass still running")
	}
}

// RunSyncPass processes every due connection sequentially. Sequential
// processing bounds burst load against provider rate limits and keeps a
// single writer per connection; one failing connection never stops the pass.
func (s *Scheduler) RunSyncPass(ctx context.Context) {
	conns, err := s.connections.FindDueForSync(ctx)
	if err != nil {
		log.Printf("Error querying due connections: %v", err)
		return
	}
	if len(conns) == 0 {
		return
	}

	log.Printf("Found %d connection(s) due for sync", len(conns))

	for i := range conns {
		conn := &conns[i]
		if _, err := s.runner.RunSync(ctx, conn); err != nil {
			// Already recorded on the connection and its sync log.
			log.Printf("Sync failed for connection %s: %v", conn.ID, err)
			if conn.ErrorCount >= models.MaxErrorCount && !conn.SyncEnabled {
				s.notifyBreakerTripped(ctx, conn)
			}
		}
	}
}

// notifyBreakerTripped tells the user that repeated failures disabled sync on
// the connection. Delivery is owned by the notification collaborator, so a
// failed insert is logged and swallowed.
func (s *Scheduler) notifyBreakerTripped(ctx context.Context, conn *models.Connection) {
	entityType := "calendar_connection"
	message := fmt.Sprintf("Sync of your %s calendar was disabled after %d consecutive failures. Reset the connection errors to resume syncing.",
		conn.Provider, models.MaxErrorCount)
	notification := &models.Notification{
		ID:                uuid.New().String(),
		UserID:            conn.UserID,
		Priority:          models.PriorityHigh,
		Title:             "Calendar sync disabled",
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

// RunRefreshPass refreshes credentials for every connection whose token
// expiry has passed. Refresh failures are recorded on the connection health,
// keeping known-expired credentials out of the sync trigger's error budget.
func (s *Scheduler) RunRefreshPass(ctx context.Context) {
	conns, err := s.connections.FindWithExpiredCredentials(ctx)
	if err != nil {
		log.Printf("Error querying expired connections: %v", err)
		return
	}
	if len(conns) == 0 {
		return
	}

	log.Printf("Found %d connection(s) with expired credentials", len(conns))

	for i := range conns {
		conn := &conns[i]

		adapter, err := s.adapters.ForProvider(conn.Provider)
		if err != nil {
			s.recordRefreshFailure(ctx, conn, err)
			continue
		}

		creds, err := adapter.RefreshCredentials(ctx, conn)
		if err != nil {
			s.recordRefreshFailure(ctx, conn, err)
			continue
		}

		if err := s.connections.UpdateCredentials(ctx, conn, creds.AccessToken, creds.RefreshToken, creds.ExpiresIn); err != nil {
			log.Printf("Failed to store refreshed credentials for connection %s: %v", conn.ID, err)
			continue
		}
		log.Printf("Refreshed credentials for connection %s (provider: %s)", conn.ID, conn.Provider)
	}
}

func (s *Scheduler) recordRefreshFailure(ctx context.Context, conn *models.Connection, cause error) {
	msg := fmt.Sprintf("credential refresh failed: %v", cause)
	log.Printf("Connection %s: %s", conn.ID, msg)
	if err := s.connections.RecordError(ctx, conn, msg); err != nil {
		log.Printf("Warning: failed to record refresh error for connection %s: %v", conn.ID, err)
	}
}

// RunLogPurge enforces the sync log retention window.
func (s *Scheduler) RunLogPurge(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -models.SyncLogRetentionDays)
	deleted, err := s.syncLogs.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Error purging sync logs: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Purged %d sync log(s) older than %d days", deleted, models.SyncLogRetentionDays)
	}
}
