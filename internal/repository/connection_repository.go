package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/planora/calsync-worker/internal/models"
)

var ErrConnectionNotFound = errors.New("connection not found")

// ConnectionRepository owns Connection records: credentials, sync
// configuration and health state.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetByID retrieves a connection by ID
func (r *ConnectionRepository) GetByID(ctx context.Context, connectionID string) (*models.Connection, error) {
	var conn models.Connection
	result := r.db.WithContext(ctx).First(&conn, "id = ?", connectionID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", result.Error)
	}
	return &conn, nil
}

// Create inserts a new connection. Uniqueness per (user, provider, account)
// is enforced by the schema.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	result := r.db.WithContext(ctx).Create(conn)
	if result.Error != nil {
		return fmt.Errorf("failed to create connection: %w", result.Error)
	}
	return nil
}

// FindDueForSync returns connections eligible for a scheduled sync pass:
// active, sync enabled, below the breaker threshold, and either never synced
// or past their sync frequency.
func (r *ConnectionRepository) FindDueForSync(ctx context.Context) ([]models.Connection, error) {
	var conns []models.Connection
	result := r.db.WithContext(ctx).
		Where("is_active = ? AND sync_enabled = ? AND error_count < ?", true, true, models.MaxErrorCount).
		Where("last_sync_at IS NULL OR last_sync_at <= NOW() - (sync_frequency_minutes * INTERVAL '1 minute')").
		Order("last_sync_at ASC NULLS FIRST").
		Find(&conns)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query due connections: %w", result.Error)
	}
	return conns, nil
}

// FindWithExpiredCredentials returns active connections whose access token
// expiry has passed and that hold a refresh token to exchange.
func (r *ConnectionRepository) FindWithExpiredCredentials(ctx context.Context) ([]models.Connection, error) {
	var conns []models.Connection
	result := r.db.WithContext(ctx).
		Where("is_active = ? AND token_expires_at IS NOT NULL AND token_expires_at < NOW()", true).
		Where("refresh_token IS NOT NULL").
		Order("token_expires_at ASC").
		Find(&conns)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query expired connections: %w", result.Error)
	}
	return conns, nil
}

// RecordSuccess stamps the sync time and clears the error state. Callers pass
// the run's start time so the next due instant is not pushed out by however
// long the run took.
func (r *ConnectionRepository) RecordSuccess(ctx context.Context, conn *models.Connection, syncedAt time.Time) error {
	conn.ApplySuccess(syncedAt)
	return r.persistHealth(ctx, conn)
}

// RecordError increments the error count, remembers the message and stamps
// the sync time; the model trips the breaker at the threshold.
func (r *ConnectionRepository) RecordError(ctx context.Context, conn *models.Connection, message string) error {
	conn.ApplyError(message, time.Now())
	return r.persistHealth(ctx, conn)
}

// ResetErrors clears the error state and re-enables sync.
func (r *ConnectionRepository) ResetErrors(ctx context.Context, conn *models.Connection) error {
	conn.ApplyReset()
	return r.persistHealth(ctx, conn)
}

// persistHealth writes the health columns mutated by the Apply* transitions.
func (r *ConnectionRepository) persistHealth(ctx context.Context, conn *models.Connection) error {
	result := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", conn.ID).
		Updates(map[string]interface{}{
			"error_count":  conn.ErrorCount,
			"last_error":   conn.LastError,
			"last_sync_at": conn.LastSyncAt,
			"sync_enabled": conn.SyncEnabled,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update connection health: %w", result.Error)
	}
	return nil
}

// UpdateCredentials overwrites the token fields after a successful refresh
// and clears the error state.
func (r *ConnectionRepository) UpdateCredentials(ctx context.Context, conn *models.Connection, accessToken string, refreshToken *string, expiresIn *int64) error {
	conn.ApplyCredentials(accessToken, refreshToken, expiresIn, time.Now())

	result := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", conn.ID).
		Updates(map[string]interface{}{
			"access_token":     conn.AccessToken,
			"refresh_token":    conn.RefreshToken,
			"token_expires_at": conn.TokenExpiresAt,
			"error_count":      conn.ErrorCount,
			"last_error":       conn.LastError,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update credentials: %w", result.Error)
	}
	return nil
}

// Deactivate soft-disconnects the connection and drops its credentials.
func (r *ConnectionRepository) Deactivate(ctx context.Context, conn *models.Connection) error {
	conn.ApplyDeactivate()

	result := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", conn.ID).
		Updates(map[string]interface{}{
			"is_active":        false,
			"sync_enabled":     false,
			"access_token":     nil,
			"refresh_token":    nil,
			"token_expires_at": nil,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate connection: %w", result.Error)
	}
	return nil
}
