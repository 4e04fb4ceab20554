package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Provider identifiers
const (
	ProviderGoogle  = "google"
	ProviderOutlook = "outlook"
	ProviderCalDAV  = "caldav"
	ProviderICSFeed = "ics"
)

// Error thresholds for connection health
const (
	// ErrorWarningThreshold is the error count above which a connection is
	// reported in "error" state, while still being picked up for sync.
	ErrorWarningThreshold = 5
	// MaxErrorCount is the circuit breaker: once reached, sync is disabled
	// until a user resets the connection errors.
	MaxErrorCount = 10
)

// Sync configuration bounds
const (
	MinSyncFrequencyMinutes = 5
	MaxSyncFrequencyMinutes = 1440
	MaxSyncPastDays         = 365
	MinSyncFutureDays       = 1
	MaxSyncFutureDays       = 1095
)

// ConnectionStatus is derived from stored fields on read, never persisted.
type ConnectionStatus string

const (
	StatusInactive ConnectionStatus = "inactive"
	StatusDisabled ConnectionStatus = "disabled"
	StatusError    ConnectionStatus = "error"
	StatusExpired  ConnectionStatus = "expired"
	StatusActive   ConnectionStatus = "active"
)

// Conflict resolution modes for bidirectional sync settings
const (
	ConflictResolutionLocal  = "local"
	ConflictResolutionRemote = "remote"
	ConflictResolutionManual = "manual"
)

// SyncSettings holds per-connection sync configuration, stored as jsonb.
type SyncSettings struct {
	ImportEvents       bool   `json:"importEvents"`
	ExportEvents       bool   `json:"exportEvents"`
	BidirectionalSync  bool   `json:"bidirectionalSync"`
	SyncPastDays       int    `json:"syncPastDays"`
	SyncFutureDays     int    `json:"syncFutureDays"`
	ConflictResolution string `json:"conflictResolution"`
}

// DefaultSyncSettings returns the settings applied to a new connection.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		ImportEvents:       true,
		ExportEvents:       false,
		BidirectionalSync:  false,
		SyncPastDays:       30,
		SyncFutureDays:     365,
		ConflictResolution: ConflictResolutionRemote,
	}
}

// Normalize clamps settings to their allowed ranges.
func (s *SyncSettings) Normalize() {
	if s.SyncPastDays < 0 {
		s.SyncPastDays = 0
	}
	if s.SyncPastDays > MaxSyncPastDays {
		s.SyncPastDays = MaxSyncPastDays
	}
	if s.SyncFutureDays < MinSyncFutureDays {
		s.SyncFutureDays = MinSyncFutureDays
	}
	if s.SyncFutureDays > MaxSyncFutureDays {
		s.SyncFutureDays = MaxSyncFutureDays
	}
	switch s.ConflictResolution {
	case ConflictResolutionLocal, ConflictResolutionRemote, ConflictResolutionManual:
	default:
		s.ConflictResolution = ConflictResolutionRemote
	}
}

// Value implements driver.Valuer for SyncSettings
func (s SyncSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for SyncSettings
func (s *SyncSettings) Scan(value interface{}) error {
	if value == nil {
		*s = DefaultSyncSettings()
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Connection represents a user's credentialed link to one external calendar
// provider account. Unique per (user_id, provider, account_email).
type Connection struct {
	ID                   string       `gorm:"column:id;primaryKey"`
	UserID               string       `gorm:"column:user_id;index"`
	Provider             string       `gorm:"column:provider"`
	AccountEmail         string       `gorm:"column:account_email"`
	AccountName          *string      `gorm:"column:account_name"`
	AccessToken          *string      `gorm:"column:access_token"`
	RefreshToken         *string      `gorm:"column:refresh_token"`
	TokenExpiresAt       *time.Time   `gorm:"column:token_expires_at"`
	IsActive             bool         `gorm:"column:is_active"`
	SyncEnabled          bool         `gorm:"column:sync_enabled"`
	SyncFrequencyMinutes int          `gorm:"column:sync_frequency_minutes"`
	LastSyncAt           *time.Time   `gorm:"column:last_sync_at"`
	Settings             SyncSettings `gorm:"column:settings;type:jsonb"`
	ErrorCount           int          `gorm:"column:error_count"`
	LastError            *string      `gorm:"column:last_error"`
	Metadata             JSONB        `gorm:"column:metadata;type:jsonb"`
	CreatedAt            time.Time    `gorm:"column:created_at"`
	UpdatedAt            time.Time    `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Connection) TableName() string {
	return "calendar_connections"
}

// IsDue reports whether the connection should be picked up by a scheduled
// sync pass at the given instant. A connection that never synced is always due.
func (c *Connection) IsDue(now time.Time) bool {
	if !c.IsActive || !c.SyncEnabled || c.ErrorCount >= MaxErrorCount {
		return false
	}
	if c.LastSyncAt == nil {
		return true
	}
	return now.Sub(*c.LastSyncAt) >= time.Duration(c.SyncFrequencyMinutes)*time.Minute
}

// CredentialsExpired reports whether the stored access token expiry has passed.
// Connections without an expiry never report expired.
func (c *Connection) CredentialsExpired(now time.Time) bool {
	return c.IsActive && c.TokenExpiresAt != nil && c.TokenExpiresAt.Before(now)
}

// Status derives the connection state label. The label is evaluated on read
// so it cannot drift from the stored booleans and counters.
func (c *Connection) Status(now time.Time) ConnectionStatus {
	switch {
	case !c.IsActive:
		return StatusInactive
	case !c.SyncEnabled:
		return StatusDisabled
	case c.ErrorCount > ErrorWarningThreshold:
		return StatusError
	case c.TokenExpiresAt != nil && c.TokenExpiresAt.Before(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// ApplySuccess records a successful sync attempt: stamps last_sync_at and
// clears the error state.
func (c *Connection) ApplySuccess(now time.Time) {
	c.LastSyncAt = &now
	c.ErrorCount = 0
	c.LastError = nil
}

// ApplyError records a failed sync attempt. Once the error count reaches
// MaxErrorCount the breaker trips and sync is disabled until ApplyReset.
func (c *Connection) ApplyError(message string, now time.Time) {
	c.ErrorCount++
	c.LastError = &message
	c.LastSyncAt = &now
	if c.ErrorCount >= MaxErrorCount {
		c.SyncEnabled = false
	}
}

// ApplyReset clears the error state and re-enables sync. This is the only
// recovery path after the breaker trips.
func (c *Connection) ApplyReset() {
	c.ErrorCount = 0
	c.LastError = nil
	c.SyncEnabled = true
}

// ApplyCredentials overwrites the token fields after a successful refresh.
// A successful refresh is itself evidence of health, so errors are cleared.
func (c *Connection) ApplyCredentials(accessToken string, refreshToken *string, expiresIn *int64, now time.Time) {
	c.AccessToken = &accessToken
	if refreshToken != nil && *refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	if expiresIn != nil {
		expiry := now.Add(time.Duration(*expiresIn) * time.Second)
		c.TokenExpiresAt = &expiry
	} else {
		c.TokenExpiresAt = nil
	}
	c.ErrorCount = 0
	c.LastError = nil
}

// ApplyDeactivate soft-disconnects the connection and drops its credentials.
func (c *Connection) ApplyDeactivate() {
	c.IsActive = false
	c.SyncEnabled = false
	c.AccessToken = nil
	c.RefreshToken = nil
	c.TokenExpiresAt = nil
}

// ApplyReactivate re-enables a previously disconnected connection with a
// clean error slate.
func (c *Connection) ApplyReactivate() {
	c.IsActive = true
	c.ErrorCount = 0
	c.LastError = nil
}

// NormalizeFrequency clamps the sync frequency to the allowed range.
func (c *Connection) NormalizeFrequency() {
	if c.SyncFrequencyMinutes < MinSyncFrequencyMinutes {
		c.SyncFrequencyMinutes = MinSyncFrequencyMinutes
	}
	if c.SyncFrequencyMinutes > MaxSyncFrequencyMinutes {
		c.SyncFrequencyMinutes = MaxSyncFrequencyMinutes
	}
}
