package models

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestConnection_IsDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		conn Connection
		want bool
	}{
		{
			name: "never synced is always due",
			conn: Connection{IsActive: true, SyncEnabled: true, SyncFrequencyMinutes: 1440},
			want: true,
		},
		{
			name: "frequency elapsed",
			conn: Connection{
				IsActive: true, SyncEnabled: true, SyncFrequencyMinutes: 15,
				LastSyncAt: timePtr(now.Add(-20 * time.Minute)),
			},
			want: true,
		},
		{
			name: "frequency not elapsed",
			conn: Connection{
				IsActive: true, SyncEnabled: true, SyncFrequencyMinutes: 15,
				LastSyncAt: timePtr(now.Add(-10 * time.Minute)),
			},
			want: false,
		},
		{
			name: "exactly at frequency boundary",
			conn: Connection{
				IsActive: true, SyncEnabled: true, SyncFrequencyMinutes: 15,
				LastSyncAt: timePtr(now.Add(-15 * time.Minute)),
			},
			want: true,
		},
		{
			name: "inactive excluded",
			conn: Connection{IsActive: false, SyncEnabled: true, SyncFrequencyMinutes: 15},
			want: false,
		},
		{
			name: "sync disabled excluded",
			conn: Connection{IsActive: true, SyncEnabled: false, SyncFrequencyMinutes: 15},
			want: false,
		},
		{
			name: "breaker tripped excluded",
			conn: Connection{
				IsActive: true, SyncEnabled: true, SyncFrequencyMinutes: 15,
				ErrorCount: MaxErrorCount,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conn.IsDue(now); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnection_ApplyError_BreakerTrip(t *testing.T) {
	now := time.Now()
	conn := Connection{IsActive: true, SyncEnabled: true, ErrorCount: 9}

	conn.ApplyError("provider unavailable", now)

	if conn.ErrorCount != 10 {
		t.Errorf("expected error count 10, got %d", conn.ErrorCount)
	}
	if conn.SyncEnabled {
		t.Error("expected sync to be disabled after the 10th error")
	}
	if conn.LastError == nil || *conn.LastError != "provider unavailable" {
		t.Errorf("expected last error to be recorded, got %v", conn.LastError)
	}
	if conn.LastSyncAt == nil || !conn.LastSyncAt.Equal(now) {
		t.Error("expected last sync time to be stamped on failure")
	}
}

func TestConnection_ApplyError_BelowThresholdKeepsSyncEnabled(t *testing.T) {
	conn := Connection{IsActive: true, SyncEnabled: true, ErrorCount: 3}

	conn.ApplyError("timeout", time.Now())

	if conn.ErrorCount != 4 {
		t.Errorf("expected error count 4, got %d", conn.ErrorCount)
	}
	if !conn.SyncEnabled {
		t.Error("sync should stay enabled below the breaker threshold")
	}
}

func TestConnection_ApplyReset(t *testing.T) {
	conn := Connection{
		IsActive:    true,
		SyncEnabled: false,
		ErrorCount:  MaxErrorCount,
		LastError:   strPtr("revoked grant"),
	}

	conn.ApplyReset()

	if conn.ErrorCount != 0 {
		t.Errorf("expected error count 0, got %d", conn.ErrorCount)
	}
	if conn.LastError != nil {
		t.Errorf("expected last error cleared, got %v", *conn.LastError)
	}
	if !conn.SyncEnabled {
		t.Error("expected sync re-enabled after reset")
	}
}

func TestConnection_ApplySuccess(t *testing.T) {
	now := time.Now()
	conn := Connection{
		IsActive:    true,
		SyncEnabled: true,
		ErrorCount:  4,
		LastError:   strPtr("flaky network"),
	}

	conn.ApplySuccess(now)

	if conn.ErrorCount != 0 || conn.LastError != nil {
		t.Error("expected error state cleared on success")
	}
	if conn.LastSyncAt == nil || !conn.LastSyncAt.Equal(now) {
		t.Error("expected last sync time stamped on success")
	}
}

func TestConnection_ApplyCredentials(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresIn := int64(3600)
	conn := Connection{
		IsActive:   true,
		ErrorCount: 7,
		LastError:  strPtr("expired token"),
	}

	conn.ApplyCredentials("new-access", strPtr("new-refresh"), &expiresIn, now)

	if conn.AccessToken == nil || *conn.AccessToken != "new-access" {
		t.Error("expected access token overwritten")
	}
	if conn.RefreshToken == nil || *conn.RefreshToken != "new-refresh" {
		t.Error("expected refresh token overwritten")
	}
	wantExpiry := now.Add(time.Hour)
	if conn.TokenExpiresAt == nil || !conn.TokenExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected expiry %v, got %v", wantExpiry, conn.TokenExpiresAt)
	}
	if conn.ErrorCount != 0 || conn.LastError != nil {
		t.Error("a successful refresh should clear the error state")
	}
}

func TestConnection_ApplyCredentials_KeepsRefreshTokenWhenAbsent(t *testing.T) {
	conn := Connection{RefreshToken: strPtr("old-refresh")}

	conn.ApplyCredentials("new-access", nil, nil, time.Now())

	if conn.RefreshToken == nil || *conn.RefreshToken != "old-refresh" {
		t.Error("expected existing refresh token preserved when none returned")
	}
	if conn.TokenExpiresAt != nil {
		t.Error("expected no expiry when provider does not report one")
	}
}

func TestConnection_ApplyDeactivate_ClearsCredentials(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	conn := Connection{
		IsActive:       true,
		SyncEnabled:    true,
		AccessToken:    strPtr("access"),
		RefreshToken:   strPtr("refresh"),
		TokenExpiresAt: &expiry,
	}

	conn.ApplyDeactivate()

	if conn.IsActive || conn.SyncEnabled {
		t.Error("expected connection deactivated")
	}
	if conn.AccessToken != nil || conn.RefreshToken != nil || conn.TokenExpiresAt != nil {
		t.Error("expected tokens and expiry cleared on deactivation")
	}
}

func TestConnection_ApplyReactivate(t *testing.T) {
	conn := Connection{IsActive: false, ErrorCount: 8, LastError: strPtr("dead")}

	conn.ApplyReactivate()

	if !conn.IsActive {
		t.Error("expected connection reactivated")
	}
	if conn.ErrorCount != 0 || conn.LastError != nil {
		t.Error("expected error state reset on reactivation")
	}
}

func TestConnection_Status(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		conn Connection
		want ConnectionStatus
	}{
		{"inactive wins", Connection{IsActive: false, SyncEnabled: false, ErrorCount: 10}, StatusInactive},
		{"disabled", Connection{IsActive: true, SyncEnabled: false}, StatusDisabled},
		{"error above warning threshold", Connection{IsActive: true, SyncEnabled: true, ErrorCount: 6}, StatusError},
		{"at warning threshold is not error", Connection{IsActive: true, SyncEnabled: true, ErrorCount: 5}, StatusActive},
		{"expired credentials", Connection{IsActive: true, SyncEnabled: true, TokenExpiresAt: &past}, StatusExpired},
		{"active", Connection{IsActive: true, SyncEnabled: true, TokenExpiresAt: &future}, StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conn.Status(now); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConnection_CredentialsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	conn := Connection{IsActive: true, TokenExpiresAt: &past}
	if !conn.CredentialsExpired(now) {
		t.Error("expected expired credentials detected")
	}

	conn.TokenExpiresAt = nil
	if conn.CredentialsExpired(now) {
		t.Error("connection without expiry should never report expired")
	}

	conn.TokenExpiresAt = &past
	conn.IsActive = false
	if conn.CredentialsExpired(now) {
		t.Error("inactive connections are excluded from refresh")
	}
}

func TestSyncSettings_Normalize(t *testing.T) {
	s := SyncSettings{SyncPastDays: -5, SyncFutureDays: 5000, ConflictResolution: "bogus"}
	s.Normalize()

	if s.SyncPastDays != 0 {
		t.Errorf("expected past days clamped to 0, got %d", s.SyncPastDays)
	}
	if s.SyncFutureDays != MaxSyncFutureDays {
		t.Errorf("expected future days clamped to %d, got %d", MaxSyncFutureDays, s.SyncFutureDays)
	}
	if s.ConflictResolution != ConflictResolutionRemote {
		t.Errorf("expected conflict resolution defaulted to remote, got %s", s.ConflictResolution)
	}
}

func TestConnection_NormalizeFrequency(t *testing.T) {
	conn := Connection{SyncFrequencyMinutes: 1}
	conn.NormalizeFrequency()
	if conn.SyncFrequencyMinutes != MinSyncFrequencyMinutes {
		t.Errorf("expected frequency clamped to %d, got %d", MinSyncFrequencyMinutes, conn.SyncFrequencyMinutes)
	}

	conn.SyncFrequencyMinutes = 9999
	conn.NormalizeFrequency()
	if conn.SyncFrequencyMinutes != MaxSyncFrequencyMinutes {
		t.Errorf("expected frequency clamped to %d, got %d", MaxSyncFrequencyMinutes, conn.SyncFrequencyMinutes)
	}
}
