package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL                 string
	SyncIntervalMinutes         int
	TokenRefreshIntervalMinutes int
	ProviderTimeoutSeconds      int
	ShutdownTimeout             int // seconds
	GoogleClientID              string
	GoogleClientSecret          string
	MicrosoftClientID           string
	MicrosoftClientSecret       string
	CalDAVEndpoint              string
	CalDAVUsername              string
	CalDAVPassword              string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	googleClientID := os.Getenv("GOOGLE_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if googleClientID == "" || googleClientSecret == "" {
		fmt.Println("Warning: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, Google Calendar sync will not work")
	}

	microsoftClientID := os.Getenv("MICROSOFT_CLIENT_ID")
	microsoftClientSecret := os.Getenv("MICROSOFT_CLIENT_SECRET")
	if microsoftClientID == "" || microsoftClientSecret == "" {
		fmt.Println("Warning: MICROSOFT_CLIENT_ID or MICROSOFT_CLIENT_SECRET not set, Outlook sync will not work")
	}

	return &Config{
		DatabaseURL:                 dbURL,
		SyncIntervalMinutes:         intFromEnv("SYNC_INTERVAL_MINUTES", 15),
		TokenRefreshIntervalMinutes: intFromEnv("TOKEN_REFRESH_INTERVAL_MINUTES", 60),
		ProviderTimeoutSeconds:      intFromEnv("PROVIDER_TIMEOUT_SECONDS", 30),
		ShutdownTimeout:             intFromEnv("SHUTDOWN_TIMEOUT_SECONDS", 30),
		GoogleClientID:              googleClientID,
		GoogleClientSecret:          googleClientSecret,
		MicrosoftClientID:           microsoftClientID,
		MicrosoftClientSecret:       microsoftClientSecret,
		CalDAVEndpoint:              os.Getenv("CALDAV_ENDPOINT"),
		CalDAVUsername:              os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:              os.Getenv("CALDAV_PASSWORD"),
	}, nil
}

// intFromEnv reads an integer environment variable, falling back to the
// default when unset or malformed.
func intFromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		fmt.Printf("Warning: invalid %s=%q, using default %d\n", key, raw, fallback)
		return fallback
	}
	return value
}
