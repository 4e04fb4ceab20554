package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planora/calsync-worker/internal/models"
)

// Sentinel causes for adapters that cannot serve an operation. These are
// distinct categories, not generic transport failures.
var (
	// ErrNotImplemented marks operations of adapters whose backing logic is
	// absent; the adapter exists so the adapter set is total over the
	// provider enum.
	ErrNotImplemented = errors.New("operation not implemented for this provider")
	// ErrReadOnly marks write and credential operations on providers that
	// only expose a read-only, tokenless feed.
	ErrReadOnly = errors.New("provider is read-only and has no credentials")
)

// Error wraps any adapter-level failure with the provider name and the
// operation that failed. Raw transport errors never escape an adapter.
type Error struct {
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps err into a provider Error unless it already is one.
func WrapError(provider, op string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: provider, Op: op, Err: err}
}

// Calendar is the provider-native calendar shape, reduced to the fields the
// engine mirrors.
type Calendar struct {
	ID          string
	Name        string
	Description string
	Color       string
	TimeZone    string
	Primary     bool
}

// Event is the provider event after provider-specific mapping to the
// canonical shape. UpdatedAt carries the provider's last-modified marker when
// the provider exposes one; Raw preserves the native payload for diagnostics.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Status      string
	Organizer   string
	Attendees   []models.Attendee
	Reminders   []models.Reminder
	UpdatedAt   *time.Time
	Raw         map[string]interface{}
}

// Credentials is the result of a token refresh.
type Credentials struct {
	AccessToken  string
	RefreshToken *string
	ExpiresIn    *int64 // seconds
}

// Adapter is the uniform contract for one external calendar provider.
type Adapter interface {
	Name() string
	ListCalendars(ctx context.Context, conn *models.Connection) ([]Calendar, error)
	ListEvents(ctx context.Context, conn *models.Connection, calendarID string, from, to time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, conn *models.Connection, calendarID string, event *Event) (*Event, error)
	UpdateEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string, event *Event) (*Event, error)
	DeleteEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string) error
	RefreshCredentials(ctx context.Context, conn *models.Connection) (*Credentials, error)
}

// ErrUnknownProvider is returned by the registry for providers outside the enum.
var ErrUnknownProvider = errors.New("unknown calendar provider")

// Registry selects the adapter for a provider identifier, keeping provider
// conditionals out of the orchestrator.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry over the given adapters, keyed by Name().
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// ForProvider returns the adapter registered for the provider identifier.
func (r *Registry) ForProvider(provider string) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return a, nil
}

// Providers lists the registered provider identifiers.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// accessToken extracts the stored access token, which every credentialed
// adapter needs before talking to its API.
func accessToken(conn *models.Connection) (string, error) {
	if conn.AccessToken == nil || *conn.AccessToken == "" {
		return "", errors.New("connection missing access token")
	}
	return *conn.AccessToken, nil
}
