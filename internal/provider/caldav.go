package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/emersion/go-webdav/caldav"

	"github.com/planora/calsync-worker/internal/models"
)

const defaultCalDAVEndpoint = "https://caldav.icloud.com/"

// basicAuthTransport adds Basic Auth and a user agent to every request.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "calsync-worker/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVAdapter is the directory-protocol calendar adapter. The CalDAV
// session plumbing is in place but the calendar and event operations have no
// backing logic yet; every operation reports ErrNotImplemented so callers can
// tell the category apart from transport failures. The adapter exists so the
// adapter set stays total over the provider enum.
type CalDAVAdapter struct {
	endpoint string
	client   *caldav.Client
}

// NewCalDAVAdapter creates the CalDAV adapter against the given endpoint.
// An empty endpoint falls back to the iCloud CalDAV service.
func NewCalDAVAdapter(endpoint, username, password string) (*CalDAVAdapter, error) {
	if endpoint == "" {
		endpoint = defaultCalDAVEndpoint
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &basicAuthTransport{
			Username:  username,
			Password:  password,
			Transport: http.DefaultTransport,
		},
	}

	client, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, WrapError(models.ProviderCalDAV, "create client", err)
	}

	return &CalDAVAdapter{endpoint: endpoint, client: client}, nil
}

func (a *CalDAVAdapter) Name() string {
	return models.ProviderCalDAV
}

func (a *CalDAVAdapter) ListCalendars(ctx context.Context, conn *models.Connection) ([]Calendar, error) {
	return nil, WrapError(a.Name(), "list calendars", ErrNotImplemented)
}

func (a *CalDAVAdapter) ListEvents(ctx context.Context, conn *models.Connection, calendarID string, from, to time.Time) ([]Event, error) {
	return nil, WrapError(a.Name(), "list events", ErrNotImplemented)
}

func (a *CalDAVAdapter) CreateEvent(ctx context.Context, conn *models.Connection, calendarID string, event *Event) (*Event, error) {
	return nil, WrapError(a.Name(), "create event", ErrNotImplemented)
}

func (a *CalDAVAdapter) UpdateEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string, event *Event) (*Event, error) {
	return nil, WrapError(a.Name(), "update event", ErrNotImplemented)
}

func (a *CalDAVAdapter) DeleteEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string) error {
	return WrapError(a.Name(), "delete event", ErrNotImplemented)
}

func (a *CalDAVAdapter) RefreshCredentials(ctx context.Context, conn *models.Connection) (*Credentials, error) {
	return nil, WrapError(a.Name(), "refresh credentials", ErrNotImplemented)
}
