package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/planora/calsync-worker/internal/models"
)

const (
	googleTokenURL = "https://oauth2.googleapis.com/token"
	googleDateOnly = "2006-01-02"
)

// GoogleAdapter talks to the Google Calendar API on behalf of a connection.
type GoogleAdapter struct {
	clientID     string
	clientSecret string
}

// NewGoogleAdapter creates a new Google Calendar adapter.
func NewGoogleAdapter(clientID, clientSecret string) *GoogleAdapter {
	return &GoogleAdapter{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (a *GoogleAdapter) Name() string {
	return models.ProviderGoogle
}

// service builds a Calendar API client authenticated with the connection's
// stored access token.
func (a *GoogleAdapter) service(ctx context.Context, conn *models.Connection) (*calendar.Service, error) {
	token, err := accessToken(conn)
	if err != nil {
		return nil, err
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})

	svc, err := calendar.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// ListCalendars lists all calendars of the connected account.
func (a *GoogleAdapter) ListCalendars(ctx context.Context, conn *models.Connection) ([]Calendar, error) {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, WrapError(a.Name(), "list calendars", err)
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, WrapError(a.Name(), "list calendars", err)
	}

	calendars := make([]Calendar, 0, len(list.Items))
	for _, item := range list.Items {
		calendars = append(calendars, Calendar{
			ID:          item.Id,
			Name:        item.Summary,
			Description: item.Description,
			Color:       item.BackgroundColor,
			TimeZone:    item.TimeZone,
			Primary:     item.Primary,
		})
	}
	return calendars, nil
}

// ListEvents fetches single (non-expanded) event instances within the window.
func (a *GoogleAdapter) ListEvents(ctx context.Context, conn *models.Connection, calendarID string, from, to time.Time) ([]Event, error) {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, WrapError(a.Name(), "list events", err)
	}

	resp, err := svc.Events.List(calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, WrapError(a.Name(), "list events", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, err := a.toEvent(item)
		if err != nil {
			// Skip unmappable events but keep the batch going.
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// toEvent maps a Google Calendar event to the canonical shape.
func (a *GoogleAdapter) toEvent(item *calendar.Event) (Event, error) {
	start, allDay, err := parseGoogleTime(item.Start)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: invalid start: %w", item.Id, err)
	}
	end, _, err := parseGoogleTime(item.End)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: invalid end: %w", item.Id, err)
	}

	ev := Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Status:      item.Status,
	}

	if item.Organizer != nil {
		ev.Organizer = item.Organizer.Email
	}
	for _, att := range item.Attendees {
		ev.Attendees = append(ev.Attendees, models.Attendee{
			Email:          att.Email,
			Name:           att.DisplayName,
			ResponseStatus: normalizeGoogleResponse(att.ResponseStatus),
			Organizer:      att.Organizer,
		})
	}
	if item.Reminders != nil {
		for _, o := range item.Reminders.Overrides {
			ev.Reminders = append(ev.Reminders, models.Reminder{
				Method:        o.Method,
				MinutesBefore: int(o.Minutes),
			})
		}
	}
	if item.Updated != "" {
		if updated, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			ev.UpdatedAt = &updated
		}
	}
	ev.Raw = rawPayload(item)

	return ev, nil
}

// CreateEvent creates an event on the remote calendar.
func (a *GoogleAdapter) CreateEvent(ctx context.Context, conn *models.Connection, calendarID string, event *Event) (*Event, error) {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, WrapError(a.Name(), "create event", err)
	}

	created, err := svc.Events.Insert(calendarID, a.fromEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, WrapError(a.Name(), "create event", err)
	}

	ev, err := a.toEvent(created)
	if err != nil {
		return nil, WrapError(a.Name(), "create event", err)
	}
	return &ev, nil
}

// UpdateEvent overwrites an event on the remote calendar.
func (a *GoogleAdapter) UpdateEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string, event *Event) (*Event, error) {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, WrapError(a.Name(), "update event", err)
	}

	updated, err := svc.Events.Update(calendarID, eventID, a.fromEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, WrapError(a.Name(), "update event", err)
	}

	ev, err := a.toEvent(updated)
	if err != nil {
		return nil, WrapError(a.Name(), "update event", err)
	}
	return &ev, nil
}

// DeleteEvent removes an event from the remote calendar.
func (a *GoogleAdapter) DeleteEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string) error {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return WrapError(a.Name(), "delete event", err)
	}

	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return WrapError(a.Name(), "delete event", err)
	}
	return nil
}

// RefreshCredentials exchanges the stored refresh token via the OAuth2
// refresh-token grant.
func (a *GoogleAdapter) RefreshCredentials(ctx context.Context, conn *models.Connection) (*Credentials, error) {
	if conn.RefreshToken == nil || *conn.RefreshToken == "" {
		return nil, WrapError(a.Name(), "refresh credentials", fmt.Errorf("no refresh token available"))
	}

	config := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: googleTokenURL,
		},
	}

	src := config.TokenSource(ctx, &oauth2.Token{RefreshToken: *conn.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		return nil, WrapError(a.Name(), "refresh credentials", fmt.Errorf("failed to refresh token: %w", err))
	}

	creds := &Credentials{AccessToken: newToken.AccessToken}
	// Google may rotate the refresh token; keep the old one otherwise.
	if newToken.RefreshToken != "" && newToken.RefreshToken != *conn.RefreshToken {
		creds.RefreshToken = &newToken.RefreshToken
	}
	if !newToken.Expiry.IsZero() {
		expiresIn := int64(time.Until(newToken.Expiry).Seconds())
		creds.ExpiresIn = &expiresIn
	}
	return creds, nil
}

// fromEvent maps a canonical event back to the Google Calendar shape.
func (a *GoogleAdapter) fromEvent(event *Event) *calendar.Event {
	item := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Status:      event.Status,
	}

	if event.AllDay {
		item.Start = &calendar.EventDateTime{Date: event.Start.Format(googleDateOnly)}
		item.End = &calendar.EventDateTime{Date: event.End.Format(googleDateOnly)}
	} else {
		item.Start = &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339)}
		item.End = &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339)}
	}

	for _, att := range event.Attendees {
		item.Attendees = append(item.Attendees, &calendar.EventAttendee{
			Email:          att.Email,
			DisplayName:    att.Name,
			ResponseStatus: att.ResponseStatus,
		})
	}
	if len(event.Reminders) > 0 {
		item.Reminders = &calendar.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}}
		for _, r := range event.Reminders {
			item.Reminders.Overrides = append(item.Reminders.Overrides, &calendar.EventReminder{
				Method:  r.Method,
				Minutes: int64(r.MinutesBefore),
			})
		}
	}
	return item
}

// parseGoogleTime handles the all-day (date) vs timed (dateTime) split.
func parseGoogleTime(edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, fmt.Errorf("missing event time")
	}
	if edt.Date != "" {
		t, err := time.Parse(googleDateOnly, edt.Date)
		return t, true, err
	}
	t, err := time.Parse(time.RFC3339, edt.DateTime)
	return t, false, err
}

// normalizeGoogleResponse maps Google attendee response states to the
// canonical set. Google already uses the canonical names.
func normalizeGoogleResponse(status string) string {
	switch status {
	case "accepted", "declined", "tentative", "needsAction":
		return status
	default:
		return models.ResponseNeedsAction
	}
}

// rawPayload round-trips a provider struct through JSON into the free-form
// payload stored alongside canonical fields. Only kept for diagnostics.
func rawPayload(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return raw
}
