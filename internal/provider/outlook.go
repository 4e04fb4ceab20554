package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/planora/calsync-worker/internal/models"
)

const (
	msGraphBaseURL    = "https://graph.microsoft.com/v1.0"
	msTokenURL        = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	outlookTimeFormat = "2006-01-02T15:04:05"
)

// OutlookAdapter talks to the Microsoft Graph calendar API on behalf of a
// connection.
type OutlookAdapter struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
}

// NewOutlookAdapter creates a new Outlook/Microsoft 365 adapter.
func NewOutlookAdapter(clientID, clientSecret string) *OutlookAdapter {
	return &OutlookAdapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      msGraphBaseURL,
		tokenURL:     msTokenURL,
	}
}

func (a *OutlookAdapter) Name() string {
	return models.ProviderOutlook
}

// client builds an HTTP client that attaches the connection's access token.
func (a *OutlookAdapter) client(ctx context.Context, conn *models.Connection) (*http.Client, error) {
	token, err := accessToken(conn)
	if err != nil {
		return nil, err
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, src), nil
}

// graphCalendar is the Graph wire shape for a calendar.
type graphCalendar struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Color             string `json:"color"`
	IsDefaultCalendar bool   `json:"isDefaultCalendar"`
}

// graphEmailAddress is the Graph wire shape for a mail recipient.
type graphEmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// graphAttendee is the Graph wire shape for an event attendee.
type graphAttendee struct {
	EmailAddress graphEmailAddress    `json:"emailAddress"`
	Status       *graphAttendeeStatus `json:"status,omitempty"`
}

type graphAttendeeStatus struct {
	Response string `json:"response"`
}

// graphEvent is the Graph wire shape for an event.
type graphEvent struct {
	ID      string `json:"id,omitempty"`
	Subject string `json:"subject"`
	Body    *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body,omitempty"`
	BodyPreview string `json:"bodyPreview,omitempty"`
	Location    *struct {
		DisplayName string `json:"displayName"`
	} `json:"location,omitempty"`
	Start       *graphDateTime `json:"start"`
	End         *graphDateTime `json:"end"`
	IsAllDay    bool           `json:"isAllDay"`
	IsCancelled bool           `json:"isCancelled,omitempty"`
	Organizer   *struct {
		EmailAddress graphEmailAddress `json:"emailAddress"`
	} `json:"organizer,omitempty"`
	Attendees                  []graphAttendee `json:"attendees,omitempty"`
	IsReminderOn               bool            `json:"isReminderOn,omitempty"`
	ReminderMinutesBeforeStart int             `json:"reminderMinutesBeforeStart,omitempty"`
	LastModifiedDateTime       string          `json:"lastModifiedDateTime,omitempty"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// ListCalendars lists all calendars of the connected account.
func (a *OutlookAdapter) ListCalendars(ctx context.Context, conn *models.Connection) ([]Calendar, error) {
	client, err := a.client(ctx, conn)
	if err != nil {
		return nil, WrapError(a.Name(), "list calendars", err)
	}

	var result struct {
		Value []graphCalendar `json:"value"`
	}
	if err := a.get(ctx, client, a.baseURL+"/me/calendars", &result); err != nil {
		return nil, WrapError(a.Name(), "list calendars", err)
	}

	calendars := make([]Calendar, 0, len(result.Value))
	for _, cal := range result.Value {
		calendars = append(calendars, Calendar{
			ID:      cal.ID,
			Name:    cal.Name,
			Color:   cal.Color,
			Primary: cal.IsDefaultCalendar,
		})
	}
	return calendars, nil
}

// ListEvents fetches the calendar view for the window, following pagination.
func (a *OutlookAdapter) ListEvents(ctx context.Context, conn *models.Connection, calendarID string, from, to time.Time) ([]Event, error) {
	client, err := a.client(ctx, conn)
	if err != nil {
		return nil, WrapError(a.Name(), "list events", err)
	}

	endpoint := fmt.Sprintf("%s/me/calendars/%s/calendarView?startDateTime=%s&endDateTime=%s",
		a.baseURL,
		url.PathEscape(calendarID),
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)),
	)

	var events []Event
	for endpoint != "" {
		var page struct {
			Value    []graphEvent `json:"value"`
			NextLink string       `json:"@odata.nextLink"`
		}
		if err := a.get(ctx, client, endpoint, &page); err != nil {
			return nil, WrapError(a.Name(), "list events", err)
		}
		for i := range page.Value {
			events = append(events, a.toEvent(&page.Value[i]))
		}
		endpoint = page.NextLink
	}
	return events, nil
}

// CreateEvent creates an event on the remote calendar.
func (a *OutlookAdapter) CreateEvent(ctx context.Context, conn *models.Connection, calendarID string, event *Event) (*Event, error) {
	client, err := a.client(ctx, conn)
	if err != nil {
		return nil, WrapError(a.Name(), "create event", err)
	}

	endpoint := fmt.Sprintf("%s/me/calendars/%s/events", a.baseURL, url.PathEscape(calendarID))
	var created graphEvent
	if err := a.send(ctx, client, http.MethodPost, endpoint, a.fromEvent(event), &created); err != nil {
		return nil, WrapError(a.Name(), "create event", err)
	}

	ev := a.toEvent(&created)
	return &ev, nil
}

// UpdateEvent patches an event on the remote calendar.
func (a *OutlookAdapter) UpdateEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string, event *Event) (*Event, error) {
	client, err := a.client(ctx, conn)
	if err != nil {
		return nil, WrapError(a.Name(), "update event", err)
	}

	endpoint := fmt.Sprintf("%s/me/calendars/%s/events/%s", a.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	var updated graphEvent
	if err := a.send(ctx, client, http.MethodPatch, endpoint, a.fromEvent(event), &updated); err != nil {
		return nil, WrapError(a.Name(), "update event", err)
	}

	ev := a.toEvent(&updated)
	return &ev, nil
}

// DeleteEvent removes an event from the remote calendar.
func (a *OutlookAdapter) DeleteEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string) error {
	client, err := a.client(ctx, conn)
	if err != nil {
		return WrapError(a.Name(), "delete event", err)
	}

	endpoint := fmt.Sprintf("%s/me/calendars/%s/events/%s", a.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return WrapError(a.Name(), "delete event", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return WrapError(a.Name(), "delete event", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return WrapError(a.Name(), "delete event", fmt.Errorf("delete failed with status %d", resp.StatusCode))
	}
	return nil
}

// RefreshCredentials exchanges the stored refresh token at the Microsoft
// identity token endpoint.
func (a *OutlookAdapter) RefreshCredentials(ctx context.Context, conn *models.Connection) (*Credentials, error) {
	if conn.RefreshToken == nil || *conn.RefreshToken == "" {
		return nil, WrapError(a.Name(), "refresh credentials", fmt.Errorf("no refresh token available"))
	}

	config := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: a.tokenURL,
		},
	}

	src := config.TokenSource(ctx, &oauth2.Token{RefreshToken: *conn.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		return nil, WrapError(a.Name(), "refresh credentials", fmt.Errorf("failed to refresh token: %w", err))
	}

	creds := &Credentials{AccessToken: newToken.AccessToken}
	if newToken.RefreshToken != "" && newToken.RefreshToken != *conn.RefreshToken {
		creds.RefreshToken = &newToken.RefreshToken
	}
	if !newToken.Expiry.IsZero() {
		expiresIn := int64(time.Until(newToken.Expiry).Seconds())
		creds.ExpiresIn = &expiresIn
	}
	return creds, nil
}

// get performs a GET against the Graph API and decodes the JSON response.
func (a *OutlookAdapter) get(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send performs a write request with a JSON body against the Graph API.
func (a *OutlookAdapter) send(ctx context.Context, client *http.Client, method, endpoint string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// toEvent maps a Graph event to the canonical shape.
func (a *OutlookAdapter) toEvent(item *graphEvent) Event {
	ev := Event{
		ID:     item.ID,
		Title:  item.Subject,
		AllDay: item.IsAllDay,
		Status: models.EventStatusConfirmed,
		Raw:    rawPayload(item),
	}
	if item.IsCancelled {
		ev.Status = models.EventStatusCancelled
	}
	if item.Body != nil && item.Body.Content != "" {
		ev.Description = item.Body.Content
	} else {
		ev.Description = item.BodyPreview
	}
	if item.Location != nil {
		ev.Location = item.Location.DisplayName
	}
	if item.Start != nil {
		ev.Start = parseGraphTime(item.Start.DateTime)
	}
	if item.End != nil {
		ev.End = parseGraphTime(item.End.DateTime)
	}
	if item.Organizer != nil {
		ev.Organizer = item.Organizer.EmailAddress.Address
	}
	for _, att := range item.Attendees {
		response := ""
		if att.Status != nil {
			response = att.Status.Response
		}
		ev.Attendees = append(ev.Attendees, models.Attendee{
			Email:          att.EmailAddress.Address,
			Name:           att.EmailAddress.Name,
			ResponseStatus: normalizeGraphResponse(response),
		})
	}
	if item.IsReminderOn {
		ev.Reminders = append(ev.Reminders, models.Reminder{
			Method:        "popup",
			MinutesBefore: item.ReminderMinutesBeforeStart,
		})
	}
	if item.LastModifiedDateTime != "" {
		if updated, err := time.Parse(time.RFC3339, item.LastModifiedDateTime); err == nil {
			ev.UpdatedAt = &updated
		}
	}
	return ev
}

// fromEvent maps a canonical event back to the Graph shape.
func (a *OutlookAdapter) fromEvent(event *Event) *graphEvent {
	item := &graphEvent{
		Subject:  event.Title,
		IsAllDay: event.AllDay,
		Start:    &graphDateTime{DateTime: event.Start.UTC().Format(outlookTimeFormat), TimeZone: "UTC"},
		End:      &graphDateTime{DateTime: event.End.UTC().Format(outlookTimeFormat), TimeZone: "UTC"},
	}
	if event.Description != "" {
		item.Body = &struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		}{ContentType: "text", Content: event.Description}
	}
	if event.Location != "" {
		item.Location = &struct {
			DisplayName string `json:"displayName"`
		}{DisplayName: event.Location}
	}
	for _, att := range event.Attendees {
		item.Attendees = append(item.Attendees, graphAttendee{
			EmailAddress: graphEmailAddress{
				Name:    att.Name,
				Address: att.Email,
			},
			Status: &graphAttendeeStatus{Response: denormalizeGraphResponse(att.ResponseStatus)},
		})
	}
	if len(event.Reminders) > 0 {
		item.IsReminderOn = true
		item.ReminderMinutesBeforeStart = event.Reminders[0].MinutesBefore
	}
	return item
}

// parseGraphTime accepts the Graph dateTime variants (with or without
// fractional seconds, with or without offset).
func parseGraphTime(value string) time.Time {
	formats := []string{
		time.RFC3339,
		outlookTimeFormat + ".0000000",
		outlookTimeFormat,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// normalizeGraphResponse maps Graph attendee response states to the
// canonical set.
func normalizeGraphResponse(status string) string {
	switch status {
	case "accepted", "organizer":
		return models.ResponseAccepted
	case "declined":
		return models.ResponseDeclined
	case "tentativelyAccepted":
		return models.ResponseTentative
	default:
		return models.ResponseNeedsAction
	}
}

// denormalizeGraphResponse maps canonical attendee response states back to
// the Graph vocabulary.
func denormalizeGraphResponse(status string) string {
	switch status {
	case models.ResponseAccepted:
		return "accepted"
	case models.ResponseDeclined:
		return "declined"
	case models.ResponseTentative:
		return "tentativelyAccepted"
	default:
		return "notResponded"
	}
}
