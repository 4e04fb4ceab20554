package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/planora/calsync-worker/internal/models"
)

// feedURLKey is the connection metadata key holding the subscribed feed URL.
// Feed subscriptions have no credentials, so the URL is the whole config.
const feedURLKey = "feed_url"

const icsTimestampFormat = "20060102T150405Z"

// icsSerialConfig folds serialized VEVENTs at the RFC 5545 line limit.
var icsSerialConfig = &ical.SerializationConfiguration{
	MaxLength:         75,
	PropertyMaxLength: 75,
	NewLine:           "\r\n",
}

// ICSFeedAdapter serves read-only feed subscriptions. It exposes a single
// synthetic calendar per connection and parses the remote ICS document on
// every listing. Writes and credential refresh are rejected: the provider is
// tokenless by construction.
type ICSFeedAdapter struct {
	client *http.Client
}

// NewICSFeedAdapter creates a new feed-subscription adapter.
func NewICSFeedAdapter() *ICSFeedAdapter {
	return &ICSFeedAdapter{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (a *ICSFeedAdapter) Name() string {
	return models.ProviderICSFeed
}

// feedURL extracts the subscribed URL from the connection metadata.
func (a *ICSFeedAdapter) feedURL(conn *models.Connection) (string, error) {
	if raw, ok := conn.Metadata[feedURLKey]; ok {
		if u, ok := raw.(string); ok && u != "" {
			return u, nil
		}
	}
	return "", fmt.Errorf("connection metadata missing %s", feedURLKey)
}

// ListCalendars returns the single synthetic calendar backing the feed.
func (a *ICSFeedAdapter) ListCalendars(ctx context.Context, conn *models.Connection) ([]Calendar, error) {
	if _, err := a.feedURL(conn); err != nil {
		return nil, WrapError(a.Name(), "list calendars", err)
	}

	name := conn.AccountEmail
	if conn.AccountName != nil && *conn.AccountName != "" {
		name = *conn.AccountName
	}

	return []Calendar{{
		ID:       "feed:" + conn.ID,
		Name:     name,
		TimeZone: "UTC",
		Primary:  true,
	}}, nil
}

// ListEvents fetches the feed document, parses it and filters the events to
// the requested window. Recurring events are passed through unexpanded.
func (a *ICSFeedAdapter) ListEvents(ctx context.Context, conn *models.Connection, calendarID string, from, to time.Time) ([]Event, error) {
	feedURL, err := a.feedURL(conn)
	if err != nil {
		return nil, WrapError(a.Name(), "list events", err)
	}

	body, err := a.fetch(ctx, feedURL)
	if err != nil {
		return nil, WrapError(a.Name(), "list events", err)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(a.Name(), "list events", fmt.Errorf("failed to parse feed: %w", err))
	}

	var events []Event
	for _, ve := range cal.Events() {
		ev, err := a.toEvent(ve)
		if err != nil {
			// Skip malformed entries, keep parsing the rest of the feed.
			continue
		}
		if overlapsWindow(ev, from, to) {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (a *ICSFeedAdapter) CreateEvent(ctx context.Context, conn *models.Connection, calendarID string, event *Event) (*Event, error) {
	return nil, WrapError(a.Name(), "create event", ErrReadOnly)
}

func (a *ICSFeedAdapter) UpdateEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string, event *Event) (*Event, error) {
	return nil, WrapError(a.Name(), "update event", ErrReadOnly)
}

func (a *ICSFeedAdapter) DeleteEvent(ctx context.Context, conn *models.Connection, calendarID, eventID string) error {
	return WrapError(a.Name(), "delete event", ErrReadOnly)
}

func (a *ICSFeedAdapter) RefreshCredentials(ctx context.Context, conn *models.Connection) (*Credentials, error) {
	return nil, WrapError(a.Name(), "refresh credentials", ErrReadOnly)
}

// fetch downloads the feed document.
func (a *ICSFeedAdapter) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "calsync-worker/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed fetch failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}
	return body, nil
}

// toEvent maps a VEVENT to the canonical shape.
func (a *ICSFeedAdapter) toEvent(ve *ical.VEvent) (Event, error) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return Event{}, fmt.Errorf("missing UID")
	}

	ev := Event{
		ID:     uidProp.Value,
		Status: models.EventStatusConfirmed,
	}

	start, err := ve.GetStartAt()
	if err != nil {
		start, err = ve.GetAllDayStartAt()
		if err != nil {
			return Event{}, fmt.Errorf("event %s: missing start: %w", ev.ID, err)
		}
		ev.AllDay = true
	}
	ev.Start = start

	end, err := ve.GetEndAt()
	if err != nil {
		if ev.AllDay {
			if allDayEnd, aerr := ve.GetAllDayEndAt(); aerr == nil {
				end = allDayEnd
			} else {
				end = start.AddDate(0, 0, 1)
			}
		} else {
			end = start
		}
	}
	ev.End = end

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		switch strings.ToUpper(p.Value) {
		case "TENTATIVE":
			ev.Status = models.EventStatusTentative
		case "CANCELLED":
			ev.Status = models.EventStatusCancelled
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		ev.Organizer = strings.TrimPrefix(p.Value, "mailto:")
	}
	for _, att := range ve.Attendees() {
		attendee := models.Attendee{Email: att.Email()}
		if partstat := att.ICalParameters["PARTSTAT"]; len(partstat) > 0 {
			attendee.ResponseStatus = normalizeICSPartStat(partstat[0])
		}
		ev.Attendees = append(ev.Attendees, attendee)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLastModified); p != nil {
		if updated, err := time.Parse(icsTimestampFormat, p.Value); err == nil {
			ev.UpdatedAt = &updated
		}
	}

	ev.Raw = map[string]interface{}{"ics": ve.Serialize(icsSerialConfig)}
	return ev, nil
}

// overlapsWindow reports whether the event intersects [from, to].
func overlapsWindow(ev Event, from, to time.Time) bool {
	end := ev.End
	if end.Before(ev.Start) {
		end = ev.Start
	}
	return !end.Before(from) && !ev.Start.After(to)
}

// normalizeICSPartStat maps iCalendar PARTSTAT values to the canonical set.
func normalizeICSPartStat(partstat string) string {
	switch strings.ToUpper(partstat) {
	case "ACCEPTED":
		return models.ResponseAccepted
	case "DECLINED":
		return models.ResponseDeclined
	case "TENTATIVE":
		return models.ResponseTentative
	default:
		return models.ResponseNeedsAction
	}
}
