package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/planora/calsync-worker/internal/models"
)

const testFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//Feed//EN
BEGIN:VEVENT
UID:evt-in-window@example.com
DTSTAMP:20260810T120000Z
DTSTART:20260815T090000Z
DTEND:20260815T100000Z
SUMMARY:Team meeting
DESCRIPTION:Weekly planning
LOCATION:Room 4
STATUS:CONFIRMED
LAST-MODIFIED:20260810T120000Z
ORGANIZER:mailto:lead@example.com
ATTENDEE;PARTSTAT=ACCEPTED:mailto:dev@example.com
END:VEVENT
BEGIN:VEVENT
UID:evt-out-of-window@example.com
DTSTAMP:20260101T120000Z
DTSTART:20260101T090000Z
DTEND:20260101T100000Z
SUMMARY:Long past
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20260810T120000Z
DTSTART:20260816T090000Z
SUMMARY:No UID, must be skipped
END:VEVENT
END:VCALENDAR
`

func feedConnection(feedURL string) *models.Connection {
	return &models.Connection{
		ID:           "conn-feed",
		UserID:       "user-1",
		Provider:     models.ProviderICSFeed,
		AccountEmail: "feed@example.com",
		Metadata:     models.JSONB{"feed_url": feedURL},
	}
}

func TestICSFeed_ListEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(testFeed))
	}))
	defer server.Close()

	adapter := NewICSFeedAdapter()
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	events, err := adapter.ListEvents(context.Background(), feedConnection(server.URL), "feed:conn-feed", from, to)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event inside the window, got %d", len(events))
	}

	ev := events[0]
	if ev.ID != "evt-in-window@example.com" {
		t.Errorf("unexpected event id %s", ev.ID)
	}
	if ev.Title != "Team meeting" {
		t.Errorf("expected title Team meeting, got %s", ev.Title)
	}
	if ev.Location != "Room 4" {
		t.Errorf("expected location Room 4, got %s", ev.Location)
	}
	if ev.Status != models.EventStatusConfirmed {
		t.Errorf("expected confirmed status, got %s", ev.Status)
	}
	if ev.Organizer != "lead@example.com" {
		t.Errorf("expected organizer without mailto prefix, got %s", ev.Organizer)
	}
	if len(ev.Attendees) != 1 || ev.Attendees[0].Email != "dev@example.com" {
		t.Fatalf("expected one attendee dev@example.com, got %v", ev.Attendees)
	}
	if ev.Attendees[0].ResponseStatus != models.ResponseAccepted {
		t.Errorf("expected accepted PARTSTAT mapping, got %s", ev.Attendees[0].ResponseStatus)
	}
	if ev.UpdatedAt == nil {
		t.Fatal("expected LAST-MODIFIED to map to UpdatedAt")
	}
	wantUpdated := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	if !ev.UpdatedAt.Equal(wantUpdated) {
		t.Errorf("expected UpdatedAt %v, got %v", wantUpdated, ev.UpdatedAt)
	}

	raw, ok := ev.Raw["ics"].(string)
	if !ok || raw == "" {
		t.Fatalf("expected serialized VEVENT in raw payload, got %v", ev.Raw["ics"])
	}
	if !strings.Contains(raw, "BEGIN:VEVENT") || !strings.Contains(raw, "evt-in-window@example.com") {
		t.Errorf("expected raw payload to carry the source VEVENT, got %q", raw)
	}
}

func TestICSFeed_ListCalendarsSyntheticCalendar(t *testing.T) {
	adapter := NewICSFeedAdapter()

	conn := feedConnection("https://example.com/cal.ics")
	calendars, err := adapter.ListCalendars(context.Background(), conn)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(calendars) != 1 {
		t.Fatalf("expected exactly one synthetic calendar, got %d", len(calendars))
	}
	if calendars[0].ID != "feed:conn-feed" {
		t.Errorf("expected synthetic id feed:conn-feed, got %s", calendars[0].ID)
	}
	if !calendars[0].Primary {
		t.Error("expected the synthetic calendar to be primary")
	}
}

func TestICSFeed_MissingFeedURL(t *testing.T) {
	adapter := NewICSFeedAdapter()
	conn := &models.Connection{ID: "conn-feed", Provider: models.ProviderICSFeed}

	if _, err := adapter.ListCalendars(context.Background(), conn); err == nil {
		t.Error("expected error for connection without feed_url metadata")
	}
	if _, err := adapter.ListEvents(context.Background(), conn, "feed:conn-feed", time.Now(), time.Now()); err == nil {
		t.Error("expected error for connection without feed_url metadata")
	}
}

func TestICSFeed_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewICSFeedAdapter()
	_, err := adapter.ListEvents(context.Background(), feedConnection(server.URL), "feed:conn-feed", time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error for non-200 feed response")
	}

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected a provider Error, got %v", err)
	}
	if pe.Provider != models.ProviderICSFeed {
		t.Errorf("expected ics provider label, got %s", pe.Provider)
	}
}

func TestICSFeed_WritesRejected(t *testing.T) {
	adapter := NewICSFeedAdapter()
	ctx := context.Background()
	conn := feedConnection("https://example.com/cal.ics")

	if _, err := adapter.CreateEvent(ctx, conn, "feed:conn-feed", &Event{}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("CreateEvent: expected ErrReadOnly, got %v", err)
	}
	if _, err := adapter.UpdateEvent(ctx, conn, "feed:conn-feed", "evt", &Event{}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("UpdateEvent: expected ErrReadOnly, got %v", err)
	}
	if err := adapter.DeleteEvent(ctx, conn, "feed:conn-feed", "evt"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("DeleteEvent: expected ErrReadOnly, got %v", err)
	}
	if _, err := adapter.RefreshCredentials(ctx, conn); !errors.Is(err, ErrReadOnly) {
		t.Errorf("RefreshCredentials: expected ErrReadOnly, got %v", err)
	}
}

func TestOverlapsWindow(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"inside window", from.AddDate(0, 0, 5), from.AddDate(0, 0, 5).Add(time.Hour), true},
		{"before window", from.AddDate(0, 0, -5), from.AddDate(0, 0, -5).Add(time.Hour), false},
		{"after window", to.AddDate(0, 0, 5), to.AddDate(0, 0, 5).Add(time.Hour), false},
		{"straddles start", from.Add(-time.Hour), from.Add(time.Hour), true},
		{"straddles end", to.Add(-time.Hour), to.Add(time.Hour), true},
		{"ends exactly at from", from.Add(-time.Hour), from, true},
		{"starts exactly at to", to, to.Add(time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := overlapsWindow(Event{Start: tt.start, End: tt.end}, from, to)
			if got != tt.want {
				t.Errorf("overlapsWindow(%v, %v) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}
