package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/storage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//eventroster//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-1@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240501T180000Z\r\n" +
	"SUMMARY:Demo Day\r\n" +
	"LOCATION:Purdue\\, West Lafayette\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-2@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20300101T180000Z\r\n" +
	"SUMMARY:Far Future\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240601T180000Z\r\n" +
	"SUMMARY:No UID\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICal(t *testing.T) {
	everything := models.Window{
		Since: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	events, err := ParseICal(strings.NewReader(testICS), everything)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "evt-1@example.com", events[0].ExternalID)
	assert.Equal(t, "evt-1@example.com", events[0].Link)
	assert.Equal(t, "Demo Day", events[0].Name)
	assert.Equal(t, "Purdue, West Lafayette", events[0].Place)
	assert.True(t, time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC).Equal(events[0].StartTime))
}

func TestParseICal_Invalid(t *testing.T) {
	_, err := ParseICal(strings.NewReader("BEGIN:VCALENDAR\r\nBROKEN\r\n"), testWindow)
	assert.Error(t, err)
}

const recurringICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//eventroster//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:hack-night@example.com\r\n" +
	"DTSTAMP:20200101T000000Z\r\n" +
	"DTSTART:20200107T180000Z\r\n" +
	"RRULE:FREQ=WEEKLY\r\n" +
	"EXDATE:20240423T180000Z\r\n" +
	"SUMMARY:Hack Night\r\n" +
	"LOCATION:Lawson\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:hack-night@example.com\r\n" +
	"DTSTAMP:20200101T000000Z\r\n" +
	"RECURRENCE-ID:20240416T180000Z\r\n" +
	"DTSTART:20240417T190000Z\r\n" +
	"SUMMARY:Hack Night (moved)\r\n" +
	"LOCATION:Armory\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICal_ExpandsRecurrence(t *testing.T) {
	april := models.Window{
		Since: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	events, err := ParseICal(strings.NewReader(recurringICS), april)
	require.NoError(t, err)
	require.Len(t, events, 4)

	uid := "hack-night@example.com"
	var links []string
	for _, e := range events {
		assert.Equal(t, uid, e.ExternalID)
		assert.True(t, april.Contains(e.StartTime))
		links = append(links, e.Link)
	}
	assert.Equal(t, []string{
		OccurrenceLink(uid, time.Date(2024, 4, 2, 18, 0, 0, 0, time.UTC)),
		OccurrenceLink(uid, time.Date(2024, 4, 9, 18, 0, 0, 0, time.UTC)),
		OccurrenceLink(uid, time.Date(2024, 4, 16, 18, 0, 0, 0, time.UTC)),
		OccurrenceLink(uid, time.Date(2024, 4, 30, 18, 0, 0, 0, time.UTC)),
	}, links)

	moved := events[2]
	assert.Equal(t, "Hack Night (moved)", moved.Name)
	assert.Equal(t, "Armory", moved.Place)
	assert.True(t, time.Date(2024, 4, 17, 19, 0, 0, 0, time.UTC).Equal(moved.StartTime))

	assert.Equal(t, "Hack Night", events[0].Name)
	assert.Equal(t, "hack-night@example.com#2024-04-02T18:00:00Z", events[0].Link)
}

func TestParseICal_OverrideMovedIntoWindow(t *testing.T) {
	// Only the override of the 2024-04-16 occurrence falls in this window.
	window := models.Window{
		Since: time.Date(2024, 4, 17, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2024, 4, 17, 23, 59, 59, 0, time.UTC),
	}

	events, err := ParseICal(strings.NewReader(recurringICS), window)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Hack Night (moved)", events[0].Name)
	assert.Equal(t, OccurrenceLink("hack-night@example.com", time.Date(2024, 4, 16, 18, 0, 0, 0, time.UTC)), events[0].Link)
}

func TestICalSource_FiltersToWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(testICS))
	}))
	defer srv.Close()

	events, err := NewICalSource(srv.URL).FetchExternalEvents(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Demo Day", events[0].Name)
}

func TestICalSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewICalSource(srv.URL).FetchExternalEvents(context.Background(), testWindow)
	assert.ErrorIs(t, err, apperror.ErrFetch)
}
