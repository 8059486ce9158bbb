package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/eventroster/backend/internal/storage/models"
)

// ICalSource reads events from an iCal/ICS feed. The event UID is used as
// the external link of single events; occurrences of recurring events use
// OccurrenceLink.
type ICalSource struct {
	httpClient *http.Client
	url        string
}

// NewICalSource creates a feed reading the calendar at url.
func NewICalSource(url string) *ICalSource {
	return &ICalSource{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

// Name implements Source.
func (s *ICalSource) Name() string {
	return "ical:" + s.url
}

// FetchExternalEvents implements Source.
func (s *ICalSource) FetchExternalEvents(ctx context.Context, window models.Window) ([]models.ExternalEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: err}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Source: s.Name(), StatusCode: resp.StatusCode, Err: errors.New("unexpected status")}
	}

	events, err := ParseICal(resp.Body, window)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: err}
	}

	return events, nil
}

// OccurrenceLink is the external link of one occurrence of a recurring event.
func OccurrenceLink(uid string, start time.Time) string {
	return uid + "#" + start.UTC().Format(time.RFC3339)
}

// ParseICal decodes every calendar in r and returns the VEVENTs starting
// within window. Recurring events are expanded into one event per occurrence,
// linked by OccurrenceLink, and a RECURRENCE-ID override replaces the
// occurrence it names. Events without a UID or start time are skipped, as
// are events with an unparsable recurrence.
func ParseICal(r io.Reader, window models.Window) ([]models.ExternalEvent, error) {
	var events []models.ExternalEvent
	overrides := make(map[string]models.ExternalEvent)

	dec := ical.NewDecoder(r)
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding calendar: %w", err)
		}

		for _, ev := range cal.Events() {
			uid, _ := ev.Props.Text(ical.PropUID)
			uid = strings.TrimSpace(uid)
			if uid == "" {
				continue
			}

			start, err := ev.DateTimeStart(time.UTC)
			if err != nil || start.IsZero() {
				continue
			}

			summary, _ := ev.Props.Text(ical.PropSummary)
			location, _ := ev.Props.Text(ical.PropLocation)
			base := models.ExternalEvent{
				ExternalID: uid,
				Link:       uid,
				Name:       summary,
				Place:      location,
				StartTime:  start.UTC(),
			}

			recurrenceID, err := ev.Props.DateTime(ical.PropRecurrenceID, time.UTC)
			if err != nil {
				continue
			}
			if !recurrenceID.IsZero() {
				base.Link = OccurrenceLink(uid, recurrenceID)
				overrides[base.Link] = base
				continue
			}

			set, err := ev.RecurrenceSet(time.UTC)
			if err != nil {
				continue
			}
			if set == nil {
				events = append(events, base)
				continue
			}

			for _, occ := range set.Between(window.Since, window.Until, true) {
				occurrence := base
				occurrence.Link = OccurrenceLink(uid, occ)
				occurrence.StartTime = occ.UTC()
				events = append(events, occurrence)
			}
		}
	}

	for i, e := range events {
		if o, ok := overrides[e.Link]; ok {
			events[i] = o
			delete(overrides, e.Link)
		}
	}

	// Overrides moving an occurrence from outside the window into it.
	var moved []models.ExternalEvent
	for _, o := range overrides {
		moved = append(moved, o)
	}
	sort.Slice(moved, func(i, j int) bool {
		if !moved[i].StartTime.Equal(moved[j].StartTime) {
			return moved[i].StartTime.Before(moved[j].StartTime)
		}
		return moved[i].Link < moved[j].Link
	})

	return FilterByWindow(append(events, moved...), window), nil
}

// FilterByWindow returns the events starting within window.
func FilterByWindow(events []models.ExternalEvent, window models.Window) []models.ExternalEvent {
	var filtered []models.ExternalEvent
	for _, e := range events {
		if window.Contains(e.StartTime) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
