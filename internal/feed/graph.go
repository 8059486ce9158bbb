package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eventroster/backend/internal/storage/models"
	"golang.org/x/oauth2"
)

const (
	// DefaultGraphBaseURL is the Graph API root used when none is configured.
	DefaultGraphBaseURL = "https://graph.facebook.com"

	// DefaultPageSize is the number of events requested per page.
	DefaultPageSize = 1000

	// maxPages bounds pagination against a feed that never stops returning
	// a next link.
	maxPages = 100

	eventLinkFormat = "https://www.facebook.com/events/%s/"
)

// Graph start_time values look like 2024-05-01T18:00:00+0000.
var graphTimeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

// GraphConfig configures a GraphClient.
type GraphConfig struct {
	BaseURL     string
	Page        string
	AccessToken string
	PageSize    int
	Timeout     time.Duration
}

// GraphClient reads a page's events from the Graph API.
type GraphClient struct {
	httpClient *http.Client
	baseURL    string
	page       string
	pageSize   int
}

// NewGraphClient creates a Graph API client authenticating with a static
// bearer token.
func NewGraphClient(cfg GraphConfig) *GraphClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.Timeout

	return &GraphClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		page:       cfg.Page,
		pageSize:   cfg.PageSize,
	}
}

// Name implements Source.
func (c *GraphClient) Name() string {
	return "graph:" + c.page
}

// EventLink derives the external link stored on events from a Graph event id.
func EventLink(id string) string {
	return fmt.Sprintf(eventLinkFormat, id)
}

type graphPlace struct {
	Name string `json:"name"`
}

type graphEvent struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Place     *graphPlace `json:"place"`
	StartTime string      `json:"start_time"`
}

type graphPage struct {
	Data   []graphEvent `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// FetchExternalEvents implements Source. It follows paging.next until the
// feed is exhausted.
func (c *GraphClient) FetchExternalEvents(ctx context.Context, window models.Window) ([]models.ExternalEvent, error) {
	params := url.Values{}
	params.Set("since", strconv.FormatInt(window.Since.Unix(), 10))
	params.Set("until", strconv.FormatInt(window.Until.Unix(), 10))
	params.Set("limit", strconv.Itoa(c.pageSize))
	next := fmt.Sprintf("%s/%s/events?%s", c.baseURL, url.PathEscape(c.page), params.Encode())

	var events []models.ExternalEvent
	for pages := 0; next != ""; pages++ {
		if pages == maxPages {
			return nil, c.fetchError(0, fmt.Errorf("more than %d pages", maxPages))
		}

		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}

		for _, ge := range page.Data {
			event, err := toExternalEvent(ge)
			if err != nil {
				return nil, c.fetchError(0, err)
			}
			events = append(events, event)
		}
		next = page.Paging.Next
	}

	return events, nil
}

func (c *GraphClient) fetchPage(ctx context.Context, pageURL string) (*graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, c.fetchError(0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fetchError(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, c.fetchError(resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}

	var page graphPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, c.fetchError(0, fmt.Errorf("decoding response: %w", err))
	}

	return &page, nil
}

func (c *GraphClient) fetchError(status int, err error) *FetchError {
	return &FetchError{Source: c.Name(), StatusCode: status, Err: err}
}

func toExternalEvent(ge graphEvent) (models.ExternalEvent, error) {
	if ge.ID == "" {
		return models.ExternalEvent{}, errors.New("event without id")
	}

	start, err := parseGraphTime(ge.StartTime)
	if err != nil {
		return models.ExternalEvent{}, fmt.Errorf("event %s: %w", ge.ID, err)
	}

	event := models.ExternalEvent{
		ExternalID: ge.ID,
		Link:       EventLink(ge.ID),
		Name:       ge.Name,
		StartTime:  start,
	}
	if ge.Place != nil {
		event.Place = ge.Place.Name
	}
	return event, nil
}

func parseGraphTime(value string) (time.Time, error) {
	for _, layout := range graphTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start_time %q", value)
}
