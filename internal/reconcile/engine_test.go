package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eventroster/backend/internal/apperror"
	"github.com/eventroster/backend/internal/feed"
	"github.com/eventroster/backend/internal/storage"
	"github.com/eventroster/backend/internal/storage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testWindow = models.Window{
	Since: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	Until: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
}

type testStores struct {
	db         *storage.DB
	events     *storage.EventRepository
	persons    *storage.PersonRepository
	attendance *storage.AttendanceRepository
	runs       *storage.SyncRunRepository
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(context.Background(), db, nil))

	return &testStores{
		db:         db,
		events:     storage.NewEventRepository(db),
		persons:    storage.NewPersonRepository(db),
		attendance: storage.NewAttendanceRepository(db),
		runs:       storage.NewSyncRunRepository(db),
	}
}

type fakeSource struct {
	events []models.ExternalEvent
	err    error
	calls  atomic.Int32
	block  chan struct{}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchExternalEvents(ctx context.Context, window models.Window) ([]models.ExternalEvent, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func graphEvent(id, name, place string, start time.Time) models.ExternalEvent {
	return models.ExternalEvent{
		ExternalID: id,
		Link:       feed.EventLink(id),
		Name:       name,
		Place:      place,
		StartTime:  start,
	}
}

func allEvents(t *testing.T, repo *storage.EventRepository) []models.Event {
	t.Helper()
	events, err := repo.List(context.Background(), storage.EventFilter{IncludePrivate: true})
	require.NoError(t, err)
	return events
}

var demoDay = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

func TestSync_CreatesFromEmptyStore(t *testing.T) {
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)

	result, err := engine.Sync(context.Background(), []models.ExternalEvent{
		graphEvent("100", "Demo Day", "Purdue", demoDay),
	}, testWindow)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Empty(t, result.Updated)
	assert.Empty(t, result.Deleted)
	assert.Equal(t, models.SyncStatusSuccess, result.Status())

	events := allEvents(t, s.events)
	require.Len(t, events, 1)
	assert.Equal(t, result.Created[0], events[0].ID)
	assert.Equal(t, "https://www.facebook.com/events/100/", events[0].ExternalLink)
	assert.Equal(t, "Demo Day", events[0].Name)
	assert.Equal(t, "Purdue", events[0].Location)
	assert.False(t, events[0].IsPrivate)
	assert.Empty(t, events[0].Attendees)
}

func TestSync_EmptyFeedDeletes(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)

	first, err := engine.Sync(ctx, []models.ExternalEvent{graphEvent("100", "Demo Day", "Purdue", demoDay)}, testWindow)
	require.NoError(t, err)

	result, err := engine.Sync(ctx, nil, testWindow)
	require.NoError(t, err)
	assert.Equal(t, first.Created, result.Deleted)
	assert.Empty(t, allEvents(t, s.events))
}

func TestSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)
	feedEvents := []models.ExternalEvent{
		graphEvent("100", "Demo Day", "Purdue", demoDay),
		graphEvent("101", "Hack Night", "Lab", demoDay.Add(48*time.Hour)),
	}

	first, err := engine.Sync(ctx, feedEvents, testWindow)
	require.NoError(t, err)
	assert.Len(t, first.Created, 2)

	second, err := engine.Sync(ctx, feedEvents, testWindow)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Deleted)
	assert.ElementsMatch(t, first.Created, second.Updated)
	assert.Len(t, allEvents(t, s.events), 2)
}

func TestSync_UpdateReplacesFieldsAndKeepsAttendees(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)

	first, err := engine.Sync(ctx, []models.ExternalEvent{graphEvent("100", "Demo Day", "Purdue", demoDay)}, testWindow)
	require.NoError(t, err)
	eventID := first.Created[0]

	person := &models.Person{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, s.persons.Create(ctx, person))
	require.NoError(t, s.attendance.AddAttendee(ctx, eventID, person.ID))

	// A local edit to privacy is overwritten by the feed.
	stored, err := s.events.GetByID(ctx, eventID)
	require.NoError(t, err)
	stored.IsPrivate = true
	require.NoError(t, s.events.Update(ctx, stored))

	moved := demoDay.Add(time.Hour)
	result, err := engine.Sync(ctx, []models.ExternalEvent{graphEvent("100", "Demo Day 2", "", moved)}, testWindow)
	require.NoError(t, err)
	assert.Equal(t, []string{eventID}, result.Updated)

	got, err := s.events.GetByID(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, "Demo Day 2", got.Name)
	assert.Equal(t, "", got.Location)
	assert.True(t, moved.Equal(got.EventTime))
	assert.False(t, got.IsPrivate)
	assert.Equal(t, []string{person.ID}, got.Attendees)
}

func TestSync_NeverTouchesLocalEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)

	local := &models.Event{Name: "Local Social", Location: "Cafe", EventTime: demoDay}
	require.NoError(t, s.events.Create(ctx, local))
	before, err := s.events.GetByID(ctx, local.ID)
	require.NoError(t, err)

	_, err = engine.Sync(ctx, []models.ExternalEvent{graphEvent("100", "Demo Day", "Purdue", demoDay)}, testWindow)
	require.NoError(t, err)
	result, err := engine.Sync(ctx, nil, testWindow)
	require.NoError(t, err)

	assert.NotContains(t, result.Deleted, local.ID)
	after, err := s.events.GetByID(ctx, local.ID)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, before.Name, after.Name)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

func TestSync_DeletionOnlyWithinWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)

	inside := &models.Event{ExternalLink: feed.EventLink("1"), Name: "Inside", EventTime: demoDay}
	outside := &models.Event{ExternalLink: feed.EventLink("2"), Name: "Outside", EventTime: testWindow.Since.Add(-time.Hour)}
	require.NoError(t, s.events.Create(ctx, inside))
	require.NoError(t, s.events.Create(ctx, outside))

	result, err := engine.Sync(ctx, nil, testWindow)
	require.NoError(t, err)
	assert.Equal(t, []string{inside.ID}, result.Deleted)

	got, err := s.events.GetByID(ctx, outside.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSync_LinkOutsideWindowIsUpdatedNotDuplicated(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)

	old := &models.Event{ExternalLink: feed.EventLink("7"), Name: "Old", EventTime: testWindow.Since.Add(-24 * time.Hour)}
	require.NoError(t, s.events.Create(ctx, old))

	result, err := engine.Sync(ctx, []models.ExternalEvent{graphEvent("7", "Rescheduled", "Hall", demoDay)}, testWindow)
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Equal(t, []string{old.ID}, result.Updated)
	assert.Len(t, allEvents(t, s.events), 1)
}

func TestSync_DuplicateFeedEntriesProcessedOnce(t *testing.T) {
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)

	e := graphEvent("100", "Demo Day", "Purdue", demoDay)
	result, err := engine.Sync(context.Background(), []models.ExternalEvent{e, e}, testWindow)
	require.NoError(t, err)
	assert.Len(t, result.Created, 1)
	assert.Empty(t, result.Updated)
	assert.Equal(t, 2, result.EventsSeen)
	assert.Len(t, allEvents(t, s.events), 1)
}

func TestSync_MissingLinkReportedAsFailure(t *testing.T) {
	s := newTestStores(t)
	engine := NewEngine(s.events, nil, nil, nil)

	result, err := engine.Sync(context.Background(), []models.ExternalEvent{{ExternalID: "x", Name: "No link", StartTime: demoDay}}, testWindow)
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "x", result.Failed[0].ID)
	assert.Empty(t, allEvents(t, s.events))
}

// failingStore fails writes for chosen links and ids.
type failingStore struct {
	*storage.EventRepository
	failLinks map[string]bool
	failIDs   map[string]bool
}

func (f *failingStore) Upsert(ctx context.Context, event *models.Event) (*models.Event, error) {
	if f.failLinks[event.ExternalLink] {
		return nil, errors.New("write refused")
	}
	return f.EventRepository.Upsert(ctx, event)
}

func (f *failingStore) Delete(ctx context.Context, id string) error {
	if f.failIDs[id] {
		return errors.New("delete refused")
	}
	return f.EventRepository.Delete(ctx, id)
}

func TestSync_PerItemFailuresDoNotAbort(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)

	stale := &models.Event{ExternalLink: feed.EventLink("9"), Name: "Stale", EventTime: demoDay}
	existing := &models.Event{ExternalLink: feed.EventLink("2"), Name: "Existing", EventTime: demoDay}
	require.NoError(t, s.events.Create(ctx, stale))
	require.NoError(t, s.events.Create(ctx, existing))

	store := &failingStore{
		EventRepository: s.events,
		failLinks:       map[string]bool{feed.EventLink("1"): true, feed.EventLink("2"): true},
		failIDs:         map[string]bool{stale.ID: true},
	}
	engine := NewEngine(store, nil, nil, nil)

	result, err := engine.Sync(ctx, []models.ExternalEvent{
		graphEvent("1", "New but failing", "", demoDay),
		graphEvent("2", "Update failing", "", demoDay),
		graphEvent("3", "Fine", "", demoDay),
	}, testWindow)
	require.NoError(t, err)

	assert.Len(t, result.Created, 1)
	assert.Equal(t, models.SyncStatusPartial, result.Status())

	failed := map[string]bool{}
	for _, f := range result.Failed {
		failed[f.ID] = true
	}
	// New events are reported by link, known events by local id.
	assert.True(t, failed[feed.EventLink("1")])
	assert.True(t, failed[existing.ID])
	assert.True(t, failed[stale.ID])
	assert.Len(t, result.Failed, 3)
}

func TestRun_FetchFailureAbortsBeforeWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)

	upstream := &models.Event{ExternalLink: feed.EventLink("1"), Name: "Upstream", EventTime: demoDay}
	require.NoError(t, s.events.Create(ctx, upstream))

	source := &fakeSource{err: &feed.FetchError{Source: "fake", Err: errors.New("connection reset")}}
	engine := NewEngine(s.events, source, nil, nil)

	result, err := engine.Run(ctx, testWindow)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperror.ErrFetch)
	assert.True(t, apperror.IsRetryable(err))

	// A failed fetch must not be read as an empty feed.
	assert.Len(t, allEvents(t, s.events), 1)
}

func TestRun_WrapsPlainFetchErrors(t *testing.T) {
	s := newTestStores(t)
	engine := NewEngine(s.events, &fakeSource{err: errors.New("boom")}, nil, nil)

	_, err := engine.Run(context.Background(), testWindow)
	assert.ErrorIs(t, err, apperror.ErrFetch)
	assert.Equal(t, apperror.CodeFetchError, apperror.CodeOf(err))
}

func TestRun_FetchesAndSyncs(t *testing.T) {
	s := newTestStores(t)
	source := &fakeSource{events: []models.ExternalEvent{graphEvent("100", "Demo Day", "Purdue", demoDay)}}
	engine := NewEngine(s.events, source, nil, nil)

	result, err := engine.Run(context.Background(), testWindow)
	require.NoError(t, err)
	assert.Equal(t, "fake", result.Source)
	assert.Len(t, result.Created, 1)
	assert.EqualValues(t, 1, source.calls.Load())
}
