package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rajeev0521/project-AVA/internal/nlu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeBackend fakes the calendar REST surface for one "primary" calendar.
type fakeBackend struct {
	t *testing.T

	listItems []map[string]any
	getItems  map[string]map[string]any

	lastListQuery url.Values
	lastInserted  map[string]any
	lastUpdated   map[string]any
	lastDeletedID string

	insertCalls int
	updateCalls int
	deleteCalls int

	failAll bool
}

func (f *fakeBackend) mutations() int { return f.insertCalls + f.updateCalls + f.deleteCalls }

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.failAll {
		http.Error(w, `{"error":{"code":500,"message":"backend down"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/")

	switch {
	case r.Method == http.MethodGet && path == "calendars/primary/events":
		f.lastListQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{"items": f.listItems})

	case r.Method == http.MethodPost && path == "calendars/primary/events":
		f.insertCalls++
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		body["id"] = "created-1"
		body["htmlLink"] = "https://calendar.local/created-1"
		f.lastInserted = body
		json.NewEncoder(w).Encode(body)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "calendars/primary/events/"):
		id := strings.TrimPrefix(path, "calendars/primary/events/")
		item, ok := f.getItems[id]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(item)

	case r.Method == http.MethodPut && strings.HasPrefix(path, "calendars/primary/events/"):
		f.updateCalls++
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.lastUpdated = body
		json.NewEncoder(w).Encode(body)

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "calendars/primary/events/"):
		f.deleteCalls++
		f.lastDeletedID = strings.TrimPrefix(path, "calendars/primary/events/")
		w.WriteHeader(http.StatusNoContent)

	default:
		f.t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		http.NotFound(w, r)
	}
}

func newTestOperator(t *testing.T, f *fakeBackend) *Operator {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	op, err := NewOperator(context.Background(), "primary", time.UTC,
		option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	// Friday morning.
	op.now = func() time.Time { return time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC) }
	return op
}

func gItem(id, summary, start, end string) map[string]any {
	return map[string]any{
		"id":      id,
		"summary": summary,
		"start":   map[string]any{"dateTime": start},
		"end":     map[string]any{"dateTime": end},
	}
}

func dt(body map[string]any, key string) string {
	field, _ := body[key].(map[string]any)
	s, _ := field["dateTime"].(string)
	return s
}

func TestCreateDefaultsToOneHour(t *testing.T) {
	f := &fakeBackend{t: t}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionCreate,
		Title:  "Team Meeting",
		Start:  time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.insertCalls)
	assert.Equal(t, "2026-03-14T14:00:00Z", dt(f.lastInserted, "start"))
	assert.Equal(t, "2026-03-14T15:00:00Z", dt(f.lastInserted, "end"))
	assert.Equal(t, "Created Team Meeting, tomorrow at 2:00 PM.", res.Message)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "created-1", res.Events[0].ID)
}

func TestCreateMissingFieldsAsksForThem(t *testing.T) {
	f := &fakeBackend{t: t}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionCreate,
		Start:  time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "title")
	assert.Zero(t, f.mutations())
}

func TestCreateRejectsBackwardsRange(t *testing.T) {
	f := &fakeBackend{t: t}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionCreate,
		Title:  "Backwards",
		Start:  time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "before the end time")
	assert.Zero(t, f.mutations())
}

func TestCreateSplitsAttendees(t *testing.T) {
	f := &fakeBackend{t: t}
	op := newTestOperator(t, f)

	_, err := op.Execute(context.Background(), nlu.Intent{
		Action:    nlu.ActionCreate,
		Title:     "Planning",
		Start:     time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC),
		Attendees: []string{"kim@example.com", "Sasha"},
	})
	require.NoError(t, err)

	attendees, _ := f.lastInserted["attendees"].([]any)
	require.Len(t, attendees, 1)
	first, _ := attendees[0].(map[string]any)
	assert.Equal(t, "kim@example.com", first["email"])
	assert.Equal(t, "With: Sasha", f.lastInserted["description"])
}

func TestListDefaultsToToday(t *testing.T) {
	f := &fakeBackend{t: t, listItems: []map[string]any{
		gItem("e2", "Team Meeting", "2026-03-13T14:00:00Z", "2026-03-13T15:00:00Z"),
		gItem("e1", "Standup", "2026-03-13T09:15:00Z", "2026-03-13T09:30:00Z"),
	}}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{Action: nlu.ActionList})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-13T00:00:00Z", f.lastListQuery.Get("timeMin"))
	assert.Equal(t, "2026-03-14T00:00:00Z", f.lastListQuery.Get("timeMax"))
	assert.Equal(t, "true", f.lastListQuery.Get("singleEvents"))
	assert.Equal(t, "startTime", f.lastListQuery.Get("orderBy"))

	require.Len(t, res.Events, 2)
	assert.Equal(t, "Standup", res.Events[0].Title)
	assert.Equal(t, "Team Meeting", res.Events[1].Title)
	assert.Equal(t, "You have 2 events today: Standup at 9:15 AM, Team Meeting at 2:00 PM.", res.Message)
}

func TestListEmptyDay(t *testing.T) {
	f := &fakeBackend{t: t}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{Action: nlu.ActionList})
	require.NoError(t, err)
	assert.Equal(t, "Nothing on your calendar today.", res.Message)
}

func TestListNamedDay(t *testing.T) {
	f := &fakeBackend{t: t}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionList,
		Start:  time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-20T00:00:00Z", f.lastListQuery.Get("timeMin"))
	assert.Equal(t, "2026-03-21T00:00:00Z", f.lastListQuery.Get("timeMax"))
	assert.Equal(t, "Nothing on your calendar on March 20.", res.Message)
}

func TestUpdateMovesEventKeepingLength(t *testing.T) {
	standup := gItem("ev-standup", "Standup", "2026-03-13T09:15:00Z", "2026-03-13T09:30:00Z")
	f := &fakeBackend{
		t:         t,
		listItems: []map[string]any{standup},
		getItems:  map[string]map[string]any{"ev-standup": standup},
	}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionUpdate,
		Title:  "standup",
		Start:  time.Date(2026, 3, 13, 16, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.updateCalls)
	assert.Equal(t, "2026-03-13T16:00:00Z", dt(f.lastUpdated, "start"))
	assert.Equal(t, "2026-03-13T16:15:00Z", dt(f.lastUpdated, "end"))
	assert.Equal(t, "Moved Standup to today at 4:00 PM.", res.Message)
}

func TestUpdateUnmatchedNeverMutates(t *testing.T) {
	f := &fakeBackend{t: t, listItems: []map[string]any{
		gItem("ev-standup", "Standup", "2026-03-13T09:15:00Z", "2026-03-13T09:30:00Z"),
	}}
	op := newTestOperator(t, f)

	_, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionUpdate,
		Title:  "dentist",
		Start:  time.Date(2026, 3, 13, 16, 0, 0, 0, time.UTC),
	})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Zero(t, f.mutations())
}

func TestUpdateWithNothingToChange(t *testing.T) {
	standup := gItem("ev-standup", "Standup", "2026-03-13T09:15:00Z", "2026-03-13T09:30:00Z")
	f := &fakeBackend{
		t:         t,
		listItems: []map[string]any{standup},
		getItems:  map[string]map[string]any{"ev-standup": standup},
	}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionUpdate,
		Title:  "standup",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "what to change")
	assert.Zero(t, f.mutations())
}

func TestUpdateAddsAttendee(t *testing.T) {
	standup := gItem("ev-standup", "Standup", "2026-03-13T09:15:00Z", "2026-03-13T09:30:00Z")
	standup["attendees"] = []any{map[string]any{"email": "kim@example.com"}}
	f := &fakeBackend{
		t:         t,
		listItems: []map[string]any{standup},
		getItems:  map[string]map[string]any{"ev-standup": standup},
	}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{
		Action:    nlu.ActionUpdate,
		Title:     "standup",
		Attendees: []string{"sasha@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.updateCalls)
	attendees, _ := f.lastUpdated["attendees"].([]any)
	assert.Len(t, attendees, 2)
	assert.Equal(t, "Updated Standup.", res.Message)
}

func TestDeleteFuzzyByDate(t *testing.T) {
	f := &fakeBackend{t: t, listItems: []map[string]any{
		gItem("ev-standup-1", "Standup", "2026-03-13T09:15:00Z", "2026-03-13T09:30:00Z"),
		gItem("ev-standup-2", "Standup", "2026-03-14T09:15:00Z", "2026-03-14T09:30:00Z"),
	}}
	op := newTestOperator(t, f)

	res, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionDelete,
		Title:  "standup",
		Start:  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.deleteCalls)
	assert.Equal(t, "ev-standup-2", f.lastDeletedID)
	assert.Equal(t, "Deleted Standup, tomorrow at 9:15 AM.", res.Message)
}

func TestDeleteAmbiguousNeverMutates(t *testing.T) {
	f := &fakeBackend{t: t, listItems: []map[string]any{
		gItem("ev-standup-1", "Standup", "2026-03-13T09:15:00Z", "2026-03-13T09:30:00Z"),
		gItem("ev-standup-2", "Standup", "2026-03-14T09:15:00Z", "2026-03-14T09:30:00Z"),
	}}
	op := newTestOperator(t, f)

	_, err := op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionDelete,
		Title:  "standup",
	})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.True(t, nf.Ambiguous)
	assert.Zero(t, f.mutations())
}

func TestDeleteByExplicitID(t *testing.T) {
	standup := gItem("ev-standup", "Standup", "2026-03-13T09:15:00Z", "2026-03-13T09:30:00Z")
	f := &fakeBackend{t: t, getItems: map[string]map[string]any{"ev-standup": standup}}
	op := newTestOperator(t, f)

	_, err := op.Execute(context.Background(), nlu.Intent{
		Action:  nlu.ActionDelete,
		EventID: "ev-standup",
	})
	require.NoError(t, err)
	assert.Equal(t, "ev-standup", f.lastDeletedID)
}

func TestExplicitIDNotFound(t *testing.T) {
	f := &fakeBackend{t: t, getItems: map[string]map[string]any{}}
	op := newTestOperator(t, f)

	_, err := op.Execute(context.Background(), nlu.Intent{
		Action:  nlu.ActionDelete,
		EventID: "ghost",
	})

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Zero(t, f.mutations())
}

func TestBackendFailureWrapsAPIError(t *testing.T) {
	f := &fakeBackend{t: t, failAll: true}
	op := newTestOperator(t, f)

	_, err := op.Execute(context.Background(), nlu.Intent{Action: nlu.ActionList})
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "list", ae.Op)

	_, err = op.Execute(context.Background(), nlu.Intent{
		Action: nlu.ActionCreate,
		Title:  "Doomed",
		Start:  time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC),
	})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "insert", ae.Op)
}
