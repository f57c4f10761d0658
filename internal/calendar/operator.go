package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	log "log/slog"

	"github.com/rajeev0521/project-AVA/internal/nlu"
	"github.com/rajeev0521/project-AVA/pkg/util"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// APIError wraps a failed calendar backend call.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string { return fmt.Sprintf("calendar %s: %v", e.Op, e.Err) }
func (e *APIError) Unwrap() error { return e.Err }

// Result is the outcome of one executed intent: the touched events and the
// plain line to speak back.
type Result struct {
	Action  nlu.Action
	Events  []Event
	Message string
}

// Operator translates intents into API calls against a single calendar.
// Mutating intents resolve their target strictly before anything is written,
// an unresolved or ambiguous reference never reaches the API.
type Operator struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	now        func() time.Time
}

// How far around now the fuzzy matcher looks for update/delete targets.
const (
	matchPastWindow   = 7 * 24 * time.Hour
	matchFutureWindow = 60 * 24 * time.Hour

	spokenEventsCap = 5
)

func NewOperator(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*Operator, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}
	return &Operator{svc: svc, calendarID: calendarID, loc: loc, now: time.Now}, nil
}

func (o *Operator) Execute(ctx context.Context, in nlu.Intent) (Result, error) {
	switch in.Action {
	case nlu.ActionCreate:
		return o.create(ctx, in)
	case nlu.ActionList:
		return o.list(ctx, in)
	case nlu.ActionUpdate:
		return o.update(ctx, in)
	case nlu.ActionDelete:
		return o.delete(ctx, in)
	}
	return Result{}, fmt.Errorf("unsupported action %q", in.Action)
}

func (o *Operator) create(ctx context.Context, in nlu.Intent) (Result, error) {
	if in.Title == "" || in.Start.IsZero() {
		return Result{
			Action:  in.Action,
			Message: "I need a title and a start time to create an event.",
		}, nil
	}

	start := in.Start.In(o.loc)
	end := in.End.In(o.loc)
	if in.End.IsZero() {
		end = start.Add(time.Hour)
	}
	if !start.Before(end) {
		return Result{
			Action:  in.Action,
			Message: "The start time has to be before the end time.",
		}, nil
	}

	ev := &gcal.Event{
		Summary: in.Title,
		Start:   o.eventTime(start),
		End:     o.eventTime(end),
	}
	applyAttendees(ev, in.Attendees)

	created, err := o.svc.Events.Insert(o.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return Result{}, &APIError{Op: "insert", Err: err}
	}
	log.Info("Event created", "id", created.Id, "title", in.Title)

	local, _ := fromGoogle(created, o.loc)
	msg := fmt.Sprintf("Created %s, %s.", in.Title, speakWhen(start, o.now().In(o.loc), false))
	return Result{Action: in.Action, Events: []Event{local}, Message: msg}, nil
}

func (o *Operator) list(ctx context.Context, in nlu.Intent) (Result, error) {
	from, to, phrase := o.listRange(in)

	events, err := o.fetch(ctx, from, to)
	if err != nil {
		return Result{}, err
	}
	return Result{Action: in.Action, Events: events, Message: describeList(events, phrase)}, nil
}

// listRange defaults to the current local day when the user named no range,
// and to the rest of the named day when only a start was spoken.
func (o *Operator) listRange(in nlu.Intent) (from, to time.Time, phrase string) {
	now := o.now().In(o.loc)
	switch {
	case in.Start.IsZero():
		from = dayStart(now)
		return from, from.AddDate(0, 0, 1), "today"
	case in.End.IsZero():
		from = in.Start.In(o.loc)
		return from, dayStart(from).AddDate(0, 0, 1), dayPhrase(from, now)
	default:
		from = in.Start.In(o.loc)
		return from, in.End.In(o.loc), dayPhrase(from, now)
	}
}

func (o *Operator) fetch(ctx context.Context, from, to time.Time) ([]Event, error) {
	resp, err := o.svc.Events.List(o.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &APIError{Op: "list", Err: err}
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if ev, ok := fromGoogle(item, o.loc); ok {
			events = append(events, ev)
		}
	}
	slices.SortStableFunc(events, func(a, b Event) int { return a.Start.Compare(b.Start) })
	return events, nil
}

func describeList(events []Event, phrase string) string {
	phrase = onPhrase(phrase)
	if len(events) == 0 {
		return fmt.Sprintf("Nothing on your calendar %s.", phrase)
	}

	var parts []string
	for i, ev := range events {
		if i == spokenEventsCap {
			parts = append(parts, fmt.Sprintf("and %d more", len(events)-i))
			break
		}
		if ev.AllDay {
			parts = append(parts, ev.Title+" all day")
		} else {
			parts = append(parts, fmt.Sprintf("%s at %s", ev.Title, ev.Start.Format("3:04 PM")))
		}
	}

	noun := "events"
	if len(events) == 1 {
		noun = "event"
	}
	return fmt.Sprintf("You have %d %s %s: %s.", len(events), noun, phrase, strings.Join(parts, ", "))
}

func onPhrase(p string) string {
	switch p {
	case "today", "tomorrow", "yesterday":
		return p
	}
	return "on " + p
}

func (o *Operator) update(ctx context.Context, in nlu.Intent) (Result, error) {
	target, err := o.resolveTarget(ctx, in)
	if err != nil {
		return Result{}, err
	}

	item, err := o.svc.Events.Get(o.calendarID, target.ID).Context(ctx).Do()
	if err != nil {
		return Result{}, &APIError{Op: "get", Err: err}
	}

	var newStart time.Time
	timeChanged := false
	switch {
	case !in.Start.IsZero():
		// A spoken new start moves the whole event, keeping its length
		// unless a new end was spoken too.
		dur := target.End.Sub(target.Start)
		if dur <= 0 {
			dur = time.Hour
		}
		newStart = in.Start.In(o.loc)
		newEnd := in.End.In(o.loc)
		if in.End.IsZero() {
			newEnd = newStart.Add(dur)
		}
		item.Start = o.eventTime(newStart)
		item.End = o.eventTime(newEnd)
		timeChanged = true
	case !in.End.IsZero():
		item.End = o.eventTime(in.End.In(o.loc))
		timeChanged = true
	}

	renamed := false
	if in.EventID != "" && in.Title != "" && in.Title != item.Summary {
		// With an explicit id the title is a new name, not a reference.
		item.Summary = in.Title
		renamed = true
	}

	before := attendeeEmails(item)
	descBefore := item.Description
	applyAttendees(item, in.Attendees)
	peopleChanged := !util.EqualStrings(before, attendeeEmails(item)) || item.Description != descBefore

	if !timeChanged && !renamed && !peopleChanged {
		return Result{
			Action:  in.Action,
			Events:  []Event{target},
			Message: fmt.Sprintf("I didn't catch what to change about %s.", target.Title),
		}, nil
	}

	updated, err := o.svc.Events.Update(o.calendarID, target.ID, item).Context(ctx).Do()
	if err != nil {
		return Result{}, &APIError{Op: "update", Err: err}
	}
	log.Info("Event updated", "id", target.ID, "title", updated.Summary)

	local, _ := fromGoogle(updated, o.loc)
	var msg string
	switch {
	case timeChanged && !newStart.IsZero():
		msg = fmt.Sprintf("Moved %s to %s.", target.Title, speakWhen(newStart, o.now().In(o.loc), false))
	case renamed:
		msg = fmt.Sprintf("Renamed %s to %s.", target.Title, item.Summary)
	default:
		msg = fmt.Sprintf("Updated %s.", target.Title)
	}
	return Result{Action: in.Action, Events: []Event{local}, Message: msg}, nil
}

func (o *Operator) delete(ctx context.Context, in nlu.Intent) (Result, error) {
	target, err := o.resolveTarget(ctx, in)
	if err != nil {
		return Result{}, err
	}

	if err := o.svc.Events.Delete(o.calendarID, target.ID).Context(ctx).Do(); err != nil {
		return Result{}, &APIError{Op: "delete", Err: err}
	}
	log.Info("Event deleted", "id", target.ID, "title", target.Title)

	msg := fmt.Sprintf("Deleted %s, %s.", target.Title,
		speakWhen(target.Start, o.now().In(o.loc), target.AllDay))
	return Result{Action: in.Action, Events: []Event{target}, Message: msg}, nil
}

// resolveTarget finds the event an update/delete refers to. An explicit id
// wins; otherwise the spoken reference is matched against the surrounding
// weeks and must come back unambiguous.
func (o *Operator) resolveTarget(ctx context.Context, in nlu.Intent) (Event, error) {
	if in.EventID != "" {
		item, err := o.svc.Events.Get(o.calendarID, in.EventID).Context(ctx).Do()
		if err != nil {
			if isNotFound(err) {
				return Event{}, &NotFoundError{Reference: in.EventID}
			}
			return Event{}, &APIError{Op: "get", Err: err}
		}
		ev, ok := fromGoogle(item, o.loc)
		if !ok {
			return Event{}, &NotFoundError{Reference: in.EventID}
		}
		return ev, nil
	}

	now := o.now().In(o.loc)
	from := now.Add(-matchPastWindow)
	to := now.Add(matchFutureWindow)
	if !in.Start.IsZero() {
		if s := in.Start.In(o.loc); s.Before(from) {
			from = dayStart(s)
		} else if s.After(to) {
			to = dayStart(s).AddDate(0, 0, 1)
		}
	}

	events, err := o.fetch(ctx, from, to)
	if err != nil {
		return Event{}, err
	}
	return resolveEvent(events, in.Title, in.Start, now)
}

func (o *Operator) eventTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: o.loc.String()}
}

// applyAttendees invites addresses and folds bare names into the
// description; there is no contact lookup to resolve a spoken name into an
// address.
func applyAttendees(ev *gcal.Event, people []string) {
	var names []string
	for _, p := range people {
		if strings.Contains(p, "@") {
			if !util.ContainsFold(attendeeEmails(ev), p) {
				ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: p})
			}
		} else {
			names = append(names, p)
		}
	}
	if len(names) == 0 {
		return
	}
	line := "With: " + strings.Join(names, ", ")
	switch {
	case ev.Description == "":
		ev.Description = line
	case !strings.Contains(ev.Description, line):
		ev.Description += "\n" + line
	}
}

func attendeeEmails(ev *gcal.Event) []string {
	var out []string
	for _, a := range ev.Attendees {
		out = append(out, a.Email)
	}
	return out
}

func isNotFound(err error) bool {
	var ge *googleapi.Error
	return errors.As(err, &ge) && ge.Code == http.StatusNotFound
}
