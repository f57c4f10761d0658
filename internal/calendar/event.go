package calendar

import (
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// Event is a transient local copy of a remote calendar entry, held only for
// request/response mapping.
type Event struct {
	ID        string
	Title     string
	Start     time.Time
	End       time.Time
	Attendees []string
	AllDay    bool
	Link      string
}

// fromGoogle maps an API item into the local model. Items without a usable
// start are reported false and skipped by callers.
func fromGoogle(item *gcal.Event, loc *time.Location) (Event, bool) {
	ev := Event{ID: item.Id, Title: item.Summary, Link: item.HtmlLink}
	for _, a := range item.Attendees {
		if a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}

	if item.Start == nil {
		return ev, false
	}
	switch {
	case item.Start.DateTime != "":
		t, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return ev, false
		}
		ev.Start = t.In(loc)
	case item.Start.Date != "":
		t, err := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
		if err != nil {
			return ev, false
		}
		ev.Start = t
		ev.AllDay = true
	default:
		return ev, false
	}

	if item.End != nil {
		switch {
		case item.End.DateTime != "":
			if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
				ev.End = t.In(loc)
			}
		case item.End.Date != "":
			if t, err := time.ParseInLocation("2006-01-02", item.End.Date, loc); err == nil {
				ev.End = t
			}
		}
	}
	return ev, true
}

// speakWhen renders a start time the way you would say it out loud.
func speakWhen(t, now time.Time, allDay bool) string {
	day := dayPhrase(t, now)
	if allDay {
		return day
	}
	return day + " at " + t.Format("3:04 PM")
}

func dayPhrase(t, now time.Time) string {
	today := dayStart(now)
	d := dayStart(t)
	switch {
	case d.Equal(today):
		return "today"
	case d.Equal(today.AddDate(0, 0, 1)):
		return "tomorrow"
	case d.Equal(today.AddDate(0, 0, -1)):
		return "yesterday"
	case d.After(today) && d.Before(today.AddDate(0, 0, 7)):
		return t.Weekday().String()
	}
	return t.Format("January 2")
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
