package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
)

func TestSpeakWhen(t *testing.T) {
	now := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		t      time.Time
		allDay bool
		want   string
	}{
		{time.Date(2026, 3, 13, 16, 0, 0, 0, time.UTC), false, "today at 4:00 PM"},
		{time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC), false, "tomorrow at 9:15 AM"},
		{time.Date(2026, 3, 12, 9, 15, 0, 0, time.UTC), false, "yesterday at 9:15 AM"},
		{time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC), false, "Tuesday at 12:00 PM"},
		{time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC), false, "April 2 at 12:00 PM"},
		{time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), true, "tomorrow"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, speakWhen(tc.t, now, tc.allDay))
	}
}

func TestFromGoogleAllDay(t *testing.T) {
	ev, ok := fromGoogle(&gcal.Event{
		Id:      "bday",
		Summary: "Kim's birthday",
		Start:   &gcal.EventDateTime{Date: "2026-03-14"},
		End:     &gcal.EventDateTime{Date: "2026-03-15"},
	}, time.UTC)
	require.True(t, ok)
	assert.True(t, ev.AllDay)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), ev.Start)
}

func TestFromGoogleSkipsStartless(t *testing.T) {
	_, ok := fromGoogle(&gcal.Event{Id: "x", Summary: "No time"}, time.UTC)
	assert.False(t, ok)
}

func TestFromGoogleAttendees(t *testing.T) {
	ev, ok := fromGoogle(&gcal.Event{
		Id:    "m",
		Start: &gcal.EventDateTime{DateTime: "2026-03-13T14:00:00Z"},
		Attendees: []*gcal.EventAttendee{
			{Email: "kim@example.com"},
			{Email: ""},
		},
	}, time.UTC)
	require.True(t, ok)
	assert.Equal(t, []string{"kim@example.com"}, ev.Attendees)
}
