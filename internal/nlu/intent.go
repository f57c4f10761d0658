package nlu

import "time"

type Action string

const (
	ActionCreate Action = "create"
	ActionList   Action = "list"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionNone marks an utterance that carried no calendar request.
	ActionNone Action = "none"
)

// Intent is the structured calendar request distilled from one utterance.
// Action is always set; everything else is optional and zero when the user
// did not say it.
type Intent struct {
	Action    Action
	Title     string
	Start     time.Time
	End       time.Time
	Attendees []string
	EventID   string
}

func (in Intent) None() bool { return in.Action == ActionNone }
