package calendar

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
)

// Matching knobs. A candidate qualifies at matchThreshold; the best one must
// clear the runner-up by matchMargin or the reference counts as ambiguous.
const (
	matchThreshold = 0.5
	matchMargin    = 0.15
)

// NotFoundError reports a spoken event reference that matched nothing, or
// matched too many things at once. Candidates carries up to three speakable
// near misses for the clarification reply.
type NotFoundError struct {
	Reference  string
	Ambiguous  bool
	Candidates []string
}

func (e *NotFoundError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("calendar: ambiguous event reference %q (candidates: %s)",
			e.Reference, strings.Join(e.Candidates, "; "))
	}
	return fmt.Sprintf("calendar: no event matches %q", e.Reference)
}

type scoredEvent struct {
	Event Event
	Score float64
}

// scoreEvents ranks events against a spoken reference. The score is
//
//	0.7*coverage + 0.3*dateAffinity
//
// where coverage is the share of reference words found in the title and
// dateAffinity is 1 on the same local day as the spoken date, 0.5 when no
// date was spoken and 0 otherwise. Ties fall back to the earlier start.
func scoreEvents(events []Event, ref string, when time.Time) []scoredEvent {
	refTokens := titleTokens(ref)
	scored := make([]scoredEvent, 0, len(events))
	for _, ev := range events {
		s := 0.7*coverage(refTokens, titleTokens(ev.Title)) + 0.3*dateAffinity(when, ev.Start)
		scored = append(scored, scoredEvent{Event: ev, Score: s})
	}
	slices.SortStableFunc(scored, func(a, b scoredEvent) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return a.Event.Start.Compare(b.Event.Start)
	})
	return scored
}

// resolveEvent picks the single event a reference means, or reports why it
// cannot. It never guesses: a sub-threshold best or a runner-up within
// matchMargin both come back as *NotFoundError.
func resolveEvent(events []Event, ref string, when, now time.Time) (Event, error) {
	if strings.TrimSpace(ref) == "" {
		return Event{}, &NotFoundError{}
	}

	scored := scoreEvents(events, ref, when)
	if len(scored) == 0 || scored[0].Score < matchThreshold {
		return Event{}, &NotFoundError{Reference: ref, Candidates: candidateLabels(scored, now)}
	}
	if len(scored) > 1 && scored[0].Score-scored[1].Score < matchMargin {
		return Event{}, &NotFoundError{Reference: ref, Ambiguous: true, Candidates: candidateLabels(scored, now)}
	}
	return scored[0].Event, nil
}

func candidateLabels(scored []scoredEvent, now time.Time) []string {
	var out []string
	for _, s := range scored {
		if s.Score < 0.3 || len(out) == 3 {
			break
		}
		out = append(out, s.Event.Title+" "+speakWhen(s.Event.Start, now, s.Event.AllDay))
	}
	return out
}

func coverage(ref, title []string) float64 {
	if len(ref) == 0 {
		return 0
	}
	n := 0
	for _, r := range ref {
		if slices.Contains(title, r) {
			n++
		}
	}
	return float64(n) / float64(len(ref))
}

func dateAffinity(when, start time.Time) float64 {
	if when.IsZero() {
		return 0.5
	}
	if dayStart(when.In(start.Location())).Equal(dayStart(start)) {
		return 1
	}
	return 0
}

var skipWords = map[string]bool{"the": true, "a": true, "an": true, "my": true}

func titleTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		// Single runes are splinters of possessives and punctuation.
		if len(f) < 2 || skipWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
