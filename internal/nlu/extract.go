package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "log/slog"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/openai/openai-go/v3"
)

const chatModel = openai.ChatModelGPT5Nano

// ParseError means the model reply could not be turned into an Intent.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("nlu: bad model reply: %v", e.Err)
	}
	return fmt.Sprintf("nlu: bad model reply: %v (raw: %q)", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

const promptTemplate = `
You are AVA-NLU, the intent extractor of the AVA calendar assistant.
Your ONLY job is to convert the user's utterance into one minimal JSON object.

GENERAL RULES:
1. Do NOT converse.
2. Do NOT answer the question.
3. Do NOT add explanations.
4. Output ONLY JSON. No markdown, no code fences.
5. Never invent events, titles or times the user did not say.

OUTPUT FORMAT:
{
  "intent": "<string or null>",
  "entities": {
    "title": "<string or null>",
    "start_time": "<local time or null>",
    "end_time": "<local time or null>",
    "event_id": "<string or null>",
    "attendees": ["<name>", ...]
  }
}

INTENTS (canonical, snake_case):
- "create_event"
- "read_events"
- "update_event"
- "delete_event"
- null  (anything that is not a calendar request)

ENTITY RULES:
- Times use the format YYYY-MM-DDTHH:MM:SS, local to the timezone below.
- Resolve relative phrases ("tomorrow", "next friday", "tonight") against the
  current date below.
- Fill end_time only when the user named one.
- For read_events, fill start_time/end_time only when the user named a range.
- For update_event/delete_event, put whatever the user called the event into
  "title"; the changed fields go into the time/attendee entities.
- Never fill event_id unless the user literally spoke an identifier.
- Never invent missing values.

Current date: %s (%s), %s.
Timezone: %s.
`

// Extractor turns transcripts into Intents with one chat-completion call.
type Extractor struct {
	client openai.Client
	loc    *time.Location
	now    func() time.Time
}

func NewExtractor(client openai.Client, loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.Local
	}
	return &Extractor{client: client, loc: loc, now: time.Now}
}

func (e *Extractor) systemPrompt() string {
	now := e.now().In(e.loc)
	return fmt.Sprintf(promptTemplate,
		now.Format("2006-01-02"), now.Weekday(), now.Format("15:04"), e.loc)
}

// Extract asks the model for the structured intent behind the transcript.
// Replies that do not fit the schema come back as *ParseError; a reply with
// a null intent is not an error, it maps to ActionNone.
func (e *Extractor) Extract(ctx context.Context, transcript string) (Intent, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(e.systemPrompt()),
			openai.UserMessage(transcript),
		},
		Model: chatModel,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Intent{}, &ParseError{Err: errors.New("no choices in response")}
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return Intent{}, &ParseError{Err: errors.New("empty message content")}
	}

	log.Debug("Model reply", "data", content)

	reply, err := decodeReply(content)
	if err != nil {
		return Intent{}, &ParseError{Raw: content, Err: err}
	}
	return e.intentFrom(reply, content)
}

type wireReply struct {
	Intent   *string      `json:"intent"`
	Entities wireEntities `json:"entities"`
}

type wireEntities struct {
	Title     string   `json:"title"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	EventID   string   `json:"event_id"`
	Attendees []string `json:"attendees"`
}

// decodeReply unmarshals the model output, running it through jsonrepair
// when the first attempt fails. Models under JSON-only prompts still leak
// fences and trailing commas often enough to make the retry worth it.
func decodeReply(content string) (wireReply, error) {
	raw := stripFences(content)

	var reply wireReply
	err := json.Unmarshal([]byte(raw), &reply)
	if err == nil {
		return reply, nil
	}

	fixed, rerr := jsonrepair.JSONRepair(raw)
	if rerr != nil {
		return wireReply{}, err
	}
	if uerr := json.Unmarshal([]byte(fixed), &reply); uerr != nil {
		return wireReply{}, err
	}
	log.Debug("Repaired model JSON", "raw", raw)
	return reply, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func (e *Extractor) intentFrom(reply wireReply, raw string) (Intent, error) {
	act, ok := actionFor(reply.Intent)
	if !ok {
		return Intent{}, &ParseError{Raw: raw, Err: fmt.Errorf("unknown intent %q", *reply.Intent)}
	}

	in := Intent{
		Action:  act,
		Title:   strings.TrimSpace(reply.Entities.Title),
		EventID: strings.TrimSpace(reply.Entities.EventID),
	}
	for _, a := range reply.Entities.Attendees {
		if a = strings.TrimSpace(a); a != "" {
			in.Attendees = append(in.Attendees, a)
		}
	}

	var err error
	if reply.Entities.StartTime != "" {
		if in.Start, err = parseWhen(reply.Entities.StartTime, e.loc); err != nil {
			return Intent{}, &ParseError{Raw: raw, Err: fmt.Errorf("start_time: %w", err)}
		}
	}
	if reply.Entities.EndTime != "" {
		if in.End, err = parseWhen(reply.Entities.EndTime, e.loc); err != nil {
			return Intent{}, &ParseError{Raw: raw, Err: fmt.Errorf("end_time: %w", err)}
		}
	}

	// A new event without a spoken end runs for an hour.
	if in.Action == ActionCreate && !in.Start.IsZero() && in.End.IsZero() {
		in.End = in.Start.Add(time.Hour)
	}
	return in, nil
}

func actionFor(intent *string) (Action, bool) {
	if intent == nil {
		return ActionNone, true
	}
	switch strings.ToLower(strings.TrimSpace(*intent)) {
	case "", "null", "none", "unknown":
		return ActionNone, true
	case "create_event", "create":
		return ActionCreate, true
	case "read_events", "read", "list_events", "list":
		return ActionList, true
	case "update_event", "update":
		return ActionUpdate, true
	case "delete_event", "delete", "remove_event":
		return ActionDelete, true
	}
	return "", false
}

// parseWhen accepts the prompt's naive local format plus the RFC 3339
// shapes models fall back to anyway.
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
