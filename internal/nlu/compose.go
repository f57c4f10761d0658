package nlu

import (
	"context"
	"strings"

	log "log/slog"

	openai "github.com/openai/openai-go/v3"
)

const composePrompt = `
You are AVA, a friendly voice calendar assistant.
Rewrite the status line the user gives you as ONE short spoken sentence.

RULES:
1. Keep every fact: titles, dates, times, counts.
2. Add nothing that is not in the status line.
3. No markdown, no quotes, no emoji. Plain speakable text only.
4. At most 25 words.
`

// Composer optionally rewrites the plain status line of a cycle into a more
// conversational sentence. It never fails: any model trouble falls back to
// the plain text, the cycle stays audible either way.
type Composer struct {
	client  openai.Client
	enabled bool
}

func NewComposer(client openai.Client, enabled bool) *Composer {
	return &Composer{client: client, enabled: enabled}
}

func (c *Composer) Rephrase(ctx context.Context, plain string) string {
	if c == nil || !c.enabled || plain == "" {
		return plain
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(composePrompt),
			openai.UserMessage(plain),
		},
		Model: chatModel,
	})
	if err != nil {
		log.Debug("Rephrase failed, using plain reply", "err", err)
		return plain
	}
	if len(resp.Choices) == 0 {
		return plain
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return plain
	}
	return out
}
