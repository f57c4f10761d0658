package stt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanTranscript(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "schedule a meeting tomorrow", "schedule a meeting tomorrow"},
		{"blank audio marker", "[BLANK_AUDIO]", ""},
		{"noise annotation", "(wind blowing)", ""},
		{"music glyphs", "♪ ♪ ♪", ""},
		{"mixed", "[typing] delete my standup (sighs)", "delete my standup"},
		{"surrounding whitespace", "   what's on   today  ", "what's on today"},
		{"unbalanced close", "ok) fine", "ok fine"},
		{"empty", "", ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, CleanTranscript(c.in))
		})
	}
}
