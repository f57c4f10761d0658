package tts

import (
	"context"

	"github.com/rajeev0521/project-AVA/pkg/audioconv"
)

// Player is what an engine needs to make sound.
type Player interface {
	PlayClip(clip audioconv.Clip) error
}

// Synthesizer speaks text and blocks until playback finishes, so the
// microphone never hears the assistant talk.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
	Name() string
}
