package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rajeev0521/project-AVA/pkg/audioconv"
)

const defaultLocalBinary = "piper"

// Local synthesizes speech offline through a piper-style binary: text on
// stdin, a WAV stream on stdout.
type Local struct {
	binary string
	model  string
	player Player
}

func NewLocal(binary, model string, player Player) *Local {
	if binary == "" {
		binary = defaultLocalBinary
	}
	return &Local{binary: binary, model: model, player: player}
}

func (l *Local) Name() string { return "piper" }

func (l *Local) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, l.binary, "--model", l.model, "--output_file", "-")
	cmd.Stdin = strings.NewReader(text)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w (%s)", l.binary, err, strings.TrimSpace(stderr.String()))
	}

	clip, err := audioconv.DecodeWAV(bytes.NewReader(out.Bytes()), audioconv.Options{})
	if err != nil {
		return fmt.Errorf("decode %s output: %w", l.binary, err)
	}
	return l.player.PlayClip(clip)
}
