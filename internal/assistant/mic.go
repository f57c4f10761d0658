package assistant

import (
	"context"

	"github.com/rajeev0521/project-AVA/internal/audio"
	"github.com/rajeev0521/project-AVA/pkg/stt"
)

// MicListener feeds the loop from the real microphone. Trigger lets the
// control socket fake a wake word without saying it out loud.
type MicListener struct {
	Capture  *audio.Capture
	Detector audio.WakeDetector
	Trigger  <-chan struct{}
}

func (m *MicListener) WaitForWake(ctx context.Context) error {
	return m.Capture.WaitForWake(ctx, m.Detector, m.Trigger)
}

func (m *MicListener) RecordCommand(ctx context.Context) ([]float32, error) {
	return m.Capture.RecordCommand(ctx)
}

// WhisperTranscriber runs the local whisper model over a recorded command.
type WhisperTranscriber struct {
	Model *stt.Transcriber
	Opts  stt.Options
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	res, err := w.Model.TranscribePCM(ctx, pcm, w.Opts)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
