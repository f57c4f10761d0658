package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// SampleRate is the capture rate for command audio, matching what both the
// wake-word engine and the transcriber expect.
const SampleRate = 16000

// commandFrame is 20ms at SampleRate.
const (
	commandFrame    = 320
	commandFrameDur = 20 * time.Millisecond
)

// WakeDetector is what the Listening state feeds, frame by frame.
// Implemented by wakeword.Detector.
type WakeDetector interface {
	FrameLength() int
	SampleRate() int
	Detect(frame []int16) (bool, error)
}

type CaptureConfig struct {
	TrailingSilence time.Duration // quiet window that ends a command
	MaxUtterance    time.Duration // hard cap on one recording
}

// Capture owns the microphone for both loop states: Listening (wake frames)
// and Recording (command audio). Streams are opened per state, never
// concurrently; the orchestrator serializes all calls.
type Capture struct {
	cfg CaptureConfig
}

func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.TrailingSilence <= 0 {
		cfg.TrailingSilence = 1500 * time.Millisecond
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = 10 * time.Second
	}
	return &Capture{cfg: cfg}
}

// Init starts portaudio and verifies the default input device actually
// opens. Failure here is the loop's one unrecoverable error.
func (c *Capture) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("init portaudio: %w", err)
	}
	if err := c.probeInput(); err != nil {
		portaudio.Terminate()
		return err
	}
	return nil
}

func (c *Capture) Close() {
	portaudio.Terminate()
}

func (c *Capture) probeInput() error {
	buf := make([]float32, commandFrame)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return fmt.Errorf("open input device: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start input device: %w", err)
	}
	return stream.Stop()
}

// InputDevices lists capture-capable device names for boot diagnostics.
func (c *Capture) InputDevices() ([]string, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// WaitForWake blocks in the Listening state until the wake phrase is heard,
// the trigger channel fires (manual wake), or ctx is canceled.
func (c *Capture) WaitForWake(ctx context.Context, det WakeDetector, trigger <-chan struct{}) error {
	frame := make([]int16, det.FrameLength())
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(det.SampleRate()), len(frame), frame)
	if err != nil {
		return fmt.Errorf("open input device: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start input device: %w", err)
	}
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
			return nil
		default:
		}

		if err := stream.Read(); err != nil {
			return fmt.Errorf("read wake frame: %w", err)
		}
		hit, err := det.Detect(frame)
		if err != nil {
			return fmt.Errorf("wake detect: %w", err)
		}
		if hit {
			return nil
		}
	}
}

// RecordCommand runs the Recording state: accumulate until trailing silence
// or the cap. The returned utterance is empty when nothing voiced was heard.
func (c *Capture) RecordCommand(ctx context.Context) ([]float32, error) {
	buf := make([]float32, commandFrame)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input device: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input device: %w", err)
	}
	defer stream.Stop()

	ep := NewEndpointer(commandFrameDur, c.cfg.TrailingSilence, c.cfg.MaxUtterance)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read command frame: %w", err)
		}
		if ep.Feed(buf) {
			return ep.Samples(), nil
		}
	}
}
