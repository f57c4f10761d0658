package wakeword

import (
	"errors"
	"fmt"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"
)

// Detector recognizes the wake phrase in fixed-size audio frames. It wraps
// a Porcupine engine configured with either a custom keyword file or the
// builtin "porcupine" keyword.
type Detector struct {
	engine porcupine.Porcupine
}

func NewDetector(accessKey, keywordPath string, sensitivity float32) (*Detector, error) {
	if accessKey == "" {
		return nil, errors.New("empty access key")
	}
	if sensitivity <= 0 || sensitivity > 1 {
		sensitivity = 0.6
	}

	d := &Detector{
		engine: porcupine.Porcupine{
			AccessKey:     accessKey,
			Sensitivities: []float32{sensitivity},
		},
	}
	if keywordPath != "" {
		d.engine.KeywordPaths = []string{keywordPath}
	} else {
		d.engine.BuiltInKeywords = []porcupine.BuiltInKeyword{porcupine.PORCUPINE}
	}

	if err := d.engine.Init(); err != nil {
		return nil, fmt.Errorf("init porcupine: %w", err)
	}
	return d, nil
}

// FrameLength is the exact number of samples Detect expects per call.
func (d *Detector) FrameLength() int { return porcupine.FrameLength }

// SampleRate is the input rate the engine was trained for (16 kHz).
func (d *Detector) SampleRate() int { return porcupine.SampleRate }

// Detect feeds one frame to the engine and reports whether the wake phrase
// ended inside it.
func (d *Detector) Detect(frame []int16) (bool, error) {
	idx, err := d.engine.Process(frame)
	if err != nil {
		return false, err
	}
	return idx >= 0, nil
}

func (d *Detector) Close() error {
	return d.engine.Delete()
}
