package audio

import (
	"math"
	"time"
)

// Endpointer accumulates command audio and decides when the utterance has
// ended: either a trailing-silence window after speech, or the recording
// cap. Leading silence before the first voiced frame is discarded.
//
// It is fed fixed-size frames and keeps no notion of where they come from,
// so the capture loop stays a thin device shim.
type Endpointer struct {
	threshold     float64 // RMS above this counts as speech
	frameDur      time.Duration
	maxSilence    time.Duration
	maxTotal      time.Duration
	elapsed       time.Duration
	trailingQuiet time.Duration
	speaking      bool
	samples       []float32
}

const defaultSilenceRMS = 0.015

func NewEndpointer(frameDur, maxSilence, maxTotal time.Duration) *Endpointer {
	return &Endpointer{
		threshold:  defaultSilenceRMS,
		frameDur:   frameDur,
		maxSilence: maxSilence,
		maxTotal:   maxTotal,
	}
}

// Feed consumes one frame and reports whether the utterance is complete.
func (e *Endpointer) Feed(frame []float32) bool {
	e.elapsed += e.frameDur
	rms := frameRMS(frame)

	if rms > e.threshold {
		e.speaking = true
		e.trailingQuiet = 0
		e.samples = append(e.samples, frame...)
	} else if e.speaking {
		e.trailingQuiet += e.frameDur
		if e.trailingQuiet >= e.maxSilence {
			return true
		}
		e.samples = append(e.samples, frame...)
	}

	return e.elapsed >= e.maxTotal
}

// Samples returns the accumulated utterance. Empty when nothing voiced was
// heard before the cap.
func (e *Endpointer) Samples() []float32 { return e.samples }

// HeardSpeech reports whether any frame crossed the speech threshold.
func (e *Endpointer) HeardSpeech() bool { return e.speaking }

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
