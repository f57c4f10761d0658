package audio

import (
	"math"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"github.com/rajeev0521/project-AVA/pkg/audioconv"
)

// Player renders audio through the default output device. Playback blocks
// until the final sample, which is what keeps the loop from picking up its
// own voice as a new command.
type Player struct{}

func NewPlayer() *Player { return &Player{} }

// PlayClip plays mono PCM and returns once playback has finished.
func (p *Player) PlayClip(clip audioconv.Clip) error {
	if len(clip.Samples) == 0 {
		return nil
	}

	sr := beep.SampleRate(clip.Rate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return err
	}

	done := make(chan bool)
	speaker.Play(beep.Seq(&pcmStreamer{samples: clip.Samples}, beep.Callback(func() {
		done <- true
	})))
	<-done
	return nil
}

// Tone synthesizes a sine cue for wake acknowledgment when no cue file is
// configured.
func Tone(freq float64, dur time.Duration, rate int) audioconv.Clip {
	n := int(float64(rate) * dur.Seconds())
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.25 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return audioconv.Clip{Samples: samples, Rate: rate}
}

// pcmStreamer adapts mono float32 PCM to beep's stereo stream interface.
type pcmStreamer struct {
	samples []float32
	pos     int
}

func (s *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for i := range out {
		if s.pos >= len(s.samples) {
			break
		}
		v := float64(s.samples[s.pos])
		out[i][0], out[i][1] = v, v
		s.pos++
		n++
	}
	return n, true
}

func (s *pcmStreamer) Err() error { return nil }
