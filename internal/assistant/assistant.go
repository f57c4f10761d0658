package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "log/slog"

	"github.com/rajeev0521/project-AVA/internal/audio"
	"github.com/rajeev0521/project-AVA/internal/auth"
	"github.com/rajeev0521/project-AVA/internal/calendar"
	"github.com/rajeev0521/project-AVA/internal/nlu"
	"github.com/rajeev0521/project-AVA/internal/notify"
	"github.com/rajeev0521/project-AVA/pkg/audioconv"
	"github.com/rajeev0521/project-AVA/pkg/stt"
)

// The loop's component seams. Production wiring plugs the microphone,
// whisper, the chat model, the calendar operator and a speech engine into
// these; tests plug fakes.
type (
	Listener interface {
		WaitForWake(ctx context.Context) error
		RecordCommand(ctx context.Context) ([]float32, error)
	}

	Transcriber interface {
		Transcribe(ctx context.Context, pcm []float32) (string, error)
	}

	Extractor interface {
		Extract(ctx context.Context, transcript string) (nlu.Intent, error)
	}

	Operator interface {
		Execute(ctx context.Context, in nlu.Intent) (calendar.Result, error)
	}

	Speaker interface {
		Speak(ctx context.Context, text string) error
	}

	CuePlayer interface {
		PlayClip(clip audioconv.Clip) error
	}
)

// One spoken command may wait on three remote services back to back.
const cycleTimeout = 2 * time.Minute

type Options struct {
	Listener    Listener
	Transcriber Transcriber
	Extractor   Extractor
	Operator    Operator
	Speaker     Speaker

	// Optional extras.
	Composer *nlu.Composer
	Ducker   *audio.Ducker
	Player   CuePlayer
	AckCue   audioconv.Clip
	DumpDir  string
}

// Assistant drives the wake → record → transcribe → extract → execute →
// respond cycle. Cycles run strictly one at a time and listening only
// resumes after the response finished playing, so the microphone never
// hears the assistant itself.
type Assistant struct {
	listener   Listener
	transcribe Transcriber
	extract    Extractor
	operate    Operator
	speaker    Speaker

	composer *nlu.Composer
	ducker   *audio.Ducker
	player   CuePlayer
	ackCue   audioconv.Clip
	dumpDir  string

	started time.Time

	mu    sync.Mutex
	state string
}

func New(opts Options) *Assistant {
	return &Assistant{
		listener:   opts.Listener,
		transcribe: opts.Transcriber,
		extract:    opts.Extractor,
		operate:    opts.Operator,
		speaker:    opts.Speaker,
		composer:   opts.Composer,
		ducker:     opts.Ducker,
		player:     opts.Player,
		ackCue:     opts.AckCue,
		dumpDir:    opts.DumpDir,
		state:      "starting",
	}
}

// Run blocks on the listen loop until ctx is cancelled or the audio device
// fails. Everything else is absorbed into spoken replies.
func (a *Assistant) Run(ctx context.Context) error {
	a.started = time.Now()
	log.Info("I'm listening")

	for {
		a.setState("listening")
		if err := a.listener.WaitForWake(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for wake word: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.runCycle(ctx)
	}
}

func (a *Assistant) runCycle(ctx context.Context) {
	log.Info("Wake word detected")
	notify.Send("AVA", "Listening...")
	a.playAck()

	cctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	a.duckOthers(cctx)
	defer a.unduckOthers(ctx)

	msg := a.cycle(cctx)
	if msg == "" {
		return
	}

	a.setState("speaking")
	if err := a.speaker.Speak(cctx, msg); err != nil {
		log.Error("Failed to speak", "err", err)
	}
}

// cycle runs the stages of one command and returns the line to speak.
// An empty return means nothing was said to us, so nothing is said back.
func (a *Assistant) cycle(ctx context.Context) string {
	a.setState("recording")
	pcm, err := a.listener.RecordCommand(ctx)
	if err != nil {
		log.Error("Failed to record", "err", err)
		return ""
	}
	log.Info("Recorded", "samples", len(pcm))
	a.dumpUtterance(pcm)

	a.setState("transcribing")
	text, err := a.transcribe.Transcribe(ctx, pcm)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			log.Info("No command heard")
		} else {
			log.Error("Failed to transcribe", "err", err)
		}
		return ""
	}
	log.Info("Transcribed", "text", text)

	a.setState("thinking")
	in, err := a.extract.Extract(ctx, text)
	if err != nil {
		log.Error("Failed to extract intent", "err", err)
		var pe *nlu.ParseError
		if errors.As(err, &pe) {
			return "I couldn't quite understand that. Could you rephrase?"
		}
		return "I'm having trouble understanding right now."
	}
	if in.None() {
		return "I'm sorry, I couldn't understand what you want me to do with your calendar."
	}
	log.Info("Understood", "action", in.Action, "title", in.Title)

	a.setState("executing")
	res, err := a.operate.Execute(ctx, in)
	if err != nil {
		log.Error("Calendar operation failed", "err", err)
		return speakError(err)
	}
	log.Info("Executed", "action", res.Action, "events", len(res.Events))

	return a.composer.Rephrase(ctx, res.Message)
}

// speakError turns an operator failure into the clarification or apology
// the user hears. Failures stay audible, never silent.
func speakError(err error) string {
	var nf *calendar.NotFoundError
	if errors.As(err, &nf) {
		switch {
		case nf.Reference == "":
			return "Which event do you mean?"
		case nf.Ambiguous:
			return fmt.Sprintf("I found a few events like that: %s. Which one do you mean?",
				strings.Join(nf.Candidates, ", "))
		case len(nf.Candidates) > 0:
			return fmt.Sprintf("I couldn't find %s. Did you mean %s?",
				nf.Reference, strings.Join(nf.Candidates, ", "))
		}
		return fmt.Sprintf("I couldn't find an event called %s.", nf.Reference)
	}

	var ae *auth.Error
	if errors.As(err, &ae) {
		return "I can't access your calendar account right now."
	}

	var ce *calendar.APIError
	if errors.As(err, &ce) {
		return "I couldn't reach your calendar. Try again in a moment."
	}
	return "Something went wrong with that calendar request."
}

func (a *Assistant) playAck() {
	if a.player == nil || len(a.ackCue.Samples) == 0 {
		return
	}
	if err := a.player.PlayClip(a.ackCue); err != nil {
		log.Debug("Ack cue failed", "err", err)
	}
}

func (a *Assistant) duckOthers(ctx context.Context) {
	if a.ducker == nil {
		return
	}
	if err := a.ducker.Duck(ctx, 0.3, 200*time.Millisecond); err != nil {
		log.Debug("Duck failed", "err", err)
	}
}

func (a *Assistant) unduckOthers(ctx context.Context) {
	if a.ducker == nil {
		return
	}
	if err := a.ducker.Unduck(ctx, 200*time.Millisecond); err != nil {
		log.Debug("Unduck failed", "err", err)
	}
}

func (a *Assistant) dumpUtterance(pcm []float32) {
	if a.dumpDir == "" || len(pcm) == 0 {
		return
	}
	path, err := audio.DumpUtterance(a.dumpDir, pcm, audio.SampleRate)
	if err != nil {
		log.Warn("Failed to dump utterance", "err", err)
		return
	}
	log.Debug("Utterance dumped", "path", path)
}

func (a *Assistant) setState(s string) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// State reports what the loop is doing, for the control socket.
func (a *Assistant) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assistant) Uptime() time.Duration {
	if a.started.IsZero() {
		return 0
	}
	return time.Since(a.started)
}
