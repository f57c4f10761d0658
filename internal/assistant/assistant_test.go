package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajeev0521/project-AVA/internal/auth"
	"github.com/rajeev0521/project-AVA/internal/calendar"
	"github.com/rajeev0521/project-AVA/internal/nlu"
	"github.com/rajeev0521/project-AVA/pkg/stt"
)

type fakeListener struct {
	pcm       []float32
	recordErr error
}

func (f *fakeListener) WaitForWake(ctx context.Context) error { return ctx.Err() }

func (f *fakeListener) RecordCommand(ctx context.Context) ([]float32, error) {
	return f.pcm, f.recordErr
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	in  nlu.Intent
	err error
}

func (f *fakeExtractor) Extract(ctx context.Context, transcript string) (nlu.Intent, error) {
	return f.in, f.err
}

type fakeOperator struct {
	calls int
	res   calendar.Result
	err   error
}

func (f *fakeOperator) Execute(ctx context.Context, in nlu.Intent) (calendar.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeSpeaker struct {
	lines  []string
	spoken chan string
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.lines = append(f.lines, text)
	if f.spoken != nil {
		f.spoken <- text
	}
	return nil
}

func testAssistant(op *fakeOperator) (*Assistant, *fakeSpeaker) {
	sp := &fakeSpeaker{}
	a := New(Options{
		Listener:    &fakeListener{pcm: make([]float32, 1600)},
		Transcriber: &fakeTranscriber{text: "schedule a meeting tomorrow at noon"},
		Extractor: &fakeExtractor{in: nlu.Intent{
			Action: nlu.ActionCreate,
			Title:  "Meeting",
			Start:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		}},
		Operator: op,
		Speaker:  sp,
	})
	return a, sp
}

func TestCycleHappyPath(t *testing.T) {
	op := &fakeOperator{res: calendar.Result{
		Action:  nlu.ActionCreate,
		Message: "Created Meeting, tomorrow at 12:00 PM.",
	}}
	a, _ := testAssistant(op)

	msg := a.cycle(context.Background())

	assert.Equal(t, "Created Meeting, tomorrow at 12:00 PM.", msg)
	assert.Equal(t, 1, op.calls)
}

func TestCycleParseErrorNeverExecutes(t *testing.T) {
	op := &fakeOperator{}
	a, _ := testAssistant(op)
	a.extract = &fakeExtractor{err: &nlu.ParseError{Raw: "I think you want a meeting"}}

	msg := a.cycle(context.Background())

	assert.Equal(t, "I couldn't quite understand that. Could you rephrase?", msg)
	assert.Zero(t, op.calls, "a reply we could not parse must never reach the calendar")
}

func TestCycleExtractorOutage(t *testing.T) {
	op := &fakeOperator{}
	a, _ := testAssistant(op)
	a.extract = &fakeExtractor{err: errors.New("chat completion: 503")}

	msg := a.cycle(context.Background())

	assert.Equal(t, "I'm having trouble understanding right now.", msg)
	assert.Zero(t, op.calls)
}

func TestCycleNoSpeechStaysSilent(t *testing.T) {
	op := &fakeOperator{}
	a, _ := testAssistant(op)
	a.transcribe = &fakeTranscriber{err: stt.ErrNoSpeech}

	msg := a.cycle(context.Background())

	assert.Empty(t, msg, "an empty recording gets no spoken reply")
	assert.Zero(t, op.calls)
}

func TestCycleTranscriberErrorStaysSilent(t *testing.T) {
	op := &fakeOperator{}
	a, _ := testAssistant(op)
	a.transcribe = &fakeTranscriber{err: errors.New("whisper: model busy")}

	msg := a.cycle(context.Background())

	assert.Empty(t, msg)
	assert.Zero(t, op.calls)
}

func TestCycleRecordErrorStaysSilent(t *testing.T) {
	op := &fakeOperator{}
	a, _ := testAssistant(op)
	a.listener = &fakeListener{recordErr: errors.New("stream underrun")}

	msg := a.cycle(context.Background())

	assert.Empty(t, msg)
	assert.Zero(t, op.calls)
}

func TestCycleNoIntentApologizes(t *testing.T) {
	op := &fakeOperator{}
	a, _ := testAssistant(op)
	a.extract = &fakeExtractor{in: nlu.Intent{Action: nlu.ActionNone}}

	msg := a.cycle(context.Background())

	assert.Equal(t, "I'm sorry, I couldn't understand what you want me to do with your calendar.", msg)
	assert.Zero(t, op.calls, "small talk must not trigger calendar calls")
}

func TestSpeakError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "no reference",
			err:  &calendar.NotFoundError{},
			want: "Which event do you mean?",
		},
		{
			name: "ambiguous",
			err: &calendar.NotFoundError{
				Reference:  "standup",
				Ambiguous:  true,
				Candidates: []string{"Standup today at 9:15 AM", "Standup tomorrow at 9:15 AM"},
			},
			want: "I found a few events like that: Standup today at 9:15 AM, Standup tomorrow at 9:15 AM. Which one do you mean?",
		},
		{
			name: "near miss",
			err: &calendar.NotFoundError{
				Reference:  "sync",
				Candidates: []string{"Design Sync tomorrow at 3:00 PM"},
			},
			want: "I couldn't find sync. Did you mean Design Sync tomorrow at 3:00 PM?",
		},
		{
			name: "plain miss",
			err:  &calendar.NotFoundError{Reference: "dentist"},
			want: "I couldn't find an event called dentist.",
		},
		{
			name: "api failure",
			err:  &calendar.APIError{Op: "insert", Err: errors.New("googleapi: 500")},
			want: "I couldn't reach your calendar. Try again in a moment.",
		},
		{
			name: "auth failure wins over its api wrapper",
			err:  &calendar.APIError{Op: "list", Err: &auth.Error{Err: errors.New("invalid_grant")}},
			want: "I can't access your calendar account right now.",
		},
		{
			name: "anything else",
			err:  errors.New("context deadline exceeded"),
			want: "Something went wrong with that calendar request.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, speakError(tc.err))
		})
	}
}

func TestCycleSpeaksOperatorError(t *testing.T) {
	op := &fakeOperator{err: &calendar.APIError{Op: "list", Err: errors.New("googleapi: 500")}}
	a, _ := testAssistant(op)

	msg := a.cycle(context.Background())

	assert.Equal(t, "I couldn't reach your calendar. Try again in a moment.", msg)
}

// scriptedListener wakes once, then blocks until the context dies.
type scriptedListener struct {
	fakeListener
	woken bool
}

func (s *scriptedListener) WaitForWake(ctx context.Context) error {
	if !s.woken {
		s.woken = true
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunSpeaksThenStopsOnCancel(t *testing.T) {
	op := &fakeOperator{res: calendar.Result{Action: nlu.ActionList, Message: "Nothing on your calendar today."}}
	a, sp := testAssistant(op)
	sp.spoken = make(chan string)
	a.listener = &scriptedListener{fakeListener: fakeListener{pcm: make([]float32, 1600)}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case line := <-sp.spoken:
		assert.Equal(t, "Nothing on your calendar today.", line)
	case <-time.After(time.Second):
		t.Fatal("nothing was spoken")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	assert.Equal(t, 1, op.calls)
	assert.Positive(t, a.Uptime())
}

type brokenListener struct{ fakeListener }

func (b *brokenListener) WaitForWake(ctx context.Context) error {
	return errors.New("input stream died")
}

func TestRunStopsOnDeviceFailure(t *testing.T) {
	op := &fakeOperator{}
	a, _ := testAssistant(op)
	a.listener = &brokenListener{}

	err := a.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait for wake word")
	assert.Zero(t, op.calls)
}

func TestStateTracksLoop(t *testing.T) {
	a, _ := testAssistant(&fakeOperator{})
	assert.Equal(t, "starting", a.State())
	a.setState("listening")
	assert.Equal(t, "listening", a.State())
}
