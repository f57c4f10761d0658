package tts

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"

	"github.com/rajeev0521/project-AVA/pkg/audioconv"
)

// Hosted synthesizes speech through the OpenAI audio endpoint and plays the
// returned MP3.
type Hosted struct {
	client openai.Client
	voice  string
	player Player
}

func NewHosted(client openai.Client, voice string, player Player) *Hosted {
	if voice == "" {
		voice = "alloy"
	}
	return &Hosted{client: client, voice: voice, player: player}
}

func (h *Hosted) Name() string { return "openai" }

func (h *Hosted) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	resp, err := h.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelGPT4oMiniTTS,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(h.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()

	clip, err := audioconv.DecodeMP3(resp.Body, audioconv.Options{})
	if err != nil {
		return fmt.Errorf("decode speech: %w", err)
	}
	return h.player.PlayClip(clip)
}
